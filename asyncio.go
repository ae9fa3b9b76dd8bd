package corort

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// AsyncSocket is a non-blocking descriptor driven through the scheduler's
// I/O poller rather than a blocking net.Conn; spec §4.4's "high-level
// primitives built on waiters" operate on it.
type AsyncSocket struct {
	fd int
}

// FD returns the underlying file descriptor, for the poller's
// registerRead/registerWrite or diagnostics.
func (s *AsyncSocket) FD() int { return s.fd }

// Close closes the socket.
func (s *AsyncSocket) Close() error {
	return unix.Close(s.fd)
}

// TCPConnect issues a non-blocking connect and suspends the calling task
// until the socket is writable (connected) or timeout elapses, per spec
// §4.4.
func TCPConnect(job *Job, host string, port int, timeout time.Duration) (*AsyncSocket, error) {
	ip, err := resolveIPv4(host)
	if err != nil {
		return nil, &IoError{Op: "tcpConnect", Cause: err}
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, &IoError{Op: "tcpConnect", Cause: err}
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, &IoError{Op: "tcpConnect", Cause: err}
	}
	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip[:])
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return nil, &IoError{Op: "tcpConnect", Cause: err}
	}
	if err == nil {
		return &AsyncSocket{fd: fd}, nil
	}

	sock := &AsyncSocket{fd: fd}
	if err := waitWritable(job, sock, timeout); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if errno, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); gerr == nil && errno != 0 {
		_ = unix.Close(fd)
		return nil, &IoError{Op: "tcpConnect", Cause: unix.Errno(errno)}
	}
	return sock, nil
}

func waitWritable(job *Job, sock *AsyncSocket, timeout time.Duration) error {
	sched := job.sched
	deadline := sched.clock.NowMillis() + timeout.Milliseconds()
	for {
		if err := sched.poller.registerWrite(sock.fd, job, sched); err != nil {
			return &IoError{Op: "waitWritable", Cause: err}
		}
		ready := job.Suspend(nil).(bool)
		if ready {
			return nil
		}
		if timeout > 0 && sched.clock.NowMillis() >= deadline {
			return &TimeoutError{Cause: fmt.Errorf("waiting for %d to become writable", sock.fd)}
		}
	}
}

func waitReadable(job *Job, sock *AsyncSocket, timeout time.Duration) (bool, error) {
	sched := job.sched
	deadline := sched.clock.NowMillis() + timeout.Milliseconds()
	if err := sched.poller.registerRead(sock.fd, job, sched); err != nil {
		return false, &IoError{Op: "waitReadable", Cause: err}
	}
	ready := job.Suspend(nil).(bool)
	if !ready {
		return false, nil
	}
	if timeout > 0 && sched.clock.NowMillis() >= deadline {
		return false, &TimeoutError{}
	}
	return true, nil
}

// StreamRead performs a non-blocking read of up to max bytes, registering
// a read waiter and looping until bytes arrive, EOF, or timeout.
func StreamRead(job *Job, sock *AsyncSocket, max int, timeout time.Duration) ([]byte, error) {
	sched := job.sched
	deadline := sched.clock.NowMillis() + timeout.Milliseconds()
	buf := make([]byte, max)
	for {
		n, err := unix.Read(sock.fd, buf)
		switch {
		case n > 0:
			return buf[:n], nil
		case n == 0 && err == nil:
			return nil, nil // EOF
		case err == unix.EAGAIN:
			if timeout > 0 && sched.clock.NowMillis() >= deadline {
				return nil, &TimeoutError{}
			}
			live, werr := waitReadable(job, sock, timeout)
			if werr != nil {
				return nil, werr
			}
			if !live {
				return nil, nil
			}
		default:
			return nil, &IoError{Op: "streamRead", Cause: err}
		}
	}
}

// StreamReadAll reads until EOF or timeout, returning everything read.
func StreamReadAll(job *Job, sock *AsyncSocket, timeout time.Duration) ([]byte, error) {
	var out []byte
	for {
		chunk, err := StreamRead(job, sock, 64*1024, timeout)
		if err != nil {
			return out, err
		}
		if len(chunk) == 0 {
			return out, nil
		}
		out = append(out, chunk...)
	}
}

// StreamWrite writes all of data, registering a write waiter and looping
// whenever the kernel buffer is full, until everything is written or
// timeout elapses.
func StreamWrite(job *Job, sock *AsyncSocket, data []byte, timeout time.Duration) error {
	sched := job.sched
	deadline := sched.clock.NowMillis() + timeout.Milliseconds()
	for len(data) > 0 {
		n, err := unix.Write(sock.fd, data)
		switch {
		case n > 0:
			data = data[n:]
		case err == unix.EAGAIN:
			if timeout > 0 && sched.clock.NowMillis() >= deadline {
				return &TimeoutError{}
			}
			if err := waitWritable(job, sock, timeout); err != nil {
				return err
			}
		default:
			return &IoError{Op: "streamWrite", Cause: err}
		}
	}
	return nil
}

// HTTPGet composes TCPConnect/StreamWrite/StreamReadAll into a minimal
// HTTP/1.1 GET, per spec §4.4. TLS ("httpGet over https") is out of
// scope for this primitive, matching spec.md's Non-goals around
// transport security being a host concern.
func HTTPGet(job *Job, rawURL string, timeout time.Duration) (*http.Response, error) {
	return httpRequest(job, "GET", rawURL, nil, timeout)
}

// HTTPPost composes the same primitives as HTTPGet, sending body as the
// request payload.
func HTTPPost(job *Job, rawURL string, body []byte, timeout time.Duration) (*http.Response, error) {
	return httpRequest(job, "POST", rawURL, body, timeout)
}

func httpRequest(job *Job, method, rawURL string, body []byte, timeout time.Duration) (*http.Response, error) {
	host, port, path, err := splitHTTPURL(rawURL)
	if err != nil {
		return nil, &IoError{Op: "http", Cause: err}
	}
	sock, err := TCPConnect(job, host, port, timeout)
	if err != nil {
		return nil, err
	}
	defer sock.Close()

	var req bytes.Buffer
	fmt.Fprintf(&req, "%s %s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n", method, path, host)
	if len(body) > 0 {
		fmt.Fprintf(&req, "Content-Length: %d\r\n", len(body))
	}
	req.WriteString("\r\n")
	req.Write(body)

	if err := StreamWrite(job, sock, req.Bytes(), timeout); err != nil {
		return nil, err
	}
	raw, err := StreamReadAll(job, sock, timeout)
	if err != nil {
		return nil, err
	}
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	if err != nil {
		return nil, &IoError{Op: "http", Cause: err}
	}
	return resp, nil
}

func splitHTTPURL(rawURL string) (host string, port int, path string, err error) {
	s := strings.TrimPrefix(rawURL, "http://")
	if s == rawURL {
		return "", 0, "", fmt.Errorf("only http:// URLs are supported")
	}
	slash := strings.IndexByte(s, '/')
	hostport := s
	path = "/"
	if slash >= 0 {
		hostport = s[:slash]
		path = s[slash:]
	}
	host = hostport
	port = 80
	if colon := strings.IndexByte(hostport, ':'); colon >= 0 {
		host = hostport[:colon]
		if _, perr := fmt.Sscanf(hostport[colon+1:], "%d", &port); perr != nil {
			return "", 0, "", perr
		}
	}
	return host, port, path, nil
}

func resolveIPv4(host string) ([4]byte, error) {
	var out [4]byte
	var a, b, c, d int
	if n, err := fmt.Sscanf(host, "%d.%d.%d.%d", &a, &b, &c, &d); err == nil && n == 4 {
		out = [4]byte{byte(a), byte(b), byte(c), byte(d)}
		return out, nil
	}
	addrs, err := net.LookupIP(host)
	if err != nil {
		return out, err
	}
	for _, addr := range addrs {
		if v4 := addr.To4(); v4 != nil {
			copy(out[:], v4)
			return out, nil
		}
	}
	return out, fmt.Errorf("no A record for %s", host)
}

// FileGetContents reads an entire file cooperatively, yielding between
// chunks even though regular files are usually immediately "ready", per
// spec §4.4's stated rationale: fairness with other tasks, not I/O
// readiness.
func FileGetContents(job *Job, path string, chunkSize int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IoError{Op: "fileGetContents", Cause: err}
	}
	defer f.Close()
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	var out []byte
	buf := make([]byte, chunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			break
		}
		Pause(job)
	}
	return out, nil
}

// FilePutContents writes data to path cooperatively, chunkSize bytes at a
// time, yielding between chunks.
func FilePutContents(job *Job, path string, data []byte, chunkSize int) error {
	f, err := os.Create(path)
	if err != nil {
		return &IoError{Op: "filePutContents", Cause: err}
	}
	defer f.Close()
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	for len(data) > 0 {
		n := chunkSize
		if n > len(data) {
			n = len(data)
		}
		if _, err := f.Write(data[:n]); err != nil {
			return &IoError{Op: "filePutContents", Cause: err}
		}
		data = data[n:]
		Pause(job)
	}
	return nil
}

// CreateSocketPair returns two connected local sockets. On platforms with
// unix.Socketpair (all Unix targets this module supports) it uses that
// directly, grounded on eventloop's own test usage of
// unix.Socketpair(AF_UNIX, SOCK_STREAM, 0); spec §4.4's "platforms
// without Unix socket pairs" fallback (loopback TCP) is not reachable on
// any build target this module compiles for, so it is not implemented -
// see DESIGN.md.
func CreateSocketPair() (*AsyncSocket, *AsyncSocket, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, &IoError{Op: "createSocketPair", Cause: err}
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		return nil, nil, &IoError{Op: "createSocketPair", Cause: err}
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		return nil, nil, &IoError{Op: "createSocketPair", Cause: err}
	}
	return &AsyncSocket{fd: fds[0]}, &AsyncSocket{fd: fds[1]}, nil
}
