//go:build linux

package corort

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// epollBackend is the Linux pollBackend, grounded directly on
// eventloop/poller_linux.go's FastPoller: EpollCreate1/EpollCtl/EpollWait
// over golang.org/x/sys/unix, without the teacher's direct-index
// fixed-size array (optimized for a callback-per-fd event loop): this
// backend holds only the epoll descriptor, and the per-fd waiter
// bookkeeping lives in ioPoller's maps keyed by fd (one entry per
// in-flight suspended task, not one per long-lived registered handler).
type epollBackend struct {
	epfd int
}

func newPollBackend() (pollBackend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollBackend{epfd: epfd}, nil
}

func (b *epollBackend) add(fd int, events ioEvents) error {
	ev := unix.EpollEvent{Fd: int32(fd), Events: toEpollEvents(events)}
	err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	if err != nil && errors.Is(err, unix.EEXIST) {
		err = unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	}
	return err
}

func (b *epollBackend) remove(fd int) error {
	err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if errors.Is(err, unix.ENOENT) {
		return nil
	}
	return err
}

func (b *epollBackend) wait(timeout time.Duration) ([]pollReadyEvent, error) {
	var buf [64]unix.EpollEvent
	ms := int(timeout / time.Millisecond)
	if ms <= 0 {
		ms = 1
	}
	n, err := unix.EpollWait(b.epfd, buf[:], ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]pollReadyEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, pollReadyEvent{
			fd:     int(buf[i].Fd),
			events: fromEpollEvents(buf[i].Events),
		})
	}
	return out, nil
}

func (b *epollBackend) close() error {
	return unix.Close(b.epfd)
}

func toEpollEvents(events ioEvents) uint32 {
	var e uint32
	if events&ioRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&ioWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func fromEpollEvents(e uint32) ioEvents {
	var events ioEvents
	if e&unix.EPOLLIN != 0 {
		events |= ioRead
	}
	if e&unix.EPOLLOUT != 0 {
		events |= ioWrite
	}
	if e&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		events |= ioErr
	}
	return events
}
