package corort

import (
	"time"

	"github.com/joeycumines/logiface"
)

// ioEvents is the direction bitmask a waiter registers interest in,
// mirroring eventloop's IOEvents but kept internal: callers of AsyncIO
// never see raw event bits, only the read/write waiter primitives.
type ioEvents uint32

const (
	ioRead ioEvents = 1 << iota
	ioWrite
	ioErr
)

// pollReadyEvent is one descriptor's readiness report from a pollBackend.
type pollReadyEvent struct {
	fd     int
	events ioEvents
}

// pollBackend is the host readiness multiplexer: epoll on Linux,
// poll(2) elsewhere. Both implementations live in golang.org/x/sys/unix,
// selected by build tag, grounded on eventloop's poller_linux.go /
// poller_darwin.go platform-file split.
type pollBackend interface {
	add(fd int, events ioEvents) error
	remove(fd int) error
	wait(timeout time.Duration) ([]pollReadyEvent, error)
	close() error
}

type ioWaiter struct {
	fd    int
	job   *Job
	sched *Scheduler
}

// ioPoller is AsyncIO's waiter registry and pollOnce driver, per spec
// §4.4: readWaiters/writeWaiters map a descriptor to the task suspended
// on it, and pollOnce resumes the first set whose readiness (or
// hang-up/error) the backend reports.
type ioPoller struct {
	backend      pollBackend
	readWaiters  map[int]*ioWaiter
	writeWaiters map[int]*ioWaiter
	logger       *logiface.Logger[*slogEvent]
}

func newIOPoller(logger *logiface.Logger[*slogEvent]) *ioPoller {
	backend, err := newPollBackend()
	if err != nil {
		logger.Build(logiface.LevelError).Err(err).Log("asyncio: poller backend unavailable, I/O primitives will stall")
		backend = newNoopBackend()
	}
	return &ioPoller{
		backend:      backend,
		readWaiters:  make(map[int]*ioWaiter),
		writeWaiters: make(map[int]*ioWaiter),
		logger:       logger,
	}
}

func (p *ioPoller) hasWaiters() bool {
	return len(p.readWaiters) > 0 || len(p.writeWaiters) > 0
}

// registerRead registers fd for read readiness, to be resumed with a
// bool (true = ready, false = hang-up/error). Only one read waiter per
// fd is supported, matching spec §4.4's stated assumption.
func (p *ioPoller) registerRead(fd int, job *Job, sched *Scheduler) error {
	if _, exists := p.readWaiters[fd]; exists {
		return &IllegalStateError{Op: "registerRead", Message: "fd already has a read waiter"}
	}
	p.readWaiters[fd] = &ioWaiter{fd: fd, job: job, sched: sched}
	return p.backend.add(fd, ioRead)
}

// registerWrite registers fd for write readiness, symmetric to
// registerRead.
func (p *ioPoller) registerWrite(fd int, job *Job, sched *Scheduler) error {
	if _, exists := p.writeWaiters[fd]; exists {
		return &IllegalStateError{Op: "registerWrite", Message: "fd already has a write waiter"}
	}
	p.writeWaiters[fd] = &ioWaiter{fd: fd, job: job, sched: sched}
	return p.backend.add(fd, ioWrite)
}

// pollOnce implements spec §4.4's algorithm, steps 2-4 combined with step
// 1: the backend reports hang-up/error alongside readiness in the same
// event set, so a dead descriptor is resumed with false in the same pass
// that live descriptors are resumed with true, rather than as a separate
// walk.
func (p *ioPoller) pollOnce() bool {
	if !p.hasWaiters() {
		return false
	}
	events, err := p.backend.wait(200 * time.Microsecond)
	if err != nil || len(events) == 0 {
		return false
	}

	type wake struct {
		w     *ioWaiter
		ready bool
	}
	var wakes []wake
	for _, ev := range events {
		dead := ev.events&ioErr != 0
		if ev.events&ioRead != 0 || dead {
			if w, ok := p.readWaiters[ev.fd]; ok {
				delete(p.readWaiters, ev.fd)
				_ = p.backend.remove(ev.fd)
				wakes = append(wakes, wake{w, !dead})
			}
		}
		if ev.events&ioWrite != 0 || dead {
			if w, ok := p.writeWaiters[ev.fd]; ok {
				delete(p.writeWaiters, ev.fd)
				_ = p.backend.remove(ev.fd)
				wakes = append(wakes, wake{w, !dead})
			}
		}
	}
	for _, w := range wakes {
		w.w.sched.resumeJob(w.w.job, w.ready)
	}
	return len(wakes) > 0
}

func (p *ioPoller) close() error {
	return p.backend.close()
}

// noopBackend is used when no real readiness multiplexer is available;
// every wait reports no events, so dependent tasks never resume (a
// construction-time logging failure, not a silent correctness trap).
type noopBackend struct{}

func newNoopBackend() pollBackend { return noopBackend{} }

func (noopBackend) add(int, ioEvents) error                       { return nil }
func (noopBackend) remove(int) error                              { return nil }
func (noopBackend) wait(time.Duration) ([]pollReadyEvent, error)  { return nil, nil }
func (noopBackend) close() error                                  { return nil }
