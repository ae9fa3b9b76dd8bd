// Package sharedflow implements spec §4.9's hot broadcast stream: a
// single ring buffer shared by every collector, with a replay region
// and an optional extra buffer that applies backpressure once full.
// Grounded on corort.Pause's cooperative retry-then-yield idiom, since
// it models a single-threaded scheduler in which there is no independent
// drainer goroutine to wait on.
package sharedflow

import (
	"sync"

	"github.com/structrt/corort"
	"github.com/structrt/corort/flow"
)

// BackpressureStrategy re-exports corort/flow's strategy enum: the two
// stream kinds share one overflow vocabulary per spec §4.8/§4.9.
type BackpressureStrategy = flow.BackpressureStrategy

const (
	Suspend    = flow.Suspend
	DropOldest = flow.DropOldest
	DropLatest = flow.DropLatest
	ErrorStrat = flow.ErrorStrategy
)

// maxSuspendRetries bounds how many scheduler rounds the Suspend
// overflow strategy waits for room before falling back to DropOldest.
// corort/flow's buffer operator has no such loop: its Suspend goes to
// DropOldest at once.
const maxSuspendRetries = 64

type collector struct {
	mu     sync.Mutex
	queue  []any
	closed bool
}

// SharedFlow is a hot, multi-collector broadcast stream.
type SharedFlow struct {
	mu       sync.Mutex
	buffer   []any
	replay   int
	extra    int
	total    int
	strategy BackpressureStrategy
	active   bool

	collectors      map[int]*collector
	nextCollectorID int

	suspendedEmitters []*corort.Job
}

// New constructs a SharedFlow per spec §4.9's construction parameters:
// replay >= 0, extraBufferCapacity >= 0. Either negative is an
// *corort.InvalidArgumentError.
func New(replay, extraBufferCapacity int, strategy BackpressureStrategy) (*SharedFlow, error) {
	if replay < 0 {
		return nil, &corort.InvalidArgumentError{Arg: "replay", Message: "must be >= 0"}
	}
	if extraBufferCapacity < 0 {
		return nil, &corort.InvalidArgumentError{Arg: "extraBufferCapacity", Message: "must be >= 0"}
	}
	return &SharedFlow{
		replay:     replay,
		extra:      extraBufferCapacity,
		total:      replay + extraBufferCapacity,
		strategy:   strategy,
		active:     true,
		collectors: make(map[int]*collector),
	}, nil
}

// bufferCap is the ring's hard cap: max(totalCapacity, replay).
func (s *SharedFlow) bufferCap() int {
	if s.replay > s.total {
		return s.replay
	}
	return s.total
}

// backpressured reports whether emit must apply the overflow strategy,
// per spec §4.9: only once extraBufferCapacity > 0 and the buffer is at
// total capacity.
func (s *SharedFlow) backpressured() bool {
	return s.extra > 0 && len(s.buffer) >= s.total
}

func (s *SharedFlow) appendLocked(v any) {
	s.buffer = append(s.buffer, v)
	if limit := s.bufferCap(); limit > 0 && len(s.buffer) > limit {
		s.buffer = s.buffer[len(s.buffer)-limit:]
	}
}

// dispatchLocked pushes v to every active collector's queue; a
// collector is never removed here for a full queue since collector
// queues are unbounded logical FIFOs (the real backpressure lives on
// the shared ring buffer, per spec §4.9).
func (s *SharedFlow) dispatchLocked(v any) {
	for _, c := range s.collectors {
		c.mu.Lock()
		if !c.closed {
			c.queue = append(c.queue, v)
		}
		c.mu.Unlock()
	}
}

// Emit delivers v to the stream, suspending the calling task under the
// Suspend overflow strategy until room is available (falling back to
// DropOldest after maxSuspendRetries rounds, since there is no
// concurrent drainer to wait on indefinitely).
func (s *SharedFlow) Emit(job *corort.Job, v any) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}

	if s.backpressured() {
		switch s.strategy {
		case DropOldest:
			if len(s.buffer) > 0 {
				s.buffer = s.buffer[1:]
			}
		case DropLatest:
			s.mu.Unlock()
			return nil
		case ErrorStrat:
			capacity := s.total
			s.mu.Unlock()
			return &corort.BufferOverflowError{Capacity: capacity}
		default: // Suspend
			s.suspendedEmitters = append(s.suspendedEmitters, job)
			s.mu.Unlock()

			accommodated := false
			for i := 0; i < maxSuspendRetries; i++ {
				corort.Pause(job)
				s.mu.Lock()
				if !s.active {
					s.mu.Unlock()
					return nil
				}
				if !s.backpressured() {
					accommodated = true
					break
				}
				s.mu.Unlock()
			}
			if !accommodated {
				s.mu.Lock()
				// Still full after the bounded wait: fall back to
				// DropOldest rather than block forever with no
				// concurrent drainer.
				if len(s.buffer) > 0 {
					s.buffer = s.buffer[1:]
				}
			}
		}
	}

	s.appendLocked(v)
	s.dispatchLocked(v)
	s.mu.Unlock()
	return nil
}

// TryEmit is the non-blocking variant: it never suspends. DropOldest
// always succeeds; DropLatest reports success even though the value is
// discarded; Suspend and Error report failure when the buffer is full.
func (s *SharedFlow) TryEmit(v any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}
	if s.backpressured() {
		switch s.strategy {
		case DropOldest:
			if len(s.buffer) > 0 {
				s.buffer = s.buffer[1:]
			}
		case DropLatest:
			return true
		default:
			return false
		}
	}
	s.appendLocked(v)
	s.dispatchLocked(v)
	return true
}

// replaySliceLocked returns up to replay most-recent buffered values.
func (s *SharedFlow) replaySliceLocked() []any {
	if s.replay <= 0 || len(s.buffer) == 0 {
		return nil
	}
	n := s.replay
	if n > len(s.buffer) {
		n = len(s.buffer)
	}
	out := make([]any, n)
	copy(out, s.buffer[len(s.buffer)-n:])
	return out
}

// Collect registers a new collector, immediately delivers the replay
// slice, then blocks the calling task (via corort.Pause, once per
// scheduler round) delivering live emissions to onEach until Complete
// is called or onEach returns an error.
func (s *SharedFlow) Collect(job *corort.Job, onEach func(v any) error) error {
	s.mu.Lock()
	id := s.nextCollectorID
	s.nextCollectorID++
	c := &collector{}
	s.collectors[id] = c
	replay := s.replaySliceLocked()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.collectors, id)
		s.mu.Unlock()
	}()

	for _, v := range replay {
		if err := onEach(v); err != nil {
			return err
		}
	}

	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			v := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()
			if err := onEach(v); err != nil {
				return err
			}
			continue
		}
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil
		}
		corort.Pause(job)
	}
}

// Complete marks the stream inactive: suspended emitters are released
// (Emit's retry loop above simply observes s.active is false and
// returns without appending) and every collector's queue is marked
// closed so its Collect loop drains and returns.
func (s *SharedFlow) Complete() {
	s.mu.Lock()
	s.active = false
	s.suspendedEmitters = nil
	for _, c := range s.collectors {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
	}
	s.mu.Unlock()
}
