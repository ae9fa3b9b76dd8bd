// Package stateflow implements spec §4.10's conflated state stream: a
// single current value, always retrievable, that emits to collectors
// only on change. Built directly on corort/sharedflow, per spec §4.10's
// own framing ("§4.9 structure with replay implicitly ≥ 1") - the
// conflation behaviour is the one thing layered on top.
package stateflow

import (
	"sync"

	"github.com/structrt/corort"
	"github.com/structrt/corort/sharedflow"
)

// StateFlow holds one always-available current value and dispatches to
// collectors only when the value actually changes.
type StateFlow struct {
	mu    sync.Mutex
	value any
	equal func(a, b any) bool

	inner *sharedflow.SharedFlow
}

func defaultEqual(a, b any) bool { return a == b }

// New constructs a StateFlow with the given initial value. extra > 0
// routes emissions through the SharedFlow buffer pipeline (spec
// §4.10); extra == 0 dispatches immediately with no buffering.
// extraBufferCapacity < 0 is an *corort.InvalidArgumentError.
func New(initial any, extraBufferCapacity int, strategy sharedflow.BackpressureStrategy) (*StateFlow, error) {
	inner, err := sharedflow.New(1, extraBufferCapacity, strategy)
	if err != nil {
		return nil, err
	}
	// Seed the replay slot with the initial value so a collector that
	// registers before any SetValue call still gets it as its first
	// delivery, per spec §4.10. No collectors exist yet, so this never
	// dispatches - it only occupies the replay-1 buffer slot.
	inner.TryEmit(initial)
	return &StateFlow{
		value: initial,
		equal: defaultEqual,
		inner: inner,
	}, nil
}

// GetValue returns the current value; it is always available without
// collecting, per spec §4.10.
func (s *StateFlow) GetValue() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// SetValue updates the current value and dispatches to collectors,
// unless new equals the current value (conflation: no emission).
func (s *StateFlow) SetValue(job *corort.Job, newValue any) error {
	s.mu.Lock()
	if s.equal(s.value, newValue) {
		s.mu.Unlock()
		return nil
	}
	s.value = newValue
	s.mu.Unlock()
	return s.inner.Emit(job, newValue)
}

// CompareAndSet sets newValue only if the current value equals
// expected, returning whether the swap happened. Intended for
// lock-free optimistic updates, per spec §4.10.
func (s *StateFlow) CompareAndSet(job *corort.Job, expected, newValue any) (bool, error) {
	s.mu.Lock()
	if !s.equal(s.value, expected) {
		s.mu.Unlock()
		return false, nil
	}
	if s.equal(s.value, newValue) {
		s.mu.Unlock()
		return true, nil
	}
	s.value = newValue
	s.mu.Unlock()
	if err := s.inner.Emit(job, newValue); err != nil {
		return false, err
	}
	return true, nil
}

// Update applies f to the current value and sets the result, per spec
// §4.10's setValue(f(getValue())) definition.
func (s *StateFlow) Update(job *corort.Job, f func(current any) any) error {
	return s.SetValue(job, f(s.GetValue()))
}

// Collect delivers the current value first, then every subsequent
// change, to onEach. Equivalent to SharedFlow.Collect with replay=1,
// since StateFlow is constructed with that implicit replay.
func (s *StateFlow) Collect(job *corort.Job, onEach func(v any) error) error {
	return s.inner.Collect(job, onEach)
}

// DistinctUntilChanged wraps onEach so that a value equal to the prior
// one (per compare, or value-equality if compare is nil) is skipped
// before reaching it. This mirrors spec §4.10's operator of the same
// name as a collector-side filter, independent of the conflation
// SetValue already performs on the write side.
func DistinctUntilChanged(onEach func(v any) error, compare func(last, current any) bool) func(v any) error {
	if compare == nil {
		compare = defaultEqual
	}
	var last any
	var hasLast bool
	return func(v any) error {
		if hasLast && compare(last, v) {
			return nil
		}
		last, hasLast = v, true
		return onEach(v)
	}
}
