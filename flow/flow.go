// Package flow implements spec §4.8's cold stream: a function from
// "collector callback" to "an execution", where each Collect call runs
// the source anew. Grounded on corort's Job.Suspend resume-with-value
// primitive: a source yields a value by suspending with it, and
// Collect drives the source task directly via Job.Advance rather than
// through the scheduler's ready queue, since a cold stream's pacing is
// entirely owned by its collector.
package flow

import (
	"github.com/structrt/corort"
)

// BackpressureStrategy controls what the buffer operator does when its
// ring buffer is full, per spec §4.8/§4.9.
type BackpressureStrategy int

const (
	// Suspend is documented as waiting for the buffer to drain, but a
	// cold Flow's collector always drains the buffer synchronously on
	// every offer (see feedThroughBuffer), so there is never anything
	// left to wait for; it behaves identically to DropOldest here.
	Suspend BackpressureStrategy = iota
	// DropOldest evicts the oldest buffered value to make room.
	DropOldest
	// DropLatest discards the new value, keeping the buffer unchanged.
	DropLatest
	// ErrorStrategy raises a BufferOverflowError.
	ErrorStrategy
)

// Source emits values by calling emit once per value; it returns when
// the stream is exhausted, or an error if it fails partway through.
type Source func(emit func(v any)) error

type stageKind int

const (
	stageMap stageKind = iota
	stageFilter
	stageTake
	stageSkip
	stageOnEach
	stageFlatMap
	stageCatch
	stageOnCompletion
	stageBuffer
)

type stage struct {
	kind         stageKind
	mapFn        func(any) any
	filterFn     func(any) bool
	n            int
	onEachFn     func(any)
	flatMapFn    func(any) *Flow
	catchFn      func(error) error
	onCompleteFn func(error)
	bufCapacity  int
	bufStrategy  BackpressureStrategy
}

// Flow is an immutable pipeline: each operator returns a new Flow with
// one more stage appended, leaving the receiver unchanged.
type Flow struct {
	source   Source
	pipeline []*stage
}

// New constructs a Flow around a raw source.
func New(source Source) *Flow {
	return &Flow{source: source}
}

func (f *Flow) append(st *stage) *Flow {
	pipeline := make([]*stage, len(f.pipeline)+1)
	copy(pipeline, f.pipeline)
	pipeline[len(f.pipeline)] = st
	return &Flow{source: f.source, pipeline: pipeline}
}

// Map appends a value-transforming stage.
func (f *Flow) Map(fn func(any) any) *Flow {
	return f.append(&stage{kind: stageMap, mapFn: fn})
}

// Filter appends a stage that suppresses values the predicate rejects.
func (f *Flow) Filter(pred func(any) bool) *Flow {
	return f.append(&stage{kind: stageFilter, filterFn: pred})
}

// Take appends a stage that lets at most n values through, then marks
// the collection complete.
func (f *Flow) Take(n int) *Flow {
	return f.append(&stage{kind: stageTake, n: n})
}

// Skip appends a stage that suppresses the first n values.
func (f *Flow) Skip(n int) *Flow {
	return f.append(&stage{kind: stageSkip, n: n})
}

// OnEach appends a side-effecting stage that observes every value that
// reaches it, without transforming or suppressing it.
func (f *Flow) OnEach(fn func(any)) *Flow {
	return f.append(&stage{kind: stageOnEach, onEachFn: fn})
}

// FlatMap substitutes each value with the first emission of the
// sub-flow it maps to (switch-map semantics, per the Open Question
// decision in SPEC_FULL.md §D.2: one inner stream at a time, no
// interleaving). A sub-flow that emits nothing suppresses the value.
func (f *Flow) FlatMap(fn func(any) *Flow) *Flow {
	return f.append(&stage{kind: stageFlatMap, flatMapFn: fn})
}

// Catch appends a stage that recovers from a downstream error or from an
// error returned by the source: fn receives the error and may return nil
// to swallow it or a replacement error to keep propagating.
func (f *Flow) Catch(fn func(error) error) *Flow {
	return f.append(&stage{kind: stageCatch, catchFn: fn})
}

// OnCompletion registers a callback run once collection ends, with nil
// on clean completion or the terminating error.
func (f *Flow) OnCompletion(fn func(error)) *Flow {
	return f.append(&stage{kind: stageOnCompletion, onCompleteFn: fn})
}

// Buffer inserts a ring buffer of the given capacity between whatever
// precedes it in the pipeline and whatever follows, per spec §4.8.
// capacity must be > 0; 0 or negative is an *corort.InvalidArgumentError,
// per spec §8's boundary behaviors.
func (f *Flow) Buffer(capacity int, strategy BackpressureStrategy) (*Flow, error) {
	if capacity <= 0 {
		return nil, &corort.InvalidArgumentError{Arg: "capacity", Message: "must be > 0"}
	}
	return f.append(&stage{kind: stageBuffer, bufCapacity: capacity, bufStrategy: strategy}), nil
}

// pipelineState holds the counters and per-buffer-stage ring buffers for
// a single Collect invocation; a Flow itself carries no mutable state so
// that two concurrent Collect calls over the same Flow do not interfere.
type pipelineState struct {
	emittedCount int
	skippedCount int
	completed    bool
	buffers      map[*stage][]any
}

// Collect runs the source as a fresh, detached task on sched and drives
// every emission through the pipeline, calling deliver for each value
// that survives it. It returns when the source completes, errors, or
// Take's count is satisfied.
func (f *Flow) Collect(sched *corort.Scheduler, deliver func(v any) error) error {
	ps := &pipelineState{buffers: make(map[*stage][]any)}
	job := sched.NewDetached(func(j *corort.Job) (any, error) {
		err := f.source(func(v any) { j.Suspend(v) })
		return nil, err
	})

	var terminalErr error
	for {
		v, running, err := job.Advance()
		if !running {
			// A source error goes through the Catch stages in pipeline
			// order until one of them swallows it.
			for _, st := range f.pipeline {
				if err == nil {
					break
				}
				if st.kind == stageCatch {
					err = st.catchFn(err)
				}
			}
			terminalErr = err
			break
		}
		if feedErr := f.feed(ps, f.pipeline, v, deliver); feedErr != nil {
			terminalErr = feedErr
			_ = job.Cancel()
			break
		}
		if ps.completed {
			_ = job.Cancel()
			break
		}
	}

	f.drainRemaining(ps, deliver)
	f.fireOnCompletion(terminalErr)
	return terminalErr
}

func (f *Flow) fireOnCompletion(err error) {
	for _, st := range f.pipeline {
		if st.kind == stageOnCompletion {
			st.onCompleteFn(err)
		}
	}
}

// drainRemaining flushes any values still sitting in buffer stages once
// the source has terminated, per spec §4.8: "any remaining buffered
// values are drained before invoking onCompletion."
func (f *Flow) drainRemaining(ps *pipelineState, deliver func(any) error) {
	for i, st := range f.pipeline {
		if st.kind != stageBuffer {
			continue
		}
		buf := ps.buffers[st]
		ps.buffers[st] = nil
		for _, v := range buf {
			_ = f.feed(ps, f.pipeline[i+1:], v, deliver)
		}
	}
}

// feed runs v through stages in order, recursing into the remainder of
// the pipeline so that a buffer stage's drained values can re-enter the
// stages that follow it.
func (f *Flow) feed(ps *pipelineState, stages []*stage, v any, deliver func(any) error) error {
	if len(stages) == 0 {
		ps.emittedCount++
		return deliver(v)
	}
	st := stages[0]
	rest := stages[1:]
	switch st.kind {
	case stageMap:
		return f.feed(ps, rest, st.mapFn(v), deliver)
	case stageFilter:
		if !st.filterFn(v) {
			return nil
		}
		return f.feed(ps, rest, v, deliver)
	case stageTake:
		if ps.emittedCount >= st.n {
			ps.completed = true
			return nil
		}
		return f.feed(ps, rest, v, deliver)
	case stageSkip:
		if ps.skippedCount < st.n {
			ps.skippedCount++
			return nil
		}
		return f.feed(ps, rest, v, deliver)
	case stageOnEach:
		st.onEachFn(v)
		return f.feed(ps, rest, v, deliver)
	case stageFlatMap:
		sub := st.flatMapFn(v)
		first, ok, err := firstValue(sub)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return f.feed(ps, rest, first, deliver)
	case stageCatch:
		if err := f.feed(ps, rest, v, deliver); err != nil {
			return st.catchFn(err)
		}
		return nil
	case stageOnCompletion:
		return f.feed(ps, rest, v, deliver)
	case stageBuffer:
		return f.feedThroughBuffer(ps, st, rest, v, deliver)
	}
	return nil
}

// feedThroughBuffer implements spec §4.8's buffer-operator algorithm:
// drain everything currently buffered, then either accept v or apply
// the overflow strategy.
//
// Because this runs on Collect's own driving goroutine rather than the
// source's body goroutine (feed/feedThroughBuffer execute after
// Job.Advance has already returned), it must never call corort.Pause or
// corort.Job.Suspend on the source job: those block on an unbuffered handoff
// that only the source's own body goroutine - parked separately on its
// next resume - is ever going to read, so a call from here hangs
// forever. The drain-on-every-offer loop above also means the Suspend
// strategy's "wait for drain" premise never has anything to wait for: a
// synchronous collector drains the buffer before this function ever
// returns, so by construction nothing is ever left for a later yield to
// drain into (per spec §8 scenario 5's own stated edge case). Suspend
// therefore goes straight to its documented fallback, DropOldest,
// rather than spinning a yield loop that could never make progress.
func (f *Flow) feedThroughBuffer(ps *pipelineState, st *stage, rest []*stage, v any, deliver func(any) error) error {
	buf := ps.buffers[st]
	for len(buf) > 0 {
		drained := buf[0]
		buf = buf[1:]
		ps.buffers[st] = buf
		if err := f.feed(ps, rest, drained, deliver); err != nil {
			return err
		}
	}

	if len(buf) < st.bufCapacity {
		ps.buffers[st] = append(buf, v)
		return nil
	}

	switch st.bufStrategy {
	case DropOldest, Suspend:
		if len(buf) > 0 {
			buf = buf[1:]
		}
		ps.buffers[st] = append(buf, v)
		return nil
	case DropLatest:
		return nil
	case ErrorStrategy:
		return &corort.BufferOverflowError{Capacity: st.bufCapacity}
	}
	return nil
}

// firstValue collects a flow's first emission only, for FlatMap's
// switch-map semantics: the sub-stream is run just long enough to
// produce one value.
func firstValue(f *Flow) (any, bool, error) {
	var found any
	var ok bool
	err := f.Take(1).Collect(f.detachedScheduler(), func(v any) error {
		found, ok = v, true
		return nil
	})
	return found, ok, err
}

// detachedScheduler is a package-level scheduler used solely to drive
// FlatMap's inner sub-streams; a sub-flow's collection is self-contained
// (it only ever suspends its own source task, never touching a poller,
// worker pool, or outer ready queue) so sharing one scheduler instance
// across all FlatMap calls in a process is safe and avoids threading a
// *corort.Scheduler argument through every operator.
var sharedInnerScheduler = corort.NewScheduler()

func (f *Flow) detachedScheduler() *corort.Scheduler { return sharedInnerScheduler }
