package sharedflow

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/structrt/corort"
)

// collectN runs Collect on its own detached task, driven by sched's
// tick loop, and calls stop once n values have been observed.
func collectN(t *testing.T, sched *corort.Scheduler, sf *SharedFlow, n int) (*corort.Job, *[]any) {
	t.Helper()
	got := make([]any, 0, n)
	var mu sync.Mutex
	job := sched.NewDetached(func(j *corort.Job) (any, error) {
		err := sf.Collect(j, func(v any) error {
			mu.Lock()
			got = append(got, v)
			done := len(got) >= n
			mu.Unlock()
			if done {
				return errDone
			}
			return nil
		})
		if err == errDone {
			return nil, nil
		}
		return nil, err
	})
	return job, &got
}

type sentinelErr struct{}

func (sentinelErr) Error() string { return "done" }

var errDone error = sentinelErr{}

func TestSharedFlowNewRejectsNegativeParameters(t *testing.T) {
	_, err := New(-1, 0, DropOldest)
	var invalid *corort.InvalidArgumentError
	assert.ErrorAs(t, err, &invalid)

	_, err = New(0, -1, DropOldest)
	assert.ErrorAs(t, err, &invalid)
}

func TestSharedFlowReplayForNewCollector(t *testing.T) {
	sched := corort.NewScheduler()
	sf, err := New(3, 0, DropOldest)
	require.NoError(t, err)

	for v := 1; v <= 5; v++ {
		assert.True(t, sf.TryEmit(v))
	}

	job, got := collectN(t, sched, sf, 3)
	for !job.State().IsFinal() {
		job.Advance()
	}
	require.Equal(t, []any{3, 4, 5}, *got)
}

func TestSharedFlowDropLatestUnderPressure(t *testing.T) {
	sched := corort.NewScheduler()
	sf, err := New(1, 3, DropLatest)
	require.NoError(t, err)

	for v := 1; v <= 4; v++ {
		assert.True(t, sf.TryEmit(v))
	}
	// total capacity = 4; a 5th value should be dropped under DropLatest.
	assert.True(t, sf.TryEmit(5))

	job, got := collectN(t, sched, sf, 1)
	for !job.State().IsFinal() {
		job.Advance()
	}
	// replay=1: newest retained value should still be 4, not 5.
	assert.Equal(t, []any{4}, *got)
}

func TestSharedFlowTryEmitErrorStrategyFailsWhenFull(t *testing.T) {
	sf, err := New(0, 1, ErrorStrat)
	require.NoError(t, err)
	assert.True(t, sf.TryEmit(1))
	assert.False(t, sf.TryEmit(2))
}

func TestSharedFlowCompleteEndsCollectors(t *testing.T) {
	sched := corort.NewScheduler()
	sf, err := New(0, 1, DropOldest)
	require.NoError(t, err)

	var gotDone bool
	job := sched.NewDetached(func(j *corort.Job) (any, error) {
		err := sf.Collect(j, func(v any) error { return nil })
		gotDone = err == nil
		return nil, nil
	})

	_, _, _ = job.Advance()
	sf.Complete()
	for !job.State().IsFinal() {
		job.Advance()
	}
	assert.True(t, gotDone)
}

func TestSharedFlowEmitDispatchesToLiveCollector(t *testing.T) {
	sched := corort.NewScheduler()
	sf, err := New(0, 2, DropOldest)
	require.NoError(t, err)

	job, got := collectN(t, sched, sf, 2)
	_, _, _ = job.Advance()

	emitJob := sched.NewDetached(func(j *corort.Job) (any, error) {
		require.NoError(t, sf.Emit(j, "a"))
		require.NoError(t, sf.Emit(j, "b"))
		return nil, nil
	})
	for !emitJob.State().IsFinal() {
		emitJob.Advance()
	}
	for !job.State().IsFinal() {
		job.Advance()
	}
	assert.Equal(t, []any{"a", "b"}, *got)
}
