package corort

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeoutReturnsResultWhenFastEnough(t *testing.T) {
	sched := NewScheduler()
	result, err := sched.RunBlocking(func(j *Job) (any, error) {
		return WithTimeout(j, 50*time.Millisecond, func(inner *Job) (any, error) {
			return "fast", nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, "fast", result)
}

func TestWithTimeoutReturnsTimeoutErrorWhenSlow(t *testing.T) {
	sched := NewScheduler()
	_, err := sched.RunBlocking(func(j *Job) (any, error) {
		return WithTimeout(j, 1*time.Millisecond, func(inner *Job) (any, error) {
			for {
				inner.Pause()
			}
		})
	})
	var timeoutErr *TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}

func TestWithTimeoutImmediateDeadline(t *testing.T) {
	sched := NewScheduler()
	_, err := sched.RunBlocking(func(j *Job) (any, error) {
		return WithTimeout(j, 0, func(inner *Job) (any, error) { return "never", nil })
	})
	var timeoutErr *TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}

func TestWithTimeoutOrNullConvertsTimeoutToNil(t *testing.T) {
	sched := NewScheduler()
	result, err := sched.RunBlocking(func(j *Job) (any, error) {
		return WithTimeoutOrNull(j, 1*time.Millisecond, func(inner *Job) (any, error) {
			for {
				inner.Pause()
			}
		})
	})
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestWithTimeoutOrNullPropagatesOtherErrors(t *testing.T) {
	sched := NewScheduler()
	boom := &InvalidArgumentError{Arg: "x", Message: "bad"}
	_, err := sched.RunBlocking(func(j *Job) (any, error) {
		return WithTimeoutOrNull(j, 50*time.Millisecond, func(inner *Job) (any, error) {
			return nil, boom
		})
	})
	assert.ErrorIs(t, err, boom)
}

func TestRepeatCallsExactlyNTimes(t *testing.T) {
	var count int
	err := Repeat(3, func() error { count++; return nil })
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRepeatRejectsNonPositiveN(t *testing.T) {
	err := Repeat(0, func() error { return nil })
	var invalid *InvalidArgumentError
	assert.ErrorAs(t, err, &invalid)
}

func TestRepeatPropagatesFirstError(t *testing.T) {
	boom := assert.AnError
	var count int
	err := Repeat(5, func() error {
		count++
		if count == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, count)
}
