package corort

import (
	"errors"
	"time"
)

// WithTimeout wraps f in a new Default-dispatched task and drives it via
// the in-fiber join loop, checking elapsed wall time on each iteration;
// if the deadline passes before f finishes, the inner task is cancelled
// and a *TimeoutError is returned. An immediate deadline (d <= 0) is
// itself a *TimeoutError, per spec §4.7.
func WithTimeout(from *Job, d time.Duration, f JobFunc) (any, error) {
	if d <= 0 {
		return nil, &TimeoutError{}
	}
	sched := from.sched
	deadline := sched.clock.NowMillis() + int64(d/time.Millisecond)
	inner := Spawn(sched, Default, f).job
	for !inner.State().IsFinal() {
		if sched.clock.NowMillis() >= deadline {
			_ = inner.Cancel()
			return nil, &TimeoutError{}
		}
		from.Pause()
	}
	return inner.Result()
}

// WithTimeoutOrNull behaves like WithTimeout but converts a timeout into
// a silent (nil, nil) "none" result rather than a *TimeoutError; other
// errors from f still propagate. An immediate deadline (d <= 0) is
// itself a silent none.
func WithTimeoutOrNull(from *Job, d time.Duration, f JobFunc) (any, error) {
	if d <= 0 {
		return nil, nil
	}
	v, err := WithTimeout(from, d, f)
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return nil, nil
	}
	return v, err
}
