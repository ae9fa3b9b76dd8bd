package corort

import "time"

// Pause yields control for exactly one round of ready-queue and
// worker-pool scheduling, then resumes, per spec §4.11. Outside a task
// (job nil) it is a no-op.
func Pause(job *Job) {
	if job == nil {
		return
	}
	job.Pause()
}

// Delay suspends the calling task until at least d has elapsed,
// cooperatively yielding once per scheduler iteration rather than
// blocking the scheduler. Outside a task (job nil) it is a no-op; use
// (*Scheduler).DelayBlocking to wait from outside any task.
func Delay(job *Job, d time.Duration) {
	if job == nil {
		return
	}
	sched := job.sched
	deadline := sched.clock.NowMillis() + d.Milliseconds()
	for sched.clock.NowMillis() < deadline {
		job.Pause()
	}
}

// DelayBlocking waits at least d, driving the scheduler's tick loop
// (poller, worker pool, ready queue, idle-sleep) so other tasks still
// make progress while it waits. Used from outside any task.
func (s *Scheduler) DelayBlocking(d time.Duration) {
	deadline := s.clock.NowMillis() + d.Milliseconds()
	for s.clock.NowMillis() < deadline {
		s.tick()
	}
}

// Repeat calls f exactly n times, synchronously, propagating the first
// error f returns. n <= 0 is an *InvalidArgumentError.
func Repeat(n int, f func() error) error {
	if n <= 0 {
		return &InvalidArgumentError{Arg: "n", Message: "must be > 0"}
	}
	for i := 0; i < n; i++ {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}
