// Package corort is a structured-concurrency runtime for Go.
//
// # Architecture
//
// The runtime is built around a [Scheduler] core that drives a ready queue
// of cooperative [Job] values, an [ioPoller] for non-blocking descriptor
// readiness, and a [WorkerPoolBackend] for off-process blocking work. Every task
// body runs as a resumable coroutine: Job.start launches it on its own
// goroutine, but the goroutine only ever runs between a resume and the next
// yield, so only one task body is ever "in flight" at a time from the
// scheduler's point of view - the single-threaded cooperative model the
// package name refers to.
//
// On top of the scheduler sit named tasks with lifecycle ([Job]),
// cancellation and timeouts ([WithTimeout], [WithTimeoutOrNull]),
// cross-task channels with [SelectBuilder], and three reactive stream
// abstractions in the [corort/flow], [corort/sharedflow], and
// [corort/stateflow] subpackages.
//
// # Usage
//
//	sched := corort.NewScheduler()
//	result, err := sched.RunBlocking(func(t *corort.Job) (any, error) {
//	    h := corort.Spawn(sched, corort.Default, func(inner *corort.Job) (any, error) {
//	        corort.Delay(inner, 10*time.Millisecond)
//	        return "done", nil
//	    })
//	    return h.Join(t)
//	})
package corort
