package corort

// Dispatcher selects which of the three subsystems spec §4.3 describes
// runs a spawned task's body.
type Dispatcher int

const (
	// Default spawns the body as an ordinary cooperative task on the
	// scheduler's ready queue.
	Default Dispatcher = iota
	// Main spawns the body for deferred execution on the host's main
	// thread, modeled as a dedicated high-priority lane of the ready
	// queue rather than a second scheduler.
	Main
	// IO submits the body to the worker pool; the task wrapping it
	// suspends until the pool resumes it with the body's WorkerResult.
	IO
)

// Handle is the result of Spawn: a named task plus the universal Join
// wait primitive, fiber-vs-host as described in spec §4.1.
type Handle struct {
	job *Job
}

// Job returns the underlying task, for Cancel/OnJoin/OnCompletion/state
// inspection.
func (h *Handle) Job() *Job { return h.job }

// Join waits for the spawned task to reach a final state. Pass the
// caller's own *Job when joining from within another task; pass nil when
// joining from outside any task (e.g. a test driving the scheduler
// directly).
func (h *Handle) Join(from *Job) (any, error) {
	return h.job.sched.Join(from, h.job)
}

// Spawn starts body under the given dispatcher and returns a Handle to
// it. Default and Main both enqueue body directly on the ready queue, Main
// at the front so it runs before already-queued Default work on the next
// tick; IO instead submits body to the worker pool, wrapping it in a
// task that suspends until the backend reports a result.
func Spawn(sched *Scheduler, dispatcher Dispatcher, body JobFunc) *Handle {
	switch dispatcher {
	case IO:
		return spawnIO(sched, body)
	case Main:
		return spawnMain(sched, body)
	default:
		j := sched.newJob(body)
		return &Handle{job: j}
	}
}

func spawnMain(sched *Scheduler, body JobFunc) *Handle {
	j := newJob(sched, sched.nextJobID(), body)
	sched.readyQueue.order = append([]uint64{j.id}, sched.readyQueue.order...)
	sched.readyQueue.jobs[j.id] = j
	return &Handle{job: j}
}

func spawnIO(sched *Scheduler, body JobFunc) *Handle {
	wrapped := func(inner *Job) (any, error) {
		if err := sched.workerPool.Submit(&workerJob{
			job: inner,
			fn:  func() (any, error) { return body(nil) },
		}); err != nil {
			return nil, err
		}
		v := inner.Suspend(nil)
		wr := v.(WorkerResult)
		return wr.Value, wr.Err
	}
	j := sched.newJob(wrapped)
	return &Handle{job: j}
}
