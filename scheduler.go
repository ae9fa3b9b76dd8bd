package corort

import (
	"time"

	"github.com/joeycumines/logiface"
)

// Scheduler is the runtime's single-threaded cooperative driver: the
// tick algorithm of spec §4.1, integrating the I/O poller, worker pool,
// and ready queue into one coherent loop. A Scheduler is not safe for
// concurrent RunBlocking/ThreadWait calls, matching the single-OS-thread
// model it emulates; Job and Channel operations that originate from
// other goroutines (e.g. a worker-pool completion) are expected to route
// through resumeJob, the one chokepoint that drives a suspended task.
type Scheduler struct {
	clock           *Clock
	logger          *logiface.Logger[*slogEvent]
	idleSleep       time.Duration
	overloadLimiter interface {
		Allow(category any) (time.Time, bool)
	}

	readyQueue *readyQueue
	poller     *ioPoller
	workerPool WorkerPoolBackend

	nextID  uint64
	running bool
}

// NewScheduler constructs a Scheduler ready to drive work via
// RunBlocking or ThreadWait.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	cfg := resolveSchedulerOptions(opts)
	s := &Scheduler{
		clock:           cfg.clock,
		logger:          cfg.logger,
		idleSleep:       cfg.idleSleep,
		overloadLimiter: cfg.overloadLimiter,
		readyQueue:      newReadyQueue(),
	}
	if cfg.workerPool != nil {
		s.workerPool = cfg.workerPool
	} else {
		s.workerPool = newInProcessWorkerPool(cfg.workerPoolSize, s.logger)
	}
	s.poller = newIOPoller(s.logger)
	return s
}

func (s *Scheduler) nextJobID() uint64 {
	s.nextID++
	return s.nextID
}

func (s *Scheduler) newJob(body JobFunc) *Job {
	j := newJob(s, s.nextJobID(), body)
	s.readyQueue.push(j)
	return j
}

// NewDetached creates a task that is never placed on the ready queue; it
// only ever advances when something calls its Advance method directly.
// This backs the cold-stream collection model in corort/flow, where a
// source's suspend values (emissions) must be read one at a time by the
// collecting call, not auto-handled by the scheduler's usual chokepoint.
func (s *Scheduler) NewDetached(body JobFunc) *Job {
	return newJob(s, s.nextJobID(), body)
}

// Clock exposes the scheduler's time source, for subpackages (flow,
// sharedflow, stateflow) that need monotonic timestamps without
// depending on scheduler internals.
func (s *Scheduler) Clock() *Clock { return s.clock }

// Logger exposes the scheduler's structured logger, for subpackages
// that want to log through the same sink.
func (s *Scheduler) Logger() *logiface.Logger[*slogEvent] { return s.logger }

// hasWork reports whether any subsystem has outstanding work: the ready
// queue, worker pool, or I/O poller.
func (s *Scheduler) hasWork() bool {
	return s.readyQueue.len() > 0 || s.workerPool.Available() || s.poller.hasWaiters()
}

// tick performs exactly one iteration of spec §4.1's tick algorithm and
// reports whether any sub-tick made progress.
func (s *Scheduler) tick() bool {
	progress := false

	if s.poller.hasWaiters() {
		if s.poller.pollOnce() {
			progress = true
		}
	}

	if s.workerPool.Available() {
		if s.workerPool.Poll() {
			progress = true
		}
	}

	if s.readyQueue.len() > 0 {
		if j := s.readyQueue.pop(); j != nil {
			if s.stepJob(j) {
				progress = true
			}
		}
	}

	if !progress {
		if s.readyQueue.len() == 0 && !s.workerPool.Available() && !s.poller.hasWaiters() {
			if _, allowed := s.overloadLimiter.Allow("idle"); allowed {
				s.logger.Build(logiface.LevelTrace).Log("scheduler idle, sleeping")
			}
		}
		time.Sleep(s.idleSleep)
	}

	return progress
}

// stepJob dequeues-side-effect of resuming a ready task one step: it
// observes an expired cancelAfter deadline before resuming (spec §4.2),
// starts the task if it has never run, or resumes it otherwise, then
// applies the resulting yield.
func (s *Scheduler) stepJob(j *Job) bool {
	if j.State().IsFinal() {
		return false
	}
	if j.IsTimedOut() {
		_ = j.Cancel()
		return true
	}
	if !j.hasStarted() {
		s.applyYield(j, j.start())
		return true
	}
	s.applyYield(j, j.resume(nil))
	return true
}

// resumeJob is the single chokepoint used to wake a task suspended on an
// external resource (I/O poller, worker pool, channel): it resumes the
// task with value and applies whatever it yields next.
func (s *Scheduler) resumeJob(j *Job, value any) {
	if j.State().IsFinal() {
		return
	}
	s.applyYield(j, j.resume(value))
}

func (s *Scheduler) applyYield(j *Job, msg yieldMsg) {
	switch msg.kind {
	case yieldDone:
		j.finish(msg)
	case yieldReschedule:
		s.readyQueue.push(j)
	case yieldSuspend:
		// A waiter was already registered elsewhere (poller, channel,
		// worker pool) before this suspend; that registration owns
		// resuming j, so there is nothing further to do here.
	}
}

// RunBlocking bootstraps the scheduler: it starts body as the root task
// and drives the tick loop until no work remains anywhere in the
// runtime, then returns the root task's result. Returns
// ErrSchedulerAlreadyRunning if called reentrantly.
func (s *Scheduler) RunBlocking(body JobFunc) (any, error) {
	if s.running {
		return nil, ErrSchedulerAlreadyRunning
	}
	s.running = true
	defer func() { s.running = false }()

	root := s.newJob(body)
	for s.hasWork() {
		s.tick()
	}
	return root.Result()
}

// ThreadWait drives the tick loop, without starting any new root task,
// until no work remains. Callable from within or outside a task; used to
// drain launched work deterministically in tests.
func (s *Scheduler) ThreadWait() {
	for s.hasWork() {
		s.tick()
	}
}

// Join waits for target to reach a final state and returns its outcome.
// Called with from nil, it drives the scheduler's tick loop directly
// (spec §4.1's "outside a task" path). Called with a non-nil from, it
// loops pausing from (spec §4.1's "within a task" path: resume inner one
// step via the shared ready queue; yield), relying on target already
// being scheduled.
func (s *Scheduler) Join(from *Job, target *Job) (any, error) {
	if from != nil {
		for !target.State().IsFinal() {
			from.Pause()
		}
	} else {
		for !target.State().IsFinal() {
			s.tick()
		}
	}
	if target.State() == Cancelled {
		return nil, ErrTaskCancelled
	}
	return target.Result()
}

// ResetAfterFork clears all process-wide scheduler state: ready queue,
// worker-pool bookkeeping, and I/O poller registry. Spec §4.5 requires
// this on entry to a forked worker-backend child so that tasks snapshot-
// copied from the parent's address space are never resumed; Go programs
// that fork via a supervising process (rather than relying on a true
// fork(2) worker backend) call this from the child's entry point before
// constructing any new tasks.
func (s *Scheduler) ResetAfterFork() {
	s.readyQueue = newReadyQueue()
	s.poller = newIOPoller(s.logger)
	s.workerPool = newInProcessWorkerPool(4, s.logger)
}
