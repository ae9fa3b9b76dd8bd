package corort

import (
	"context"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/go-microbatch"
)

// workerJob is one unit submitted to a WorkerPoolBackend: a computation
// to run off-process (per spec §4.5) together with the Job suspended
// waiting on its result.
type workerJob struct {
	job    *Job
	fn     func() (any, error)
	result any
	err    error
}

// WorkerResult carries a worker-pool outcome back into the task that
// resumes with it; it is the value a task's Suspend call returns after an
// IO-dispatched body completes.
type WorkerResult struct {
	Value any
	Err   error
}

// WorkerPoolBackend is the contract spec §4.5 requires of a worker
// backend: submit a computation, make non-blocking progress on a poll,
// and report whether it currently has pending or in-flight work. Each
// submitted computation is executed exactly once, on exactly one worker,
// and its parent does not see the worker's mutable state.
type WorkerPoolBackend interface {
	Submit(job *workerJob) error
	Poll() bool
	Available() bool
}

// inProcessWorkerPool is the default WorkerPoolBackend. It batches
// submissions through a github.com/joeycumines/go-microbatch Batcher,
// grounded on microbatch.go's Batcher[Job]/Submit/JobResult.Wait API:
// each batch's jobs are run concurrently (bounded by MaxConcurrency,
// this pool's "worker count"), and their completions are funneled onto a
// buffered channel that Poll drains without blocking, so a single
// scheduler tick's Poll call never stalls on slow work.
type inProcessWorkerPool struct {
	batcher   *microbatch.Batcher[*workerJob]
	mu        sync.Mutex
	pending   int
	completed chan *workerJob
	logger    *logiface.Logger[*slogEvent]
}

func newInProcessWorkerPool(size int, logger *logiface.Logger[*slogEvent]) *inProcessWorkerPool {
	if size <= 0 {
		size = 1
	}
	p := &inProcessWorkerPool{
		completed: make(chan *workerJob, 256),
		logger:    logger,
	}
	p.batcher = microbatch.NewBatcher[*workerJob](&microbatch.BatcherConfig{
		MaxSize:        size,
		FlushInterval:  time.Millisecond,
		MaxConcurrency: size,
	}, p.process)
	return p
}

// process is the microbatch.BatchProcessor: it runs every job in the
// batch on its own goroutine and writes results directly onto the job
// values, per microbatch's "results by reference" contract.
func (p *inProcessWorkerPool) process(ctx context.Context, jobs []*workerJob) error {
	var wg sync.WaitGroup
	wg.Add(len(jobs))
	for _, j := range jobs {
		go func(j *workerJob) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					j.err = panicToError(r)
				}
			}()
			j.result, j.err = j.fn()
		}(j)
	}
	wg.Wait()
	return nil
}

func (p *inProcessWorkerPool) Submit(wj *workerJob) error {
	p.mu.Lock()
	p.pending++
	p.mu.Unlock()
	go func() {
		res, err := p.batcher.Submit(context.Background(), wj)
		if err != nil {
			wj.err = err
			p.completed <- wj
			return
		}
		_ = res.Wait(context.Background())
		p.completed <- wj
	}()
	return nil
}

func (p *inProcessWorkerPool) Poll() bool {
	select {
	case wj := <-p.completed:
		p.mu.Lock()
		p.pending--
		p.mu.Unlock()
		wj.job.sched.resumeJob(wj.job, WorkerResult{Value: wj.result, Err: wj.err})
		return true
	default:
		return false
	}
}

func (p *inProcessWorkerPool) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending > 0
}
