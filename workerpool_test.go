package corort

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessWorkerPoolSubmitResumesSuspendedJob(t *testing.T) {
	sched := NewScheduler()
	job := sched.newJob(func(j *Job) (any, error) {
		v := j.Suspend(nil)
		wr := v.(WorkerResult)
		return wr.Value, wr.Err
	})
	sched.tick() // drives the body to its first Suspend

	pool := sched.workerPool.(*inProcessWorkerPool)
	assert.False(t, pool.Available())

	require.NoError(t, pool.Submit(&workerJob{
		job: job,
		fn:  func() (any, error) { return 7 * 6, nil },
	}))
	assert.True(t, pool.Available())

	for !pool.Poll() {
	}
	assert.False(t, pool.Available())

	sched.ThreadWait()
	result, err := job.Result()
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestInProcessWorkerPoolSubmitPropagatesError(t *testing.T) {
	sched := NewScheduler()
	boom := errors.New("worker blew up")
	job := sched.newJob(func(j *Job) (any, error) {
		v := j.Suspend(nil)
		wr := v.(WorkerResult)
		return wr.Value, wr.Err
	})
	sched.tick()

	pool := sched.workerPool.(*inProcessWorkerPool)
	require.NoError(t, pool.Submit(&workerJob{
		job: job,
		fn:  func() (any, error) { return nil, boom },
	}))
	for !pool.Poll() {
	}

	sched.ThreadWait()
	_, err := job.Result()
	assert.ErrorIs(t, err, boom)
}

func TestInProcessWorkerPoolRecoversPanicAsError(t *testing.T) {
	sched := NewScheduler()
	job := sched.newJob(func(j *Job) (any, error) {
		v := j.Suspend(nil)
		wr := v.(WorkerResult)
		return wr.Value, wr.Err
	})
	sched.tick()

	pool := sched.workerPool.(*inProcessWorkerPool)
	require.NoError(t, pool.Submit(&workerJob{
		job: job,
		fn:  func() (any, error) { panic("kaboom") },
	}))
	for !pool.Poll() {
	}

	sched.ThreadWait()
	_, err := job.Result()
	require.Error(t, err)
}
