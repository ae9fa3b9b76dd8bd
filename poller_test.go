package corort

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIOPollerRegisterReadRejectsDuplicateWaiter(t *testing.T) {
	sched := NewScheduler()
	a, b, err := CreateSocketPair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	job := sched.newJob(func(j *Job) (any, error) { j.Pause(); return nil, nil })
	require.NoError(t, sched.poller.registerRead(a.FD(), job, sched))

	err = sched.poller.registerRead(a.FD(), job, sched)
	var illegal *IllegalStateError
	assert.ErrorAs(t, err, &illegal)
}

func TestIOPollerRegisterWriteRejectsDuplicateWaiter(t *testing.T) {
	sched := NewScheduler()
	a, b, err := CreateSocketPair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	job := sched.newJob(func(j *Job) (any, error) { j.Pause(); return nil, nil })
	require.NoError(t, sched.poller.registerWrite(a.FD(), job, sched))

	err = sched.poller.registerWrite(a.FD(), job, sched)
	var illegal *IllegalStateError
	assert.ErrorAs(t, err, &illegal)
}

func TestIOPollerPollOnceWakesReadWaiterOnIncomingData(t *testing.T) {
	sched := NewScheduler()
	a, b, err := CreateSocketPair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	writerSched := NewScheduler()
	writeErrs := make(chan error, 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_, werr := writerSched.RunBlocking(func(j *Job) (any, error) {
			return nil, StreamWrite(j, a, []byte("ping"), time.Second)
		})
		writeErrs <- werr
	}()

	result, runErr := sched.RunBlocking(func(j *Job) (any, error) {
		return StreamRead(j, b, 16, 2*time.Second)
	})
	require.NoError(t, runErr)
	require.NoError(t, <-writeErrs)
	assert.Equal(t, "ping", string(result.([]byte)))
}

func TestStreamWriteThenStreamReadRoundTrip(t *testing.T) {
	sched := NewScheduler()
	a, b, err := CreateSocketPair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	result, runErr := sched.RunBlocking(func(j *Job) (any, error) {
		return nil, StreamWrite(j, a, []byte("pong"), time.Second)
	})
	require.NoError(t, runErr)
	assert.Nil(t, result)

	sched2 := NewScheduler()
	got, readErr := sched2.RunBlocking(func(j *Job) (any, error) {
		return StreamRead(j, b, 16, time.Second)
	})
	require.NoError(t, readErr)
	assert.Equal(t, "pong", string(got.([]byte)))
}

func TestIOPollerHasWaitersReflectsRegistrations(t *testing.T) {
	sched := NewScheduler()
	a, b, err := CreateSocketPair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	assert.False(t, sched.poller.hasWaiters())

	job := sched.newJob(func(j *Job) (any, error) { j.Pause(); return nil, nil })
	require.NoError(t, sched.poller.registerRead(a.FD(), job, sched))
	assert.True(t, sched.poller.hasWaiters())

	delete(sched.poller.readWaiters, a.FD())
	_ = sched.poller.backend.remove(a.FD())
	assert.False(t, sched.poller.hasWaiters())
}

func TestNoopBackendWaitNeverReportsReadiness(t *testing.T) {
	backend := newNoopBackend()
	require.NoError(t, backend.add(3, ioRead))
	events, err := backend.wait(time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, events)
	require.NoError(t, backend.remove(3))
	require.NoError(t, backend.close())
}
