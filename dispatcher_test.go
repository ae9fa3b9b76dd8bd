package corort

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnDefaultRunsCooperatively(t *testing.T) {
	sched := NewScheduler()
	h := Spawn(sched, Default, func(j *Job) (any, error) { return "default", nil })
	v, err := h.Join(nil)
	require.NoError(t, err)
	assert.Equal(t, "default", v)
}

func TestSpawnMainRunsBeforeAlreadyQueuedDefaultWork(t *testing.T) {
	sched := NewScheduler()
	var order []string
	sched.newJob(func(j *Job) (any, error) {
		order = append(order, "default")
		return nil, nil
	})
	spawnMain(sched, func(j *Job) (any, error) {
		order = append(order, "main")
		return nil, nil
	})
	sched.ThreadWait()
	assert.Equal(t, []string{"main", "default"}, order)
}

func TestSpawnIORunsOffProcessAndReturnsResult(t *testing.T) {
	sched := NewScheduler()
	h := Spawn(sched, IO, func(j *Job) (any, error) { return 21 * 2, nil })
	v, err := h.Join(nil)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestSpawnIOPropagatesError(t *testing.T) {
	sched := NewScheduler()
	sentinel := &InvalidArgumentError{Arg: "x", Message: "bad"}
	h := Spawn(sched, IO, func(j *Job) (any, error) { return nil, sentinel })
	_, err := h.Join(nil)
	assert.ErrorIs(t, err, sentinel)
}

func TestHandleJoinFromWithinAnotherTask(t *testing.T) {
	sched := NewScheduler()
	result, err := sched.RunBlocking(func(j *Job) (any, error) {
		h := Spawn(sched, Default, func(inner *Job) (any, error) { return "nested", nil })
		return h.Join(j)
	})
	require.NoError(t, err)
	assert.Equal(t, "nested", result)
}
