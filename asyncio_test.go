package corort

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketPairStreamReadWrite(t *testing.T) {
	sched := NewScheduler()
	a, b, err := CreateSocketPair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	var got []byte
	result, runErr := sched.RunBlocking(func(j *Job) (any, error) {
		writer := Spawn(sched, Default, func(wj *Job) (any, error) {
			return nil, StreamWrite(wj, a, []byte("hello"), time.Second)
		})
		reader := Spawn(sched, Default, func(rj *Job) (any, error) {
			return StreamRead(rj, b, 64, time.Second)
		})
		if _, err := writer.Join(j); err != nil {
			return nil, err
		}
		v, err := reader.Join(j)
		if err != nil {
			return nil, err
		}
		got = v.([]byte)
		return nil, nil
	})
	require.NoError(t, runErr)
	assert.Nil(t, result)
	assert.Equal(t, "hello", string(got))
}

func TestCreateSocketPairProducesTwoDistinctSockets(t *testing.T) {
	a, b, err := CreateSocketPair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()
	assert.NotEqual(t, a.FD(), b.FD())
}

func TestFilePutAndGetContentsRoundTrip(t *testing.T) {
	sched := NewScheduler()
	path := t.TempDir() + "/data.bin"
	payload := []byte("the quick brown fox jumps over the lazy dog")

	result, err := sched.RunBlocking(func(j *Job) (any, error) {
		if err := FilePutContents(j, path, payload, 8); err != nil {
			return nil, err
		}
		return FileGetContents(j, path, 8)
	})
	require.NoError(t, err)
	assert.Equal(t, payload, result)
}
