package pool

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/determined-ai/gotp/pkg/actor"
)

const testTimeout = 5 * time.Second

func collect(t *testing.T, results <-chan interface{}, n int) []int {
	t.Helper()
	var got []int
	for i := 0; i < n; i++ {
		select {
		case r := <-results:
			got = append(got, r.(int))
		case <-time.After(testTimeout):
			t.Fatalf("timed out after %d of %d results", i, n)
		}
	}
	sort.Ints(got)
	return got
}

func TestPool(t *testing.T) {
	system := actor.NewSystem(t.Name())
	results := make(chan interface{}, 100)
	p, err := New(system, "squares", Config{
		QueueLimit:  100,
		Workers:     4,
		TaskHandler: func(task interface{}) interface{} { return task.(int) * task.(int) },
		Callback:    func(result interface{}) { results <- result },
	})
	require.NoError(t, err)

	var want []int
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Submit(i))
		want = append(want, i*i)
	}
	assert.Equal(t, want, collect(t, results, 20))

	stats, err := p.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(20), stats.Submitted)
	assert.Equal(t, uint64(20), stats.Completed)
	assert.Equal(t, 0, stats.Queued)

	require.NoError(t, p.Shutdown(testTimeout))
	assert.Error(t, p.Submit(1))
}

func TestPoolQueueFull(t *testing.T) {
	system := actor.NewSystem(t.Name())
	started := make(chan interface{}, 10)
	release := make(chan struct{})
	results := make(chan interface{}, 10)
	p, err := New(system, "blocked", Config{
		QueueLimit: 1,
		Workers:    1,
		TaskHandler: func(task interface{}) interface{} {
			started <- task
			<-release
			return task
		},
		Callback: func(result interface{}) { results <- result },
	})
	require.NoError(t, err)

	require.NoError(t, p.Submit(1))
	select {
	case <-started:
	case <-time.After(testTimeout):
		t.Fatal("task was not started")
	}
	require.NoError(t, p.Submit(2))
	err = p.Submit(3)
	assert.ErrorAs(t, err, &QueueFullError{})

	stats, err := p.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Queued)
	assert.Equal(t, 0, stats.Idle)

	close(release)
	assert.Equal(t, []int{1, 2}, collect(t, results, 2))
	require.NoError(t, p.Shutdown(testTimeout))
}

func TestPoolWorkerRestart(t *testing.T) {
	system := actor.NewSystem(t.Name())
	results := make(chan interface{}, 10)
	p, err := New(system, "flaky", Config{
		QueueLimit: 10,
		Workers:    1,
		TaskHandler: func(task interface{}) interface{} {
			if task.(int) < 0 {
				panic("negative task")
			}
			return task
		},
		Callback: func(result interface{}) { results <- result },
	})
	require.NoError(t, err)

	require.NoError(t, p.Submit(-1))
	require.NoError(t, p.Submit(7))
	assert.Equal(t, []int{7}, collect(t, results, 1))

	stats, err := p.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Submitted)
	assert.Equal(t, uint64(1), stats.Completed)
	require.NoError(t, p.Shutdown(testTimeout))
}

func TestPoolConfig(t *testing.T) {
	system := actor.NewSystem(t.Name())
	_, err := New(system, "empty", Config{TaskHandler: func(interface{}) interface{} { return nil }})
	assert.ErrorContains(t, err, "at least one worker")
	_, err = New(system, "idle", Config{Workers: 1})
	assert.ErrorContains(t, err, "task handler")
}
