package lifecycle_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graydnsapconet/tgbot/pkg/lifecycle"
)

func TestStartRunsOnceAndReachesRunning(t *testing.T) {
	o := lifecycle.NewOnce()
	assert.Equal(t, lifecycle.Idle, o.State())

	calls := 0
	err := o.Start(func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, lifecycle.Running, o.State())

	// Repeat callers do not re-run f and observe the same result.
	require.NoError(t, o.Start(func() error {
		calls++
		return nil
	}))
	assert.Equal(t, 1, calls)
}

func TestStartErrorMovesToErrored(t *testing.T) {
	o := lifecycle.NewOnce()
	boom := errors.New("boom")

	err := o.Start(func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, lifecycle.Errored, o.State())

	// Repeat callers receive the same stored error without re-running f.
	err = o.Start(func() error { t.Fatal("f must not run again"); return nil })
	assert.ErrorIs(t, err, boom)
}

func TestStopRunsOnceAndReachesStopped(t *testing.T) {
	o := lifecycle.NewOnce()
	require.NoError(t, o.Start(func() error { return nil }))

	calls := 0
	err := o.Stop(func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, lifecycle.Stopped, o.State())

	require.NoError(t, o.Stop(func() error {
		calls++
		return nil
	}))
	assert.Equal(t, 1, calls)
}

func TestStopBeforeStartPreemptsStart(t *testing.T) {
	o := lifecycle.NewOnce()

	require.NoError(t, o.Stop(nil))
	assert.Equal(t, lifecycle.Stopped, o.State())

	// A Start that arrives after Stop already ran must not run f.
	err := o.Start(func() error { t.Fatal("f must not run after Stop preempted Start"); return nil })
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Stopped, o.State())
}

func TestStopErrorMovesToErrored(t *testing.T) {
	o := lifecycle.NewOnce()
	require.NoError(t, o.Start(func() error { return nil }))

	boom := errors.New("boom")
	err := o.Stop(func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, lifecycle.Errored, o.State())
}

func TestConcurrentStartCallersAllObserveTheSameOutcome(t *testing.T) {
	o := lifecycle.NewOnce()
	const n = 16

	var wg sync.WaitGroup
	errs := make([]error, n)
	var calls int
	var mu sync.Mutex

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			errs[i] = o.Start(func() error {
				mu.Lock()
				calls++
				mu.Unlock()
				return nil
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, lifecycle.Running, o.State())
}

func TestStateStringer(t *testing.T) {
	assert.Equal(t, "idle", lifecycle.Idle.String())
	assert.Equal(t, "running", lifecycle.Running.String())
	assert.Equal(t, "stopped", lifecycle.Stopped.String())
	assert.Equal(t, "unknown", lifecycle.State(99).String())
}
