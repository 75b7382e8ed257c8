package runner

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hey-Diga/imploid/internal/lockfile"
)

type testLogger struct{}

func (testLogger) Infof(string, ...any)  {}
func (testLogger) Errorf(string, ...any) {}

type countingTicker struct {
	calls int32
}

func (c *countingTicker) Tick([]string) error {
	atomic.AddInt32(&c.calls, 1)
	return nil
}

func TestStart_RunsImmediateTickThenPollsUntilCancelled(t *testing.T) {
	lock := lockfile.New(filepath.Join(t.TempDir(), "imploid.lock"))
	ticker := &countingTicker{}
	fg := New(lock, ticker, 20*time.Millisecond, nil, testLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fg.Start(ctx) }()

	time.Sleep(70 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}

	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&ticker.calls)), 2)

	holder, err := lock.CurrentHolder()
	require.NoError(t, err)
	assert.Nil(t, holder, "lock must be released on shutdown")
}

func TestStart_SecondCallWhileRunningIsAnError(t *testing.T) {
	lock := lockfile.New(filepath.Join(t.TempDir(), "imploid.lock"))
	ticker := &countingTicker{}
	fg := New(lock, ticker, time.Second, nil, testLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fg.Start(ctx)
	time.Sleep(20 * time.Millisecond)

	err := fg.Start(context.Background())
	require.Error(t, err)
}

func TestStart_LockHeldByLiveProcessFails(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "imploid.lock")
	holder := lockfile.New(lockPath)
	ok, err := holder.Acquire()
	require.NoError(t, err)
	require.True(t, ok)
	defer holder.Release()

	fg := New(lockfile.New(lockPath), &countingTicker{}, time.Second, nil, testLogger{})
	err = fg.Start(context.Background())
	require.Error(t, err)
}
