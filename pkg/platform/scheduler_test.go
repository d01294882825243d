package platform_test

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/deliberate/pkg/platform"
)

func TestNewScheduler_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	_, err := platform.NewScheduler(0, nil, logger)
	assert.Error(t, err)
	_, err = platform.NewScheduler(1, nil, nil)
	assert.Error(t, err)
	_, err = platform.NewScheduler(1, rate.NewLimiter(10, 0), logger)
	assert.Error(t, err)
}

func TestScheduler_RunsAndDrainsOnHalt(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := platform.NewScheduler(3, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Start()
	s.Start()

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.True(t, s.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	s.Halt()
	s.Halt()
	assert.True(t, s.Halted())
	assert.False(t, s.Submit(func() { t.Error("turn accepted after halt") }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
	wg.Wait()
	assert.EqualValues(t, 100, ran.Load(), "queued turns still run after Halt")
	assert.Zero(t, s.Pending())
}

func TestScheduler_WaitHonorsContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := platform.NewScheduler(1, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Start()

	release := make(chan struct{})
	started := make(chan struct{})
	require.True(t, s.Submit(func() {
		close(started)
		<-release
	}))
	<-started
	s.Halt()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)

	// Abandoned waits share one watcher instead of leaving one goroutine each.
	before := runtime.NumGoroutine()
	expired, cancelExpired := context.WithCancel(context.Background())
	cancelExpired()
	for i := 0; i < 50; i++ {
		assert.ErrorIs(t, s.Wait(expired), context.Canceled)
	}
	assert.LessOrEqual(t, runtime.NumGoroutine(), before+1)

	close(release)
	require.NoError(t, s.Wait(context.Background()))
}

func TestScheduler_WaitRequiresHalt(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := platform.NewScheduler(1, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Start()
	assert.ErrorIs(t, s.Wait(context.Background()), platform.ErrNotHalted)
	s.Halt()
	require.NoError(t, s.Wait(context.Background()))
}

func TestScheduler_SurvivesPanickingTurn(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := platform.NewScheduler(1, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Start()

	done := make(chan struct{})
	require.True(t, s.Submit(func() { panic("turn bug") }))
	require.True(t, s.Submit(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died with the panicking turn")
	}
	s.Halt()
	require.NoError(t, s.Wait(context.Background()))
}

func TestScheduler_SubmitThrottled(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := platform.NewScheduler(2, rate.NewLimiter(rate.Every(10*time.Millisecond), 1), zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Start()

	var ran atomic.Int32
	start := time.Now()
	for i := 0; i < 4; i++ {
		s.SubmitThrottled(func() { ran.Add(1) }, func() { t.Error("rejected while running") })
	}
	require.Eventually(t, func() bool { return ran.Load() == 4 }, 2*time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond, "turns beyond the burst are delayed")

	s.Halt()
	var rejected atomic.Bool
	s.SubmitThrottled(func() { t.Error("turn ran after halt") }, func() { rejected.Store(true) })
	assert.True(t, rejected.Load())
	require.NoError(t, s.Wait(context.Background()))
}

// A throttled turn whose timer fires after Halt is rejected, not run.
func TestScheduler_DelayedTurnRejectedAfterHalt(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := platform.NewScheduler(1, rate.NewLimiter(rate.Every(50*time.Millisecond), 1), zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Start()

	var ran, rejected atomic.Int32
	s.SubmitThrottled(func() { ran.Add(1) }, func() { rejected.Add(1) })
	s.SubmitThrottled(func() { ran.Add(1) }, func() { rejected.Add(1) })
	s.Halt()

	require.NoError(t, s.Wait(context.Background()), "Wait covers delayed submissions")
	assert.Equal(t, int32(2), ran.Load()+rejected.Load())
	assert.Equal(t, int32(1), rejected.Load())
}
