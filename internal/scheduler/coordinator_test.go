package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func noopTick(ctx context.Context) (TickResult, error) {
	return TickResult{}, nil
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func TestRegisterRejectsNonPositiveInterval(t *testing.T) {
	c := New(testLogger())

	err := c.Register(Service{Name: "bad", Interval: 0, Run: noopTick})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval must be positive")

	err = c.Register(Service{Name: "bad", Interval: -time.Second, Run: noopTick})
	require.Error(t, err)
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	c := New(testLogger())

	require.NoError(t, c.Register(Service{Name: "pricing", Interval: time.Second, Run: noopTick}))
	err := c.Register(Service{Name: "pricing", Interval: time.Second, Run: noopTick})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegisterRejectedWhileRunning(t *testing.T) {
	c := New(testLogger())
	require.NoError(t, c.Register(Service{Name: "a", Interval: time.Hour, Run: noopTick}))

	c.Start(context.Background())
	defer c.Stop()

	err := c.Register(Service{Name: "b", Interval: time.Hour, Run: noopTick})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "while running")
}

func TestStartRunsServiceOnInterval(t *testing.T) {
	c := New(testLogger())
	var ticks atomic.Int64

	require.NoError(t, c.Register(Service{
		Name:     "counter",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) (TickResult, error) {
			ticks.Add(1)
			return TickResult{Processed: 3, Succeeded: 3}, nil
		},
	}))

	c.Start(context.Background())
	waitFor(t, func() bool { return ticks.Load() >= 3 }, "at least 3 ticks")
	c.Stop()

	status := c.Status()
	require.Len(t, status.Services, 1)
	svc := status.Services[0]
	assert.Equal(t, "counter", svc.Name)
	assert.GreaterOrEqual(t, svc.TicksRun, uint64(3))
	assert.Equal(t, 3, svc.LastResult.Processed)
	assert.Empty(t, svc.LastError)
	assert.False(t, svc.LastRun.IsZero())
}

func TestStartTwiceIsNoop(t *testing.T) {
	c := New(testLogger())
	var ticks atomic.Int64

	require.NoError(t, c.Register(Service{
		Name:     "once",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) (TickResult, error) {
			ticks.Add(1)
			return TickResult{}, nil
		},
	}))

	c.Start(context.Background())
	c.Start(context.Background()) // must not double the timers
	waitFor(t, func() bool { return ticks.Load() >= 2 }, "ticks after double start")
	c.Stop()

	// A second Stop is safe too.
	c.Stop()
}

func TestStatusReportsRunningAndActiveServices(t *testing.T) {
	c := New(testLogger())
	require.NoError(t, c.Register(Service{Name: "a", Interval: time.Hour, Run: noopTick}))
	require.NoError(t, c.Register(Service{Name: "b", Interval: time.Hour, Run: noopTick}))

	status := c.Status()
	assert.False(t, status.Running)
	assert.Empty(t, status.ActiveServices)
	assert.Len(t, status.Services, 2)

	c.Start(context.Background())
	status = c.Status()
	assert.True(t, status.Running)
	assert.ElementsMatch(t, []string{"a", "b"}, status.ActiveServices)

	c.Stop()
	status = c.Status()
	assert.False(t, status.Running)
	assert.Empty(t, status.ActiveServices)
}

func TestSlowTickIsSkippedNotOverlapped(t *testing.T) {
	c := New(testLogger())
	release := make(chan struct{})
	var started atomic.Int64

	require.NoError(t, c.Register(Service{
		Name:     "slow",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) (TickResult, error) {
			started.Add(1)
			<-release
			return TickResult{}, nil
		},
	}))

	c.Start(context.Background())

	waitFor(t, func() bool { return started.Load() == 1 }, "first tick started")
	waitFor(t, func() bool {
		return c.Status().Services[0].TicksSkipped >= 2
	}, "subsequent ticks skipped while first is in flight")

	// Only one execution actually began.
	assert.Equal(t, int64(1), started.Load())

	close(release)
	c.Stop()
}

func TestStopWaitsForInflightTick(t *testing.T) {
	c := New(testLogger())
	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	require.NoError(t, c.Register(Service{
		Name:     "inflight",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) (TickResult, error) {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
			finished.Store(true)
			return TickResult{}, nil
		},
	}))

	c.Start(context.Background())
	<-entered

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return after the tick finished")
	}
	assert.True(t, finished.Load())
}

func TestPanicInTickDoesNotKillTimer(t *testing.T) {
	c := New(testLogger())
	var ticks atomic.Int64

	require.NoError(t, c.Register(Service{
		Name:     "panicky",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) (TickResult, error) {
			n := ticks.Add(1)
			if n == 1 {
				panic("boom")
			}
			return TickResult{}, nil
		},
	}))

	c.Start(context.Background())
	waitFor(t, func() bool { return ticks.Load() >= 3 }, "ticks continue after panic")

	// The panic was recorded while it was the most recent outcome.
	waitFor(t, func() bool {
		return c.Status().Services[0].TicksRun >= 2
	}, "ticks recorded after panic")
	c.Stop()
}

func TestTickErrorRecordedAndCleared(t *testing.T) {
	c := New(testLogger())
	var ticks atomic.Int64

	require.NoError(t, c.Register(Service{
		Name:     "flaky",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) (TickResult, error) {
			if ticks.Add(1) == 1 {
				return TickResult{}, errors.New("db unavailable")
			}
			return TickResult{Processed: 1, Succeeded: 1}, nil
		},
	}))

	c.Start(context.Background())
	waitFor(t, func() bool {
		s := c.Status().Services[0]
		return s.TicksRun >= 2 && s.LastError == ""
	}, "error cleared by a later successful tick")
	c.Stop()
}

func TestAddErrorCountsFailures(t *testing.T) {
	var r TickResult
	r.Processed = 2
	r.AddError("item %s: %v", "a1", errors.New("bad"))

	assert.Equal(t, 1, r.Failed)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "item a1: bad", r.Errors[0])
}
