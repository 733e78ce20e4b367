// Package scheduler owns the named recurring timers that drive the background
// trading engines. Each engine gets one independent cadence; a tick that is
// still running when its own timer fires again is skipped rather than
// overlapped, and a panic inside one tick never cancels the timer.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TickFunc is one engine cycle. It reports a structured result so operational
// visibility does not depend on log scraping.
type TickFunc func(ctx context.Context) (TickResult, error)

// TickResult summarizes one engine tick: how many items were looked at, how
// many succeeded, how many failed, and why.
type TickResult struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// AddError records one per-item failure.
func (r *TickResult) AddError(format string, args ...any) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Service is one named engine hooked to its own timer.
type Service struct {
	Name     string
	Interval time.Duration
	Run      TickFunc
}

// ServiceStatus is the externally visible state of one registered service.
type ServiceStatus struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	TicksRun     uint64        `json:"ticks_run"`
	TicksSkipped uint64        `json:"ticks_skipped"`
	LastRun      time.Time     `json:"last_run"`
	LastResult   TickResult    `json:"last_result"`
	LastError    string        `json:"last_error,omitempty"`
}

// Status is the coordinator health snapshot served by the status endpoint.
type Status struct {
	Running        bool            `json:"running"`
	ActiveServices []string        `json:"active_services"`
	Services       []ServiceStatus `json:"services"`
}

type serviceState struct {
	svc      Service
	inFlight atomic.Bool

	mu           sync.Mutex
	ticksRun     uint64
	ticksSkipped uint64
	lastRun      time.Time
	lastResult   TickResult
	lastError    string
}

// Coordinator starts and stops the registered services as a unit. Start is a
// no-op when already running; Stop clears every timer, then blocks until
// in-flight ticks drain. It never cancels a tick that has already begun.
type Coordinator struct {
	logger *slog.Logger

	mu       sync.Mutex
	services []*serviceState
	running  bool
	stopCh   chan struct{}
	loopWG   sync.WaitGroup
	tickWG   sync.WaitGroup
}

// New creates a Coordinator with no services registered.
func New(logger *slog.Logger) *Coordinator {
	return &Coordinator{
		logger: logger.With(slog.String("component", "coordinator")),
	}
}

// Register adds a service. Registering while running is rejected so a timer
// set is always started and stopped as a whole.
func (c *Coordinator) Register(svc Service) error {
	if svc.Interval <= 0 {
		return fmt.Errorf("scheduler: service %q: interval must be positive", svc.Name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("scheduler: cannot register %q while running", svc.Name)
	}
	for _, st := range c.services {
		if st.svc.Name == svc.Name {
			return fmt.Errorf("scheduler: service %q already registered", svc.Name)
		}
	}
	c.services = append(c.services, &serviceState{svc: svc})
	return nil
}

// Start launches one timer loop per registered service. Calling Start while
// already running logs a warning and does nothing, so timers are never
// registered twice. Tick contexts descend from ctx, not from Stop.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.logger.Warn("scheduled services already running")
		return
	}

	c.stopCh = make(chan struct{})
	for _, st := range c.services {
		c.loopWG.Add(1)
		go c.loop(ctx, st, c.stopCh)
		c.logger.Info("service scheduled",
			slog.String("service", st.svc.Name),
			slog.Duration("interval", st.svc.Interval),
		)
	}
	c.running = true
	c.logger.Info("scheduled services started", slog.Int("count", len(c.services)))
}

// Stop clears all timers and waits for any tick already running to finish.
// It stops scheduling new ticks; it does not cancel in-flight work. Safe to
// call when not running.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	close(c.stopCh)
	c.running = false
	c.mu.Unlock()

	c.loopWG.Wait()
	c.tickWG.Wait()
	c.logger.Info("scheduled services stopped")
}

// Status reports whether the coordinator is running, the active service
// names, and each service's last tick result.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{Running: c.running}
	for _, st := range c.services {
		st.mu.Lock()
		s.Services = append(s.Services, ServiceStatus{
			Name:         st.svc.Name,
			Interval:     st.svc.Interval,
			TicksRun:     st.ticksRun,
			TicksSkipped: st.ticksSkipped,
			LastRun:      st.lastRun,
			LastResult:   st.lastResult,
			LastError:    st.lastError,
		})
		st.mu.Unlock()
		if c.running {
			s.ActiveServices = append(s.ActiveServices, st.svc.Name)
		}
	}
	return s
}

func (c *Coordinator) loop(ctx context.Context, st *serviceState, stopCh chan struct{}) {
	defer c.loopWG.Done()

	ticker := time.NewTicker(st.svc.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tickWG.Add(1)
			go func() {
				defer c.tickWG.Done()
				c.runTick(ctx, st)
			}()
		}
	}
}

// runTick executes one guarded tick. The in-flight flag makes each service
// reentrancy-safe: if the previous tick has not finished, this one is skipped
// and the next scheduled tick proceeds normally.
func (c *Coordinator) runTick(ctx context.Context, st *serviceState) {
	if !st.inFlight.CompareAndSwap(false, true) {
		st.mu.Lock()
		st.ticksSkipped++
		st.mu.Unlock()
		c.logger.Warn("tick skipped, previous still running",
			slog.String("service", st.svc.Name),
		)
		return
	}
	defer st.inFlight.Store(false)

	defer func() {
		if r := recover(); r != nil {
			st.mu.Lock()
			st.lastError = fmt.Sprintf("panic: %v", r)
			st.mu.Unlock()
			c.logger.Error("tick panicked",
				slog.String("service", st.svc.Name),
				slog.Any("panic", r),
			)
		}
	}()

	start := time.Now()
	res, err := st.svc.Run(ctx)

	st.mu.Lock()
	st.ticksRun++
	st.lastRun = start
	st.lastResult = res
	if err != nil {
		st.lastError = err.Error()
	} else {
		st.lastError = ""
	}
	st.mu.Unlock()

	if err != nil {
		c.logger.Error("tick failed",
			slog.String("service", st.svc.Name),
			slog.String("error", err.Error()),
		)
		return
	}
	if res.Failed > 0 {
		c.logger.Warn("tick completed with item failures",
			slog.String("service", st.svc.Name),
			slog.Int("processed", res.Processed),
			slog.Int("failed", res.Failed),
		)
	}
}
