// Package watchdog periodically demotes devices whose heartbeat went silent.
package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/stepguard/internal/monitor/core"
	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
)

// Sweeper finds devices silent for longer than timeout and marks them offline.
type Sweeper interface {
	SweepTimeouts(now time.Time, timeout time.Duration) []model.Event
}

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithClock replaces the wall clock, typically with a fake clock in tests.
func WithClock(c clock.WithTicker) Option {
	return func(w *Watchdog) { w.clock = c }
}

// Watchdog sweeps a registry on a fixed period and forwards every transition
// to a Publisher.
type Watchdog struct {
	sweeper   Sweeper
	publisher core.Publisher
	clock     clock.WithTicker

	timeout time.Duration
	period  time.Duration
}

// New creates a Watchdog. timeout and period are independent: detection
// happens at most one period after timeout has elapsed.
func New(sweeper Sweeper, publisher core.Publisher, timeout, period time.Duration, opts ...Option) (*Watchdog, error) {
	if timeout <= 0 || period <= 0 {
		return nil, fmt.Errorf("watchdog timeout (%s) and period (%s) must be positive", timeout, period)
	}

	w := &Watchdog{
		sweeper:   sweeper,
		publisher: publisher,
		clock:     clock.RealClock{},
		timeout:   timeout,
		period:    period,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run ticks until ctx is cancelled. A failing sweep is logged and the loop
// continues with the next tick.
func (w *Watchdog) Run(ctx context.Context) error {
	logger := logr.FromContextOrDiscard(ctx).WithName("watchdog")
	logger.Info("Starting watchdog", "timeout", w.timeout, "period", w.period)

	ticker := w.clock.NewTicker(w.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Watchdog stopped")
			return nil
		case <-ticker.C():
			w.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep at the current clock time and returns the
// number of devices that went offline.
func (w *Watchdog) SweepOnce(ctx context.Context) (n int) {
	logger := logr.FromContextOrDiscard(ctx).WithName("watchdog")

	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Errorf("panic: %v", r), "Watchdog sweep failed")
			n = 0
		}
	}()

	events := w.sweeper.SweepTimeouts(w.clock.Now(), w.timeout)
	if len(events) == 0 {
		return 0
	}

	for _, e := range events {
		logger.V(1).Info("Device timed out", "device", e.DeviceID, "seq", e.Seq)
	}
	w.publisher.Publish(events...)
	return len(events)
}
