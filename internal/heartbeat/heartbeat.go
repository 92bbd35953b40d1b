// Package heartbeat blinks the liveness LED. The blink rate tells the operator
// whether the line sensors are calibrated.
package heartbeat

import (
	"context"
	"time"

	"robot-service/internal/logger"
	"robot-service/internal/periodic"
)

type Indicator interface {
	Toggle() error
}

const (
	DefaultReadyPeriod    = 200 * time.Millisecond
	DefaultNotReadyPeriod = 800 * time.Millisecond
)

type Task struct {
	led      Indicator
	ready    func() bool
	fast     time.Duration
	slow     time.Duration
	logger   *logger.Logger
	failures int
}

// New creates the task. ready is polled once per blink; non-positive periods
// fall back to the defaults.
func New(led Indicator, ready func() bool, fast, slow time.Duration, l *logger.Logger) *Task {
	if fast <= 0 {
		fast = DefaultReadyPeriod
	}
	if slow <= 0 {
		slow = DefaultNotReadyPeriod
	}
	return &Task{
		led:    led,
		ready:  ready,
		fast:   fast,
		slow:   slow,
		logger: l,
	}
}

// Period returns the blink period for the given readiness.
func (t *Task) Period(ready bool) time.Duration {
	if ready {
		return t.fast
	}
	return t.slow
}

// beat toggles the LED and returns the next absolute wake deadline.
func (t *Task) beat(w *periodic.Waker) time.Time {
	if err := t.led.Toggle(); err != nil {
		// Liveness is best effort; log the first failure of a streak only.
		if t.failures == 0 {
			t.logger.Warnf("Failed to toggle heartbeat LED: %v", err)
		}
		t.failures++
	} else {
		t.failures = 0
	}
	return w.Next(t.Period(t.ready()))
}

func (t *Task) Run(ctx context.Context) error {
	t.logger.Debugf("Heartbeat started (ready=%v, not ready=%v)", t.fast, t.slow)
	w := periodic.NewWaker(time.Now())
	for {
		if err := periodic.SleepUntil(ctx, t.beat(w)); err != nil {
			return err
		}
	}
}

// Blink toggles led n times, period apart, then switches it off.
func Blink(ctx context.Context, led Indicator, n int, period time.Duration) error {
	w := periodic.NewWaker(time.Now())
	for i := 0; i < n; i++ {
		if err := led.Toggle(); err != nil {
			return err
		}
		if err := periodic.SleepUntil(ctx, w.Next(period)); err != nil {
			return err
		}
	}
	if n%2 == 1 {
		return led.Toggle()
	}
	return nil
}

// BlinkUntil toggles led every period until ctx is done. Toggle errors are
// ignored; there is nobody left to tell.
func BlinkUntil(ctx context.Context, led Indicator, period time.Duration) {
	w := periodic.NewWaker(time.Now())
	for {
		_ = led.Toggle()
		if periodic.SleepUntil(ctx, w.Next(period)) != nil {
			return
		}
	}
}
