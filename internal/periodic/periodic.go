// Package periodic provides delay-until style scheduling for the control tasks.
package periodic

import (
	"context"
	"time"
)

// Waker hands out absolute wake deadlines. Each deadline is the previous one
// plus the period, so jitter in the loop body never accumulates into phase
// error. A deadline already in the past returns immediately.
type Waker struct {
	last time.Time
}

func NewWaker(start time.Time) *Waker {
	return &Waker{last: start}
}

// Next advances the deadline by period and returns it.
func (w *Waker) Next(period time.Duration) time.Time {
	w.last = w.last.Add(period)
	return w.last
}

// Resync drops missed cycles: when now is more than one period past the last
// deadline, the schedule restarts from now. It reports whether it did.
func (w *Waker) Resync(now time.Time, period time.Duration) bool {
	if now.Sub(w.last) <= period {
		return false
	}
	w.last = now
	return true
}

// Wait blocks until the next deadline or until ctx is done.
func (w *Waker) Wait(ctx context.Context, period time.Duration) error {
	return SleepUntil(ctx, w.Next(period))
}

// SleepUntil blocks until deadline or until ctx is done.
func SleepUntil(ctx context.Context, deadline time.Time) error {
	d := time.Until(deadline)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Sleeper performs deliberate, non-cancellable holds (timed maneuvers, start
// delay).
type Sleeper interface {
	Sleep(d time.Duration)
}

type SleeperFunc func(time.Duration)

func (f SleeperFunc) Sleep(d time.Duration) { f(d) }

// RealSleeper sleeps on the wall clock.
var RealSleeper Sleeper = SleeperFunc(time.Sleep)
