// Package buttons turns a raw key level into the two logical button events
// consumed by the behavior controller.
package buttons

import (
	"context"
	"time"

	"go.uber.org/atomic"
)

// Slot is a single-occurrence event flag, the equivalent of a binary
// semaphore. The producer never blocks: giving while an occurrence is pending
// replaces it with the newer one and counts the loss. One consumer takes it.
type Slot struct {
	name      string
	ch        chan time.Time
	coalesced atomic.Uint32
}

func NewSlot(name string) *Slot {
	return &Slot{
		name: name,
		ch:   make(chan time.Time, 1),
	}
}

func (s *Slot) Name() string { return s.name }

// Give records an occurrence at the given time.
func (s *Slot) Give(at time.Time) {
	for {
		select {
		case s.ch <- at:
			return
		default:
		}
		// Full: drop the pending occurrence so the newest one wins.
		select {
		case <-s.ch:
			s.coalesced.Inc()
		default:
		}
	}
}

// TryTake consumes a pending occurrence without waiting.
func (s *Slot) TryTake() (time.Time, bool) {
	select {
	case at := <-s.ch:
		return at, true
	default:
		return time.Time{}, false
	}
}

// Take waits up to timeout for an occurrence. A non-positive timeout behaves
// like TryTake.
func (s *Slot) Take(ctx context.Context, timeout time.Duration) (time.Time, bool) {
	if timeout <= 0 {
		return s.TryTake()
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case at := <-s.ch:
		return at, true
	case <-t.C:
		return time.Time{}, false
	case <-ctx.Done():
		return time.Time{}, false
	}
}

// DrainBefore discards a pending occurrence older than cutoff and reports
// whether it did. A newer occurrence is left pending.
func (s *Slot) DrainBefore(cutoff time.Time) bool {
	at, ok := s.TryTake()
	if !ok {
		return false
	}
	if at.Before(cutoff) {
		return true
	}
	select {
	case s.ch <- at:
	default:
		// The producer refilled the slot meanwhile; its value is newer.
	}
	return false
}

// Pending reports whether an occurrence is waiting.
func (s *Slot) Pending() bool { return len(s.ch) > 0 }

// Coalesced returns how many occurrences were overwritten before being taken.
func (s *Slot) Coalesced() uint32 { return s.coalesced.Load() }

// Events is the pair of slots fed by one Scanner and read by one controller.
type Events struct {
	Short *Slot
	Long  *Slot
}

func NewEvents() *Events {
	return &Events{
		Short: NewSlot("short-press"),
		Long:  NewSlot("long-press"),
	}
}
