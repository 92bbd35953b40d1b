package buttons

import (
	"context"
	"fmt"
	"time"

	"robot-service/internal/logger"
	"robot-service/internal/periodic"
)

// Gesture selects how a physical interaction maps to Short and Long events.
type Gesture int

const (
	// GesturePressThenHold raises Short on the debounced press and Long once
	// the button has been held past the threshold. A hold therefore produces
	// Short followed by Long.
	GesturePressThenHold Gesture = iota
	// GestureDistinct raises Short on release before the threshold and Long
	// on hold, never both for the same press.
	GestureDistinct
)

func (g Gesture) String() string {
	switch g {
	case GesturePressThenHold:
		return "press-then-hold"
	case GestureDistinct:
		return "distinct"
	default:
		return fmt.Sprintf("gesture(%d)", int(g))
	}
}

func ParseGesture(s string) (Gesture, error) {
	switch s {
	case "", "press-then-hold":
		return GesturePressThenHold, nil
	case "distinct":
		return GestureDistinct, nil
	}
	return GesturePressThenHold, fmt.Errorf("unknown gesture %q", s)
}

// Key reads the raw level of the primary button.
type Key interface {
	Pressed() (bool, error)
}

// Beeper gives audible feedback for a press.
type Beeper interface {
	Beep()
}

type ScannerConfig struct {
	Period    time.Duration
	Debounce  time.Duration
	LongPress time.Duration
	Gesture   Gesture
}

func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		Period:    100 * time.Millisecond,
		Debounce:  0,
		LongPress: 800 * time.Millisecond,
		Gesture:   GesturePressThenHold,
	}
}

// Scanner samples a Key periodically, debounces it and raises button events.
type Scanner struct {
	key    Key
	events *Events
	cfg    ScannerConfig
	logger *logger.Logger
	beeper Beeper

	raw      bool
	rawSince time.Time

	pressed   bool
	pressedAt time.Time
	longSent  bool

	failing bool
}

func NewScanner(key Key, events *Events, cfg ScannerConfig, l *logger.Logger) *Scanner {
	return &Scanner{
		key:    key,
		events: events,
		cfg:    cfg,
		logger: l,
	}
}

func (s *Scanner) SetBeeper(b Beeper) { s.beeper = b }

// Pressed reports the debounced level.
func (s *Scanner) Pressed() bool { return s.pressed }

// Scan reads the key once and feeds the sample.
func (s *Scanner) Scan(now time.Time) {
	raw, err := s.key.Pressed()
	if err != nil {
		if !s.failing {
			s.logger.Warnf("Failed to read button: %v", err)
			s.failing = true
		}
		return
	}
	if s.failing {
		s.logger.Infof("Button readable again")
		s.failing = false
	}
	s.Sample(now, raw)
}

// Sample advances the debounce and press classification with one raw level.
func (s *Scanner) Sample(now time.Time, raw bool) {
	if raw != s.raw {
		s.raw = raw
		s.rawSince = now
	}

	if s.raw != s.pressed && now.Sub(s.rawSince) >= s.cfg.Debounce {
		if s.raw {
			s.onPress(now)
		} else {
			s.onRelease(now)
		}
	}

	if s.pressed && !s.longSent && now.Sub(s.pressedAt) >= s.cfg.LongPress {
		s.longSent = true
		s.give(s.events.Long, now)
		s.logger.Debugf("Button long pressed")
	}
}

func (s *Scanner) onPress(now time.Time) {
	s.pressed = true
	s.pressedAt = s.rawSince
	s.longSent = false
	if s.cfg.Gesture == GesturePressThenHold {
		s.give(s.events.Short, now)
	}
	if s.beeper != nil {
		s.beeper.Beep()
	}
	s.logger.Debugf("Button pressed")
}

func (s *Scanner) onRelease(now time.Time) {
	s.pressed = false
	if s.cfg.Gesture == GestureDistinct && !s.longSent {
		s.give(s.events.Short, now)
	}
	s.logger.Debugf("Button released after %v", now.Sub(s.pressedAt))
}

// give raises an event and reports when it replaced one the controller had
// not consumed yet.
func (s *Scanner) give(slot *Slot, now time.Time) {
	before := slot.Coalesced()
	slot.Give(now)
	if n := slot.Coalesced(); n != before {
		s.logger.Warnf("Unconsumed %s replaced (%d so far)", slot.Name(), n)
	}
}

// Run scans on a fixed period until ctx is done.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Infof("Button scanner started (period=%v, long=%v, gesture=%s)",
		s.cfg.Period, s.cfg.LongPress, s.cfg.Gesture)
	w := periodic.NewWaker(time.Now())
	for {
		s.Scan(time.Now())
		if err := w.Wait(ctx, s.cfg.Period); err != nil {
			s.logger.Infof("Button scanner stopping")
			return err
		}
	}
}
