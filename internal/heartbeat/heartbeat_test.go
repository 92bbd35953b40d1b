package heartbeat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"robot-service/internal/logger"
	"robot-service/internal/periodic"
)

type mockLED struct {
	mu      sync.Mutex
	toggles int
	err     error
}

func (m *mockLED) Toggle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toggles++
	return m.err
}

func (m *mockLED) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.toggles
}

var quiet = logger.NewLogger(nil, logger.LogLevelError)

func TestPeriodDependsOnReadiness(t *testing.T) {
	task := New(&mockLED{}, func() bool { return false }, 250*time.Millisecond, 500*time.Millisecond, quiet)
	if task.Period(true) != 250*time.Millisecond {
		t.Errorf("ready period = %v", task.Period(true))
	}
	if task.Period(false) != 500*time.Millisecond {
		t.Errorf("not-ready period = %v", task.Period(false))
	}

	def := New(&mockLED{}, nil, 0, 0, quiet)
	if def.Period(true) != DefaultReadyPeriod || def.Period(false) != DefaultNotReadyPeriod {
		t.Error("Expected default periods")
	}
}

func TestReadySwitchChangesNextDeadline(t *testing.T) {
	ready := false
	led := &mockLED{}
	task := New(led, func() bool { return ready }, 0, 0, quiet)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w := periodic.NewWaker(start)

	d1 := task.beat(w)
	ready = true
	d2 := task.beat(w)
	d3 := task.beat(w)
	ready = false
	d4 := task.beat(w)

	want := []time.Duration{800, 1000, 1200, 2000}
	for i, d := range []time.Time{d1, d2, d3, d4} {
		if !d.Equal(start.Add(want[i] * time.Millisecond)) {
			t.Errorf("deadline %d = %v, want +%dms", i+1, d.Sub(start), want[i])
		}
	}
	if led.count() != 4 {
		t.Errorf("Expected one toggle per beat, got %d", led.count())
	}
}

func TestToggleFailureKeepsBeating(t *testing.T) {
	led := &mockLED{err: errors.New("line released")}
	task := New(led, func() bool { return true }, 0, 0, quiet)
	w := periodic.NewWaker(time.Now())

	task.beat(w)
	task.beat(w)
	if led.count() != 2 {
		t.Errorf("Expected 2 toggles, got %d", led.count())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	led := &mockLED{}
	task := New(led, func() bool { return true }, 5*time.Millisecond, 5*time.Millisecond, quiet)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	if err := task.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if led.count() < 3 {
		t.Errorf("Expected several toggles, got %d", led.count())
	}
}

func TestBlinkEndsOff(t *testing.T) {
	tests := []struct {
		n       int
		toggles int
	}{
		{5, 6},
		{4, 4},
		{0, 0},
	}
	for _, tt := range tests {
		led := &mockLED{}
		if err := Blink(context.Background(), led, tt.n, time.Millisecond); err != nil {
			t.Fatalf("Blink(%d) failed: %v", tt.n, err)
		}
		if got := led.count(); got != tt.toggles {
			t.Errorf("Blink(%d): expected %d toggles, got %d", tt.n, tt.toggles, got)
		}
	}
}

func TestBlinkStopsOnError(t *testing.T) {
	led := &mockLED{err: errors.New("gpio gone")}
	if err := Blink(context.Background(), led, 5, time.Millisecond); err == nil {
		t.Fatal("Expected toggle error")
	}
	if got := led.count(); got != 1 {
		t.Errorf("Expected to stop after first toggle, got %d", got)
	}
}

func TestBlinkUntilCancelled(t *testing.T) {
	led := &mockLED{err: errors.New("ignored")}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		BlinkUntil(ctx, led, time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for led.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("Expected repeated toggles")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BlinkUntil did not return after cancel")
	}
}
