package fsm

import (
	"context"
	"sync"
	"testing"

	"github.com/librescoot/librefsm"
)

type recordingActions struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingActions) record(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	return nil
}

func (r *recordingActions) EnterCalib(*librefsm.Context) error { return r.record("enter-calib") }
func (r *recordingActions) ExitCalib(*librefsm.Context) error  { return r.record("exit-calib") }
func (r *recordingActions) EnterDrive(*librefsm.Context) error { return r.record("enter-drive") }
func (r *recordingActions) ExitDrive(*librefsm.Context) error  { return r.record("exit-drive") }
func (r *recordingActions) EnterStop(*librefsm.Context) error  { return r.record("enter-stop") }

func (r *recordingActions) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func startMachine(t *testing.T, a Actions) *librefsm.Machine {
	t.Helper()
	m, err := NewDefinition(a).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return m
}

func send(t *testing.T, m *librefsm.Machine, ev librefsm.EventID, want librefsm.StateID) {
	t.Helper()
	if err := m.SendSync(librefsm.Event{ID: ev}); err != nil {
		t.Fatalf("SendSync(%s) failed: %v", ev, err)
	}
	if got := m.CurrentState(); got != want {
		t.Fatalf("After %s: state %s, want %s", ev, got, want)
	}
}

func TestInitialState(t *testing.T) {
	m := startMachine(t, &recordingActions{})
	if m.CurrentState() != StateSetup {
		t.Errorf("Initial state = %s", m.CurrentState())
	}
}

func TestFightCycle(t *testing.T) {
	a := &recordingActions{}
	m := startMachine(t, a)

	send(t, m, EvGo, StateDrive)
	send(t, m, EvManeuver, StateTurn)
	send(t, m, EvManeuverDone, StateDrive)
	send(t, m, EvManeuver, StateTurn)
	send(t, m, EvPanic, StateStop)
	send(t, m, EvReset, StateSetup)

	want := []string{"enter-drive", "exit-drive", "enter-drive", "exit-drive", "enter-stop"}
	got := a.snapshot()
	if len(got) != len(want) {
		t.Fatalf("Actions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Actions = %v, want %v", got, want)
		}
	}
}

func TestCalibrationAndReady(t *testing.T) {
	a := &recordingActions{}
	m := startMachine(t, a)

	send(t, m, EvCalibrationStarted, StateCalib)
	send(t, m, EvCalibrationStopped, StateSetup)
	send(t, m, EvArm, StateReady)
	send(t, m, EvAbort, StateSetup)
	send(t, m, EvArm, StateReady)
	send(t, m, EvGo, StateDrive)
	send(t, m, EvPanic, StateStop)

	got := a.snapshot()
	if len(got) < 2 || got[0] != "enter-calib" || got[1] != "exit-calib" {
		t.Errorf("Actions = %v", got)
	}
}
