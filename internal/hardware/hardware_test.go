package hardware

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"robot-service/internal/drive"
	"robot-service/internal/identity"
	"robot-service/internal/logger"
)

var quiet = logger.NewLogger(nil, logger.LogLevelNone)

func TestKeyBit(t *testing.T) {
	buf := make([]byte, keyStateLen)
	buf[256/8] = 1 // BTN_0
	buf[30/8] = 1 << (30 % 8)

	if !keyBit(buf, 256) {
		t.Error("BTN_0 should be pressed")
	}
	if !keyBit(buf, 30) {
		t.Error("KEY_A should be pressed")
	}
	if keyBit(buf, 257) || keyBit(buf, 31) {
		t.Error("Neighbouring codes should be released")
	}
	if keyBit(buf, keyStateLen*8+1) {
		t.Error("Out of range code must read released")
	}
}

func TestPlan(t *testing.T) {
	tests := []struct {
		percent  int
		inverted bool
		duty     int64
		dir      int
	}{
		{60, false, 30000, 1},
		{-100, false, 50000, 0},
		{0, false, 0, 1},
		{20, true, 10000, 0},
		{-70, true, 35000, 1},
		{150, false, 50000, 1},
	}
	for _, tt := range tests {
		duty, dir := plan(tt.percent, tt.inverted, 50000)
		if duty != tt.duty || dir != tt.dir {
			t.Errorf("plan(%d, %v) = (%d, %d), want (%d, %d)",
				tt.percent, tt.inverted, duty, dir, tt.duty, tt.dir)
		}
	}
}

type fakePWM struct {
	duty int64
	err  error
}

func (f *fakePWM) PeriodNs() int64 { return 50000 }
func (f *fakePWM) SetDuty(ns int64) error {
	f.duty = ns
	return f.err
}

type fakeDir struct{ v int }

func (f *fakeDir) SetValue(v int) error {
	f.v = v
	return nil
}

func TestMotorsApplyDriveCommands(t *testing.T) {
	lp, rp := &fakePWM{}, &fakePWM{}
	ld, rd := &fakeDir{}, &fakeDir{}
	m := NewMotors(lp, ld, rp, rd, quiet)
	d := drive.NewDriver(m, quiet)

	if err := d.Apply(drive.PivotLeft); err != nil {
		t.Fatal(err)
	}
	if lp.duty != 10000 || ld.v != 1 {
		t.Errorf("Left = (%d, %d), want 20%% forward", lp.duty, ld.v)
	}
	if rp.duty != 50000 || rd.v != 0 {
		t.Errorf("Right = (%d, %d), want 100%% reverse", rp.duty, rd.v)
	}

	m.Invert(drive.MotorRight, true)
	if err := d.Apply(drive.Forward); err != nil {
		t.Fatal(err)
	}
	if rd.v != 0 {
		t.Error("Inverted right motor drives forward with the direction line low")
	}

	m.Halt()
	if lp.duty != 0 || rp.duty != 0 {
		t.Error("Halt must zero both duties")
	}
}

func TestMotorsKeepGoingOnWriteError(t *testing.T) {
	lp, rp := &fakePWM{err: errors.New("ebusy")}, &fakePWM{}
	m := NewMotors(lp, &fakeDir{}, rp, &fakeDir{}, quiet)

	m.SetSpeedPercent(drive.MotorLeft, 60)
	m.SetSpeedPercent(drive.MotorRight, 60)
	if rp.duty != 30000 {
		t.Errorf("Right duty = %d", rp.duty)
	}
}

func TestOpenPWMWritesSysfs(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "pwmchip0", "pwm1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	p, err := OpenPWM(root, 0, 1, 50*time.Microsecond)
	if err != nil {
		t.Fatalf("OpenPWM failed: %v", err)
	}
	read := func(attr string) string {
		b, err := os.ReadFile(filepath.Join(dir, attr))
		if err != nil {
			t.Fatal(err)
		}
		return strings.TrimSpace(string(b))
	}
	if read("period") != "50000" || read("enable") != "1" || read("duty_cycle") != "0" {
		t.Errorf("Unexpected sysfs state: period=%s enable=%s duty=%s",
			read("period"), read("enable"), read("duty_cycle"))
	}

	if err := p.SetDuty(12345); err != nil {
		t.Fatal(err)
	}
	if read("duty_cycle") != "12345" {
		t.Errorf("duty_cycle = %s", read("duty_cycle"))
	}

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if read("enable") != "0" {
		t.Error("Close must disable the channel")
	}
}

func TestOpenPWMExportFailure(t *testing.T) {
	if _, err := OpenPWM(t.TempDir(), 3, 0, time.Millisecond); err == nil {
		t.Error("Expected export error for a missing chip")
	}
}

// feed drives the encoder through a sequence of AB states.
func feed(e *Encoder, states ...uint8) {
	for _, s := range states {
		a, b := s&2 != 0, s&1 != 0
		if a != (e.state&2 != 0) {
			e.update(e.offA, a)
		}
		if b != (e.state&1 != 0) {
			e.update(e.offB, b)
		}
	}
}

func TestEncoderCountsBothDirections(t *testing.T) {
	e := newEncoder(23, 24)

	// A leads B: forward
	feed(e, 0b10, 0b11, 0b01, 0b00, 0b10, 0b11, 0b01, 0b00)
	if e.Count() != 8 {
		t.Fatalf("Forward count = %d, want 8", e.Count())
	}

	// B leads A: backward
	feed(e, 0b01, 0b11, 0b10, 0b00)
	if e.Count() != 4 {
		t.Errorf("Count after reversing = %d, want 4", e.Count())
	}

	// Edges from unrelated lines are ignored
	e.update(99, true)
	if e.Count() != 4 {
		t.Errorf("Foreign line changed the count to %d", e.Count())
	}
}

func TestEncoderSeededFromLineLevels(t *testing.T) {
	e := newEncoder(23, 24)
	e.seed(true, false)
	if e.state != 0b10 {
		t.Fatalf("Seeded state = %02b, want 10", e.state)
	}

	// 10 -> 11 is a forward step; decoded from 00 it would count backward.
	e.update(24, true)
	if e.Count() != 1 {
		t.Errorf("First edge counted %d, want 1", e.Count())
	}

	e.seed(false, false)
	if e.state != 0 {
		t.Errorf("Seeded state = %02b, want 00", e.state)
	}
}

func TestEncoderSwapReversesDirection(t *testing.T) {
	enc := newEncoder(1, 2)
	encs := NewEncoders(newEncoder(3, 4), enc, quiet)

	if err := encs.SwapPins(drive.MotorRight, true); err != nil {
		t.Fatal(err)
	}
	feed(enc, 0b10, 0b11, 0b01, 0b00)
	if enc.Count() != -4 {
		t.Errorf("Swapped count = %d, want -4", enc.Count())
	}

	if err := NewEncoders(nil, nil, quiet).SwapPins(drive.MotorLeft, true); err == nil {
		t.Error("Expected error for a missing encoder")
	}
}

func TestMachineIDIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine-id")
	if err := os.WriteFile(path, []byte("3a4ba0d88dcc4b1e9fd1c2c7e3f1aa55\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	id, err := MachineID{Path: path}.ReadIdentity()
	if err != nil {
		t.Fatalf("ReadIdentity failed: %v", err)
	}
	want := identity.ID{0x3a, 0x4b, 0xa0, 0xd8, 0x8d, 0xcc, 0x4b, 0x1e, 0x9f, 0xd1, 0xc2, 0xc7, 0xe3, 0xf1, 0xaa, 0x55}
	if id != want {
		t.Errorf("ID = %s, want %s", id, want)
	}

	if _, err := (MachineID{Path: filepath.Join(t.TempDir(), "none")}).ReadIdentity(); err == nil {
		t.Error("Expected error for a missing file")
	}
	if _, err := parseIdentity("not-an-id"); err == nil {
		t.Error("Expected error for garbage")
	}
}
