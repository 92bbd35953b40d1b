// Package identity corrects per-unit wiring differences. Units sharing one
// build differ in motor polarity and encoder pin order; the unit's 16-byte
// identity selects the correction once at startup.
package identity

import (
	"fmt"
	"strings"

	"robot-service/internal/drive"
	"robot-service/internal/fault"
	"robot-service/internal/logger"
)

// ID is the fixed-width unit identity.
type ID [16]byte

func (id ID) String() string {
	var b strings.Builder
	for i, v := range id {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

// Adjustment is a set of wiring corrections.
type Adjustment uint8

const (
	InvertLeftMotor Adjustment = 1 << iota
	InvertRightMotor
	SwapLeftEncoder
	SwapRightEncoder
)

func (a Adjustment) Has(x Adjustment) bool { return a&x == x }

func (a Adjustment) String() string {
	if a == 0 {
		return "none"
	}
	var parts []string
	if a.Has(InvertLeftMotor) {
		parts = append(parts, "invert-left-motor")
	}
	if a.Has(InvertRightMotor) {
		parts = append(parts, "invert-right-motor")
	}
	if a.Has(SwapLeftEncoder) {
		parts = append(parts, "swap-left-encoder")
	}
	if a.Has(SwapRightEncoder) {
		parts = append(parts, "swap-right-encoder")
	}
	return strings.Join(parts, ",")
}

// Entry binds one known unit to its corrections.
type Entry struct {
	Label  string
	ID     ID
	Adjust Adjustment
}

// Table holds the known units in lookup order.
var Table = []Entry{
	{"L20, V2", ID{0x00, 0x03, 0x00, 0x00, 0x67, 0xCD, 0xB7, 0x21, 0x4E, 0x45, 0x32, 0x15, 0x30, 0x02, 0x00, 0x13},
		SwapRightEncoder | InvertLeftMotor | InvertRightMotor},
	{"L21, V2", ID{0x00, 0x05, 0x00, 0x00, 0x4E, 0x45, 0xB7, 0x21, 0x4E, 0x45, 0x32, 0x15, 0x30, 0x02, 0x00, 0x13},
		0},
	{"L4, V1", ID{0x00, 0x0B, 0xFF, 0xFF, 0x4E, 0x45, 0xFF, 0xFF, 0x4E, 0x45, 0x27, 0x99, 0x10, 0x02, 0x00, 0x24},
		InvertLeftMotor | SwapLeftEncoder | SwapRightEncoder},
	{"L23, V2", ID{0x00, 0x0A, 0x00, 0x00, 0x67, 0xCD, 0xB8, 0x21, 0x4E, 0x45, 0x32, 0x15, 0x30, 0x02, 0x00, 0x13},
		SwapRightEncoder | InvertLeftMotor | InvertRightMotor},
	{"L11, V2", ID{0x00, 0x19, 0x00, 0x00, 0x67, 0xCD, 0xB9, 0x11, 0x4E, 0x45, 0x32, 0x15, 0x30, 0x02, 0x00, 0x13},
		SwapRightEncoder},
	{"L5, V2", ID{0x00, 0x0F, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x4E, 0x45, 0x27, 0x99, 0x10, 0x02, 0x00, 0x25},
		InvertLeftMotor | SwapLeftEncoder},
	{"L3, V1", ID{0x00, 0x33, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x4E, 0x45, 0x27, 0x99, 0x10, 0x02, 0x00, 0x0A},
		InvertLeftMotor | SwapLeftEncoder | SwapRightEncoder},
	{"L1, V1", ID{0x00, 0x19, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x4E, 0x45, 0x27, 0x99, 0x10, 0x02, 0x00, 0x25},
		InvertLeftMotor | SwapLeftEncoder | SwapRightEncoder},
	{"L6, V1", ID{0x00, 0x17, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x4E, 0x45, 0x27, 0x99, 0x10, 0x02, 0x00, 0x06},
		InvertLeftMotor | SwapLeftEncoder},
}

// Lookup returns the first entry whose identity matches exactly.
func Lookup(id ID) (Entry, bool) {
	for _, e := range Table {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Source reads the unit identity.
type Source interface {
	ReadIdentity() (ID, error)
}

// EncoderSwapper swaps the quadrature pins of one wheel's encoder.
type EncoderSwapper interface {
	SwapPins(m drive.Motor, swap bool) error
}

// Adapt reads the identity and applies the matching corrections. It must run
// once before any task starts. A failed read is fatal; an unknown identity
// applies nothing.
func Adapt(src Source, motors drive.MotorDriver, encoders EncoderSwapper, l *logger.Logger) (Adjustment, error) {
	id, err := src.ReadIdentity()
	if err != nil {
		return 0, fault.Wrap("read hardware identity", err)
	}

	e, ok := Lookup(id)
	if !ok {
		l.Warnf("Unknown hardware identity %s, no wiring adjustment applied", id)
		return 0, nil
	}
	l.Infof("Hardware identity %s is unit %s, adjustments: %s", id, e.Label, e.Adjust)

	Apply(e.Adjust, motors, encoders, l)
	return e.Adjust, nil
}

// Apply pushes an adjustment set to the drivers. Encoder failures are logged
// and do not stop the others.
func Apply(a Adjustment, motors drive.MotorDriver, encoders EncoderSwapper, l *logger.Logger) {
	if a.Has(InvertLeftMotor) {
		motors.Invert(drive.MotorLeft, true)
	}
	if a.Has(InvertRightMotor) {
		motors.Invert(drive.MotorRight, true)
	}
	if encoders == nil {
		return
	}
	if a.Has(SwapLeftEncoder) {
		if err := encoders.SwapPins(drive.MotorLeft, true); err != nil {
			l.Warnf("Failed to swap left encoder pins: %v", err)
		}
	}
	if a.Has(SwapRightEncoder) {
		if err := encoders.SwapPins(drive.MotorRight, true); err != nil {
			l.Warnf("Failed to swap right encoder pins: %v", err)
		}
	}
}
