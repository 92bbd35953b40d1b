// Package drive maps named maneuvers to per-wheel speed percentages.
package drive

import (
	"errors"
	"fmt"
	"sync"

	"robot-service/internal/logger"
)

// Command is a drive intent.
type Command int

const (
	Forward Command = iota
	FullForward
	FullBackward
	Stop
	PivotLeft
	PivotRight
	TurnLeft90
	TurnRight90
	SpiralIn
	SpiralOut
)

var ErrUnknownCommand = errors.New("unknown drive command")

// ForwardSpeed is the cruising percentage used by Forward.
const ForwardSpeed = 60

type speeds struct {
	left, right int
}

var table = map[Command]speeds{
	Forward:      {ForwardSpeed, ForwardSpeed},
	FullForward:  {100, 100},
	FullBackward: {-100, -100},
	Stop:         {0, 0},
	PivotLeft:    {20, -100},
	PivotRight:   {-100, 20},
	TurnLeft90:   {-70, 70},
	TurnRight90:  {70, -70},
	SpiralIn:     {25, 70},
	SpiralOut:    {30, 65},
}

var names = map[Command]string{
	Forward:      "forward",
	FullForward:  "full-forward",
	FullBackward: "full-backward",
	Stop:         "stop",
	PivotLeft:    "pivot-left",
	PivotRight:   "pivot-right",
	TurnLeft90:   "turn-left-90",
	TurnRight90:  "turn-right-90",
	SpiralIn:     "spiral-in",
	SpiralOut:    "spiral-out",
}

func (c Command) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// ParseCommand is the inverse of String.
func ParseCommand(s string) (Command, error) {
	for c, n := range names {
		if n == s {
			return c, nil
		}
	}
	return Stop, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// Commands lists every drive command in declaration order.
func Commands() []Command {
	return []Command{Forward, FullForward, FullBackward, Stop, PivotLeft, PivotRight,
		TurnLeft90, TurnRight90, SpiralIn, SpiralOut}
}

// Speeds returns the (left, right) percentages for c.
func Speeds(c Command) (left, right int, err error) {
	s, ok := table[c]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %d", ErrUnknownCommand, int(c))
	}
	return s.left, s.right, nil
}

// Motor identifies one wheel.
type Motor int

const (
	MotorLeft Motor = iota
	MotorRight
)

func (m Motor) String() string {
	if m == MotorLeft {
		return "left"
	}
	return "right"
}

// MotorDriver is the low-level motor collaborator.
type MotorDriver interface {
	SetSpeedPercent(m Motor, percent int)
	Invert(m Motor, inverted bool)
}

// Driver forwards drive commands to the motors.
type Driver struct {
	motors MotorDriver
	logger *logger.Logger

	mu   sync.Mutex
	last Command
	sent bool
}

func NewDriver(motors MotorDriver, l *logger.Logger) *Driver {
	return &Driver{
		motors: motors,
		logger: l,
	}
}

// Apply sets both motors for c.
func (d *Driver) Apply(c Command) error {
	left, right, err := Speeds(c)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.motors.SetSpeedPercent(MotorLeft, left)
	d.motors.SetSpeedPercent(MotorRight, right)
	if !d.sent || d.last != c {
		d.logger.Debugf("Drive %s (%d, %d)", c, left, right)
	}
	d.last = c
	d.sent = true
	return nil
}
