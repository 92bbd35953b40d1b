package core

import (
	"fmt"
	"time"

	"robot-service/internal/buttons"
	"robot-service/internal/config"
	"robot-service/internal/drive"
	"robot-service/internal/types"
)

// Reaction is one DRIVE-state condition a program reacts to. A policy lists
// them in priority order; at most one fires per cycle.
type Reaction int

const (
	// ReactEdge fires when the line classification leaves FULL (ring edge).
	ReactEdge Reaction = iota
	// ReactFront fires on a change of the near-front sensor: ram or resume.
	ReactFront
	// ReactRear fires on a change of the near-rear sensor: retreat or resume.
	ReactRear
	// ReactLeft and ReactRight fire while a side obstacle is near and run a
	// 90 degree turn followed by cruising.
	ReactLeft
	ReactRight
)

func (r Reaction) String() string {
	switch r {
	case ReactEdge:
		return "edge"
	case ReactFront:
		return "front"
	case ReactRear:
		return "rear"
	case ReactLeft:
		return "left"
	case ReactRight:
		return "right"
	default:
		return fmt.Sprintf("reaction(%d)", int(r))
	}
}

// EdgeSteering selects the ring-edge correction maneuver.
type EdgeSteering int

const (
	// SteerBySensor pivots away from the edge: right when the leftmost
	// reflectance reading is below EdgeThreshold, left otherwise.
	SteerBySensor EdgeSteering = iota
	// SteerSpiralIn tightens the spiral.
	SteerSpiralIn
)

// ArmStage says how a start press reaches DRIVE.
type ArmStage int

const (
	// ArmImmediate goes from SETUP straight to DRIVE.
	ArmImmediate ArmStage = iota
	// ArmOnLine goes to READY and waits for the line classification to reach
	// Policy.ArmLine.
	ArmOnLine
)

// CalibrationTrigger selects how SETUP tells a calibration request from a
// start request.
type CalibrationTrigger int

const (
	// TriggerShortThenLong takes a short press, then waits LongPressWait for
	// a long press. This matches scanners that raise the short press when
	// the button goes down and the long press while it is still held.
	TriggerShortThenLong CalibrationTrigger = iota
	// TriggerLong treats a long press alone as the calibration request and
	// a short press alone as the start request.
	TriggerLong
)

// TriggerFor returns the calibration trigger that fits a scanner gesture.
func TriggerFor(g buttons.Gesture) CalibrationTrigger {
	if g == buttons.GestureDistinct {
		return TriggerLong
	}
	return TriggerShortThenLong
}

// Policy is the data that turns the shared engine into one program.
type Policy struct {
	Name          string
	Period        time.Duration
	LongPressWait time.Duration
	Trigger       CalibrationTrigger

	Arm     ArmStage
	ArmLine types.LineKind

	// FollowLine hands DRIVE to the line follower; the controller then
	// issues no drive commands besides the panic stop.
	FollowLine bool
	Cruise     drive.Command

	Reactions     []Reaction
	Edge          EdgeSteering
	EdgeThreshold int
	EdgeHolds     []time.Duration

	FrontRange int
	RearRange  int
	SideRange  int
	SideHold   time.Duration

	// StartDelay is a hold between the start press and driving off.
	StartDelay time.Duration
}

// PrimitiveFight drives forward, pivots away from the ring edge, rams what is
// in front, retreats from what is behind and turns towards side obstacles.
func PrimitiveFight() Policy {
	return Policy{
		Name:          config.ProgramPrimitiveFight,
		Period:        10 * time.Millisecond,
		LongPressWait: 1000 * time.Millisecond,
		Arm:           ArmImmediate,
		ArmLine:       types.LineFull,
		Cruise:        drive.Forward,
		Reactions:     []Reaction{ReactEdge, ReactFront, ReactRear, ReactLeft, ReactRight},
		Edge:          SteerBySensor,
		EdgeThreshold: 300,
		EdgeHolds: []time.Duration{
			400 * time.Millisecond,
			300 * time.Millisecond,
			400 * time.Millisecond,
			450 * time.Millisecond,
		},
		FrontRange: 100,
		RearRange:  100,
		SideRange:  200,
		SideHold:   200 * time.Millisecond,
	}
}

// SpiralFight spirals outwards inside the ring, tightens at the edge and rams
// what appears in front.
func SpiralFight() Policy {
	return Policy{
		Name:          config.ProgramSpiralFight,
		Period:        30 * time.Millisecond,
		LongPressWait: 600 * time.Millisecond,
		Arm:           ArmOnLine,
		ArmLine:       types.LineFull,
		Cruise:        drive.SpiralOut,
		Reactions:     []Reaction{ReactEdge, ReactFront},
		Edge:          SteerSpiralIn,
		EdgeHolds:     []time.Duration{500 * time.Millisecond},
		FrontRange:    100,
	}
}

// LineFollowing waits for any line under the sensors, then hands over to the
// line follower.
func LineFollowing() Policy {
	return Policy{
		Name:          config.ProgramLineFollowing,
		Period:        30 * time.Millisecond,
		LongPressWait: 600 * time.Millisecond,
		Arm:           ArmOnLine,
		ArmLine:       types.LinePartial,
		FollowLine:    true,
		Cruise:        drive.Stop,
	}
}

// PolicyFor returns the stock policy of a program.
func PolicyFor(program string) (Policy, error) {
	switch program {
	case config.ProgramPrimitiveFight:
		return PrimitiveFight(), nil
	case config.ProgramSpiralFight:
		return SpiralFight(), nil
	case config.ProgramLineFollowing:
		return LineFollowing(), nil
	}
	return Policy{}, fmt.Errorf("%w: %q", config.ErrUnknownProgram, program)
}

// WithOverrides applies the non-zero control timings from the configuration
// and fits the calibration trigger to the scanner feeding the controller.
func (p Policy) WithOverrides(c config.ControlConfig, s buttons.ScannerConfig) Policy {
	if c.Period > 0 {
		p.Period = c.Period.D()
	}
	if c.LongPressWait > 0 {
		p.LongPressWait = c.LongPressWait.D()
	}
	if c.StartDelay > 0 {
		p.StartDelay = c.StartDelay.D()
	}
	p.Trigger = TriggerFor(s.Gesture)
	if p.Trigger == TriggerShortThenLong {
		if floor := MinLongPressWait(s); p.LongPressWait < floor {
			p.LongPressWait = floor
		}
	}
	return p
}

// MinLongPressWait is the shortest wait after a short press that still sees
// the long press of the same hold. The scanner raises Short once the press is
// debounced and Long on the first scan past the threshold, up to one period
// late.
func MinLongPressWait(s buttons.ScannerConfig) time.Duration {
	return s.LongPress + s.Period + s.Debounce
}

func (p Policy) has(r Reaction) bool {
	for _, x := range p.Reactions {
		if x == r {
			return true
		}
	}
	return false
}

// Validate checks that the policy is internally consistent.
func (p Policy) Validate() error {
	if p.Period <= 0 {
		return fmt.Errorf("policy %s: period must be positive", p.Name)
	}
	if p.LongPressWait < 0 || p.StartDelay < 0 {
		return fmt.Errorf("policy %s: negative timing", p.Name)
	}
	if p.FollowLine && len(p.Reactions) > 0 {
		return fmt.Errorf("policy %s: line following takes no reactions", p.Name)
	}
	if p.has(ReactEdge) && len(p.EdgeHolds) == 0 {
		return fmt.Errorf("policy %s: edge reaction needs hold durations", p.Name)
	}
	if (p.has(ReactLeft) || p.has(ReactRight)) && p.SideHold <= 0 {
		return fmt.Errorf("policy %s: side reaction needs a hold", p.Name)
	}
	if p.Arm == ArmOnLine && p.ArmLine == types.LineNone {
		return fmt.Errorf("policy %s: READY would never wait", p.Name)
	}
	return nil
}

// Reachable lists the states this policy can enter. STOP is transient in
// every program. READY is skipped by ArmImmediate programs and TURN is never
// entered by programs without reactions.
func (p Policy) Reachable() []types.RobotState {
	states := []types.RobotState{types.StateSetup, types.StateCalib}
	if p.Arm == ArmOnLine {
		states = append(states, types.StateReady)
	}
	states = append(states, types.StateDrive)
	if p.maneuvers() {
		states = append(states, types.StateTurn)
	}
	return append(states, types.StateStop)
}

func (p Policy) maneuvers() bool {
	return p.has(ReactEdge) || p.has(ReactLeft) || p.has(ReactRight)
}
