// Package core holds the behavior controller: one periodic state machine
// engine driven by a program Policy.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/librescoot/librefsm"
	"go.uber.org/atomic"

	"robot-service/internal/buttons"
	"robot-service/internal/drive"
	"robot-service/internal/fsm"
	"robot-service/internal/logger"
	"robot-service/internal/periodic"
	"robot-service/internal/types"
)

// Options carries the controller's collaborators. Events, Line and Drive are
// required; Proximity is required by programs with proximity reactions and
// Follower by line following. The rest may be nil.
type Options struct {
	Events    *buttons.Events
	Line      LineSensor
	Proximity Proximity
	Follower  LineFollower
	Drive     CommandSink
	CalibLED  Indicator
	Diag      DiagnosticSink
	Publisher StatePublisher
	Sleeper   periodic.Sleeper
	Logger    *logger.Logger
}

const stateQueue = 16

// step is one leg of a timed maneuver.
type step struct {
	cmd  drive.Command
	hold time.Duration
}

type Controller struct {
	policy    Policy
	events    *buttons.Events
	line      LineSensor
	proximity Proximity
	follower  LineFollower
	drive     CommandSink
	calibLED  Indicator
	diag      DiagnosticSink
	publisher StatePublisher
	sleeper   periodic.Sleeper
	logger    *logger.Logger
	machine   *librefsm.Machine
	ctx       context.Context

	states        chan types.RobotState
	statesDropped atomic.Uint32

	// Owned by the control loop
	lastFront bool
	lastRear  bool
	holdIndex int
	maneuver  []step
	stepIndex int
	stepUntil time.Time
}

func NewController(p Policy, o Options) (*Controller, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if o.Events == nil || o.Line == nil || o.Drive == nil {
		return nil, errors.New("controller needs button events, a line sensor and a drive")
	}
	if o.Proximity == nil && (p.has(ReactFront) || p.has(ReactRear) || p.has(ReactLeft) || p.has(ReactRight)) {
		return nil, fmt.Errorf("program %s needs a proximity sensor", p.Name)
	}
	if o.Follower == nil && p.FollowLine {
		return nil, fmt.Errorf("program %s needs a line follower", p.Name)
	}
	if o.Sleeper == nil {
		o.Sleeper = periodic.RealSleeper
	}
	if o.Logger == nil {
		o.Logger = logger.NewLogger(nil, logger.LogLevelNone)
	}

	c := &Controller{
		policy:    p,
		events:    o.Events,
		line:      o.Line,
		proximity: o.Proximity,
		follower:  o.Follower,
		drive:     o.Drive,
		calibLED:  o.CalibLED,
		diag:      o.Diag,
		publisher: o.Publisher,
		sleeper:   o.Sleeper,
		logger:    o.Logger,
		ctx:       context.Background(),
		states:    make(chan types.RobotState, stateQueue),
	}
	if err := c.initFSM(); err != nil {
		return nil, fmt.Errorf("failed to build state machine: %w", err)
	}
	return c, nil
}

func (c *Controller) Policy() Policy { return c.policy }

// Start starts the state machine and the state publisher. It must be called
// before Step.
func (c *Controller) Start(ctx context.Context) error {
	c.ctx = ctx
	if c.publisher != nil {
		go c.publishStates(ctx)
	}
	if err := c.machine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start state machine: %w", err)
	}
	c.logger.Infof("Program %s started (period=%v, states=%v)", c.policy.Name, c.policy.Period, c.policy.Reachable())
	return nil
}

// State returns the current robot state.
func (c *Controller) State() types.RobotState {
	return stateIDToRobotState(c.machine.CurrentState())
}

// Run executes control cycles on the policy period until ctx is done.
// Missed cycles after a deliberate hold are dropped, not replayed.
func (c *Controller) Run(ctx context.Context) error {
	w := periodic.NewWaker(time.Now())
	for {
		if err := c.Step(time.Now()); err != nil {
			c.logger.Errorf("Control cycle failed: %v", err)
		}
		if w.Resync(time.Now(), c.policy.Period) {
			c.logger.Debugf("Control cycle overran, resynchronising")
		}
		if err := w.Wait(ctx, c.policy.Period); err != nil {
			c.logger.Infof("Controller stopping")
			return err
		}
	}
}

// Step executes exactly one control cycle. Sensors are read before the
// decision and at most one drive command is emitted.
func (c *Controller) Step(now time.Time) error {
	switch c.State() {
	case types.StateSetup:
		return c.stepSetup()
	case types.StateCalib:
		return c.stepCalib()
	case types.StateReady:
		return c.stepReady()
	case types.StateDrive:
		return c.stepDrive(now)
	case types.StateTurn:
		return c.stepTurn(now)
	case types.StateStop:
		// Only left behind by a failed reset.
		return c.send(fsm.EvReset)
	}
	return nil
}

func (c *Controller) stepSetup() error {
	if c.policy.Trigger == TriggerLong {
		if _, ok := c.events.Long.TryTake(); ok {
			return c.startCalibration()
		}
		if _, ok := c.events.Short.TryTake(); ok {
			return c.start()
		}
		return nil
	}

	shortAt, ok := c.events.Short.TryTake()
	if !ok {
		return nil
	}
	// A long press left over from an earlier hold must not count.
	c.events.Long.DrainBefore(shortAt)
	if _, long := c.events.Long.Take(c.ctx, c.policy.LongPressWait); long {
		return c.startCalibration()
	}
	return c.start()
}

func (c *Controller) startCalibration() error {
	if !c.line.CalibrateStart() {
		c.status("Calibration start failed")
		return nil
	}
	c.status("Calibration started")
	return c.send(fsm.EvCalibrationStarted)
}

func (c *Controller) start() error {
	if !c.line.IsReady() {
		c.status("Line sensors not ready")
		return nil
	}
	if c.policy.Arm == ArmOnLine {
		c.status("READY")
		return c.send(fsm.EvArm)
	}
	if c.policy.StartDelay > 0 {
		c.status("DRIVE")
		c.sleeper.Sleep(c.policy.StartDelay)
	}
	return c.goDrive()
}

func (c *Controller) goDrive() error {
	c.lastFront, c.lastRear = false, false
	c.maneuver = nil
	if !c.policy.FollowLine {
		c.emit(c.policy.Cruise)
	}
	c.status("GO!")
	return c.send(fsm.EvGo)
}

func (c *Controller) stepCalib() error {
	if _, ok := c.events.Short.TryTake(); !ok {
		return nil
	}
	if !c.line.CalibrateStop() {
		c.status("Calibration stop failed")
		return nil
	}
	c.status("Calibration stopped")
	return c.send(fsm.EvCalibrationStopped)
}

func (c *Controller) stepReady() error {
	if _, ok := c.events.Short.TryTake(); ok {
		c.status("SETUP")
		return c.send(fsm.EvAbort)
	}
	if c.line.GetLineKind() < c.policy.ArmLine {
		return nil
	}
	return c.goDrive()
}

func (c *Controller) stepDrive(now time.Time) error {
	if _, ok := c.events.Short.TryTake(); ok {
		return c.panicStop()
	}
	if c.policy.FollowLine {
		return nil
	}

	var front, rear bool
	if c.policy.has(ReactFront) {
		front = c.proximity.NearFrontObstacle(c.policy.FrontRange)
	}
	if c.policy.has(ReactRear) {
		rear = c.proximity.NearRearObstacle(c.policy.RearRange)
	}
	defer func() { c.lastFront, c.lastRear = front, rear }()

	for _, r := range c.policy.Reactions {
		switch r {
		case ReactEdge:
			if c.line.GetLineKind() != types.LineFull {
				return c.beginManeuver(now, c.edgeManeuver())
			}
		case ReactFront:
			if front != c.lastFront {
				c.emit(c.rise(front, drive.FullForward))
				return nil
			}
		case ReactRear:
			if rear != c.lastRear {
				c.emit(c.rise(rear, drive.FullBackward))
				return nil
			}
		case ReactLeft:
			if c.proximity.NearLeftObstacle(c.policy.SideRange) {
				return c.beginManeuver(now, c.sideManeuver(drive.TurnLeft90))
			}
		case ReactRight:
			if c.proximity.NearRightObstacle(c.policy.SideRange) {
				return c.beginManeuver(now, c.sideManeuver(drive.TurnRight90))
			}
		}
	}
	return nil
}

func (c *Controller) rise(near bool, cmd drive.Command) drive.Command {
	if near {
		return cmd
	}
	return c.policy.Cruise
}

func (c *Controller) edgeManeuver() []step {
	hold := c.policy.EdgeHolds[c.holdIndex%len(c.policy.EdgeHolds)]
	c.holdIndex = (c.holdIndex + 1) % len(c.policy.EdgeHolds)

	cmd := drive.SpiralIn
	if c.policy.Edge == SteerBySensor {
		cmd = drive.PivotLeft
		if values := c.line.GetSensorValues(); len(values) > 0 && values[0] < c.policy.EdgeThreshold {
			cmd = drive.PivotRight
		}
	}
	return []step{{cmd, hold}, {c.policy.Cruise, 0}}
}

func (c *Controller) sideManeuver(turn drive.Command) []step {
	return []step{{turn, c.policy.SideHold}, {c.policy.Cruise, c.policy.SideHold}}
}

func (c *Controller) beginManeuver(now time.Time, steps []step) error {
	c.maneuver = steps
	c.stepIndex = 0
	c.stepUntil = now.Add(steps[0].hold)
	c.emit(steps[0].cmd)
	return c.send(fsm.EvManeuver)
}

// stepTurn advances the running maneuver by at most one leg. The panic button
// is honoured on every cycle, including in the middle of a hold.
func (c *Controller) stepTurn(now time.Time) error {
	if _, ok := c.events.Short.TryTake(); ok {
		return c.panicStop()
	}
	if now.Before(c.stepUntil) {
		return nil
	}

	c.stepIndex++
	if c.stepIndex >= len(c.maneuver) {
		c.maneuver = nil
		return c.send(fsm.EvManeuverDone)
	}
	s := c.maneuver[c.stepIndex]
	c.emit(s.cmd)
	c.stepUntil = now.Add(s.hold)
	if c.stepIndex == len(c.maneuver)-1 && s.hold <= 0 {
		c.maneuver = nil
		return c.send(fsm.EvManeuverDone)
	}
	return nil
}

// panicStop leaves DRIVE or TURN through STOP, whose entry emits the stop
// command, and ends in SETUP within the same cycle.
func (c *Controller) panicStop() error {
	c.maneuver = nil
	if err := c.send(fsm.EvPanic); err != nil {
		// Never leave the motors running on a failed transition.
		c.emit(drive.Stop)
		return err
	}
	c.status("SETUP")
	return c.send(fsm.EvReset)
}

func (c *Controller) emit(cmd drive.Command) {
	if err := c.drive.Apply(cmd); err != nil {
		c.logger.Errorf("Failed to apply %s: %v", cmd, err)
	}
}

func (c *Controller) status(line string) {
	c.logger.Infof("%s", line)
	if c.diag != nil {
		c.diag.Status(line)
	}
}

func (c *Controller) send(event librefsm.EventID) error {
	if err := c.machine.SendSync(librefsm.Event{ID: event}); err != nil {
		return fmt.Errorf("event %s: %w", event, err)
	}
	return nil
}
