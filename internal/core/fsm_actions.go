package core

import (
	"context"

	"github.com/librescoot/librefsm"

	"robot-service/internal/drive"
	"robot-service/internal/fsm"
	"robot-service/internal/types"
)

// Ensure Controller implements fsm.Actions
var _ fsm.Actions = (*Controller)(nil)

// stateIDToRobotState converts librefsm StateID to types.RobotState
func stateIDToRobotState(id librefsm.StateID) types.RobotState {
	switch id {
	case fsm.StateSetup:
		return types.StateSetup
	case fsm.StateCalib:
		return types.StateCalib
	case fsm.StateReady:
		return types.StateReady
	case fsm.StateDrive:
		return types.StateDrive
	case fsm.StateTurn:
		return types.StateTurn
	case fsm.StateStop:
		return types.StateStop
	default:
		return types.RobotState(string(id))
	}
}

// initFSM builds the librefsm machine; Start runs it.
func (c *Controller) initFSM() error {
	def := fsm.NewDefinition(c)
	machine, err := def.Build()
	if err != nil {
		return err
	}
	c.machine = machine

	c.machine.OnStateChange(func(from, to librefsm.StateID) {
		oldState := stateIDToRobotState(from)
		newState := stateIDToRobotState(to)
		c.logger.Infof("State transition: %s -> %s", oldState, newState)

		// Queue the known new state; calling State() here would deadlock
		// on the FSM mutex.
		c.queueState(newState)
	})
	return nil
}

// queueState hands a state to the publisher task without blocking the control
// loop. A full queue drops its oldest entry so the latest state always goes
// out.
func (c *Controller) queueState(s types.RobotState) {
	if c.publisher == nil {
		return
	}
	for {
		select {
		case c.states <- s:
			return
		default:
		}
		select {
		case <-c.states:
			if c.statesDropped.Inc() == 1 {
				c.logger.Warnf("State publisher behind, dropping old states")
			}
		default:
		}
	}
}

// publishStates forwards queued states until ctx is done.
func (c *Controller) publishStates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-c.states:
			if err := c.publisher.PublishRobotState(s); err != nil {
				c.logger.Warnf("Failed to publish state %s: %v", s, err)
			}
		}
	}
}

// === State Entry/Exit Actions ===

func (c *Controller) EnterCalib(_ *librefsm.Context) error {
	c.setCalibLED(true)
	return nil
}

func (c *Controller) ExitCalib(_ *librefsm.Context) error {
	c.setCalibLED(false)
	return nil
}

func (c *Controller) EnterDrive(_ *librefsm.Context) error {
	if c.policy.FollowLine {
		c.logger.Debugf("Starting line follower")
		c.follower.StartFollowing()
	}
	return nil
}

func (c *Controller) ExitDrive(_ *librefsm.Context) error {
	if c.policy.FollowLine {
		c.logger.Debugf("Stopping line follower")
		c.follower.StopFollowing()
	}
	return nil
}

func (c *Controller) EnterStop(_ *librefsm.Context) error {
	c.emit(drive.Stop)
	return nil
}

func (c *Controller) setCalibLED(on bool) {
	if c.calibLED == nil {
		return
	}
	if err := c.calibLED.Set(on); err != nil {
		c.logger.Warnf("Failed to set calibration LED: %v", err)
	}
}
