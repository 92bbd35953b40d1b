package fsm

import "github.com/librescoot/librefsm"

// Actions defines the state entry/exit hooks of the robot state machine.
// The behavior controller implements it. Actions never fail the transition;
// collaborator errors are logged by the implementation.
type Actions interface {
	// Calibration indicator
	EnterCalib(c *librefsm.Context) error
	ExitCalib(c *librefsm.Context) error

	// Line follower start/stop (line-following program only)
	EnterDrive(c *librefsm.Context) error
	ExitDrive(c *librefsm.Context) error

	// Emits the stop command
	EnterStop(c *librefsm.Context) error
}
