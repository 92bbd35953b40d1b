package fsm

import (
	"github.com/librescoot/librefsm"
)

// NewDefinition creates the robot FSM definition shared by every program.
// Which states a program actually reaches is a property of its policy.
func NewDefinition(actions Actions) *librefsm.Definition {
	return librefsm.NewDefinition().
		State(StateSetup).
		State(StateCalib,
			librefsm.WithOnEnter(actions.EnterCalib),
			librefsm.WithOnExit(actions.ExitCalib),
		).
		State(StateReady).
		State(StateDrive,
			librefsm.WithOnEnter(actions.EnterDrive),
			librefsm.WithOnExit(actions.ExitDrive),
		).
		State(StateTurn).
		State(StateStop,
			librefsm.WithOnEnter(actions.EnterStop),
		).

		// === Transitions ===

		// Calibration
		Transition(StateSetup, EvCalibrationStarted, StateCalib).
		Transition(StateCalib, EvCalibrationStopped, StateSetup).

		// Start: straight to DRIVE, or through READY waiting for the line
		Transition(StateSetup, EvArm, StateReady).
		Transition(StateSetup, EvGo, StateDrive).
		Transition(StateReady, EvGo, StateDrive).
		Transition(StateReady, EvAbort, StateSetup).

		// Timed maneuvers
		Transition(StateDrive, EvManeuver, StateTurn).
		Transition(StateTurn, EvManeuverDone, StateDrive).

		// Panic button
		Transition(StateDrive, EvPanic, StateStop).
		Transition(StateTurn, EvPanic, StateStop).
		Transition(StateStop, EvReset, StateSetup).
		Initial(StateSetup)
}
