package fsm

import "github.com/librescoot/librefsm"

// Robot states
const (
	StateSetup librefsm.StateID = "setup"
	StateCalib librefsm.StateID = "calib"
	StateReady librefsm.StateID = "ready"
	StateDrive librefsm.StateID = "drive"

	// StateTurn holds a timed maneuver (pivot, side turn, spiral-in). Only
	// fight programs enter it.
	StateTurn librefsm.StateID = "turn"

	// StateStop is transient: it is entered on the panic button, emits the
	// stop command and is left for StateSetup within the same control cycle.
	StateStop librefsm.StateID = "stop"
)

// Robot events
const (
	// Button driven
	EvCalibrationStarted librefsm.EventID = "calibration-started"
	EvCalibrationStopped librefsm.EventID = "calibration-stopped"
	EvArm                librefsm.EventID = "arm"
	EvAbort              librefsm.EventID = "abort"
	EvPanic              librefsm.EventID = "panic"

	// Sensor driven
	EvGo           librefsm.EventID = "go"
	EvManeuver     librefsm.EventID = "maneuver"
	EvManeuverDone librefsm.EventID = "maneuver-done"

	EvReset librefsm.EventID = "reset"
)
