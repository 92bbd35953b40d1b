package types

import "fmt"

type RobotState string

const (
	StateSetup RobotState = "setup"
	StateCalib RobotState = "calib"
	StateReady RobotState = "ready"
	StateDrive RobotState = "drive"
	StateTurn  RobotState = "turn"
	StateStop  RobotState = "stop"
)

// LineKind is the reflectance subsystem's judgment of the marking under the
// robot. The values are ordered: NONE < PARTIAL < FULL.
type LineKind int

const (
	LineNone LineKind = iota
	LinePartial
	LineFull
)

func (k LineKind) String() string {
	switch k {
	case LineNone:
		return "none"
	case LinePartial:
		return "partial"
	case LineFull:
		return "full"
	default:
		return fmt.Sprintf("line(%d)", int(k))
	}
}

func ParseLineKind(s string) (LineKind, error) {
	switch s {
	case "none", "NONE":
		return LineNone, nil
	case "partial", "PARTIAL":
		return LinePartial, nil
	case "full", "FULL":
		return LineFull, nil
	}
	return LineNone, fmt.Errorf("unknown line kind %q", s)
}
