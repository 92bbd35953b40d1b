package core

import (
	"robot-service/internal/drive"
	"robot-service/internal/types"
)

// LineSensor is the reflectance subsystem.
type LineSensor interface {
	IsReady() bool
	GetLineKind() types.LineKind
	// GetSensorValues returns the readings ordered from the leftmost sensor.
	GetSensorValues() []int
	CalibrateStart() bool
	CalibrateStop() bool
}

// Proximity is the distance subsystem. Ranges are in millimetres.
type Proximity interface {
	NearFrontObstacle(rangeMm int) bool
	NearRearObstacle(rangeMm int) bool
	NearLeftObstacle(rangeMm int) bool
	NearRightObstacle(rangeMm int) bool
}

type LineFollower interface {
	StartFollowing()
	StopFollowing()
}

// CommandSink receives drive commands; drive.Driver implements it.
type CommandSink interface {
	Apply(c drive.Command) error
}

// Indicator is an on/off lamp.
type Indicator interface {
	Set(on bool) error
}

// DiagnosticSink takes operator-facing status lines. It must not block.
type DiagnosticSink interface {
	Status(line string)
}

// StatePublisher mirrors the robot state to the outside.
type StatePublisher interface {
	PublishRobotState(state types.RobotState) error
}
