package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"robot-service/internal/buttons"
	"robot-service/internal/drive"
	"robot-service/internal/logger"
	"robot-service/internal/types"
)

// Mock LineSensor
type mockLine struct {
	mu          sync.Mutex
	ready       bool
	kind        types.LineKind
	values      []int
	calibOK     bool
	calibStops  bool
	calibStarts int
	calibEnds   int
}

func (m *mockLine) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *mockLine) GetLineKind() types.LineKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kind
}

func (m *mockLine) GetSensorValues() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.values...)
}

func (m *mockLine) CalibrateStart() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calibStarts++
	return m.calibOK
}

func (m *mockLine) CalibrateStop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calibEnds++
	return m.calibStops
}

func (m *mockLine) setKind(k types.LineKind) {
	m.mu.Lock()
	m.kind = k
	m.mu.Unlock()
}

// Mock Proximity
type mockProximity struct {
	mu                       sync.Mutex
	front, rear, left, right bool
	ranges                   map[string]int
}

func (m *mockProximity) record(name string, rangeMm int, v bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ranges == nil {
		m.ranges = make(map[string]int)
	}
	m.ranges[name] = rangeMm
	return v
}

func (m *mockProximity) NearFrontObstacle(r int) bool { return m.record("front", r, m.get(&m.front)) }
func (m *mockProximity) NearRearObstacle(r int) bool  { return m.record("rear", r, m.get(&m.rear)) }
func (m *mockProximity) NearLeftObstacle(r int) bool  { return m.record("left", r, m.get(&m.left)) }
func (m *mockProximity) NearRightObstacle(r int) bool { return m.record("right", r, m.get(&m.right)) }

func (m *mockProximity) get(v *bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *v
}

func (m *mockProximity) set(v *bool, near bool) {
	m.mu.Lock()
	*v = near
	m.mu.Unlock()
}

// Mock LineFollower
type mockFollower struct {
	mu      sync.Mutex
	starts  int
	stops   int
	running bool
}

func (m *mockFollower) StartFollowing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	m.running = true
}

func (m *mockFollower) StopFollowing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.running = false
}

func (m *mockFollower) isRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Mock CommandSink
type mockDrive struct {
	mu   sync.Mutex
	cmds []drive.Command
}

func (m *mockDrive) Apply(c drive.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cmds = append(m.cmds, c)
	return nil
}

func (m *mockDrive) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cmds)
}

func (m *mockDrive) since(n int) []drive.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]drive.Command(nil), m.cmds[n:]...)
}

func (m *mockDrive) last() (drive.Command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.cmds) == 0 {
		return 0, false
	}
	return m.cmds[len(m.cmds)-1], true
}

// Mock Indicator
type mockLED struct {
	mu sync.Mutex
	on bool
}

func (m *mockLED) Set(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.on = on
	return nil
}

func (m *mockLED) isOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on
}

// Mock DiagnosticSink
type mockDiag struct {
	mu    sync.Mutex
	lines []string
}

func (m *mockDiag) Status(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line)
}

func (m *mockDiag) has(line string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.lines {
		if l == line {
			return true
		}
	}
	return false
}

// Mock StatePublisher
type mockPublisher struct {
	mu     sync.Mutex
	states []types.RobotState
}

func (m *mockPublisher) PublishRobotState(s types.RobotState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, s)
	return nil
}

func (m *mockPublisher) published() []types.RobotState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.RobotState(nil), m.states...)
}

// Mock StatePublisher that blocks until released, like a stalled link
type stalledPublisher struct {
	mockPublisher
	release chan struct{}
}

func (m *stalledPublisher) PublishRobotState(s types.RobotState) error {
	<-m.release
	return m.mockPublisher.PublishRobotState(s)
}

// Records holds instead of sleeping
type mockSleeper struct {
	mu    sync.Mutex
	holds []time.Duration
}

func (m *mockSleeper) Sleep(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holds = append(m.holds, d)
}

type fixture struct {
	events    *buttons.Events
	line      *mockLine
	proximity *mockProximity
	follower  *mockFollower
	drive     *mockDrive
	led       *mockLED
	diag      *mockDiag
	publisher *mockPublisher
	sleeper   *mockSleeper
}

// quick shortens the long-press wait so start presses don't stall tests.
func quick(p Policy) Policy {
	p.LongPressWait = 20 * time.Millisecond
	return p
}

func newTestController(t *testing.T, p Policy) (*Controller, *fixture) {
	t.Helper()
	return newTestControllerWith(t, p, nil)
}

// newTestControllerWith lets a test replace collaborators before the
// controller is built.
func newTestControllerWith(t *testing.T, p Policy, customize func(*Options)) (*Controller, *fixture) {
	t.Helper()
	f := &fixture{
		events:    buttons.NewEvents(),
		line:      &mockLine{ready: true, kind: types.LineFull, values: []int{500, 500, 500}, calibOK: true, calibStops: true},
		proximity: &mockProximity{},
		follower:  &mockFollower{},
		drive:     &mockDrive{},
		led:       &mockLED{},
		diag:      &mockDiag{},
		publisher: &mockPublisher{},
		sleeper:   &mockSleeper{},
	}
	o := Options{
		Events:    f.events,
		Line:      f.line,
		Proximity: f.proximity,
		Follower:  f.follower,
		Drive:     f.drive,
		CalibLED:  f.led,
		Diag:      f.diag,
		Publisher: f.publisher,
		Sleeper:   f.sleeper,
		Logger:    logger.NewLogger(nil, logger.LogLevelError),
	}
	if customize != nil {
		customize(&o)
	}
	c, err := NewController(p, o)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return c, f
}

func cycle(t *testing.T, c *Controller, now time.Time) {
	t.Helper()
	if err := c.Step(now); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
}

func expectState(t *testing.T, c *Controller, want types.RobotState) {
	t.Helper()
	if got := c.State(); got != want {
		t.Fatalf("Expected state %s, got %s", want, got)
	}
}

// eventually polls cond for side effects of entry actions.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
