package hardware

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"robot-service/internal/drive"
	"robot-service/internal/logger"
	"robot-service/internal/mathx"
)

// PWMChannel is one sysfs PWM output (/sys/class/pwm/pwmchipN/pwmM).
type PWMChannel struct {
	dir      string
	periodNs int64
}

func OpenPWM(root string, chip, channel int, period time.Duration) (*PWMChannel, error) {
	chipDir := filepath.Join(root, fmt.Sprintf("pwmchip%d", chip))
	dir := filepath.Join(chipDir, fmt.Sprintf("pwm%d", channel))
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := writeAttr(filepath.Join(chipDir, "export"), strconv.Itoa(channel)); err != nil {
			return nil, fmt.Errorf("failed to export PWM %d/%d: %w", chip, channel, err)
		}
	}

	p := &PWMChannel{dir: dir, periodNs: period.Nanoseconds()}
	if err := writeAttr(filepath.Join(dir, "duty_cycle"), "0"); err != nil {
		return nil, err
	}
	if err := writeAttr(filepath.Join(dir, "period"), strconv.FormatInt(p.periodNs, 10)); err != nil {
		return nil, err
	}
	if err := writeAttr(filepath.Join(dir, "enable"), "1"); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PWMChannel) PeriodNs() int64 { return p.periodNs }

func (p *PWMChannel) SetDuty(ns int64) error {
	return writeAttr(filepath.Join(p.dir, "duty_cycle"), strconv.FormatInt(ns, 10))
}

func (p *PWMChannel) Close() error {
	_ = p.SetDuty(0)
	return writeAttr(filepath.Join(p.dir, "enable"), "0")
}

func writeAttr(path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("failed writing %s: %w", path, err)
	}
	return nil
}

// DutyWriter is the PWM side of a wheel.
type DutyWriter interface {
	PeriodNs() int64
	SetDuty(ns int64) error
}

// DirectionLine is the H-bridge direction input of a wheel.
type DirectionLine interface {
	SetValue(v int) error
}

type wheel struct {
	pwm      DutyWriter
	dir      DirectionLine
	inverted bool
}

// Motors drives both wheels: PWM magnitude plus a direction line.
type Motors struct {
	mu     sync.Mutex
	wheels [2]wheel
	logger *logger.Logger
}

var _ drive.MotorDriver = (*Motors)(nil)

func NewMotors(leftPWM DutyWriter, leftDir DirectionLine, rightPWM DutyWriter, rightDir DirectionLine, l *logger.Logger) *Motors {
	return &Motors{
		wheels: [2]wheel{
			drive.MotorLeft:  {pwm: leftPWM, dir: leftDir},
			drive.MotorRight: {pwm: rightPWM, dir: rightDir},
		},
		logger: l,
	}
}

// plan converts a signed percentage into a duty cycle and a direction level.
// Inversion flips the direction only.
func plan(percent int, inverted bool, periodNs int64) (duty int64, forward int) {
	duty = mathx.Scale(percent, periodNs)
	fwd := percent >= 0
	if inverted {
		fwd = !fwd
	}
	if fwd {
		return duty, 1
	}
	return duty, 0
}

func (m *Motors) SetSpeedPercent(which drive.Motor, percent int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.wheels[which]
	duty, dir := plan(percent, w.inverted, w.pwm.PeriodNs())
	if err := w.dir.SetValue(dir); err != nil {
		m.logger.Errorf("Failed to set %s motor direction: %v", which, err)
	}
	if err := w.pwm.SetDuty(duty); err != nil {
		m.logger.Errorf("Failed to set %s motor duty: %v", which, err)
	}
}

func (m *Motors) Invert(which drive.Motor, inverted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wheels[which].inverted = inverted
	m.logger.Infof("Motor %s inverted=%v", which, inverted)
}

// Halt zeroes both duty cycles. It is the fail-stop path and ignores state.
func (m *Motors) Halt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.wheels {
		if err := w.pwm.SetDuty(0); err != nil {
			m.logger.Errorf("Failed to halt %s motor: %v", drive.Motor(i), err)
		}
	}
}
