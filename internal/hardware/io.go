package hardware

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"robot-service/internal/config"
	"robot-service/internal/logger"
)

// LinuxHardwareIO owns the GPIO output lines of the robot: indicator LEDs,
// the buzzer and the motor direction lines.
type LinuxHardwareIO struct {
	logger *logger.Logger
	mu     sync.RWMutex
	lines  map[string]*gpiocdev.Line
	values map[string]bool
}

func NewLinuxHardwareIO(l *logger.Logger) *LinuxHardwareIO {
	return &LinuxHardwareIO{
		logger: l,
		lines:  make(map[string]*gpiocdev.Line),
		values: make(map[string]bool),
	}
}

// RequestOutput claims ref as an output named name. Unmapped refs are skipped
// so optional peripherals can be left out of the configuration.
func (io *LinuxHardwareIO) RequestOutput(name string, ref config.LineRef, initial bool) error {
	if !ref.Valid() {
		io.logger.Debugf("DO %s not mapped", name)
		return nil
	}

	val := 0
	if initial {
		val = 1
	}
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsOutput(val),
		gpiocdev.WithConsumer(Consumer),
	}
	if ref.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := gpiocdev.RequestLine(ref.Chip, ref.Offset, opts...)
	if err != nil {
		return fmt.Errorf("failed to request GPIO %s:%d for %s: %w", ref.Chip, ref.Offset, name, err)
	}

	io.mu.Lock()
	io.lines[name] = line
	io.values[name] = initial
	io.mu.Unlock()
	io.logger.Infof("Configured DO %s: chip=%s, line=%d", name, ref.Chip, ref.Offset)
	return nil
}

// Has reports whether the output is mapped.
func (io *LinuxHardwareIO) Has(name string) bool {
	io.mu.RLock()
	defer io.mu.RUnlock()
	_, ok := io.lines[name]
	return ok
}

func (io *LinuxHardwareIO) WriteDigitalOutput(name string, value bool) error {
	io.mu.Lock()
	defer io.mu.Unlock()
	return io.writeLocked(name, value)
}

// ToggleDigitalOutput inverts the last written value.
func (io *LinuxHardwareIO) ToggleDigitalOutput(name string) error {
	io.mu.Lock()
	defer io.mu.Unlock()
	return io.writeLocked(name, !io.values[name])
}

func (io *LinuxHardwareIO) writeLocked(name string, value bool) error {
	line, ok := io.lines[name]
	if !ok {
		return fmt.Errorf("unknown digital output channel: %s", name)
	}

	val := 0
	if value {
		val = 1
	}
	if err := line.SetValue(val); err != nil {
		return fmt.Errorf("failed to set DO %s=%v: %w", name, value, err)
	}
	io.values[name] = value
	return nil
}

// Output returns a handle on one named output.
func (io *LinuxHardwareIO) Output(name string) *Output {
	return &Output{io: io, name: name}
}

func (io *LinuxHardwareIO) Cleanup() {
	io.mu.Lock()
	defer io.mu.Unlock()

	io.logger.Infof("Cleaning up hardware resources")
	for name, line := range io.lines {
		_ = line.SetValue(0)
		line.Close()
		io.logger.Debugf("Closed GPIO line for %s", name)
	}
	io.lines = make(map[string]*gpiocdev.Line)
}

// Output is one digital output: an LED or a direction line.
type Output struct {
	io   *LinuxHardwareIO
	name string
}

func (o *Output) Set(on bool) error { return o.io.WriteDigitalOutput(o.name, on) }
func (o *Output) Toggle() error     { return o.io.ToggleDigitalOutput(o.name) }

// SetValue makes an Output usable as a motor direction line.
func (o *Output) SetValue(v int) error { return o.io.WriteDigitalOutput(o.name, v != 0) }

// Buzzer sounds a short pulse for button feedback.
type Buzzer struct {
	out   *Output
	pulse time.Duration
	log   *logger.Logger
}

func NewBuzzer(out *Output, pulse time.Duration, l *logger.Logger) *Buzzer {
	return &Buzzer{out: out, pulse: pulse, log: l}
}

// Beep never blocks; the buzzer is switched off from a timer.
func (b *Buzzer) Beep() {
	if err := b.out.Set(true); err != nil {
		b.log.Debugf("Buzzer: %v", err)
		return
	}
	time.AfterFunc(b.pulse, func() {
		if err := b.out.Set(false); err != nil {
			b.log.Debugf("Buzzer: %v", err)
		}
	})
}
