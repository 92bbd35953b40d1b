// Package config holds the service configuration: program selection, task
// timing and the Linux line mappings of the robot's peripherals.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Programs
const (
	ProgramPrimitiveFight = "primitive-fight"
	ProgramSpiralFight    = "spiral-fight"
	ProgramLineFollowing  = "line-following"
)

var ErrUnknownProgram = errors.New("unknown program")

// Programs lists the selectable behavior programs.
func Programs() []string {
	return []string{ProgramPrimitiveFight, ProgramSpiralFight, ProgramLineFollowing}
}

// Duration is a time.Duration that reads "250ms" style strings or plain
// integer milliseconds from JSON.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

type RedisConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LineRef names one GPIO line on a gpiochip.
type LineRef struct {
	Chip      string `json:"chip"`
	Offset    int    `json:"offset"`
	ActiveLow bool   `json:"active_low,omitempty"`
}

// Valid reports whether the line is mapped at all.
func (l LineRef) Valid() bool { return l.Chip != "" && l.Offset >= 0 }

type ButtonConfig struct {
	// Backend is "gpio" (an input line) or "evdev" (a key code on an input
	// event device).
	Backend   string   `json:"backend"`
	Line      LineRef  `json:"line"`
	Device    string   `json:"device,omitempty"`
	KeyCode   int      `json:"key_code,omitempty"`
	Period    Duration `json:"period"`
	Debounce  Duration `json:"debounce"`
	LongPress Duration `json:"long_press"`
	Gesture   string   `json:"gesture"`
}

type ControlConfig struct {
	// Zero values keep the program's own defaults.
	Period        Duration `json:"period,omitempty"`
	LongPressWait Duration `json:"long_press_wait,omitempty"`
	StartDelay    Duration `json:"start_delay,omitempty"`
}

type HeartbeatConfig struct {
	Ready    Duration `json:"ready"`
	NotReady Duration `json:"not_ready"`
}

type MotorConfig struct {
	PWMChip    int      `json:"pwm_chip"`
	PWMChannel int      `json:"pwm_channel"`
	Period     Duration `json:"period"`
	Direction  LineRef  `json:"direction"`
}

type EncoderConfig struct {
	A LineRef `json:"a"`
	B LineRef `json:"b"`
}

type HardwareConfig struct {
	StatusLED    LineRef       `json:"status_led"`
	CalibLED     LineRef       `json:"calib_led"`
	Buzzer       LineRef       `json:"buzzer"`
	MotorLeft    MotorConfig   `json:"motor_left"`
	MotorRight   MotorConfig   `json:"motor_right"`
	EncoderLeft  EncoderConfig `json:"encoder_left"`
	EncoderRight EncoderConfig `json:"encoder_right"`
	IdentityPath string        `json:"identity_path"`
	PWMRoot      string        `json:"pwm_root"`
}

type Config struct {
	Program   string          `json:"program"`
	LogLevel  string          `json:"log_level"`
	Redis     RedisConfig     `json:"redis"`
	Button    ButtonConfig    `json:"button"`
	Control   ControlConfig   `json:"control"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Hardware  HardwareConfig  `json:"hardware"`
}

// Default returns the configuration matching the robot's stock wiring.
func Default() Config {
	return Config{
		Program:  ProgramPrimitiveFight,
		LogLevel: "info",
		Redis:    RedisConfig{Host: "localhost", Port: 6379},
		Button: ButtonConfig{
			Backend:   "gpio",
			Line:      LineRef{Chip: "gpiochip0", Offset: 4, ActiveLow: true},
			Device:    "/dev/input/by-path/platform-gpio-keys-event",
			KeyCode:   256, // BTN_0
			Period:    Duration(100 * time.Millisecond),
			Debounce:  Duration(20 * time.Millisecond),
			LongPress: Duration(800 * time.Millisecond),
			Gesture:   "press-then-hold",
		},
		Heartbeat: HeartbeatConfig{
			Ready:    Duration(200 * time.Millisecond),
			NotReady: Duration(800 * time.Millisecond),
		},
		Hardware: HardwareConfig{
			StatusLED: LineRef{Chip: "gpiochip0", Offset: 17},
			CalibLED:  LineRef{Chip: "gpiochip0", Offset: 27},
			Buzzer:    LineRef{Chip: "gpiochip0", Offset: 22},
			MotorLeft: MotorConfig{
				PWMChip:    0,
				PWMChannel: 0,
				Period:     Duration(50 * time.Microsecond),
				Direction:  LineRef{Chip: "gpiochip0", Offset: 5},
			},
			MotorRight: MotorConfig{
				PWMChip:    0,
				PWMChannel: 1,
				Period:     Duration(50 * time.Microsecond),
				Direction:  LineRef{Chip: "gpiochip0", Offset: 6},
			},
			EncoderLeft: EncoderConfig{
				A: LineRef{Chip: "gpiochip0", Offset: 23},
				B: LineRef{Chip: "gpiochip0", Offset: 24},
			},
			EncoderRight: EncoderConfig{
				A: LineRef{Chip: "gpiochip0", Offset: 25},
				B: LineRef{Chip: "gpiochip0", Offset: 26},
			},
			IdentityPath: "/etc/machine-id",
			PWMRoot:      "/sys/class/pwm",
		},
	}
}

// Load reads a JSON file over the defaults. Fields absent from the file keep
// their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	known := false
	for _, p := range Programs() {
		if c.Program == p {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: %q", ErrUnknownProgram, c.Program)
	}

	positive := map[string]Duration{
		"button.period":       c.Button.Period,
		"button.long_press":   c.Button.LongPress,
		"heartbeat.ready":     c.Heartbeat.Ready,
		"heartbeat.not_ready": c.Heartbeat.NotReady,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d.D())
		}
	}
	if c.Button.Debounce < 0 {
		return fmt.Errorf("button.debounce must not be negative")
	}
	if c.Control.Period < 0 || c.Control.LongPressWait < 0 || c.Control.StartDelay < 0 {
		return fmt.Errorf("control timings must not be negative")
	}

	switch c.Button.Backend {
	case "gpio":
		if !c.Button.Line.Valid() {
			return fmt.Errorf("button.line is required for the gpio backend")
		}
	case "evdev":
		if c.Button.Device == "" {
			return fmt.Errorf("button.device is required for the evdev backend")
		}
	default:
		return fmt.Errorf("unknown button backend %q", c.Button.Backend)
	}

	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis port %d", c.Redis.Port)
	}
	return nil
}
