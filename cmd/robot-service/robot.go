package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"robot-service/internal/buttons"
	"robot-service/internal/config"
	"robot-service/internal/core"
	"robot-service/internal/drive"
	"robot-service/internal/fault"
	"robot-service/internal/hardware"
	"robot-service/internal/heartbeat"
	"robot-service/internal/identity"
	"robot-service/internal/logger"
	"robot-service/internal/messaging"
	"robot-service/internal/periodic"
)

const (
	startupBlinks     = 5
	startupBlinkPause = 50 * time.Millisecond
	faultBlinkPeriod  = 100 * time.Millisecond
	beepPulse         = 30 * time.Millisecond
	odometryPeriod    = 500 * time.Millisecond
)

type key interface {
	buttons.Key
	Close() error
}

// robot owns every resource of one service run.
type robot struct {
	cfg    config.Config
	logger *logger.Logger

	io       *hardware.LinuxHardwareIO
	pwms     []*hardware.PWMChannel
	motors   *hardware.Motors
	encoders *hardware.Encoders
	key      key
	redis    *messaging.RedisClient
	events   *buttons.Events

	controller *core.Controller
	scanner    *buttons.Scanner
	heartbeat  *heartbeat.Task
}

func newRobot(cfg config.Config, l *logger.Logger) *robot {
	r := &robot{
		cfg:    cfg,
		logger: l,
		io:     hardware.NewLinuxHardwareIO(l.WithTag("hw")),
		events: buttons.NewEvents(),
	}
	r.redis = messaging.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, l.WithTag("redis"), messaging.Callbacks{
		ButtonCallback: r.injectButton,
	})
	return r
}

// setup claims the hardware, adapts to the unit and wires the tasks. It runs
// before any task starts; every failure is fatal.
func (r *robot) setup(ctx context.Context) error {
	hw := r.cfg.Hardware
	hwLog := r.logger.WithTag("hw")

	outputs := []struct {
		name string
		ref  config.LineRef
	}{
		{hardware.OutputStatusLED, hw.StatusLED},
		{hardware.OutputCalibLED, hw.CalibLED},
		{hardware.OutputBuzzer, hw.Buzzer},
		{hardware.OutputDirLeft, hw.MotorLeft.Direction},
		{hardware.OutputDirRight, hw.MotorRight.Direction},
	}
	for _, o := range outputs {
		if err := r.io.RequestOutput(o.name, o.ref, false); err != nil {
			return fault.Wrap("request outputs", err)
		}
	}

	if r.io.Has(hardware.OutputStatusLED) {
		if err := heartbeat.Blink(ctx, r.io.Output(hardware.OutputStatusLED), startupBlinks, startupBlinkPause); err != nil {
			hwLog.Warnf("Startup blink failed: %v", err)
		}
	}

	var motorPWM [2]*hardware.PWMChannel
	for i, m := range []config.MotorConfig{hw.MotorLeft, hw.MotorRight} {
		pwm, err := hardware.OpenPWM(hw.PWMRoot, m.PWMChip, m.PWMChannel, m.Period.D())
		if err != nil {
			return fault.Wrap("open motor PWM", err)
		}
		r.pwms = append(r.pwms, pwm)
		motorPWM[i] = pwm
	}
	r.motors = hardware.NewMotors(
		motorPWM[drive.MotorLeft], r.io.Output(hardware.OutputDirLeft),
		motorPWM[drive.MotorRight], r.io.Output(hardware.OutputDirRight),
		r.logger.WithTag("motor"))

	if err := r.redis.Connect(); err != nil {
		return fault.Wrap("connect to redis", err)
	}

	if err := r.openKey(); err != nil {
		return fault.Wrap("open button", err)
	}

	var enc [2]*hardware.Encoder
	for i, e := range []config.EncoderConfig{hw.EncoderLeft, hw.EncoderRight} {
		if !e.A.Valid() || !e.B.Valid() {
			continue
		}
		encoder, err := hardware.OpenEncoder(e)
		if err != nil {
			return fault.Wrap("open encoder", err)
		}
		enc[i] = encoder
	}
	r.encoders = hardware.NewEncoders(enc[drive.MotorLeft], enc[drive.MotorRight], hwLog)

	adjust, err := identity.Adapt(hardware.MachineID{Path: hw.IdentityPath}, r.motors, r.encoders, hwLog)
	if err != nil {
		return err
	}
	if err := r.redis.PublishAdjustments(adjust.String()); err != nil {
		hwLog.Warnf("Failed to publish adjustments: %v", err)
	}

	return r.wire()
}

func (r *robot) openKey() error {
	b := r.cfg.Button
	if b.Backend == "evdev" {
		k, err := hardware.OpenEvdevKey(b.Device, b.KeyCode)
		if err != nil {
			return err
		}
		r.key = k
		return nil
	}
	k, err := hardware.NewGPIOKey(b.Line)
	if err != nil {
		return err
	}
	r.key = k
	return nil
}

// wire builds the periodic tasks on top of the opened hardware.
func (r *robot) wire() error {
	gesture, err := buttons.ParseGesture(r.cfg.Button.Gesture)
	if err != nil {
		return fault.Wrap("configure button", err)
	}
	policy, err := core.PolicyFor(r.cfg.Program)
	if err != nil {
		return fault.Wrap("select program", err)
	}
	scan := buttons.ScannerConfig{
		Period:    r.cfg.Button.Period.D(),
		Debounce:  r.cfg.Button.Debounce.D(),
		LongPress: r.cfg.Button.LongPress.D(),
		Gesture:   gesture,
	}
	policy = policy.WithOverrides(r.cfg.Control, scan)

	sensor := messaging.NewReflectanceSensor(r.redis)
	opts := core.Options{
		Events:    r.events,
		Line:      sensor,
		Proximity: r.redis.Distance(),
		Follower:  messaging.NewLineFollower(r.redis),
		Drive:     drive.NewDriver(r.motors, r.logger.WithTag("drive")),
		Diag:      r.redis,
		Publisher: r.redis,
		Logger:    r.logger.WithTag("controller"),
	}
	if r.io.Has(hardware.OutputCalibLED) {
		opts.CalibLED = r.io.Output(hardware.OutputCalibLED)
	}
	if r.controller, err = core.NewController(policy, opts); err != nil {
		return fault.Wrap("create controller", err)
	}

	r.scanner = buttons.NewScanner(r.key, r.events, scan, r.logger.WithTag("button"))
	if r.io.Has(hardware.OutputBuzzer) {
		r.scanner.SetBeeper(hardware.NewBuzzer(r.io.Output(hardware.OutputBuzzer), beepPulse, r.logger.WithTag("hw")))
	}

	r.heartbeat = heartbeat.New(r.io.Output(hardware.OutputStatusLED), sensor.IsReady,
		r.cfg.Heartbeat.Ready.D(), r.cfg.Heartbeat.NotReady.D(), r.logger.WithTag("heartbeat"))
	return nil
}

// injectButton feeds remote presses into the same event slots as the key.
func (r *robot) injectButton(kind string) error {
	r.logger.Infof("Remote %s press", kind)
	if kind == "long" {
		r.events.Long.Give(time.Now())
	} else {
		r.events.Short.Give(time.Now())
	}
	return nil
}

// run starts the tasks and blocks until ctx is done or the sensor link is
// lost, which is fatal.
func (r *robot) run(ctx context.Context) error {
	if err := r.redis.StartListening(); err != nil {
		return fault.Wrap("start redis listeners", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.controller.Start(ctx); err != nil {
		return fault.Wrap("start controller", err)
	}

	tasks := map[string]func(context.Context) error{
		"heartbeat":  r.heartbeat.Run,
		"button":     r.scanner.Run,
		"controller": r.controller.Run,
		"odometry":   r.publishOdometry,
	}
	var wg sync.WaitGroup
	for name, task := range tasks {
		name, task := name, task
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := task(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Errorf("Task %s stopped: %v", name, err)
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		r.logger.Infof("Shutting down...")
	case <-r.redis.Lost():
		err = fault.Wrap("sensor link", messaging.ErrConnectionLost)
	}
	cancel()
	wg.Wait()
	if err == nil {
		r.motors.Halt()
	}
	return err
}

func (r *robot) publishOdometry(ctx context.Context) error {
	w := periodic.NewWaker(time.Now())
	for {
		var left, right int64
		if r.encoders.Left != nil {
			left = r.encoders.Left.Count()
		}
		if r.encoders.Right != nil {
			right = r.encoders.Right.Count()
		}
		if err := r.redis.PublishOdometry(left, right); err != nil {
			r.logger.Debugf("Failed to publish odometry: %v", err)
		}
		if err := w.Wait(ctx, odometryPeriod); err != nil {
			return err
		}
	}
}

// failStop stops the motors, reports the fault and blinks the status LED
// until the process is signalled.
func (r *robot) failStop(ctx context.Context, err error) {
	r.logger.Errorf("Fatal error, halting: %v", err)
	if r.motors != nil {
		r.motors.Halt()
	}
	if rerr := r.redis.ReportFault(err.Error()); rerr != nil {
		r.logger.Warnf("Failed to report fault: %v", rerr)
	}
	if r.io.Has(hardware.OutputStatusLED) {
		heartbeat.BlinkUntil(ctx, r.io.Output(hardware.OutputStatusLED), faultBlinkPeriod)
	} else {
		<-ctx.Done()
	}
}

func (r *robot) close() {
	if err := r.redis.Close(); err != nil {
		r.logger.Warnf("Failed to close redis: %v", err)
	}
	if r.key != nil {
		r.key.Close()
	}
	if r.encoders != nil {
		for _, e := range []*hardware.Encoder{r.encoders.Left, r.encoders.Right} {
			if e != nil {
				e.Close()
			}
		}
	}
	for _, p := range r.pwms {
		p.Close()
	}
	r.io.Cleanup()
}
