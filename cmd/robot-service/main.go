package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/librescoot/librefsm"
	"github.com/urfave/cli"

	"robot-service/internal/config"
	"robot-service/internal/fault"
	"robot-service/internal/logger"
)

func main() {
	app := cli.NewApp()
	app.Name = "robot-service"
	app.Usage = "behavior controller for the two-wheeled robot"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "JSON configuration file",
		},
		cli.StringFlag{
			Name:  "log",
			Usage: "log level (none, error, warn, info, debug)",
		},
		cli.StringFlag{
			Name:  "redis-host",
			Usage: "Redis host",
		},
		cli.IntFlag{
			Name:  "redis-port",
			Usage: "Redis port",
		},
		cli.StringFlag{
			Name:  "program",
			Usage: "behavior program (primitive-fight, spiral-fight, line-following)",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Printf("robot-service: %v", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if c.IsSet("log") {
		cfg.LogLevel = c.String("log")
	}
	if c.IsSet("redis-host") {
		cfg.Redis.Host = c.String("redis-host")
	}
	if c.IsSet("redis-port") {
		cfg.Redis.Port = c.Int("redis-port")
	}
	if c.IsSet("program") {
		cfg.Program = c.String("program")
	}
	return cfg, cfg.Validate()
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	// Create standard logger with appropriate format
	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(os.Stdout, "", 0)
	} else {
		// Running interactively, use timestamps
		stdLogger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}
	l := logger.NewLogger(stdLogger, level)
	librefsm.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel(l.Level())}))

	l.Infof("Starting robot service (program %s)...", cfg.Program)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := newRobot(cfg, l)
	defer r.close()

	err = r.setup(ctx)
	if err == nil {
		l.Infof("System started successfully")
		err = r.run(ctx)
	}
	if fault.IsFatal(err) {
		r.failStop(ctx, err)
		return err
	}
	if err != nil {
		return err
	}
	l.Infof("Shutdown complete")
	return nil
}

func slogLevel(l logger.LogLevel) slog.Level {
	switch l {
	case logger.LogLevelDebug:
		return slog.LevelDebug
	case logger.LogLevelInfo:
		return slog.LevelInfo
	case logger.LogLevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
