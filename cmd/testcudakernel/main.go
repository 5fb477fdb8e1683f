package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxnlabs/testcudakernel/internal/config"
	"github.com/fxnlabs/testcudakernel/internal/gpu"
	"github.com/fxnlabs/testcudakernel/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	var cfg *config.Config
	var log *zap.Logger

	app := newCLI(&cfg, &log)
	if err := app.Run(os.Args); err != nil {
		if log != nil {
			log.Error("failed to run app", zap.Error(err))
			_ = log.Sync()
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newCLI(cfg **config.Config, log **zap.Logger) *cli.App {
	return &cli.App{
		Name:  "testcudakernel",
		Usage: "Repeatedly multiply two matrices with cuBLASXt until killed",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"TESTCUDAKERNEL_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "verbosity",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"TESTCUDAKERNEL_VERBOSITY"},
			},
			&cli.StringFlag{
				Name:    "backend",
				Usage:   "Compute backend: auto, cuda or cpu",
				EnvVars: []string{"TESTCUDAKERNEL_BACKEND"},
			},
			&cli.IntSliceFlag{
				Name:    "device",
				Usage:   "Device ordinal to select, repeatable",
				EnvVars: []string{"TESTCUDAKERNEL_DEVICES"},
			},
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "Sleep between multiplications",
				EnvVars: []string{"TESTCUDAKERNEL_INTERVAL"},
			},
			&cli.Uint64Flag{
				Name:    "iterations",
				Usage:   "Stop after `N` multiplications (0 runs until signalled)",
				EnvVars: []string{"TESTCUDAKERNEL_ITERATIONS"},
			},
			&cli.StringFlag{
				Name:    "metrics-address",
				Usage:   "Serve prometheus metrics on `ADDR` (disabled when empty)",
				EnvVars: []string{"TESTCUDAKERNEL_METRICS_ADDRESS"},
			},
		},
		Before: func(c *cli.Context) error {
			loaded, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return err
			}
			if err := applyFlags(c, loaded); err != nil {
				return err
			}
			zapLogger, err := logger.New(loaded.Logger.Verbosity, loaded.Logger.Encoding)
			if err != nil {
				return err
			}
			*cfg = loaded
			*log = zapLogger.Named("testcudakernel")
			return nil
		},
		Action: func(c *cli.Context) error {
			return exitOnDeviceSelection(run(*cfg, *log))
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the multiply loop (default)",
				Action: func(c *cli.Context) error {
					return exitOnDeviceSelection(run(*cfg, *log))
				},
			},
			{
				Name:  "info",
				Usage: "Print the selected backend and device",
				Action: func(c *cli.Context) error {
					return exitOnDeviceSelection(printInfo(c.App.Writer, *cfg, *log))
				},
			},
			{
				Name:  "print",
				Usage: "Run a single multiplication and print the result matrix",
				Action: func(c *cli.Context) error {
					return exitOnDeviceSelection(printResult(c.App.Writer, *cfg, *log))
				},
			},
		},
	}
}

// applyFlags overrides file settings with flags the user actually set.
func applyFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet("verbosity") {
		cfg.Logger.Verbosity = c.String("verbosity")
	}
	if c.IsSet("backend") {
		cfg.Backend.Kind = c.String("backend")
	}
	if c.IsSet("device") {
		cfg.Backend.Devices = c.IntSlice("device")
	}
	if c.IsSet("interval") {
		cfg.Workload.Interval = c.Duration("interval")
	}
	if c.IsSet("iterations") {
		cfg.Workload.MaxIterations = c.Uint64("iterations")
	}
	if c.IsSet("metrics-address") {
		cfg.Metrics.ListenAddress = c.String("metrics-address")
	}
	return cfg.Validate()
}

// exitOnDeviceSelection maps a device selection failure to exit code 1.
func exitOnDeviceSelection(err error) error {
	if errors.Is(err, gpu.ErrDeviceSelection) {
		return cli.Exit(err.Error(), 1)
	}
	return err
}
