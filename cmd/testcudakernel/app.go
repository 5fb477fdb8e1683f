package main

import (
	"context"
	"errors"

	"github.com/fxnlabs/testcudakernel/internal/config"
	"github.com/fxnlabs/testcudakernel/internal/gpu"
	"github.com/fxnlabs/testcudakernel/internal/metrics"
	"github.com/fxnlabs/testcudakernel/internal/workload"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// appOptions wires the backend, the kernel loop and the metrics endpoint.
func appOptions(cfg *config.Config, log *zap.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, log),
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log.Named("fx")}
			l.UseLogLevel(zap.DebugLevel)
			return l
		}),
		fx.Provide(
			newManager,
			newRunner,
			newMetricsServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func newManager(cfg *config.Config, log *zap.Logger) (*gpu.Manager, error) {
	manager, err := gpu.NewManager(gpu.BackendConfig{
		Kind:    cfg.Backend.Kind,
		Devices: cfg.Backend.Devices,
	}, log)
	if err != nil {
		return nil, err
	}

	info := manager.GetDeviceInfo()
	if info.TotalMemory == 0 {
		// The CPU backend has no device memory; report the GPU NVML sees.
		if probed, err := gpu.ProbeDevice(cfg.Backend.Devices[0]); err == nil {
			info = probed
		} else {
			log.Debug("NVML probe failed", zap.Error(err))
		}
	}
	metrics.DeviceMemoryTotalBytes.Set(float64(info.TotalMemory))
	metrics.DeviceMemoryAvailableBytes.Set(float64(info.AvailableMemory))
	return manager, nil
}

func newRunner(cfg *config.Config, manager *gpu.Manager, log *zap.Logger) (*workload.Runner, error) {
	return workload.NewRunner(cfg.Workload, manager, log)
}

func newMetricsServer(cfg *config.Config, log *zap.Logger) *metrics.Server {
	return metrics.NewServer(cfg.Metrics.ListenAddress, log)
}

// registerLifecycle starts the loop after the metrics server and, on stop,
// drains the loop before the backend handle is destroyed. When the loop
// exhausts its iteration budget the whole app shuts down.
func registerLifecycle(lc fx.Lifecycle, sd fx.Shutdowner, manager *gpu.Manager, server *metrics.Server, runner *workload.Runner, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return manager.Cleanup()
		},
	})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return server.Start()
		},
		OnStop: server.Stop,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				_ = runner.Run(ctx)
				if ctx.Err() == nil {
					if err := sd.Shutdown(); err != nil {
						log.Warn("failed to request shutdown", zap.Error(err))
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return errors.New("kernel loop did not stop in time")
			}
		},
	})
}

// run blocks until a termination signal arrives or the loop finishes, then
// stops the app so the backend is synchronized and released.
func run(cfg *config.Config, log *zap.Logger) error {
	app := fx.New(appOptions(cfg, log))
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	sig := <-app.Wait()
	if sig.Signal != nil {
		log.Info("Received signal, stopping", zap.String("signal", sig.Signal.String()))
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	return app.Stop(stopCtx)
}
