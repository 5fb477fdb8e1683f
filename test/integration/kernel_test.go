//go:build integration
// +build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fxnlabs/testcudakernel/internal/config"
	"github.com/fxnlabs/testcudakernel/internal/gpu"
	"github.com/fxnlabs/testcudakernel/internal/logger"
	"github.com/fxnlabs/testcudakernel/internal/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestKernelLoop_EndToEnd(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.Kind = gpu.KindAuto
	cfg.Workload.Interval = 10 * time.Millisecond
	cfg.Workload.MaxIterations = 20

	var runner *workload.Runner
	var manager *gpu.Manager
	app := fxtest.New(t,
		fx.Supply(cfg),
		fx.Provide(
			func(cfg *config.Config) (*zap.Logger, error) {
				return logger.New(cfg.Logger.Verbosity, "console")
			},
			func(cfg *config.Config, log *zap.Logger) (*gpu.Manager, error) {
				return gpu.NewManager(gpu.BackendConfig{Kind: cfg.Backend.Kind, Devices: cfg.Backend.Devices}, log)
			},
			func(cfg *config.Config, m *gpu.Manager, log *zap.Logger) (*workload.Runner, error) {
				return workload.NewRunner(cfg.Workload, m, log)
			},
		),
		fx.Populate(&runner, &manager),
	)
	app.RequireStart()
	defer app.RequireStop()
	defer manager.Cleanup()

	info := manager.GetDeviceInfo()
	fmt.Println("=== Device Information ===")
	fmt.Printf("Backend Type: %s\n", manager.GetBackendType())
	fmt.Printf("Device Name: %s\n", info.Name)
	fmt.Printf("Compute Capability: %s\n", info.ComputeCapability)
	fmt.Printf("Total Memory: %d MB\n", info.TotalMemory/(1024*1024))
	if info.CUDAVersion != "" {
		fmt.Printf("CUDA Version: %s\n", info.CUDAVersion)
		fmt.Printf("Driver Version: %s\n", info.DriverVersion)
	}

	require.NoError(t, runner.Run(context.Background()))
	assert.Equal(t, uint64(20), runner.Iterations())
	assert.Zero(t, runner.Failures())

	result := runner.Result()
	for _, v := range result.Data {
		assert.InDelta(t, 1.2, v, 1e-9)
	}

	fmt.Println("\n=== Result ===")
	require.NoError(t, result.Print(&testWriter{t}))
}

// testWriter forwards printed rows to the test log.
type testWriter struct{ t *testing.T }

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
