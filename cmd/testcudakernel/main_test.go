package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fxnlabs/testcudakernel/internal/config"
	"github.com/fxnlabs/testcudakernel/internal/gpu"
	"github.com/fxnlabs/testcudakernel/internal/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func cpuConfig() *config.Config {
	cfg := config.Default()
	cfg.Backend.Kind = gpu.KindCPU
	cfg.Workload.Interval = time.Millisecond
	return cfg
}

func TestApp_StopsAfterIterationBudget(t *testing.T) {
	cfg := cpuConfig()
	cfg.Workload.MaxIterations = 3

	var runner *workload.Runner
	var manager *gpu.Manager
	app := fxtest.New(t,
		appOptions(cfg, zap.NewNop()),
		fx.Populate(&runner, &manager),
	)
	app.RequireStart()

	select {
	case <-app.Wait():
	case <-time.After(5 * time.Second):
		t.Fatal("app did not shut down after the iteration budget")
	}
	app.RequireStop()

	assert.Equal(t, uint64(3), runner.Iterations())
	for _, v := range runner.Result().Data {
		assert.InDelta(t, 1.2, v, 1e-12)
	}
	// Stopping the app releases the backend.
	assert.Equal(t, "none", manager.GetBackendType())
}

func TestApp_StopInterruptsLoop(t *testing.T) {
	cfg := cpuConfig()
	cfg.Workload.Interval = time.Hour

	var runner *workload.Runner
	app := fxtest.New(t, appOptions(cfg, zap.NewNop()), fx.Populate(&runner))
	app.RequireStart()
	require.Eventually(t, func() bool { return runner.Iterations() >= 1 }, time.Second, time.Millisecond)
	app.RequireStop()

	assert.Equal(t, uint64(1), runner.Iterations())
}

func TestApp_DeviceSelectionFailure(t *testing.T) {
	cfg := cpuConfig()
	cfg.Backend.Devices = []int{5}

	app := fx.New(appOptions(cfg, zap.NewNop()))
	err := app.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, gpu.ErrDeviceSelection)

	var exitErr cli.ExitCoder
	require.True(t, errors.As(exitOnDeviceSelection(err), &exitErr))
	assert.Equal(t, 1, exitErr.ExitCode())
}

func TestExitOnDeviceSelection(t *testing.T) {
	assert.NoError(t, exitOnDeviceSelection(nil))

	other := errors.New("boom")
	assert.Equal(t, other, exitOnDeviceSelection(other))
}

// runCLI executes the command line with output captured and exits trapped.
func runCLI(t *testing.T, args ...string) (string, int, error) {
	t.Helper()

	exitCode := 0
	origExiter, origErrWriter := cli.OsExiter, cli.ErrWriter
	cli.OsExiter = func(code int) { exitCode = code }
	cli.ErrWriter = &bytes.Buffer{}
	t.Cleanup(func() {
		cli.OsExiter, cli.ErrWriter = origExiter, origErrWriter
	})

	var cfg *config.Config
	var log *zap.Logger
	app := newCLI(&cfg, &log)
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &bytes.Buffer{}

	err := app.Run(append([]string{"testcudakernel"}, args...))
	return out.String(), exitCode, err
}

func TestCLI_Print(t *testing.T) {
	out, code, err := runCLI(t, "--backend", "cpu", "--verbosity", "error", "print")
	require.NoError(t, err)
	assert.Zero(t, code)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 10)
	for _, line := range lines {
		assert.Equal(t, strings.Repeat("1.200000 ", 10), line)
	}
}

func TestCLI_Info(t *testing.T) {
	out, code, err := runCLI(t, "--backend", "cpu", "--verbosity", "error", "info")
	require.NoError(t, err)
	assert.Zero(t, code)
	assert.Contains(t, out, "Backend: cpu")
	assert.Contains(t, out, "Device Name: CPU")
	assert.Contains(t, out, "Devices: [0]")
	assert.Contains(t, out, "NVML Device 0: ")
}

func TestCLI_RunWithBudget(t *testing.T) {
	_, code, err := runCLI(t, "--backend", "cpu", "--verbosity", "error", "--iterations", "2", "--interval", "1ms", "run")
	require.NoError(t, err)
	assert.Zero(t, code)
}

func TestCLI_DeviceSelectionExitCode(t *testing.T) {
	_, code, err := runCLI(t, "--backend", "cpu", "--verbosity", "error", "--device", "3", "--iterations", "1")
	require.Error(t, err)
	assert.Equal(t, 1, code)
}

func TestCLI_InvalidFlags(t *testing.T) {
	_, _, err := runCLI(t, "--backend", "rocm", "info")
	assert.Error(t, err)

	_, _, err = runCLI(t, "--config", "does-not-exist.yaml", "info")
	assert.Error(t, err)
}

func TestCLI_DefaultBackend(t *testing.T) {
	_, code, err := runCLI(t, "--verbosity", "error", "--iterations", "1", "--interval", "1ms")

	// A cuda build requires its device; a host-only build runs on the CPU.
	if gpu.DefaultKind == gpu.KindCUDA && !gpu.NewCUDABackend(zap.NewNop()).IsAvailable() {
		require.Error(t, err)
		assert.ErrorIs(t, err, gpu.ErrDeviceSelection)
		assert.Equal(t, 1, code)
		return
	}
	require.NoError(t, err)
	assert.Zero(t, code)
}
