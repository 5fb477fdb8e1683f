package workload

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fxnlabs/testcudakernel/internal/config"
	"github.com/fxnlabs/testcudakernel/internal/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEngine counts calls and fails the ones listed in failOn.
type fakeEngine struct {
	calls  atomic.Int64
	failOn map[int64]bool
	shapes [3][2]int
}

func (f *fakeEngine) Dgemm(alpha float64, a, b *gpu.Matrix, beta float64, c *gpu.Matrix) error {
	n := f.calls.Add(1)
	f.shapes = [3][2]int{{a.Rows, a.Cols}, {b.Rows, b.Cols}, {c.Rows, c.Cols}}
	if f.failOn[n] {
		return errors.New("device lost")
	}
	return nil
}

func (f *fakeEngine) GetBackendType() string {
	return "fake"
}

func testConfig() config.WorkloadConfig {
	cfg := config.Default().Workload
	cfg.Interval = 0
	return cfg
}

func newCPUManager(t *testing.T) *gpu.Manager {
	t.Helper()
	manager, err := gpu.NewManager(gpu.BackendConfig{Kind: gpu.KindCPU, Devices: []int{0}}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Cleanup() })
	return manager
}

func TestNewRunner(t *testing.T) {
	t.Run("default shapes", func(t *testing.T) {
		engine := &fakeEngine{}
		cfg := testConfig()
		cfg.MaxIterations = 1
		r, err := NewRunner(cfg, engine, nil)
		require.NoError(t, err)
		require.NoError(t, r.Run(context.Background()))
		assert.Equal(t, [3][2]int{{10, 20}, {20, 10}, {10, 10}}, engine.shapes)
	})

	t.Run("invalid dimensions", func(t *testing.T) {
		cfg := testConfig()
		cfg.K = 0
		_, err := NewRunner(cfg, &fakeEngine{}, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("nil engine", func(t *testing.T) {
		_, err := NewRunner(testConfig(), nil, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestRunner_MaxIterations(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 5
	r, err := NewRunner(cfg, newCPUManager(t), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, uint64(5), r.Iterations())
	assert.Zero(t, r.Failures())

	result := r.Result()
	assert.Equal(t, 10, result.Rows)
	assert.Equal(t, 10, result.Cols)
	for _, v := range result.Data {
		assert.InDelta(t, 1.2, v, 1e-12)
	}
}

func TestRunner_ResultBeforeRun(t *testing.T) {
	r, err := NewRunner(testConfig(), &fakeEngine{}, zap.NewNop())
	require.NoError(t, err)

	result := r.Result()
	assert.Len(t, result.Data, 100)
	for _, v := range result.Data {
		assert.Zero(t, v)
	}
}

func TestRunner_FailuresDoNotStopLoop(t *testing.T) {
	engine := &fakeEngine{failOn: map[int64]bool{2: true, 3: true}}
	cfg := testConfig()
	cfg.MaxIterations = 6
	r, err := NewRunner(cfg, engine, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, uint64(6), r.Iterations())
	assert.Equal(t, uint64(2), r.Failures())
	assert.Equal(t, int64(6), engine.calls.Load())
}

func TestRunner_StopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = time.Hour
	r, err := NewRunner(cfg, &fakeEngine{}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// The first call is issued immediately, then the loop sleeps.
	require.Eventually(t, func() bool { return r.Iterations() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
	assert.Equal(t, uint64(1), r.Iterations())
}

func TestRunner_CancelledBeforeStart(t *testing.T) {
	r, err := NewRunner(testConfig(), &fakeEngine{}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))
	assert.Zero(t, r.Iterations())
}

func TestRunner_Interval(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = 20 * time.Millisecond
	cfg.MaxIterations = 3
	r, err := NewRunner(cfg, &fakeEngine{}, zap.NewNop())
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, r.Run(context.Background()))
	// Two sleeps separate three calls; no sleep follows the last one.
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, uint64(3), r.Iterations())
}
