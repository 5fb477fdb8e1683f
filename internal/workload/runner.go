package workload

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxnlabs/testcudakernel/internal/config"
	"github.com/fxnlabs/testcudakernel/internal/gpu"
	"github.com/fxnlabs/testcudakernel/internal/metrics"
	"go.uber.org/zap"
)

// Engine is the part of gpu.Manager the loop depends on.
type Engine interface {
	Dgemm(alpha float64, a, b *gpu.Matrix, beta float64, c *gpu.Matrix) error
	GetBackendType() string
}

// Runner multiplies A by B into C once per interval.
type Runner struct {
	cfg    config.WorkloadConfig
	engine Engine
	log    *zap.Logger

	// mu guards the operands while a Dgemm is in flight.
	mu      sync.Mutex
	a, b, c *gpu.Matrix

	iterations atomic.Uint64
	failures   atomic.Uint64
}

// NewRunner allocates A (M×K), B (K×N) and C (M×N) filled with the
// configured constants.
func NewRunner(cfg config.WorkloadConfig, engine Engine, log *zap.Logger) (*Runner, error) {
	if cfg.M <= 0 || cfg.N <= 0 || cfg.K <= 0 {
		return nil, fmt.Errorf("matrix dimensions must be positive, got m=%d n=%d k=%d", cfg.M, cfg.N, cfg.K)
	}
	if engine == nil {
		return nil, fmt.Errorf("no engine")
	}
	if log == nil {
		log = zap.NewNop()
	}

	r := &Runner{
		cfg:    cfg,
		engine: engine,
		log:    log.Named("workload"),
		a:      gpu.FillMatrix(cfg.M, cfg.K, cfg.FillA),
		b:      gpu.FillMatrix(cfg.K, cfg.N, cfg.FillB),
		c:      gpu.FillMatrix(cfg.M, cfg.N, cfg.FillC),
	}
	metrics.KernelMatrixElements.WithLabelValues("A").Set(float64(len(r.a.Data)))
	metrics.KernelMatrixElements.WithLabelValues("B").Set(float64(len(r.b.Data)))
	metrics.KernelMatrixElements.WithLabelValues("C").Set(float64(len(r.c.Data)))
	return r, nil
}

// Run issues one Dgemm per iteration until ctx is done or MaxIterations
// calls have been made (zero means no limit). A failed call is logged and
// counted; it never stops the loop.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Starting kernel loop",
		zap.String("backend", r.engine.GetBackendType()),
		zap.Int("m", r.cfg.M), zap.Int("n", r.cfg.N), zap.Int("k", r.cfg.K),
		zap.Duration("interval", r.cfg.Interval),
		zap.Uint64("max_iterations", r.cfg.MaxIterations))

	for {
		if ctx.Err() != nil {
			break
		}
		r.step()
		if r.cfg.MaxIterations > 0 && r.iterations.Load() >= r.cfg.MaxIterations {
			break
		}
		if r.cfg.Interval <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(r.cfg.Interval):
		}
	}

	r.log.Info("Kernel loop stopped",
		zap.Uint64("iterations", r.iterations.Load()),
		zap.Uint64("failures", r.failures.Load()))
	return nil
}

func (r *Runner) step() {
	backend := r.engine.GetBackendType()

	r.mu.Lock()
	start := time.Now()
	err := r.engine.Dgemm(r.cfg.Alpha, r.a, r.b, r.cfg.Beta, r.c)
	elapsed := time.Since(start)
	r.mu.Unlock()

	n := r.iterations.Add(1)
	if err != nil {
		r.failures.Add(1)
		metrics.KernelIterations.WithLabelValues(backend, metrics.StatusError).Inc()
		r.log.Error("Dgemm failed", zap.Uint64("iteration", n), zap.Error(err))
		return
	}

	metrics.KernelIterations.WithLabelValues(backend, metrics.StatusOK).Inc()
	metrics.KernelDuration.Observe(float64(elapsed.Microseconds()) / 1000)
	flops := 2 * float64(r.cfg.M) * float64(r.cfg.N) * float64(r.cfg.K)
	if secs := elapsed.Seconds(); secs > 0 {
		metrics.KernelGFLOPS.Set(flops / secs / 1e9)
	}
	r.log.Debug("Dgemm completed",
		zap.Uint64("iteration", n),
		zap.Duration("elapsed", elapsed))
}

// Iterations returns the number of Dgemm calls issued so far.
func (r *Runner) Iterations() uint64 {
	return r.iterations.Load()
}

// Failures returns the number of Dgemm calls that returned an error.
func (r *Runner) Failures() uint64 {
	return r.failures.Load()
}

// Result returns a copy of C as of the last completed call.
func (r *Runner) Result() *gpu.Matrix {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &gpu.Matrix{
		Rows: r.c.Rows,
		Cols: r.c.Cols,
		Data: append([]float64(nil), r.c.Data...),
	}
}
