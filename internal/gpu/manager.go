package gpu

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Backend kinds understood by NewManager.
const (
	KindAuto = "auto"
	KindCUDA = "cuda"
	KindCPU  = "cpu"
)

// ValidKind reports whether kind names a known backend.
func ValidKind(kind string) bool {
	switch kind {
	case KindAuto, KindCUDA, KindCPU:
		return true
	}
	return false
}

// BackendConfig selects the backend and the devices bound to it.
type BackendConfig struct {
	Kind    string
	Devices []int
}

// Manager handles backend selection and lifecycle, and serializes access to
// the selected backend.
type Manager struct {
	backend Backend
	kind    string
	mu      sync.RWMutex
	logger  *zap.Logger

	// newCUDA and cudaCompiled are swapped out in tests.
	newCUDA      func(*zap.Logger) Backend
	cudaCompiled bool
}

// NewManager initializes the configured backend and selects its devices.
// An empty kind means DefaultKind. A failure to bind the devices, including
// a cuda build that enumerates no device, is returned wrapped in
// ErrDeviceSelection.
func NewManager(cfg BackendConfig, logger *zap.Logger) (*Manager, error) {
	m := newManager(logger, func(l *zap.Logger) Backend { return NewCUDABackend(l) }, CUDACompiled)
	if err := m.detectAndInitialize(cfg); err != nil {
		return nil, err
	}
	return m, nil
}

func newManager(logger *zap.Logger, newCUDA func(*zap.Logger) Backend, cudaCompiled bool) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:       logger.Named("gpu"),
		newCUDA:      newCUDA,
		cudaCompiled: cudaCompiled,
	}
}

// detectAndInitialize picks the backend for cfg.Kind and binds cfg.Devices.
// Only auto may fall back to the CPU; cuda fails when no device can be used.
func (m *Manager) detectAndInitialize(cfg BackendConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kind := cfg.Kind
	if kind == "" {
		kind = DefaultKind
	}

	var backend Backend
	switch kind {
	case KindAuto, KindCUDA:
		strict := kind == KindCUDA
		if strict && !m.cudaCompiled {
			return fmt.Errorf("cuda: %w", ErrBackendUnavailable)
		}
		cudaBackend := m.newCUDA(m.logger)
		if cudaBackend.IsAvailable() {
			if err := cudaBackend.Initialize(); err == nil {
				backend, kind = cudaBackend, KindCUDA
				break
			} else if strict {
				return fmt.Errorf("failed to initialize CUDA backend: %w", err)
			} else {
				m.logger.Warn("CUDA backend failed to initialize, falling back to CPU", zap.Error(err))
			}
		} else if strict {
			return fmt.Errorf("%w: no CUDA device enumerated for %v", ErrDeviceSelection, cfg.Devices)
		} else if m.cudaCompiled {
			m.logger.Warn("No CUDA device available, falling back to CPU")
		}
		fallthrough
	case KindCPU:
		cpuBackend := NewCPUBackend(m.logger)
		if err := cpuBackend.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize CPU backend: %w", err)
		}
		backend, kind = cpuBackend, KindCPU
	default:
		return fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}

	if err := backend.SelectDevices(cfg.Devices); err != nil {
		_ = backend.Cleanup()
		if !errors.Is(err, ErrDeviceSelection) {
			err = fmt.Errorf("%w: %w", ErrDeviceSelection, err)
		}
		return err
	}

	m.backend = backend
	m.kind = kind
	m.logger.Info("Backend ready",
		zap.String("backend", kind),
		zap.Ints("devices", cfg.Devices),
		zap.String("device", backend.GetDeviceInfo().Name))
	return nil
}

// GetBackend returns the current backend
func (m *Manager) GetBackend() Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backend
}

// Dgemm runs C = alpha·A·B + beta·C on the selected backend.
func (m *Manager) Dgemm(alpha float64, a, b *Matrix, beta float64, c *Matrix) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backend == nil {
		return fmt.Errorf("no backend available")
	}
	return m.backend.Dgemm(alpha, a, b, beta, c)
}

// GetDeviceInfo returns device information from the current backend
func (m *Manager) GetDeviceInfo() DeviceInfo {
	backend := m.GetBackend()
	if backend == nil {
		return DeviceInfo{Name: "No backend available"}
	}
	return backend.GetDeviceInfo()
}

// IsGPUAvailable returns true if a GPU backend is active
func (m *Manager) IsGPUAvailable() bool {
	return m.GetBackendType() == KindCUDA
}

// GetBackendType returns "cuda", "cpu" or "none".
func (m *Manager) GetBackendType() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.backend == nil {
		return "none"
	}
	return m.kind
}

// Cleanup synchronizes and releases the current backend. Further calls are
// no-ops.
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend != nil {
		if err := m.backend.Cleanup(); err != nil {
			return err
		}
		m.logger.Debug("Backend released", zap.String("backend", m.kind))
		m.backend = nil
	}
	return nil
}
