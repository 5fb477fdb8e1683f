package gpu

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// CPUBackend implements Backend on the host with gonum's BLAS. It exposes a
// single pseudo-device with ordinal 0.
type CPUBackend struct {
	logger      *zap.Logger
	initialized bool
	selected    bool
}

// NewCPUBackend creates a new CPU backend instance
func NewCPUBackend(logger *zap.Logger) *CPUBackend {
	return &CPUBackend{
		logger: logger.Named("cpu"),
	}
}

// Initialize prepares the CPU backend for use
func (c *CPUBackend) Initialize() error {
	if c.initialized {
		return nil
	}
	c.initialized = true
	c.logger.Info("CPU backend initialized", zap.Int("num_cpu", runtime.NumCPU()))
	return nil
}

// SelectDevices accepts only the pseudo-device 0.
func (c *CPUBackend) SelectDevices(ids []int) error {
	if !c.initialized {
		return ErrNotInitialized
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: no devices requested", ErrDeviceSelection)
	}
	for _, id := range ids {
		if id != 0 {
			return fmt.Errorf("%w: cpu backend has no device %d", ErrDeviceSelection, id)
		}
	}
	c.selected = true
	return nil
}

// Cleanup releases any resources (none for CPU backend)
func (c *CPUBackend) Cleanup() error {
	c.initialized = false
	c.selected = false
	return nil
}

// Synchronize is a no-op; gonum calls complete before returning.
func (c *CPUBackend) Synchronize() error {
	return nil
}

// IsAvailable checks if the backend is available (always true for CPU)
func (c *CPUBackend) IsAvailable() bool {
	return true
}

// GetDeviceInfo returns device information for CPU
func (c *CPUBackend) GetDeviceInfo() DeviceInfo {
	return DeviceInfo{
		Index:             0,
		Name:              fmt.Sprintf("CPU (%s, %d cores)", runtime.GOARCH, runtime.NumCPU()),
		ComputeCapability: "N/A",
		DriverVersion:     runtime.Version(),
	}
}

// Dgemm computes C = alpha·A·B + beta·C with blas64.Gemm.
func (c *CPUBackend) Dgemm(alpha float64, a, b *Matrix, beta float64, cm *Matrix) error {
	if !c.initialized {
		return ErrNotInitialized
	}
	if !c.selected {
		return fmt.Errorf("%w: no device selected", ErrDeviceSelection)
	}
	if err := checkGemmShapes(a, b, cm); err != nil {
		return err
	}

	blas64.Gemm(blas.NoTrans, blas.NoTrans, alpha, general(a), general(b), beta, general(cm))
	return nil
}

func general(x *Matrix) blas64.General {
	return blas64.General{Rows: x.Rows, Cols: x.Cols, Stride: x.Cols, Data: x.Data}
}
