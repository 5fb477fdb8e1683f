//go:build !cuda
// +build !cuda

package gpu

import "go.uber.org/zap"

// CUDABackend is a stub type when CUDA is not compiled in. It reports itself
// unavailable and fails every operation with ErrBackendUnavailable.
type CUDABackend struct {
	logger *zap.Logger
}

// NewCUDABackend returns the stub backend.
func NewCUDABackend(logger *zap.Logger) *CUDABackend {
	return &CUDABackend{logger: logger}
}

func (c *CUDABackend) IsAvailable() bool {
	return false
}

func (c *CUDABackend) Initialize() error {
	return ErrBackendUnavailable
}

func (c *CUDABackend) SelectDevices(ids []int) error {
	return ErrBackendUnavailable
}

func (c *CUDABackend) Dgemm(alpha float64, a, b *Matrix, beta float64, cm *Matrix) error {
	return ErrBackendUnavailable
}

func (c *CUDABackend) Synchronize() error {
	return ErrBackendUnavailable
}

func (c *CUDABackend) GetDeviceInfo() DeviceInfo {
	return DeviceInfo{Name: "CUDA not available"}
}

func (c *CUDABackend) Cleanup() error {
	return nil
}
