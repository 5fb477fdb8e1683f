//go:build cuda
// +build cuda

package gpu

/*
#cgo CFLAGS: -I/usr/local/cuda/include
#cgo LDFLAGS: -L/usr/local/cuda/lib64 -lcublas -lcudart
#include <cublasXt.h>
#include <cuda_runtime.h>
*/
import "C"
import (
	"fmt"
	"unsafe"

	"go.uber.org/zap"
)

// CUDABackend implements Backend with NVIDIA cuBLASXt.
type CUDABackend struct {
	logger      *zap.Logger
	handle      C.cublasXtHandle_t
	initialized bool
	devices     []int
	deviceInfo  DeviceInfo
}

// NewCUDABackend creates a new CUDA backend instance
func NewCUDABackend(logger *zap.Logger) *CUDABackend {
	return &CUDABackend{
		logger: logger.Named("cublasxt"),
	}
}

// IsAvailable reports whether the CUDA runtime sees at least one device.
func (c *CUDABackend) IsAvailable() bool {
	var count C.int
	if err := C.cudaGetDeviceCount(&count); err != C.cudaSuccess {
		c.logger.Warn("CUDA device not available", zap.String("error", cudaErrorString(err)))
		return false
	}
	return count > 0
}

// Initialize creates the cuBLASXt handle
func (c *CUDABackend) Initialize() error {
	if c.initialized {
		return nil
	}

	c.logger.Debug("Creating cuBLASXt handle")
	if status := C.cublasXtCreate(&c.handle); status != C.CUBLAS_STATUS_SUCCESS {
		return fmt.Errorf("cublasXtCreate: %s", cublasStatusString(status))
	}

	c.initialized = true
	return nil
}

// SelectDevices binds the handle to the given device ordinals.
func (c *CUDABackend) SelectDevices(ids []int) error {
	if !c.initialized {
		return ErrNotInitialized
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: no devices requested", ErrDeviceSelection)
	}

	cids := make([]C.int, len(ids))
	for i, id := range ids {
		cids[i] = C.int(id)
	}
	status := C.cublasXtDeviceSelect(c.handle, C.int(len(cids)), &cids[0])
	if status != C.CUBLAS_STATUS_SUCCESS {
		return fmt.Errorf("%w: cublasXtDeviceSelect(%v): %s", ErrDeviceSelection, ids, cublasStatusString(status))
	}

	c.devices = append([]int(nil), ids...)
	c.deviceInfo = c.describe(ids[0])
	c.logger.Info("CUDA backend initialized",
		zap.Ints("devices", ids),
		zap.String("device", c.deviceInfo.Name),
		zap.String("compute_capability", c.deviceInfo.ComputeCapability),
		zap.Float64("total_memory_gb", float64(c.deviceInfo.TotalMemory)/(1<<30)))
	return nil
}

// Dgemm computes C = alpha·A·B + beta·C on the selected devices.
//
// cuBLAS is column-major, so a row-major X is seen as Xᵀ. Computing
// Cᵀ = Bᵀ·Aᵀ leaves the row-major product in C without copying.
func (c *CUDABackend) Dgemm(alpha float64, a, b *Matrix, beta float64, cm *Matrix) error {
	if !c.initialized {
		return ErrNotInitialized
	}
	if len(c.devices) == 0 {
		return fmt.Errorf("%w: no device selected", ErrDeviceSelection)
	}
	if err := checkGemmShapes(a, b, cm); err != nil {
		return err
	}

	m, k, n := a.Rows, a.Cols, b.Cols
	calpha, cbeta := C.double(alpha), C.double(beta)
	status := C.cublasXtDgemm(c.handle, C.CUBLAS_OP_N, C.CUBLAS_OP_N,
		C.size_t(n), C.size_t(m), C.size_t(k),
		&calpha,
		(*C.double)(unsafe.Pointer(&b.Data[0])), C.size_t(n),
		(*C.double)(unsafe.Pointer(&a.Data[0])), C.size_t(k),
		&cbeta,
		(*C.double)(unsafe.Pointer(&cm.Data[0])), C.size_t(n))
	if status != C.CUBLAS_STATUS_SUCCESS {
		return fmt.Errorf("cublasXtDgemm: %s", cublasStatusString(status))
	}
	return nil
}

// Synchronize waits for the current device to drain.
func (c *CUDABackend) Synchronize() error {
	if err := C.cudaDeviceSynchronize(); err != C.cudaSuccess {
		return fmt.Errorf("cudaDeviceSynchronize: %s", cudaErrorString(err))
	}
	return nil
}

// GetDeviceInfo returns information about the first selected device
func (c *CUDABackend) GetDeviceInfo() DeviceInfo {
	return c.deviceInfo
}

// Cleanup synchronizes and destroys the handle
func (c *CUDABackend) Cleanup() error {
	if !c.initialized {
		return nil
	}

	c.logger.Debug("Cleaning up CUDA backend")
	syncErr := c.Synchronize()
	if status := C.cublasXtDestroy(c.handle); status != C.CUBLAS_STATUS_SUCCESS {
		return fmt.Errorf("cublasXtDestroy: %s", cublasStatusString(status))
	}

	c.initialized = false
	c.devices = nil
	return syncErr
}

// describe prefers NVML and falls back to the CUDA runtime properties.
func (c *CUDABackend) describe(index int) DeviceInfo {
	info, err := ProbeDevice(index)
	if err == nil {
		return info
	}
	c.logger.Debug("NVML probe failed, using CUDA runtime properties", zap.Error(err))

	var prop C.struct_cudaDeviceProp
	if rerr := C.cudaGetDeviceProperties(&prop, C.int(index)); rerr != C.cudaSuccess {
		return DeviceInfo{Index: index, Name: fmt.Sprintf("CUDA device %d", index)}
	}
	var runtimeVersion C.int
	C.cudaRuntimeGetVersion(&runtimeVersion)
	return DeviceInfo{
		Index:             index,
		Name:              C.GoString(&prop.name[0]),
		TotalMemory:       int64(prop.totalGlobalMem),
		ComputeCapability: fmt.Sprintf("%d.%d", int(prop.major), int(prop.minor)),
		DriverVersion:     "Unknown",
		CUDAVersion:       formatCUDAVersion(int(runtimeVersion)),
	}
}

// cublasStatusString converts a cuBLAS status code to string
func cublasStatusString(status C.cublasStatus_t) string {
	switch status {
	case C.CUBLAS_STATUS_SUCCESS:
		return "Success"
	case C.CUBLAS_STATUS_NOT_INITIALIZED:
		return "Not initialized"
	case C.CUBLAS_STATUS_ALLOC_FAILED:
		return "Allocation failed"
	case C.CUBLAS_STATUS_INVALID_VALUE:
		return "Invalid value"
	case C.CUBLAS_STATUS_ARCH_MISMATCH:
		return "Architecture mismatch"
	case C.CUBLAS_STATUS_MAPPING_ERROR:
		return "Mapping error"
	case C.CUBLAS_STATUS_EXECUTION_FAILED:
		return "Execution failed"
	case C.CUBLAS_STATUS_INTERNAL_ERROR:
		return "Internal error"
	case C.CUBLAS_STATUS_NOT_SUPPORTED:
		return "Not supported"
	default:
		return fmt.Sprintf("Unknown status (%d)", int(status))
	}
}

// cudaErrorString converts CUDA error code to string
func cudaErrorString(err C.cudaError_t) string {
	return C.GoString(C.cudaGetErrorString(err))
}
