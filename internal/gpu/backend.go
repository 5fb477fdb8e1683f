package gpu

import "errors"

var (
	// ErrDeviceSelection is returned when the requested devices cannot be
	// bound to the math library handle.
	ErrDeviceSelection = errors.New("device selection failed")
	// ErrDimensionMismatch is returned when Dgemm operands do not line up.
	ErrDimensionMismatch = errors.New("matrix dimension mismatch")
	// ErrBackendUnavailable is returned when a requested backend was not
	// compiled in or has no usable device.
	ErrBackendUnavailable = errors.New("backend not available")
	// ErrNotInitialized is returned by operations issued before Initialize.
	ErrNotInitialized = errors.New("backend not initialized")
)

// DeviceInfo contains information about the GPU device
type DeviceInfo struct {
	Index             int    `json:"index"`
	Name              string `json:"name"`
	UUID              string `json:"uuid,omitempty"`
	TotalMemory       int64  `json:"totalMemory"`     // in bytes
	AvailableMemory   int64  `json:"availableMemory"` // in bytes
	ComputeCapability string `json:"computeCapability"`
	DriverVersion     string `json:"driverVersion"`
	CUDAVersion       string `json:"cudaVersion,omitempty"`
}

// Backend is a dense linear algebra engine bound to one or more devices.
//
// The lifecycle is Initialize, SelectDevices, any number of Dgemm calls, then
// Cleanup. Implementations are not required to be safe for concurrent use;
// the Manager serializes access.
type Backend interface {
	// IsAvailable performs a quick check without heavy initialization.
	IsAvailable() bool

	// Initialize creates the library handle. Calling it twice is a no-op.
	Initialize() error

	// SelectDevices binds the handle to the given device ordinals. Failures
	// wrap ErrDeviceSelection.
	SelectDevices(ids []int) error

	// Dgemm computes C = alpha·A·B + beta·C in double precision. All three
	// matrices are row-major; A is m×k, B is k×n and C is m×n.
	Dgemm(alpha float64, a, b *Matrix, beta float64, c *Matrix) error

	// Synchronize blocks until all work queued on the devices has finished.
	Synchronize() error

	// GetDeviceInfo describes the first selected device.
	GetDeviceInfo() DeviceInfo

	// Cleanup synchronizes and releases the handle. It is safe to call on an
	// uninitialized backend.
	Cleanup() error
}
