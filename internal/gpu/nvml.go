package gpu

import (
	"errors"
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// ErrNVMLUnavailable is returned when libnvidia-ml cannot be loaded.
var ErrNVMLUnavailable = errors.New("nvml not available")

// ProbeDevice reads identity and memory information for one device via NVML.
// The library is loaded at runtime, so this works without the cuda tag.
func ProbeDevice(index int) (DeviceInfo, error) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return DeviceInfo{}, fmt.Errorf("%w: init: %s", ErrNVMLUnavailable, nvml.ErrorString(ret))
	}
	defer nvml.Shutdown()

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return DeviceInfo{}, fmt.Errorf("nvml device count: %s", nvml.ErrorString(ret))
	}
	if index < 0 || index >= count {
		return DeviceInfo{}, fmt.Errorf("%w: device %d not present (%d enumerated)", ErrDeviceSelection, index, count)
	}

	device, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return DeviceInfo{}, fmt.Errorf("nvml device %d handle: %s", index, nvml.ErrorString(ret))
	}

	info := DeviceInfo{Index: index, DriverVersion: "Unknown"}
	if name, ret := device.GetName(); ret == nvml.SUCCESS {
		info.Name = name
	}
	if uuid, ret := device.GetUUID(); ret == nvml.SUCCESS {
		info.UUID = uuid
	}
	if memory, ret := device.GetMemoryInfo(); ret == nvml.SUCCESS {
		info.TotalMemory = int64(memory.Total)
		info.AvailableMemory = int64(memory.Free)
	}
	if major, minor, ret := device.GetCudaComputeCapability(); ret == nvml.SUCCESS {
		info.ComputeCapability = fmt.Sprintf("%d.%d", major, minor)
	}
	if driver, ret := nvml.SystemGetDriverVersion(); ret == nvml.SUCCESS {
		info.DriverVersion = driver
	}
	if version, ret := nvml.SystemGetCudaDriverVersion(); ret == nvml.SUCCESS {
		info.CUDAVersion = formatCUDAVersion(version)
	}
	return info, nil
}

// formatCUDAVersion renders the 1000*major + 10*minor encoding used by both
// NVML and the CUDA runtime, e.g. 12040 becomes "12.4".
func formatCUDAVersion(v int) string {
	if v <= 0 {
		return ""
	}
	return fmt.Sprintf("%d.%d", v/1000, (v%1000)/10)
}
