package main

import (
	"context"
	"fmt"
	"io"

	"github.com/common-nighthawk/go-figure"
	"github.com/fxnlabs/testcudakernel/internal/config"
	"github.com/fxnlabs/testcudakernel/internal/gpu"
	"github.com/fxnlabs/testcudakernel/internal/workload"
	"go.uber.org/zap"
)

// printInfo selects the backend exactly as the loop would and describes it.
func printInfo(w io.Writer, cfg *config.Config, log *zap.Logger) error {
	manager, err := newManager(cfg, log)
	if err != nil {
		return err
	}
	defer manager.Cleanup()

	fmt.Fprintln(w, figure.NewFigure("testcudakernel", "", true).String())

	info := manager.GetDeviceInfo()
	fmt.Fprintf(w, "Backend: %s\n", manager.GetBackendType())
	fmt.Fprintf(w, "Devices: %v\n", cfg.Backend.Devices)
	fmt.Fprintf(w, "Device Name: %s\n", info.Name)
	if info.UUID != "" {
		fmt.Fprintf(w, "UUID: %s\n", info.UUID)
	}
	fmt.Fprintf(w, "Compute Capability: %s\n", info.ComputeCapability)
	if info.TotalMemory > 0 {
		fmt.Fprintf(w, "Total Memory: %d MB\n", info.TotalMemory/(1024*1024))
		fmt.Fprintf(w, "Available Memory: %d MB\n", info.AvailableMemory/(1024*1024))
	}
	fmt.Fprintf(w, "Driver Version: %s\n", info.DriverVersion)
	if info.CUDAVersion != "" {
		fmt.Fprintf(w, "CUDA Version: %s\n", info.CUDAVersion)
	}

	for _, id := range cfg.Backend.Devices {
		probed, err := gpu.ProbeDevice(id)
		if err != nil {
			fmt.Fprintf(w, "NVML Device %d: %v\n", id, err)
			continue
		}
		fmt.Fprintf(w, "NVML Device %d: %s, %d MB total, %d MB free, compute %s, driver %s\n",
			id, probed.Name, probed.TotalMemory/(1024*1024), probed.AvailableMemory/(1024*1024),
			probed.ComputeCapability, probed.DriverVersion)
	}
	return nil
}

// printResult runs one multiplication and writes C.
func printResult(w io.Writer, cfg *config.Config, log *zap.Logger) error {
	manager, err := newManager(cfg, log)
	if err != nil {
		return err
	}
	defer manager.Cleanup()

	once := cfg.Workload
	once.MaxIterations = 1
	once.Interval = 0
	runner, err := workload.NewRunner(once, manager, log)
	if err != nil {
		return err
	}
	if err := runner.Run(context.Background()); err != nil {
		return err
	}
	if runner.Failures() > 0 {
		return fmt.Errorf("multiplication on %s backend failed", manager.GetBackendType())
	}
	return runner.Result().Print(w)
}
