package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EndpointResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "endpoint_responses_total",
		Help: "The total number of endpoint responses",
	}, []string{"endpoint", "status_code"})

	// Kernel loop metrics
	KernelIterations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_dgemm_iterations_total",
		Help: "Total number of Dgemm calls issued by the kernel loop",
	}, []string{"backend", "status"})

	KernelDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kernel_dgemm_duration_ms",
		Help:    "Duration of a single Dgemm call in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 20), // 10µs to ~5s
	})

	KernelGFLOPS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kernel_dgemm_gflops",
		Help: "Throughput of the last successful Dgemm in GFLOPS",
	})

	KernelMatrixElements = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kernel_matrix_elements",
		Help: "Number of elements in each operand of the kernel loop",
	}, []string{"matrix"})

	// Device metrics
	DeviceMemoryTotalBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gpu_memory_total_bytes",
		Help: "Total memory of the first selected device in bytes",
	})

	DeviceMemoryAvailableBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gpu_memory_available_bytes",
		Help: "Free memory of the first selected device in bytes, as of backend selection",
	})
)

// Status labels for KernelIterations.
const (
	StatusOK    = "ok"
	StatusError = "error"
)
