package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fxnlabs/testcudakernel/internal/gpu"
	"gopkg.in/yaml.v3"
)

type LoggerConfig struct {
	Verbosity string `yaml:"verbosity"`
	Encoding  string `yaml:"encoding"`
}

type BackendConfig struct {
	Kind    string `yaml:"kind"`
	Devices []int  `yaml:"devices"`
}

// WorkloadConfig describes the multiply loop. A is M×K, B is K×N and C is M×N.
type WorkloadConfig struct {
	M             int           `yaml:"m"`
	N             int           `yaml:"n"`
	K             int           `yaml:"k"`
	FillA         float64       `yaml:"fillA"`
	FillB         float64       `yaml:"fillB"`
	FillC         float64       `yaml:"fillC"`
	Alpha         float64       `yaml:"alpha"`
	Beta          float64       `yaml:"beta"`
	Interval      time.Duration `yaml:"interval"`
	MaxIterations uint64        `yaml:"maxIterations"`
}

type MetricsConfig struct {
	ListenAddress string `yaml:"listenAddress"`
}

type Config struct {
	Logger   LoggerConfig   `yaml:"logger"`
	Backend  BackendConfig  `yaml:"backend"`
	Workload WorkloadConfig `yaml:"workload"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// Default returns the settings of the stock fixture: device 0, a 10×20 by
// 20×10 multiply of constant matrices, once a second, forever. The backend
// is gpu.DefaultKind, which is cuda in cuda builds.
func Default() *Config {
	return &Config{
		Logger: LoggerConfig{
			Verbosity: "info",
		},
		Backend: BackendConfig{
			Kind:    gpu.DefaultKind,
			Devices: []int{0},
		},
		Workload: WorkloadConfig{
			M:        10,
			N:        10,
			K:        20,
			FillA:    0.2,
			FillB:    0.3,
			FillC:    0.0,
			Alpha:    1.0,
			Beta:     0.0,
			Interval: time.Second,
		},
	}
}

// LoadConfig reads a YAML file on top of Default. An empty path returns the
// defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return config, nil
}

func (c *Config) Validate() error {
	if !gpu.ValidKind(c.Backend.Kind) {
		return fmt.Errorf("unknown backend kind %q", c.Backend.Kind)
	}
	if len(c.Backend.Devices) == 0 {
		return fmt.Errorf("at least one device must be selected")
	}
	for _, id := range c.Backend.Devices {
		if id < 0 {
			return fmt.Errorf("device id %d is negative", id)
		}
	}
	w := c.Workload
	if w.M <= 0 || w.N <= 0 || w.K <= 0 {
		return fmt.Errorf("matrix dimensions must be positive, got m=%d n=%d k=%d", w.M, w.N, w.K)
	}
	if w.Interval < 0 {
		return fmt.Errorf("interval must not be negative, got %s", w.Interval)
	}
	return nil
}
