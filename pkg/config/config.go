// Package config loads the framework configuration (YAML) and the benchmark
// workload description (JSON).
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jihwankim/range-sampler/pkg/geo"
)

// Config represents the framework configuration.
type Config struct {
	Framework FrameworkConfig `yaml:"framework"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Reporting ReportingConfig `yaml:"reporting"`
}

// FrameworkConfig contains general settings.
type FrameworkConfig struct {
	Version   string `yaml:"version"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	// ListenAddr serves /metrics when non-empty (e.g. ":9090").
	ListenAddr string `yaml:"listen_addr"`
}

// ReportingConfig contains report output settings.
type ReportingConfig struct {
	OutputDir string `yaml:"output_dir"`
	KeepLastN int    `yaml:"keep_last_n"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Framework: FrameworkConfig{
			Version:   "v1",
			LogLevel:  "info",
			LogFormat: "text",
		},
		Reporting: ReportingConfig{
			OutputDir: "./reports",
			KeepLastN: 50,
		},
	}
}

// Load reads a YAML configuration file, applying defaults and expanding
// environment variables in the file content. A missing file is not an error;
// defaults are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	expanded := []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Reporting.OutputDir == "" {
		return fmt.Errorf("reporting.output_dir is required")
	}
	if c.Reporting.KeepLastN < 0 {
		return fmt.Errorf("reporting.keep_last_n must not be negative")
	}
	return nil
}

// Workload describes one benchmark run: the input point file, the query
// rectangles, the sample counts, and the sampling methods to exercise.
type Workload struct {
	InputFile string    `json:"input_file"`
	Ranges    []geo.MBR `json:"ranges"`
	KValues   []int     `json:"k_values"`
	Methods   []string  `json:"methods"`
	Dims      int       `json:"dims,omitempty"`
}

// Method mnemonics accepted in a workload file.
var knownMethods = map[string]bool{
	"qts": true, // range scan + uniform draw baseline
	"kds": true, // KD two-level
	"kdo": true, // KD Olken
	"kdb": true, // KD buffer
	"zvs": true, // Z-value two-level
	"rts": true, // R-sampling two-level
	"rto": true, // R-sampling Olken
	"rtb": true, // R-sampling buffer
}

// LoadWorkload reads and validates a JSON workload file.
func LoadWorkload(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workload file: %w", err)
	}
	var w Workload
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse workload file: %w", err)
	}
	if w.Dims == 0 {
		w.Dims = 2
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// Validate validates the workload.
func (w *Workload) Validate() error {
	if w.InputFile == "" {
		return fmt.Errorf("input_file is required")
	}
	if w.Dims != 2 && w.Dims != 3 {
		return fmt.Errorf("dims must be 2 or 3, got %d", w.Dims)
	}
	if len(w.Ranges) == 0 {
		return fmt.Errorf("at least one range is required")
	}
	for i, r := range w.Ranges {
		if r.Low.X > r.High.X || r.Low.Y > r.High.Y || r.Low.Z > r.High.Z {
			return fmt.Errorf("range %d: low exceeds high", i)
		}
	}
	for _, k := range w.KValues {
		if k <= 0 {
			return fmt.Errorf("k values must be positive, got %d", k)
		}
	}
	for _, m := range w.Methods {
		if !knownMethods[m] {
			return fmt.Errorf("unknown method %q", m)
		}
	}
	return nil
}
