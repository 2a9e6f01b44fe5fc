package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Framework.LogLevel != "info" || cfg.Reporting.OutputDir != "./reports" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadYAMLOverridesAndEnvExpansion(t *testing.T) {
	t.Setenv("SAMPLER_REPORT_DIR", "/tmp/sampler-reports")
	path := writeFile(t, "config.yaml", `
framework:
  log_level: debug
  log_format: json
reporting:
  output_dir: ${SAMPLER_REPORT_DIR}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Framework.LogLevel != "debug" || cfg.Framework.LogFormat != "json" {
		t.Errorf("overrides not applied: %+v", cfg.Framework)
	}
	if cfg.Reporting.OutputDir != "/tmp/sampler-reports" {
		t.Errorf("env expansion failed: %q", cfg.Reporting.OutputDir)
	}
}

func TestLoadWorkload(t *testing.T) {
	path := writeFile(t, "workload.json", `{
  "input_file": "points.txt",
  "ranges": [
    {"low": {"x": -118.5, "y": 33.7}, "high": {"x": -118.3, "y": 33.9}}
  ],
  "k_values": [10, 1000],
  "methods": ["kds", "kdo", "zvs"]
}`)
	w, err := LoadWorkload(path)
	if err != nil {
		t.Fatalf("LoadWorkload: %v", err)
	}
	if w.Dims != 2 {
		t.Errorf("default dims = %d, want 2", w.Dims)
	}
	if len(w.Ranges) != 1 || w.Ranges[0].Low.X != -118.5 {
		t.Errorf("ranges parsed wrong: %+v", w.Ranges)
	}
	if len(w.KValues) != 2 || w.KValues[1] != 1000 {
		t.Errorf("k values parsed wrong: %+v", w.KValues)
	}
}

func TestWorkloadValidation(t *testing.T) {
	cases := map[string]string{
		"unknown method": `{"input_file":"f","ranges":[{"low":{"x":0,"y":0},"high":{"x":1,"y":1}}],"k_values":[1],"methods":["bogus"]}`,
		"missing input":  `{"ranges":[{"low":{"x":0,"y":0},"high":{"x":1,"y":1}}],"k_values":[1],"methods":["kds"]}`,
		"inverted range": `{"input_file":"f","ranges":[{"low":{"x":2,"y":0},"high":{"x":1,"y":1}}],"k_values":[1],"methods":["kds"]}`,
		"bad k":          `{"input_file":"f","ranges":[{"low":{"x":0,"y":0},"high":{"x":1,"y":1}}],"k_values":[0],"methods":["kds"]}`,
		"bad dims":       `{"input_file":"f","dims":4,"ranges":[{"low":{"x":0,"y":0},"high":{"x":1,"y":1}}],"k_values":[1],"methods":["kds"]}`,
		"no ranges":      `{"input_file":"f","ranges":[],"k_values":[1],"methods":["kds"]}`,
	}
	for name, content := range cases {
		path := writeFile(t, "w.json", content)
		if _, err := LoadWorkload(path); err == nil {
			t.Errorf("%s: workload accepted, want error", name)
		}
	}
}
