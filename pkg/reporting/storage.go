package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// MethodResult is one benchmark measurement: a sampling method run against a
// workload at a fixed sample count.
type MethodResult struct {
	Method       string  `json:"method"`
	AvgRangeSize float64 `json:"avg_range_size"`
	K            int     `json:"k"`
	AvgLatencyUs float64 `json:"avg_latency_us"`
	OpsPerSec    float64 `json:"ops_per_sec,omitempty"`
}

// BenchReport aggregates one benchmark run over a workload file.
type BenchReport struct {
	InputFile  string             `json:"input_file"`
	Dims       int                `json:"dims"`
	Points     int                `json:"points"`
	StartTime  time.Time          `json:"start_time"`
	EndTime    time.Time          `json:"end_time"`
	BuildTimes map[string]float64 `json:"build_seconds"`
	IndexBytes map[string]int     `json:"index_bytes"`
	Results    []MethodResult     `json:"results"`
}

// Storage persists benchmark reports as JSON files, keeping the last N.
type Storage struct {
	outputDir string
	keepLastN int
	logger    zerolog.Logger
}

// NewStorage creates the output directory if needed.
func NewStorage(outputDir string, keepLastN int, logger zerolog.Logger) (*Storage, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Storage{outputDir: outputDir, keepLastN: keepLastN, logger: logger}, nil
}

// SaveReport writes a report as bench-<timestamp>.json and prunes old files.
func (s *Storage) SaveReport(report *BenchReport) (string, error) {
	filename := fmt.Sprintf("bench-%s.json", report.StartTime.Format("20060102-150405"))
	path := filepath.Join(s.outputDir, filename)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	s.logger.Info().Str("path", path).Msg("benchmark report saved")

	if s.keepLastN > 0 {
		if err := s.cleanupOldReports(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to cleanup old reports")
		}
	}
	return path, nil
}

// LoadReport reads a report back from disk.
func (s *Storage) LoadReport(path string) (*BenchReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}
	var report BenchReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &report, nil
}

func (s *Storage) cleanupOldReports() error {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return err
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			names = append(names, entry.Name())
		}
	}
	if len(names) <= s.keepLastN {
		return nil
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-s.keepLastN] {
		if err := os.Remove(filepath.Join(s.outputDir, name)); err != nil {
			return err
		}
	}
	return nil
}
