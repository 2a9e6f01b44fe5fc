package reporting

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoadReport(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(LoggerConfig{Level: LogLevelError, Output: os.Stderr})
	storage, err := NewStorage(dir, 10, logger)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}

	report := &BenchReport{
		InputFile:  "points.txt",
		Dims:       2,
		Points:     12345,
		StartTime:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC),
		BuildTimes: map[string]float64{"kd": 1.25},
		IndexBytes: map[string]int{"kd": 1 << 20},
		Results: []MethodResult{
			{Method: "kds", AvgRangeSize: 5000, K: 1000, AvgLatencyUs: 42.5},
		},
	}
	path, err := storage.SaveReport(report)
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	loaded, err := storage.LoadReport(path)
	if err != nil {
		t.Fatalf("LoadReport: %v", err)
	}
	if loaded.Points != report.Points || len(loaded.Results) != 1 {
		t.Errorf("round trip lost data: %+v", loaded)
	}
	if loaded.Results[0].Method != "kds" || loaded.Results[0].AvgLatencyUs != 42.5 {
		t.Errorf("result round trip: %+v", loaded.Results[0])
	}
}

func TestCleanupKeepsLastN(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(LoggerConfig{Level: LogLevelError, Output: os.Stderr})
	storage, err := NewStorage(dir, 3, logger)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		report := &BenchReport{StartTime: base.Add(time.Duration(i) * time.Hour)}
		if _, err := storage.SaveReport(report); err != nil {
			t.Fatalf("SaveReport: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var jsons int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			jsons++
		}
	}
	if jsons != 3 {
		t.Errorf("found %d reports, want 3 after cleanup", jsons)
	}
}
