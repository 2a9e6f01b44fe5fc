package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jihwankim/range-sampler/pkg/config"
	"github.com/jihwankim/range-sampler/pkg/dataset"
	"github.com/jihwankim/range-sampler/pkg/geo"
	"github.com/jihwankim/range-sampler/pkg/index/kdbtree"
	"github.com/jihwankim/range-sampler/pkg/index/kdtree"
	"github.com/jihwankim/range-sampler/pkg/index/rsbtree"
	"github.com/jihwankim/range-sampler/pkg/index/rstree"
	"github.com/jihwankim/range-sampler/pkg/index/zvtree"
	"github.com/jihwankim/range-sampler/pkg/metrics"
	"github.com/jihwankim/range-sampler/pkg/reporting"
	"github.com/jihwankim/range-sampler/pkg/sampling"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Args:  cobra.NoArgs,
	Short: "Run a sampling benchmark over a workload file",
	Long:  `Loads a JSON workload, builds the requested indices and measures per-method sampling latency.`,
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().String("workload", "", "path to JSON workload file")
	benchCmd.Flags().Bool("no-report", false, "skip writing the JSON report")
}

// setupRun loads framework config, installs the global logger, and starts the
// metrics listener when configured.
func setupRun() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("invalid configuration: %w", err)
	}

	logLevel := reporting.LogLevel(cfg.Framework.LogLevel)
	if verbose {
		logLevel = reporting.LogLevelDebug
	}
	loggerCfg := reporting.LoggerConfig{
		Level:  logLevel,
		Format: reporting.LogFormat(cfg.Framework.LogFormat),
		Output: os.Stdout,
	}
	reporting.InitGlobalLogger(loggerCfg)
	logger := reporting.NewLogger(loggerCfg)

	if cfg.Metrics.ListenAddr != "" {
		metrics.Serve(cfg.Metrics.ListenAddr)
		logger.Info().Str("addr", cfg.Metrics.ListenAddr).Msg("metrics listener started")
	}
	return cfg, logger, nil
}

func loadWorkload(cmd *cobra.Command) (*config.Workload, []geo.WPoint, error) {
	workloadPath, _ := cmd.Flags().GetString("workload")
	if workloadPath == "" {
		return nil, nil, fmt.Errorf("--workload flag is required")
	}
	workload, err := config.LoadWorkload(workloadPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load workload: %w", err)
	}
	points, err := dataset.Load(workload.InputFile, workload.Dims)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	return workload, points, nil
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setupRun()
	if err != nil {
		return err
	}
	workload, points, err := loadWorkload(cmd)
	if err != nil {
		return err
	}

	want := map[string]bool{}
	for _, m := range workload.Methods {
		want[m] = true
	}

	report := &reporting.BenchReport{
		InputFile:  workload.InputFile,
		Dims:       workload.Dims,
		Points:     len(points),
		StartTime:  time.Now(),
		BuildTimes: map[string]float64{},
		IndexBytes: map[string]int{},
	}

	// The KD tree always builds: it serves the qts baseline and the
	// reference range counts.
	buildStart := time.Now()
	kd, err := kdtree.New(points, workload.Dims)
	if err != nil {
		return fmt.Errorf("failed to build KD tree: %w", err)
	}
	defer kd.Close()
	report.BuildTimes["kd"] = time.Since(buildStart).Seconds()
	report.IndexBytes["kd"] = kd.Size()
	logger.Info().Float64("seconds", report.BuildTimes["kd"]).Msg("KD tree built")

	var rs *rstree.Tree
	if want["rts"] || want["rto"] {
		buildStart = time.Now()
		if rs, err = rstree.New(points, workload.Dims); err != nil {
			return fmt.Errorf("failed to build R-sampling tree: %w", err)
		}
		report.BuildTimes["rs"] = time.Since(buildStart).Seconds()
		report.IndexBytes["rs"] = rs.Size()
		logger.Info().Float64("seconds", report.BuildTimes["rs"]).Msg("R-sampling tree built")
	}
	var kdb *kdbtree.Tree
	if want["kdb"] {
		buildStart = time.Now()
		if kdb, err = kdbtree.New(points, workload.Dims); err != nil {
			return fmt.Errorf("failed to build KD buffer tree: %w", err)
		}
		report.BuildTimes["kdb"] = time.Since(buildStart).Seconds()
		report.IndexBytes["kdb"] = kdb.Size()
		logger.Info().Float64("seconds", report.BuildTimes["kdb"]).Msg("KD buffer tree built")
	}
	var rsb *rsbtree.Tree
	if want["rtb"] {
		buildStart = time.Now()
		if rsb, err = rsbtree.New(points, workload.Dims); err != nil {
			return fmt.Errorf("failed to build R-sampling buffer tree: %w", err)
		}
		report.BuildTimes["rsb"] = time.Since(buildStart).Seconds()
		report.IndexBytes["rsb"] = rsb.Size()
		logger.Info().Float64("seconds", report.BuildTimes["rsb"]).Msg("R-sampling buffer tree built")
	}
	var zv *zvtree.Tree
	if want["zvs"] {
		buildStart = time.Now()
		if zv, err = zvtree.New(points, workload.Dims); err != nil {
			return fmt.Errorf("failed to build Z-value tree: %w", err)
		}
		report.BuildTimes["zv"] = time.Since(buildStart).Seconds()
		report.IndexBytes["zv"] = zv.Size()
		logger.Info().Float64("seconds", report.BuildTimes["zv"]).Msg("Z-value tree built")
	}

	var totRangeSize int
	for _, r := range workload.Ranges {
		totRangeSize += len(kd.Range(r))
	}
	avgRangeSize := float64(totRangeSize) / float64(len(workload.Ranges))
	logger.Info().Float64("avg_range_size", avgRangeSize).Msg("workload selectivity measured")

	measure := func(method string, sample func(q geo.MBR, k int) []geo.WPoint) {
		for _, k := range workload.KValues {
			var totTime time.Duration
			for _, r := range workload.Ranges {
				start := time.Now()
				samples := sample(r, k)
				totTime += time.Since(start)
				if len(samples) != k {
					logger.Warn().Str("method", method).Int("k", k).Int("got", len(samples)).
						Msg("short sample batch")
				}
			}
			avgLatency := float64(totTime.Microseconds()) / float64(len(workload.Ranges))
			logger.Info().Str("method", method).Float64("avg_range_size", avgRangeSize).
				Int("k", k).Float64("avg_latency_us", avgLatency).Msg("method measured")
			report.Results = append(report.Results, reporting.MethodResult{
				Method:       method,
				AvgRangeSize: avgRangeSize,
				K:            k,
				AvgLatencyUs: avgLatency,
			})
		}
	}

	if want["qts"] {
		measure("qts", func(q geo.MBR, k int) []geo.WPoint {
			return sampling.SampleFrom(kd.Range(q), k)
		})
	}
	if want["kds"] {
		measure("kds", kd.RangeSampling)
	}
	if want["kdo"] {
		measure("kdo", kd.OlkenRangeSampling)
	}
	if rs != nil && want["rts"] {
		measure("rts", rs.RangeSampling)
	}
	if rs != nil && want["rto"] {
		measure("rto", rs.OlkenRangeSampling)
	}
	if kdb != nil {
		measure("kdb", kdb.RangeSampling)
	}
	if rsb != nil {
		measure("rtb", rsb.RangeSampling)
	}
	if zv != nil {
		measure("zvs", zv.RangeSampling)
	}

	report.EndTime = time.Now()
	if noReport, _ := cmd.Flags().GetBool("no-report"); !noReport {
		storage, err := reporting.NewStorage(cfg.Reporting.OutputDir, cfg.Reporting.KeepLastN, logger)
		if err != nil {
			return err
		}
		if _, err := storage.SaveReport(report); err != nil {
			return err
		}
	}
	return nil
}
