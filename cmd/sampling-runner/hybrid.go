package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jihwankim/range-sampler/pkg/index/kdtree"
)

var hybridCmd = &cobra.Command{
	Use:   "hybrid",
	Args:  cobra.NoArgs,
	Short: "Compare timed KD sampling modes, including the hybrid scheduler",
	Long: `For every workload range, runs the Olken, two-level, no-reject and hybrid
samplers for a fixed wall-clock period each and reports achieved throughput.`,
	RunE: runHybrid,
}

func init() {
	hybridCmd.Flags().String("workload", "", "path to JSON workload file")
	hybridCmd.Flags().Duration("period", time.Second, "wall-clock budget per sampling run")
}

func runHybrid(cmd *cobra.Command, args []string) error {
	if _, _, err := setupRun(); err != nil {
		return err
	}
	workload, points, err := loadWorkload(cmd)
	if err != nil {
		return err
	}
	period, _ := cmd.Flags().GetDuration("period")

	start := time.Now()
	kd, err := kdtree.New(points, workload.Dims)
	if err != nil {
		return err
	}
	defer kd.Close()
	log.Info().Float64("seconds", time.Since(start).Seconds()).Msg("KD tree built")

	for i, r := range workload.Ranges {
		olken := kd.OlkenRangeSamplingThroughput(r, period)
		twoLevel := kd.RangeSamplingThroughput(r, period)
		noReject := kd.RangeSamplingNoRejectThroughput(r, period)
		hybrid := kd.RangeSamplingHybrid(r, period)
		log.Info().Int("range", i).
			Int("olken", len(olken)).
			Int("two_level", len(twoLevel)).
			Int("no_reject", len(noReject)).
			Int("hybrid", len(hybrid)).
			Msg("timed modes compared")
	}
	return nil
}
