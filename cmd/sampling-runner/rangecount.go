package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jihwankim/range-sampler/pkg/index/kdtree"
)

var rangeCountCmd = &cobra.Command{
	Use:   "range-count",
	Args:  cobra.NoArgs,
	Short: "Report the in-range point count of every workload query",
	RunE:  runRangeCount,
}

func init() {
	rangeCountCmd.Flags().String("workload", "", "path to JSON workload file")
}

func runRangeCount(cmd *cobra.Command, args []string) error {
	if _, _, err := setupRun(); err != nil {
		return err
	}
	workload, points, err := loadWorkload(cmd)
	if err != nil {
		return err
	}

	start := time.Now()
	kd, err := kdtree.New(points, workload.Dims)
	if err != nil {
		return err
	}
	defer kd.Close()
	log.Info().Float64("seconds", time.Since(start).Seconds()).Msg("KD tree built")

	for i, r := range workload.Ranges {
		start := time.Now()
		count := len(kd.Range(r))
		log.Info().Int("range", i).Int("count", count).
			Dur("latency", time.Since(start)).Msg("range counted")
	}
	return nil
}
