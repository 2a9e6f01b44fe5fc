package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jihwankim/range-sampler/pkg/index/lsmtree"
)

var lsmCmd = &cobra.Command{
	Use:   "lsm",
	Args:  cobra.NoArgs,
	Short: "Benchmark append-only insertion and sampling through the LSM index",
	RunE:  runLSM,
}

func init() {
	lsmCmd.Flags().String("workload", "", "path to JSON workload file")
}

func runLSM(cmd *cobra.Command, args []string) error {
	if _, _, err := setupRun(); err != nil {
		return err
	}
	workload, points, err := loadWorkload(cmd)
	if err != nil {
		return err
	}

	lsm, err := lsmtree.New(workload.Dims)
	if err != nil {
		return err
	}
	start := time.Now()
	for _, wp := range points {
		if err := lsm.Insert(wp.P); err != nil {
			return err
		}
	}
	log.Info().Int("points", lsm.Len()).
		Float64("seconds", time.Since(start).Seconds()).
		Ints("levels", lsm.LevelLens()).
		Msg("LSM tree loaded")

	for i, r := range workload.Ranges {
		for _, k := range workload.KValues {
			start := time.Now()
			samples := lsm.RangeSampling(r, k)
			log.Info().Int("range", i).Int("k", k).Int("samples", len(samples)).
				Dur("latency", time.Since(start)).Msg("LSM sampling run")
		}
	}
	return nil
}
