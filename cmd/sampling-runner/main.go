package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	version = "dev" // Will be set by build flags
)

var rootCmd = &cobra.Command{
	Use:   "sampling-runner",
	Short: "Independent range sampling over weighted spatial point sets",
	Long: `Sampling Runner builds weighted range-sampling indices (KD, R-sampling,
Z-value, buffer and LSM variants) over 2-D or 3-D point files and benchmarks
range queries and independent sampling through them.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(rangeCountCmd)
	rootCmd.AddCommand(hybridCmd)
	rootCmd.AddCommand(lsmCmd)
}

// Commands are defined in separate files:
// - benchCmd in bench.go
// - rangeCountCmd in rangecount.go
// - hybridCmd in hybrid.go
// - lsmCmd in lsm.go

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(255)
	}
}
