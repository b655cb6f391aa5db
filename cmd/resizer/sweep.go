package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/photo-resizer/internal/cli"
	"github.com/fpang/photo-resizer/internal/scratch"
)

// sweep flags
var (
	dirFlag    string
	maxAgeFlag time.Duration
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete scratch files older than the retention window",
	Long: `Sweep removes regular files in --dir whose modification time is older
than --max-age. Subdirectories are left alone. Suitable for cron.`,
	Args: cobra.NoArgs,
	Run:  runSweep,
}

func init() {
	sweepCmd.Flags().StringVarP(&dirFlag, "dir", "d", "uploads", "Scratch directory to clean")
	sweepCmd.Flags().DurationVar(&maxAgeFlag, "max-age", scratch.DefaultMaxAge, "Delete files older than this")
}

func runSweep(cmd *cobra.Command, args []string) {
	if maxAgeFlag <= 0 {
		log.Fatal().Dur("max_age", maxAgeFlag).Msg("--max-age must be positive")
	}
	dir := cli.ValidateAndResolveDirectory(dirFlag)
	scratch.Sweep(dir, maxAgeFlag)
	log.Info().Str("dir", dir).Dur("max_age", maxAgeFlag).Msg("Sweep complete")
}
