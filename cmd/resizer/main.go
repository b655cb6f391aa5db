package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fpang/photo-resizer/internal/logging"
	"github.com/fpang/photo-resizer/internal/metrics"
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "resizer",
	Short: "Resize photos to a size budget and convert documents offline",
	Long: `Resizer runs the same resizing and document conversion routines as the
web API against local files.

Examples:
  resizer encode passport.png --width 600 --height 600 --kb 50 --out photo.jpg
  resizer pdf2img scan.pdf --out-dir pages --format png --dpi 200
  resizer img2pdf page1.jpg page2.png --out combined.pdf
  resizer compress report.pdf --out report-small.pdf
  resizer sweep --dir ./uploads --max-age 30m`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
		metrics.SetEnabled(false)
	},
}

func init() {
	rootCmd.AddCommand(encodeCmd, sweepCmd, pdf2imgCmd, img2pdfCmd, compressCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
