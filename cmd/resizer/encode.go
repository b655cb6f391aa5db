package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/photo-resizer/internal/cli"
	"github.com/fpang/photo-resizer/internal/imaging"
)

// encode flags
var (
	widthFlag  int
	heightFlag int
	formatFlag string
	kbFlag     float64
	outFlag    string
)

var encodeCmd = &cobra.Command{
	Use:   "encode <image>",
	Short: "Re-encode an image to fit a size budget",
	Long: `Encode resizes an image to exactly --width x --height (when both are given)
and searches JPEG quality from 90 down to 20 until the output fits --kb.
PNG output is encoded once at maximum compression.`,
	Args: cobra.ExactArgs(1),
	Run:  runEncode,
}

func init() {
	encodeCmd.Flags().IntVar(&widthFlag, "width", 0, "Target width in pixels (requires --height)")
	encodeCmd.Flags().IntVar(&heightFlag, "height", 0, "Target height in pixels (requires --width)")
	encodeCmd.Flags().StringVarP(&formatFlag, "format", "f", "jpg", "Output format: jpg or png")
	encodeCmd.Flags().Float64Var(&kbFlag, "kb", 50, "Size budget in kilobytes")
	encodeCmd.Flags().StringVarP(&outFlag, "out", "o", "", "Output path (default <input>-resized.<format>)")
}

func runEncode(cmd *cobra.Command, args []string) {
	input := args[0]

	for _, name := range []string{"width", "height"} {
		if v, _ := cmd.Flags().GetInt(name); cmd.Flags().Changed(name) && v <= 0 {
			log.Fatal().Int(name, v).Msgf("--%s must be positive", name)
		}
	}

	format, err := imaging.ParseFormat(formatFlag)
	if err != nil {
		cli.HandleError(err, "encode")
	}
	req := imaging.Request{
		Width:    widthFlag,
		Height:   heightFlag,
		Format:   format,
		BudgetKB: kbFlag,
	}
	if err := req.Validate(); err != nil {
		cli.HandleError(err, "encode")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	data := cli.ReadInputFile(input)
	result, err := imaging.EncodeBytes(ctx, data, req)
	if err != nil {
		cli.HandleError(err, "encode")
	}

	out := outFlag
	if out == "" {
		out = strings.TrimSuffix(input, filepath.Ext(input)) + "-resized." + format.Ext()
	}
	if err := os.WriteFile(out, result.Data, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", out).Msg("Failed to write output")
	}

	log.Info().
		Str("output", out).
		Int("width", result.Width).
		Int("height", result.Height).
		Int("quality", result.Quality).
		Int("attempts", result.Attempts).
		Float64("size_kb", result.SizeKB).
		Bool("within_budget", result.WithinBudget).
		Msg("Image encoded")

	fmt.Printf("%s  %dx%d  %s", out, result.Width, result.Height, cli.FormatKB(result.SizeKB))
	if !result.WithinBudget {
		fmt.Printf("  (over the %s budget; smallest achievable)", cli.FormatKB(req.BudgetKB))
	}
	fmt.Println()
}
