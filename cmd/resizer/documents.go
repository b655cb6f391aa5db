package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/photo-resizer/internal/cli"
	"github.com/fpang/photo-resizer/internal/document"
	"github.com/fpang/photo-resizer/internal/imaging"
)

// document flags
var (
	outDirFlag    string
	pageFmtFlag   string
	dpiFlag       int
	zipFlag       bool
	pdfOutFlag    string
	compressOutFl string
)

var pdf2imgCmd = &cobra.Command{
	Use:   "pdf2img <document.pdf>",
	Short: "Render every PDF page to an image",
	Args:  cobra.ExactArgs(1),
	Run:   runPDF2Img,
}

var img2pdfCmd = &cobra.Command{
	Use:   "img2pdf <image>...",
	Short: "Combine images into a PDF, one page per image",
	Args:  cobra.MinimumNArgs(1),
	Run:   runImg2PDF,
}

var compressCmd = &cobra.Command{
	Use:   "compress <document.pdf>",
	Short: "Optimize a PDF to reduce its size",
	Args:  cobra.ExactArgs(1),
	Run:   runCompress,
}

func init() {
	pdf2imgCmd.Flags().StringVar(&outDirFlag, "out-dir", ".", "Directory for page images")
	pdf2imgCmd.Flags().StringVarP(&pageFmtFlag, "format", "f", "jpg", "Page image format: jpg or png")
	pdf2imgCmd.Flags().IntVar(&dpiFlag, "dpi", document.DefaultDPI, "Render resolution")
	pdf2imgCmd.Flags().BoolVar(&zipFlag, "zip", false, "Also write pages.zip with every page")

	img2pdfCmd.Flags().StringVarP(&pdfOutFlag, "out", "o", "combined.pdf", "Output PDF path")

	compressCmd.Flags().StringVarP(&compressOutFl, "out", "o", "", "Output path (default <input>-compressed.pdf)")
}

func runPDF2Img(cmd *cobra.Command, args []string) {
	if err := document.CheckPdftoppmAvailable(); err != nil {
		log.Fatal().Err(err).Msg("PDF rasterization unavailable")
	}
	format, err := imaging.ParseFormat(pageFmtFlag)
	if err != nil {
		cli.HandleError(err, "pdf2img")
	}
	outDir := cli.ValidateAndResolveDirectory(outDirFlag)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pdf := cli.ReadInputFile(args[0])
	pages, err := document.PDFToImages(ctx, pdf, document.RasterOptions{DPI: dpiFlag, Format: format})
	if err != nil {
		cli.HandleError(err, "pdf2img")
	}

	names := make([]string, 0, len(pages))
	for i, page := range pages {
		name := document.PageName(i+1, format.Ext())
		path := filepath.Join(outDir, name)
		if err := os.WriteFile(path, page, 0o644); err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("Failed to write page")
		}
		names = append(names, name)
		fmt.Println(path)
	}

	if zipFlag {
		bundle, err := document.ZipPages(names, pages)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to build ZIP")
		}
		path := filepath.Join(outDir, "pages.zip")
		if err := os.WriteFile(path, bundle, 0o644); err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("Failed to write ZIP")
		}
		fmt.Println(path)
	}

	log.Info().Int("pages", len(pages)).Str("out_dir", outDir).Msg("PDF rasterized")
}

func runImg2PDF(cmd *cobra.Command, args []string) {
	images := make([][]byte, 0, len(args))
	for _, path := range args {
		images = append(images, cli.ReadInputFile(path))
	}

	pdf, err := document.ImagesToPDF(images)
	if err != nil {
		cli.HandleError(err, "img2pdf")
	}
	if err := os.WriteFile(pdfOutFlag, pdf, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", pdfOutFlag).Msg("Failed to write PDF")
	}

	fmt.Printf("%s  %d pages  %s\n", pdfOutFlag, len(images), cli.FormatKB(imaging.RoundKB(int64(len(pdf)))))
}

func runCompress(cmd *cobra.Command, args []string) {
	input := args[0]
	pdf := cli.ReadInputFile(input)

	optimized, err := document.Optimize(pdf)
	if err != nil {
		cli.HandleError(err, "compress")
	}

	out := compressOutFl
	if out == "" {
		out = input[:len(input)-len(filepath.Ext(input))] + "-compressed.pdf"
	}
	if err := os.WriteFile(out, optimized, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", out).Msg("Failed to write PDF")
	}

	fmt.Printf("%s  %s -> %s\n", out,
		cli.FormatKB(imaging.RoundKB(int64(len(pdf)))),
		cli.FormatKB(imaging.RoundKB(int64(len(optimized)))))
}
