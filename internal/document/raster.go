package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-resizer/internal/apperr"
	"github.com/fpang/photo-resizer/internal/imaging"
)

// Rasterization limits.
const (
	DefaultDPI = 150
	MinDPI     = 36
	MaxDPI     = 600
)

var (
	// ErrInvalidDPI is returned for a DPI outside [MinDPI, MaxDPI].
	ErrInvalidDPI = errors.New("invalid dpi")
	// ErrRasterUnavailable is returned when pdftoppm is not installed.
	ErrRasterUnavailable = errors.New("pdftoppm not found in PATH")
)

// RasterOptions controls PDFToImages.
type RasterOptions struct {
	// DPI is the render resolution; 0 means DefaultDPI.
	DPI int
	// Format is the page image encoding; empty means JPEG.
	Format imaging.Format
}

func (o RasterOptions) withDefaults() (RasterOptions, error) {
	if o.DPI == 0 {
		o.DPI = DefaultDPI
	}
	if o.DPI < MinDPI || o.DPI > MaxDPI {
		return o, apperr.InvalidInput(fmt.Sprintf("dpi=%d: must be between %d and %d", o.DPI, MinDPI, MaxDPI), ErrInvalidDPI)
	}
	if o.Format == "" {
		o.Format = imaging.FormatJPEG
	}
	if _, err := imaging.ParseFormat(string(o.Format)); err != nil {
		return o, err
	}
	return o, nil
}

// CheckPdftoppmAvailable verifies that pdftoppm is installed.
func CheckPdftoppmAvailable() error {
	path, err := exec.LookPath("pdftoppm")
	if err != nil {
		return fmt.Errorf("%w: PDF rasterization will be unavailable. Install poppler with: brew install poppler (macOS) or apt install poppler-utils (Linux)", ErrRasterUnavailable)
	}
	log.Debug().Str("path", path).Msg("pdftoppm found")
	return nil
}

// IsPdftoppmAvailable returns true if pdftoppm is available in the system PATH.
func IsPdftoppmAvailable() bool {
	return CheckPdftoppmAvailable() == nil
}

// PDFToImages renders every page of pdf to an image, in page order.
func PDFToImages(ctx context.Context, pdf []byte, opts RasterOptions) ([][]byte, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := checkPDF(pdf); err != nil {
		return nil, err
	}

	pdftoppmPath, err := exec.LookPath("pdftoppm")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRasterUnavailable, err)
	}

	workDir, err := os.MkdirTemp("", "pdf2img-*")
	if err != nil {
		return nil, apperr.Storage("create raster dir", err)
	}
	defer os.RemoveAll(workDir)

	inPath := filepath.Join(workDir, "input.pdf")
	if err := os.WriteFile(inPath, pdf, 0o600); err != nil {
		return nil, apperr.Storage("write raster input", err)
	}

	args := []string{"-r", strconv.Itoa(opts.DPI)}
	if opts.Format == imaging.FormatPNG {
		args = append(args, "-png")
	} else {
		args = append(args, "-jpeg", "-jpegopt", "quality="+strconv.Itoa(imaging.StartQuality))
	}
	prefix := filepath.Join(workDir, "page")
	args = append(args, inPath, prefix)

	start := time.Now()
	cmd := exec.CommandContext(ctx, pdftoppmPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperr.InvalidInput("rasterize PDF", fmt.Errorf("pdftoppm failed: %w: %s", err, strings.TrimSpace(string(output))))
	}

	pages, err := collectPages(workDir, "page-", opts.Format)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("pages", len(pages)).
		Int("dpi", opts.DPI).
		Str("format", string(opts.Format)).
		Dur("duration", time.Since(start)).
		Msg("PDF rasterized")

	return pages, nil
}

// collectPages reads pdftoppm output files in page order. pdftoppm pads page
// numbers to a common width, but the number is parsed anyway so ordering does
// not depend on that.
func collectPages(dir, prefix string, format imaging.Format) ([][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.Storage("list raster output", err)
	}

	ext := "." + format.Ext()
	type page struct {
		num  int
		path string
	}
	var found []page
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ext))
		if err != nil {
			continue
		}
		found = append(found, page{num: num, path: filepath.Join(dir, name)})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].num < found[j].num })

	pages := make([][]byte, 0, len(found))
	for _, p := range found {
		data, err := os.ReadFile(p.path)
		if err != nil {
			return nil, apperr.Storage("read raster page", err)
		}
		pages = append(pages, data)
	}
	return pages, nil
}
