// Package document converts between images and PDF documents.
//
// Composition, page counting, and optimization use pdfcpu. Rasterization
// shells out to poppler's pdftoppm, which must be on PATH.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-resizer/internal/apperr"
	"github.com/fpang/photo-resizer/internal/imaging"
)

var (
	// ErrNoImages is returned by ImagesToPDF when called with no input.
	ErrNoImages = errors.New("no images provided")
	// ErrNotPDF is returned when input bytes do not carry a PDF header.
	ErrNotPDF = errors.New("not a PDF document")
)

func init() {
	// pdfcpu otherwise creates a config directory under the user's home,
	// which is read-only on Lambda.
	api.DisableConfigDir()
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// IsPDF reports whether data starts with a PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

func checkPDF(data []byte) error {
	if !IsPDF(data) {
		return apperr.InvalidInput("document", ErrNotPDF)
	}
	return nil
}

// PageCount returns the number of pages in pdf.
func PageCount(pdf []byte) (int, error) {
	if err := checkPDF(pdf); err != nil {
		return 0, err
	}
	n, err := api.PageCount(bytes.NewReader(pdf), newConfig())
	if err != nil {
		return 0, apperr.InvalidInput("read PDF", fmt.Errorf("%w: %v", ErrNotPDF, err))
	}
	return n, nil
}

// ImagesToPDF builds a PDF with one page per image, in order. JPEG and PNG
// inputs are embedded as-is; any other decodable format (WebP, GIF, BMP,
// TIFF) is converted to JPEG first.
func ImagesToPDF(images [][]byte) ([]byte, error) {
	if len(images) == 0 {
		return nil, apperr.InvalidInput("images to PDF", ErrNoImages)
	}

	readers := make([]io.Reader, 0, len(images))
	for i, data := range images {
		normalized, err := normalizeForPDF(data)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i+1, err)
		}
		readers = append(readers, bytes.NewReader(normalized))
	}

	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, readers, pdfcpu.DefaultImportConfig(), newConfig()); err != nil {
		return nil, fmt.Errorf("compose PDF: %w", err)
	}

	log.Debug().
		Int("pages", len(images)).
		Int("size", out.Len()).
		Msg("PDF composed from images")

	return out.Bytes(), nil
}

// normalizeForPDF returns data unchanged for JPEG and PNG and a JPEG
// re-encode for every other decodable image.
func normalizeForPDF(data []byte) ([]byte, error) {
	cfg, err := imaging.Probe(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	switch cfg.Format {
	case "jpeg", "png":
		return data, nil
	default:
		log.Debug().Str("format", cfg.Format).Msg("Converting image to JPEG for PDF embedding")
		return imaging.Transcode(data, imaging.FormatJPEG)
	}
}

// Optimize rewrites pdf with pdfcpu's optimizer (shared resources merged,
// unused objects dropped). The result is never larger than the input: when
// optimization does not help, the original bytes are returned.
func Optimize(pdf []byte) ([]byte, error) {
	if err := checkPDF(pdf); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(pdf), &out, newConfig()); err != nil {
		return nil, apperr.InvalidInput("optimize PDF", fmt.Errorf("%w: %v", ErrNotPDF, err))
	}

	log.Debug().
		Int("input_size", len(pdf)).
		Int("output_size", out.Len()).
		Msg("PDF optimized")

	if out.Len() >= len(pdf) {
		return pdf, nil
	}
	return out.Bytes(), nil
}
