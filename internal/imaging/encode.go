package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"

	"github.com/fpang/photo-resizer/internal/apperr"
)

// Quality search bounds for the lossy format. The search walks
// StartQuality, StartQuality-QualityStep, ... down to MinQuality inclusive,
// so it performs at most 15 encodes.
const (
	StartQuality = 90
	QualityStep  = 5
	MinQuality   = 20
)

var (
	// ErrInvalidDimensions is returned when exactly one of width/height is
	// given, or either is negative or above MaxDimension.
	ErrInvalidDimensions = errors.New("invalid dimensions")
	// ErrInvalidBudget is returned for a non-positive size budget.
	ErrInvalidBudget = errors.New("invalid size budget")
)

// Request describes one size-targeted encode. Width and Height are both zero
// when the image should keep its own dimensions.
type Request struct {
	Width    int
	Height   int
	Format   Format
	BudgetKB float64
}

// Validate checks the request without touching any image data.
func (r Request) Validate() error {
	if !r.Format.valid() {
		return apperr.InvalidInput("format "+quote(string(r.Format)), ErrUnsupportedFormat)
	}
	if r.Width != 0 || r.Height != 0 {
		if r.Width <= 0 || r.Height <= 0 {
			return apperr.InvalidInput(fmt.Sprintf("width=%d height=%d: both must be positive when either is set", r.Width, r.Height), ErrInvalidDimensions)
		}
		if r.Width > MaxDimension || r.Height > MaxDimension {
			return apperr.InvalidInput(fmt.Sprintf("width=%d height=%d: limit is %d", r.Width, r.Height, MaxDimension), ErrInvalidDimensions)
		}
	}
	if r.BudgetKB <= 0 || math.IsNaN(r.BudgetKB) || math.IsInf(r.BudgetKB, 0) {
		return apperr.InvalidInput(fmt.Sprintf("kb=%v", r.BudgetKB), ErrInvalidBudget)
	}
	return nil
}

// Result is the output of an encode.
type Result struct {
	Data   []byte
	Width  int
	Height int
	// SizeKB is len(Data)/1024 rounded to one decimal place.
	SizeKB float64
	Format Format
	// Quality is the JPEG quality that produced Data; 0 for PNG.
	Quality int
	// Attempts is the number of encodes performed.
	Attempts int
	// WithinBudget is false when even MinQuality (or the single PNG encode)
	// did not fit the budget and Data is a best-effort result.
	WithinBudget bool
}

// Encode re-encodes img to satisfy req.BudgetKB when possible.
func Encode(img image.Image, req Request) (*Result, error) {
	return EncodeContext(context.Background(), img, req)
}

// EncodeContext is Encode with cancellation checked between quality steps.
//
// The image is flattened onto white (the output formats carry no alpha),
// resampled once to Width x Height when both are set, then:
//   - PNG: encoded once with best compression, whatever the resulting size.
//   - JPEG: encoded at StartQuality, stepping down by QualityStep until the
//     output fits the budget. If nothing fits, the MinQuality encode is returned.
func EncodeContext(ctx context.Context, img image.Image, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, apperr.InvalidInput("no image", ErrNotImage)
	}

	start := time.Now()

	canvas := flatten(img)
	if req.Width > 0 && req.Height > 0 {
		canvas = resample(canvas, req.Width, req.Height)
	}

	bounds := canvas.Bounds()
	result := &Result{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: req.Format,
	}
	budgetBytes := req.BudgetKB * 1024

	switch req.Format {
	case FormatPNG:
		var buf bytes.Buffer
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, canvas); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		result.Data = buf.Bytes()
		result.Attempts = 1

	case FormatJPEG:
		for quality := StartQuality; quality >= MinQuality; quality -= QualityStep {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality}); err != nil {
				return nil, fmt.Errorf("encode jpeg at quality %d: %w", quality, err)
			}
			result.Attempts++
			result.Data = buf.Bytes()
			result.Quality = quality

			log.Debug().
				Int("quality", quality).
				Int("size", buf.Len()).
				Float64("budget_kb", req.BudgetKB).
				Msg("JPEG quality step")

			if float64(buf.Len()) <= budgetBytes {
				break
			}
		}
	}

	result.SizeKB = RoundKB(int64(len(result.Data)))
	result.WithinBudget = float64(len(result.Data)) <= budgetBytes

	log.Debug().
		Str("format", string(result.Format)).
		Int("width", result.Width).
		Int("height", result.Height).
		Int("quality", result.Quality).
		Int("attempts", result.Attempts).
		Float64("size_kb", result.SizeKB).
		Bool("within_budget", result.WithinBudget).
		Dur("duration", time.Since(start)).
		Msg("Size-targeted encode complete")

	return result, nil
}

// EncodeBytes decodes data and encodes it per req. Undecodable input is fatal
// here (KindUnreadableImage), unlike upload intake where it only means
// "no dimensions".
func EncodeBytes(ctx context.Context, data []byte, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return EncodeContext(ctx, img, req)
}

// Transcode decodes data and re-encodes it once in f at StartQuality
// (no budget search, no resize).
func Transcode(data []byte, f Format) ([]byte, error) {
	if !f.valid() {
		return nil, apperr.InvalidInput("format "+quote(string(f)), ErrUnsupportedFormat)
	}
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	canvas := flatten(img)

	var buf bytes.Buffer
	if f == FormatPNG {
		err = png.Encode(&buf, canvas)
	} else {
		err = jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: StartQuality})
	}
	if err != nil {
		return nil, fmt.Errorf("transcode to %s: %w", f, err)
	}
	return buf.Bytes(), nil
}

// RoundKB converts a byte count to kilobytes rounded to one decimal place.
func RoundKB(n int64) float64 {
	return math.Round(float64(n)/1024*10) / 10
}

// flatten composites img over an opaque white canvas anchored at (0,0).
func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// resample scales src to exactly width x height (aspect ratio is not preserved).
func resample(src *image.RGBA, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
