package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/fpang/photo-resizer/internal/apperr"
)

// MaxPixels caps the decoded size of an upload. Headers are checked before the
// pixel data is decoded, so a small file claiming a huge canvas is rejected
// without allocating it.
const MaxPixels = 80_000_000

// MaxDimension is the largest target width or height accepted by Encode.
const MaxDimension = 10_000

var (
	// ErrNotImage wraps decoder failures.
	ErrNotImage = errors.New("not a decodable image")
	// ErrImageTooLarge is returned when the source canvas exceeds MaxPixels.
	ErrImageTooLarge = errors.New("image too large")
)

// SupportedImageExtensions maps upload extensions (with leading dot) to MIME types.
// Every entry has a registered decoder.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// IsImage returns true if the file extension corresponds to a decodable image.
func IsImage(ext string) bool {
	_, ok := SupportedImageExtensions[strings.ToLower(ext)]
	return ok
}

// Config describes an image header.
type Config struct {
	Width  int
	Height int
	Format string // decoder name: jpeg, png, gif, webp, bmp, tiff
}

// Probe reads only the image header from r.
func Probe(r io.Reader) (*Config, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return nil, apperr.UnreadableImage("read image header", fmt.Errorf("%w: %v", ErrNotImage, err))
	}
	return &Config{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Decode decodes a complete image after checking its header against MaxPixels.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", apperr.UnreadableImage("decode image", fmt.Errorf("%w: empty input", ErrNotImage))
	}

	cfg, err := Probe(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return nil, "", apperr.InvalidInput(fmt.Sprintf("%dx%d exceeds %d pixels", cfg.Width, cfg.Height, MaxPixels), ErrImageTooLarge)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", apperr.UnreadableImage("decode image", fmt.Errorf("%w: %v", ErrNotImage, err))
	}

	log.Debug().
		Str("format", format).
		Int("width", cfg.Width).
		Int("height", cfg.Height).
		Int("input_size", len(data)).
		Msg("Image decoded")

	return img, format, nil
}
