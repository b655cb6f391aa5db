package imaging

import (
	"errors"
	"strings"

	"github.com/fpang/photo-resizer/internal/apperr"
)

// Format is an output encoding the resizer can produce.
type Format string

const (
	// FormatJPEG is the lossy format; it is the only one with a quality search.
	FormatJPEG Format = "jpg"
	// FormatPNG is the lossless format; it is encoded once at maximum compression.
	FormatPNG Format = "png"
)

// ErrUnsupportedFormat is returned for any output format other than jpg/png.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ParseFormat maps a user-supplied format name (jpg, jpeg, png; any case) to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", apperr.InvalidInput("format "+quote(s), ErrUnsupportedFormat)
	}
}

// Ext returns the file extension (no leading dot) used when persisting f.
func (f Format) Ext() string {
	return string(f)
}

// MIMEType returns the content type for f.
func (f Format) MIMEType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	default:
		return "image/jpeg"
	}
}

// Lossy reports whether f has a quality knob.
func (f Format) Lossy() bool {
	return f == FormatJPEG
}

func (f Format) valid() bool {
	return f == FormatJPEG || f == FormatPNG
}

func quote(s string) string {
	return "\"" + s + "\""
}
