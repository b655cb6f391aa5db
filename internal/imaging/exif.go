package imaging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// ExifSummary is the subset of EXIF data reported back for an uploaded photo.
// Re-encoded outputs never carry EXIF, so HasGPS tells the caller that the
// original contained a location that the resized copy will not.
type ExifSummary struct {
	HasGPS  bool       `json:"has_gps"`
	Camera  string     `json:"camera,omitempty"`
	TakenAt *time.Time `json:"taken_at,omitempty"`
}

// ReadExif extracts an ExifSummary using the imagemeta library. Only the
// metadata blocks are read, not the pixel data. Formats without EXIF (most
// PNGs, signatures drawn in an editor) return an error that callers treat as
// "no metadata".
func ReadExif(r io.ReadSeeker) (*ExifSummary, error) {
	exifData, err := imagemeta.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF metadata: %w", err)
	}

	summary := &ExifSummary{}

	gps := exifData.GPS
	if gps.Latitude() != 0 || gps.Longitude() != 0 {
		summary.HasGPS = true
	}

	// DateTimeOriginal > CreateDate > ModifyDate
	var taken time.Time
	switch {
	case !exifData.DateTimeOriginal().IsZero():
		taken = exifData.DateTimeOriginal()
	case !exifData.CreateDate().IsZero():
		taken = exifData.CreateDate()
	case !exifData.ModifyDate().IsZero():
		taken = exifData.ModifyDate()
	}
	if !taken.IsZero() {
		summary.TakenAt = &taken
	}

	summary.Camera = strings.TrimSpace(strings.TrimSpace(exifData.Make) + " " + strings.TrimSpace(exifData.Model))

	log.Debug().
		Bool("has_gps", summary.HasGPS).
		Bool("has_date", summary.TakenAt != nil).
		Str("camera", summary.Camera).
		Msg("EXIF summary extracted")

	return summary, nil
}
