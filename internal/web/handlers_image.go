package web

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-resizer/internal/apperr"
	"github.com/fpang/photo-resizer/internal/imaging"
	"github.com/fpang/photo-resizer/internal/metrics"
	"github.com/fpang/photo-resizer/internal/scratch"
)

type uploadResponse struct {
	Filename string               `json:"filename"`
	URL      string               `json:"url"`
	SizeKB   float64              `json:"size_kb"`
	Width    *int                 `json:"width"`
	Height   *int                 `json:"height"`
	Type     string               `json:"type"`
	Exif     *imaging.ExifSummary `json:"exif,omitempty"`
}

type previewResponse struct {
	PreviewURL   string  `json:"preview_url"`
	DownloadURL  string  `json:"download_url"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	SizeKB       float64 `json:"size_kb"`
	Type         string  `json:"type"`
	Quality      int     `json:"quality,omitempty"`
	WithinBudget bool    `json:"within_budget"`
}

func uploadURL(name string) string   { return "/uploads/" + name }
func downloadURL(name string) string { return "/download/" + name }

// POST /api/photo
func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	s.handleImageUpload(w, r, "photo")
}

// POST /api/signature
func (s *Server) handleSignature(w http.ResponseWriter, r *http.Request) {
	s.handleImageUpload(w, r, "signature")
}

// handleImageUpload stores the "file" part and reports its dimensions. Files
// that are not readable images are still stored; width and height are null.
func (s *Server) handleImageUpload(w http.ResponseWriter, r *http.Request, kind string) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.sweep()

	if err := s.parseMultipart(w, r); err != nil {
		respondFormError(w, err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	f, err := s.store.SaveImage(file, header.Filename)
	if err != nil && !apperr.Is(err, apperr.KindUnreadableImage) {
		respondError(w, err)
		return
	}

	resp := uploadResponse{
		Filename: f.Name,
		URL:      uploadURL(f.Name),
		SizeKB:   f.SizeKB(),
		Type:     f.Ext,
	}
	if f.HasDimensions() {
		width, height := f.Width, f.Height
		resp.Width, resp.Height = &width, &height
		resp.Exif = readExif(f)
	}

	log.Info().
		Str("kind", kind).
		Str("filename", f.Name).
		Float64("size_kb", resp.SizeKB).
		Bool("image", f.HasDimensions()).
		Msg("Upload stored")

	respondJSON(w, http.StatusOK, resp)
}

// readExif returns the EXIF summary of a stored image, or nil when it has none.
func readExif(f *scratch.File) *imaging.ExifSummary {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil
	}
	defer fh.Close()

	summary, err := imaging.ReadExif(fh)
	if err != nil {
		log.Debug().Err(err).Str("filename", f.Name).Msg("No EXIF metadata")
		return nil
	}
	if !summary.HasGPS && summary.Camera == "" && summary.TakenAt == nil {
		return nil
	}
	return summary
}

// POST /api/photo-preview (also /photo-preview)
//
// Form fields: image_file (required), width, height (both or neither),
// kb (default 50), format (jpg or png, default jpg).
func (s *Server) handlePhotoPreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.sweep()

	if err := s.parseMultipart(w, r); err != nil {
		respondFormError(w, err)
		return
	}

	req, err := parseEncodeRequest(r.MultipartForm)
	if err != nil {
		respondError(w, err)
		return
	}

	file, _, err := r.FormFile("image_file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "image_file is required")
		return
	}
	defer file.Close()

	data, err := readUpload(file, s.opts.MaxUploadBytes)
	if err != nil {
		respondError(w, err)
		return
	}

	start := time.Now()
	result, err := imaging.EncodeBytes(r.Context(), data, req)
	if err != nil {
		respondError(w, err)
		return
	}
	metrics.RecordEncode(string(result.Format), result.Attempts, len(result.Data), result.WithinBudget, time.Since(start))

	out, err := s.store.SaveBytes(result.Data, result.Format.Ext())
	if err != nil {
		respondError(w, err)
		return
	}

	if !result.WithinBudget {
		log.Info().
			Float64("budget_kb", req.BudgetKB).
			Float64("size_kb", result.SizeKB).
			Str("format", string(result.Format)).
			Msg("Encode could not meet size budget, returning best effort")
	}

	respondJSON(w, http.StatusOK, previewResponse{
		PreviewURL:   uploadURL(out.Name),
		DownloadURL:  downloadURL(out.Name),
		Width:        result.Width,
		Height:       result.Height,
		SizeKB:       result.SizeKB,
		Type:         result.Format.Ext(),
		Quality:      result.Quality,
		WithinBudget: result.WithinBudget,
	})
}

// parseEncodeRequest reads width, height, kb, and format from the form.
// Empty fields take their defaults; malformed numbers are InvalidInput.
func parseEncodeRequest(form *multipart.Form) (imaging.Request, error) {
	get := func(key string) string {
		if form == nil || len(form.Value[key]) == 0 {
			return ""
		}
		return strings.TrimSpace(form.Value[key][0])
	}

	req := imaging.Request{BudgetKB: DefaultBudgetKB, Format: imaging.FormatJPEG}

	var err error
	if req.Width, err = parseOptionalInt(get("width"), "width"); err != nil {
		return req, err
	}
	if req.Height, err = parseOptionalInt(get("height"), "height"); err != nil {
		return req, err
	}
	if kb := get("kb"); kb != "" {
		req.BudgetKB, err = strconv.ParseFloat(kb, 64)
		if err != nil {
			return req, apperr.InvalidInput("kb must be a number", imaging.ErrInvalidBudget)
		}
	}
	if format := get("format"); format != "" {
		if req.Format, err = imaging.ParseFormat(format); err != nil {
			return req, err
		}
	}
	return req, req.Validate()
}

// parseOptionalInt returns 0 for an absent field. A present field must be a
// positive integer.
func parseOptionalInt(value, field string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, apperr.InvalidInput(field+" must be an integer", imaging.ErrInvalidDimensions)
	}
	if n <= 0 {
		return 0, apperr.InvalidInput(fmt.Sprintf("%s=%d: must be positive", field, n), imaging.ErrInvalidDimensions)
	}
	return n, nil
}

// POST /api/bg-process, /api/signature-bg-process
func (s *Server) handleBackgroundRemoval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	httpError(w, http.StatusServiceUnavailable, "Background removal temporarily disabled")
}

// respondFormError reports a multipart parsing failure: 413 when the body
// exceeded the upload limit, 400 otherwise.
func respondFormError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
		httpError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	httpError(w, http.StatusBadRequest, "invalid multipart form")
}
