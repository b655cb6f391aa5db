package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-resizer/internal/apperr"
	"github.com/fpang/photo-resizer/internal/document"
)

// ErrUploadTooLarge is returned by readUpload when a part exceeds the limit.
var ErrUploadTooLarge = errors.New("upload too large")

// --- JSON Helpers ---

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// httpError sends a JSON error response. The clientMsg is returned to the caller.
// Optional internalDetails are logged server-side but never sent to the client,
// so filesystem paths and tool output stay out of responses.
func httpError(w http.ResponseWriter, status int, clientMsg string, internalDetails ...string) {
	if len(internalDetails) > 0 {
		log.Error().
			Int("status", status).
			Str("clientMsg", clientMsg).
			Strs("internalDetails", internalDetails).
			Msg("HTTP error with internal details")
	}
	respondJSON(w, status, map[string]string{"error": clientMsg})
}

// respondError maps a core error to an HTTP status by its apperr.Kind.
// Client-facing messages come from the error itself for input problems and
// are generic for storage and unknown failures.
func respondError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || errors.Is(err, ErrUploadTooLarge) {
		httpError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	if errors.Is(err, document.ErrRasterUnavailable) {
		httpError(w, http.StatusServiceUnavailable, "PDF to image conversion temporarily unavailable", err.Error())
		return
	}

	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput:
		httpError(w, http.StatusBadRequest, err.Error())
	case apperr.KindUnreadableImage:
		httpError(w, http.StatusUnprocessableEntity, "file is not a readable image")
	case apperr.KindNotFound:
		httpError(w, http.StatusNotFound, "file not found")
	case apperr.KindStorage:
		httpError(w, http.StatusInternalServerError, "storage error", err.Error())
	default:
		httpError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

// readUpload reads an uploaded part fully. Parts larger than limit bytes fail
// with ErrUploadTooLarge instead of being truncated.
func readUpload(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, apperr.InvalidInput(fmt.Sprintf("upload exceeds %d bytes", limit), ErrUploadTooLarge)
	}
	return data, nil
}

// containsPathTraversal returns true if the path contains ".." segments that
// could be used to escape the scratch directory.
func containsPathTraversal(p string) bool {
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}
