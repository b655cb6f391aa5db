package web

import (
	"mime"
	"net/http"
	"os"
	"strings"

	"github.com/fpang/photo-resizer/internal/apperr"
	"github.com/fpang/photo-resizer/internal/imaging"
)

// GET /uploads/<name>
func (s *Server) handleServeUpload(w http.ResponseWriter, r *http.Request) {
	s.serveScratchFile(w, r, strings.TrimPrefix(r.URL.Path, "/uploads/"), false)
}

// GET /download/<name>
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.serveScratchFile(w, r, strings.TrimPrefix(r.URL.Path, "/download/"), true)
}

func (s *Server) serveScratchFile(w http.ResponseWriter, r *http.Request, name string, attachment bool) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if containsPathTraversal(name) || strings.ContainsAny(name, `/\`) {
		httpError(w, http.StatusBadRequest, "invalid path")
		return
	}

	f, err := s.store.Stat(name)
	if err != nil {
		if apperr.Is(err, apperr.KindInvalidInput) {
			httpError(w, http.StatusNotFound, "file not found")
			return
		}
		respondError(w, err)
		return
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		// Swept between Stat and Open.
		httpError(w, http.StatusNotFound, "file not found")
		return
	}
	defer fh.Close()

	w.Header().Set("Content-Type", contentType(f.Ext))
	if attachment {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	} else {
		w.Header().Set("Cache-Control", "private, max-age=600")
	}
	http.ServeContent(w, r, f.Name, f.ModTime, fh)
}

// contentType returns the MIME type for a scratch file extension. Anything
// that is not an image, PDF, or ZIP is served as an opaque byte stream so
// uploaded markup is never rendered.
func contentType(ext string) string {
	if mt, ok := imaging.SupportedImageExtensions["."+ext]; ok {
		return mt
	}
	switch ext {
	case "pdf":
		return "application/pdf"
	case "zip":
		return "application/zip"
	}
	return "application/octet-stream"
}
