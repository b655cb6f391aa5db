// Package web exposes the resizer and document converter as a JSON API over
// a shared scratch directory. The same handler serves the local binary and
// the Lambda function.
package web

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-resizer/internal/document"
	"github.com/fpang/photo-resizer/internal/scratch"
)

// Defaults applied by New for zero-valued Options fields.
const (
	DefaultMaxUploadBytes int64 = 20 * 1024 * 1024
	DefaultBudgetKB             = 50
)

// multipartMemory is the in-memory threshold for ParseMultipartForm; larger
// parts spill to temporary files.
const multipartMemory = 8 << 20

// Options configure a Server.
type Options struct {
	// MaxAge is the scratch retention window enforced before each upload.
	MaxAge time.Duration
	// MaxUploadBytes caps the request body size.
	MaxUploadBytes int64
	// DPI is the default rasterization resolution for PDF pages.
	DPI int
	// AllowedOrigins are CORS origins accepted in addition to localhost.
	AllowedOrigins []string
	// RateRPS and RateBurst configure per-IP POST rate limiting; RateRPS <= 0
	// disables it.
	RateRPS   float64
	RateBurst int
	// TrustProxyHeaders keys rate limiting on X-Forwarded-For / X-Real-IP
	// instead of RemoteAddr. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool
}

// Server holds the dependencies shared by all handlers.
type Server struct {
	store   *scratch.Store
	opts    Options
	limiter *IPRateLimiter
}

// New creates a Server writing to store.
func New(store *scratch.Store, opts Options) *Server {
	if opts.MaxAge <= 0 {
		opts.MaxAge = scratch.DefaultMaxAge
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.DPI <= 0 {
		opts.DPI = document.DefaultDPI
	}

	s := &Server{store: store, opts: opts}
	if opts.RateRPS > 0 && opts.RateBurst > 0 {
		s.limiter = NewIPRateLimiter(opts.RateRPS, opts.RateBurst)
	}
	return s
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)

	mux.HandleFunc("/api/photo", s.handlePhoto)
	mux.HandleFunc("/api/signature", s.handleSignature)
	mux.HandleFunc("/api/photo-preview", s.handlePhotoPreview)
	mux.HandleFunc("/photo-preview", s.handlePhotoPreview)
	mux.HandleFunc("/api/bg-process", s.handleBackgroundRemoval)
	mux.HandleFunc("/api/signature-bg-process", s.handleBackgroundRemoval)

	mux.HandleFunc("/api/documents/pdf-to-image", s.handlePDFToImage)
	mux.HandleFunc("/api/documents/image-to-pdf", s.handleImageToPDF)
	mux.HandleFunc("/api/documents/compress", s.handleCompress)
	mux.HandleFunc("/api/documents/result", s.handleDocumentResult)

	mux.HandleFunc("/uploads/", s.handleServeUpload)
	mux.HandleFunc("/download/", s.handleDownload)

	var handler http.Handler = mux
	handler = withRateLimit(s.limiter, s.opts.TrustProxyHeaders)(handler)
	handler = withSecurityHeaders(handler)
	handler = withCORS(s.opts.AllowedOrigins)(handler)
	handler = withMetrics(handler)
	handler = withLogging(handler)
	return handler
}

// sweep runs the janitor before handling an upload. It never fails the request.
func (s *Server) sweep() {
	s.store.Sweep(s.opts.MaxAge)
}

// parseMultipart enforces the upload size limit and parses the form.
func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("Failed to parse multipart form")
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
