package web

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-resizer/internal/apperr"
	"github.com/fpang/photo-resizer/internal/document"
	"github.com/fpang/photo-resizer/internal/imaging"
	"github.com/fpang/photo-resizer/internal/scratch"
)

// maxImagesPerPDF caps the number of files accepted by image-to-pdf.
const maxImagesPerPDF = 50

// DocumentItem describes one persisted document output.
type DocumentItem struct {
	Name        string  `json:"name"`
	PreviewURL  string  `json:"preview_url"`
	DownloadURL string  `json:"download_url"`
	SizeKB      float64 `json:"size_kb"`
	Type        string  `json:"type"`
	Page        int     `json:"page,omitempty"`
}

func newDocumentItem(f *scratch.File, page int) DocumentItem {
	return DocumentItem{
		Name:        f.Name,
		PreviewURL:  uploadURL(f.Name),
		DownloadURL: downloadURL(f.Name),
		SizeKB:      f.SizeKB(),
		Type:        strings.ToUpper(f.Ext),
		Page:        page,
	}
}

type pdfToImageResponse struct {
	Pages []DocumentItem `json:"pages"`
	Zip   DocumentItem   `json:"zip"`
}

type imageToPDFResponse struct {
	DocumentItem
	Pages int `json:"pages"`
}

type compressResponse struct {
	DocumentItem
	OriginalSizeKB float64 `json:"original_size_kb"`
}

type resultResponse struct {
	DownloadURL string  `json:"download_url"`
	Filename    string  `json:"filename"`
	SizeKB      float64 `json:"size_kb"`
	FileType    string  `json:"file_type"`
}

// readFormFile reads one uploaded part fully.
func readFormFile(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return readUpload(f, limit)
}

// POST /api/documents/pdf-to-image
//
// Form fields: file (PDF, required), format (jpg or png, default jpg),
// dpi (default from server options).
func (s *Server) handlePDFToImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.sweep()

	if err := s.parseMultipart(w, r); err != nil {
		respondFormError(w, err)
		return
	}

	opts := document.RasterOptions{DPI: s.opts.DPI, Format: imaging.FormatJPEG}
	if v := strings.TrimSpace(r.FormValue("format")); v != "" {
		f, err := imaging.ParseFormat(v)
		if err != nil {
			respondError(w, err)
			return
		}
		opts.Format = f
	}
	if v := strings.TrimSpace(r.FormValue("dpi")); v != "" {
		dpi, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, apperr.InvalidInput("dpi must be an integer", document.ErrInvalidDPI))
			return
		}
		opts.DPI = dpi
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	pdf, err := readUpload(file, s.opts.MaxUploadBytes)
	if err != nil {
		respondError(w, err)
		return
	}

	pages, err := document.PDFToImages(r.Context(), pdf, opts)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := pdfToImageResponse{Pages: make([]DocumentItem, 0, len(pages))}
	names := make([]string, 0, len(pages))
	for i, page := range pages {
		f, err := s.store.SaveBytes(page, opts.Format.Ext())
		if err != nil {
			respondError(w, err)
			return
		}
		resp.Pages = append(resp.Pages, newDocumentItem(f, i+1))
		names = append(names, document.PageName(i+1, opts.Format.Ext()))
	}

	bundle, err := document.ZipPages(names, pages)
	if err != nil {
		respondError(w, err)
		return
	}
	zf, err := s.store.SaveBytes(bundle, "zip")
	if err != nil {
		respondError(w, err)
		return
	}
	resp.Zip = newDocumentItem(zf, 0)

	log.Info().
		Int("pages", len(pages)).
		Int("dpi", opts.DPI).
		Str("format", string(opts.Format)).
		Str("zip", zf.Name).
		Msg("PDF converted to images")

	respondJSON(w, http.StatusOK, resp)
}

// POST /api/documents/image-to-pdf
//
// Form field: files (one or more images, in page order).
func (s *Server) handleImageToPDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.sweep()

	if err := s.parseMultipart(w, r); err != nil {
		respondFormError(w, err)
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		httpError(w, http.StatusBadRequest, "at least one file is required")
		return
	}
	if len(headers) > maxImagesPerPDF {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("at most %d files are allowed", maxImagesPerPDF))
		return
	}

	images := make([][]byte, 0, len(headers))
	for _, h := range headers {
		data, err := readFormFile(h, s.opts.MaxUploadBytes)
		if err != nil {
			respondError(w, err)
			return
		}
		images = append(images, data)
	}

	pdf, err := document.ImagesToPDF(images)
	if err != nil {
		respondError(w, err)
		return
	}
	f, err := s.store.SaveBytes(pdf, "pdf")
	if err != nil {
		respondError(w, err)
		return
	}

	log.Info().
		Int("pages", len(images)).
		Str("filename", f.Name).
		Float64("size_kb", f.SizeKB()).
		Msg("Images combined into PDF")

	respondJSON(w, http.StatusOK, imageToPDFResponse{
		DocumentItem: newDocumentItem(f, 0),
		Pages:        len(images),
	})
}

// POST /api/documents/compress
//
// Form field: file (PDF, required).
func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.sweep()

	if err := s.parseMultipart(w, r); err != nil {
		respondFormError(w, err)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	pdf, err := readUpload(file, s.opts.MaxUploadBytes)
	if err != nil {
		respondError(w, err)
		return
	}

	optimized, err := document.Optimize(pdf)
	if err != nil {
		respondError(w, err)
		return
	}
	f, err := s.store.SaveBytes(optimized, "pdf")
	if err != nil {
		respondError(w, err)
		return
	}

	log.Info().
		Int("input_size", len(pdf)).
		Int64("output_size", f.Size).
		Str("filename", f.Name).
		Msg("PDF compressed")

	respondJSON(w, http.StatusOK, compressResponse{
		DocumentItem:   newDocumentItem(f, 0),
		OriginalSizeKB: imaging.RoundKB(int64(len(pdf))),
	})
}

// GET /api/documents/result?download=/download/<name>
func (s *Server) handleDocumentResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.sweep()

	download := r.URL.Query().Get("download")
	if download == "" {
		httpError(w, http.StatusBadRequest, "download is required")
		return
	}
	if containsPathTraversal(download) {
		httpError(w, http.StatusBadRequest, "invalid download path")
		return
	}

	name := path.Base(strings.ReplaceAll(download, `\`, "/"))
	f, err := s.store.Stat(name)
	if err != nil {
		if apperr.Is(err, apperr.KindInvalidInput) {
			// A name that could never have been issued is reported as absent.
			httpError(w, http.StatusNotFound, "file not found")
			return
		}
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resultResponse{
		DownloadURL: download,
		Filename:    f.Name,
		SizeKB:      f.SizeKB(),
		FileType:    strings.ToUpper(f.Ext),
	})
}
