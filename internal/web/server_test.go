package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fpang/photo-resizer/internal/document"
	"github.com/fpang/photo-resizer/internal/metrics"
	"github.com/fpang/photo-resizer/internal/scratch"
)

func TestMain(m *testing.M) {
	metrics.SetEnabled(false)
	os.Exit(m.Run())
}

type filePart struct {
	field    string
	filename string
	data     []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...filePart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range files {
		w, err := mw.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatal(err)
		}
		w.Write(f.data)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func gradientPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), uint8(x + y), 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestServer(t *testing.T, opts Options) (http.Handler, *scratch.Store) {
	t.Helper()
	store, err := scratch.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return New(store, opts).Handler(), store
}

func postMultipart(t *testing.T, h http.Handler, path string, fields map[string]string, files ...filePart) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, fields, files...)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return m
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t, Options{})

	rec := get(h, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/health status = %d, want 200", rec.Code)
	}
	if got := decodeJSON(t, rec)["status"]; got != "ok" {
		t.Errorf("status = %v, want ok", got)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/health", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/health status = %d, want 405", rec.Code)
	}
}

func TestPhotoUpload(t *testing.T) {
	h, store := newTestServer(t, Options{})

	for _, path := range []string{"/api/photo", "/api/signature"} {
		t.Run(path, func(t *testing.T) {
			rec := postMultipart(t, h, path, nil, filePart{"file", "photo.PNG", gradientPNG(t, 200, 100)})
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
			}
			resp := decodeJSON(t, rec)

			if resp["type"] != "png" {
				t.Errorf("type = %v, want png", resp["type"])
			}
			if resp["width"] != float64(200) || resp["height"] != float64(100) {
				t.Errorf("dimensions = %vx%v, want 200x100", resp["width"], resp["height"])
			}
			name, _ := resp["filename"].(string)
			if resp["url"] != "/uploads/"+name {
				t.Errorf("url = %v, want /uploads/%s", resp["url"], name)
			}
			if _, err := store.Stat(name); err != nil {
				t.Errorf("uploaded file not stored: %v", err)
			}
		})
	}
}

func TestPhotoUpload_NonImage(t *testing.T) {
	h, _ := newTestServer(t, Options{})

	rec := postMultipart(t, h, "/api/photo", nil, filePart{"file", "notes.txt", []byte("hello")})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON(t, rec)
	if w, ok := resp["width"]; !ok || w != nil {
		t.Errorf("width = %v (present %v), want null", w, ok)
	}
	if ht, ok := resp["height"]; !ok || ht != nil {
		t.Errorf("height = %v (present %v), want null", ht, ok)
	}
	if resp["type"] != "txt" {
		t.Errorf("type = %v, want txt", resp["type"])
	}
}

func TestPhotoUpload_MissingFile(t *testing.T) {
	h, _ := newTestServer(t, Options{})

	rec := postMultipart(t, h, "/api/photo", map[string]string{"other": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPhotoUpload_TooLarge(t *testing.T) {
	h, _ := newTestServer(t, Options{MaxUploadBytes: 1024})

	rec := postMultipart(t, h, "/api/photo", nil, filePart{"file", "big.bin", bytes.Repeat([]byte("x"), 8192)})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413: %s", rec.Code, rec.Body.String())
	}
}

func TestPhotoPreview(t *testing.T) {
	h, _ := newTestServer(t, Options{})
	src := gradientPNG(t, 400, 300)

	for _, path := range []string{"/api/photo-preview", "/photo-preview"} {
		t.Run(path, func(t *testing.T) {
			rec := postMultipart(t, h, path,
				map[string]string{"width": "100", "height": "50", "kb": "50", "format": "JPG"},
				filePart{"image_file", "source.png", src})
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
			}
			resp := decodeJSON(t, rec)

			if resp["width"] != float64(100) || resp["height"] != float64(50) {
				t.Errorf("dimensions = %vx%v, want 100x50", resp["width"], resp["height"])
			}
			if resp["type"] != "jpg" {
				t.Errorf("type = %v, want jpg", resp["type"])
			}
			if kb, _ := resp["size_kb"].(float64); kb <= 0 || kb > 50 {
				t.Errorf("size_kb = %v, want in (0, 50]", resp["size_kb"])
			}
			if resp["within_budget"] != true {
				t.Errorf("within_budget = %v, want true", resp["within_budget"])
			}

			preview, _ := resp["preview_url"].(string)
			download, _ := resp["download_url"].(string)
			if !strings.HasPrefix(preview, "/uploads/") || !strings.HasPrefix(download, "/download/") {
				t.Fatalf("urls = (%q, %q)", preview, download)
			}
			if strings.TrimPrefix(preview, "/uploads/") != strings.TrimPrefix(download, "/download/") {
				t.Errorf("preview and download refer to different files: %q, %q", preview, download)
			}

			served := get(h, preview)
			if served.Code != http.StatusOK {
				t.Fatalf("GET %s status = %d, want 200", preview, served.Code)
			}
			if ct := served.Header().Get("Content-Type"); ct != "image/jpeg" {
				t.Errorf("Content-Type = %q, want image/jpeg", ct)
			}
		})
	}
}

func TestPhotoPreview_Defaults(t *testing.T) {
	h, _ := newTestServer(t, Options{})

	rec := postMultipart(t, h, "/api/photo-preview", nil, filePart{"image_file", "s.png", gradientPNG(t, 64, 48)})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON(t, rec)
	if resp["width"] != float64(64) || resp["height"] != float64(48) {
		t.Errorf("dimensions = %vx%v, want source 64x48", resp["width"], resp["height"])
	}
	if resp["type"] != "jpg" {
		t.Errorf("type = %v, want jpg default", resp["type"])
	}
}

func TestPhotoPreview_Errors(t *testing.T) {
	h, _ := newTestServer(t, Options{})
	src := gradientPNG(t, 32, 32)

	tests := []struct {
		name       string
		fields     map[string]string
		files      []filePart
		wantStatus int
	}{
		{"width only", map[string]string{"width": "100"}, []filePart{{"image_file", "a.png", src}}, http.StatusBadRequest},
		{"height only", map[string]string{"height": "100"}, []filePart{{"image_file", "a.png", src}}, http.StatusBadRequest},
		{"negative", map[string]string{"width": "-1", "height": "10"}, []filePart{{"image_file", "a.png", src}}, http.StatusBadRequest},
		{"zero dimensions", map[string]string{"width": "0", "height": "0", "kb": "500"}, []filePart{{"image_file", "a.png", src}}, http.StatusBadRequest},
		{"zero height", map[string]string{"width": "10", "height": "0"}, []filePart{{"image_file", "a.png", src}}, http.StatusBadRequest},
		{"non-numeric width", map[string]string{"width": "wide", "height": "10"}, []filePart{{"image_file", "a.png", src}}, http.StatusBadRequest},
		{"bad format", map[string]string{"format": "webp"}, []filePart{{"image_file", "a.png", src}}, http.StatusBadRequest},
		{"zero budget", map[string]string{"kb": "0"}, []filePart{{"image_file", "a.png", src}}, http.StatusBadRequest},
		{"missing image", nil, nil, http.StatusBadRequest},
		{"unreadable image", nil, []filePart{{"image_file", "a.png", []byte("nope")}}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postMultipart(t, h, "/api/photo-preview", tt.fields, tt.files...)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if _, ok := decodeJSON(t, rec)["error"]; !ok {
				t.Error("error response missing error field")
			}
		})
	}
}

func TestBackgroundRemovalDisabled(t *testing.T) {
	h, _ := newTestServer(t, Options{})

	for _, path := range []string{"/api/bg-process", "/api/signature-bg-process"} {
		rec := postMultipart(t, h, path, nil, filePart{"file", "a.png", gradientPNG(t, 4, 4)})
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, rec.Code)
		}
		if got := decodeJSON(t, rec)["error"]; got != "Background removal temporarily disabled" {
			t.Errorf("%s error = %v", path, got)
		}
	}
}

func TestDocumentResult(t *testing.T) {
	h, store := newTestServer(t, Options{})
	f, err := store.SaveBytes(make([]byte, 3072), "pdf")
	if err != nil {
		t.Fatal(err)
	}

	rec := get(h, "/api/documents/result?download=/download/"+f.Name)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON(t, rec)
	if resp["filename"] != f.Name {
		t.Errorf("filename = %v, want %s", resp["filename"], f.Name)
	}
	if resp["file_type"] != "PDF" {
		t.Errorf("file_type = %v, want PDF", resp["file_type"])
	}
	if resp["size_kb"] != float64(3) {
		t.Errorf("size_kb = %v, want 3", resp["size_kb"])
	}
	if resp["download_url"] != "/download/"+f.Name {
		t.Errorf("download_url = %v", resp["download_url"])
	}
}

func TestDocumentResult_Errors(t *testing.T) {
	h, _ := newTestServer(t, Options{})

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"missing param", "/api/documents/result", http.StatusBadRequest},
		{"absent file", "/api/documents/result?download=/download/" + strings.Repeat("a", 32) + ".pdf", http.StatusNotFound},
		{"malformed name", "/api/documents/result?download=/download/secret.txt", http.StatusNotFound},
		{"traversal", "/api/documents/result?download=/download/../../etc/passwd", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := get(h, tt.target); rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestServeScratchFiles(t *testing.T) {
	h, store := newTestServer(t, Options{})
	f, err := store.SaveBytes([]byte("%PDF-1.4"), "pdf")
	if err != nil {
		t.Fatal(err)
	}

	inline := get(h, "/uploads/"+f.Name)
	if inline.Code != http.StatusOK {
		t.Fatalf("GET /uploads status = %d, want 200", inline.Code)
	}
	if cd := inline.Header().Get("Content-Disposition"); cd != "" {
		t.Errorf("inline Content-Disposition = %q, want none", cd)
	}
	if ct := inline.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q, want application/pdf", ct)
	}

	dl := get(h, "/download/"+f.Name)
	if dl.Code != http.StatusOK {
		t.Fatalf("GET /download status = %d, want 200", dl.Code)
	}
	if cd := dl.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, f.Name) {
		t.Errorf("Content-Disposition = %q, want attachment with filename", cd)
	}
	if dl.Body.String() != "%PDF-1.4" {
		t.Errorf("body = %q", dl.Body.String())
	}

	if rec := get(h, "/download/"+strings.Repeat("b", 32)+".pdf"); rec.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", rec.Code)
	}
	if rec := get(h, "/uploads/index.html"); rec.Code != http.StatusNotFound {
		t.Errorf("malformed name status = %d, want 404", rec.Code)
	}
}

func TestServeScratchFiles_UnknownTypeIsOpaque(t *testing.T) {
	h, store := newTestServer(t, Options{})
	f, err := store.Save(strings.NewReader("<script>alert(1)</script>"), "page.html")
	if err != nil {
		t.Fatal(err)
	}

	rec := get(h, "/uploads/"+f.Name)
	if ct := rec.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Content-Type = %q, want application/octet-stream", ct)
	}
}

func TestUploadSweepsExpiredFiles(t *testing.T) {
	h, store := newTestServer(t, Options{MaxAge: 30 * time.Minute})

	stale := filepath.Join(store.Dir(), strings.Repeat("c", 32)+".jpg")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	rec := postMultipart(t, h, "/api/photo", nil, filePart{"file", "a.png", gradientPNG(t, 8, 8)})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("expired file still present after upload (err = %v)", err)
	}
}

func TestImageToPDF(t *testing.T) {
	h, store := newTestServer(t, Options{})

	rec := postMultipart(t, h, "/api/documents/image-to-pdf", nil,
		filePart{"files", "one.png", gradientPNG(t, 40, 30)},
		filePart{"files", "two.png", gradientPNG(t, 30, 40)})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON(t, rec)
	if resp["type"] != "PDF" {
		t.Errorf("type = %v, want PDF", resp["type"])
	}
	if resp["pages"] != float64(2) {
		t.Errorf("pages = %v, want 2", resp["pages"])
	}

	f, err := store.Stat(resp["name"].(string))
	if err != nil {
		t.Fatalf("PDF not stored: %v", err)
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		t.Fatal(err)
	}
	if n, err := document.PageCount(data); err != nil || n != 2 {
		t.Errorf("PageCount() = %d, %v; want 2, nil", n, err)
	}
}

func TestImageToPDF_NoFiles(t *testing.T) {
	h, _ := newTestServer(t, Options{})

	rec := postMultipart(t, h, "/api/documents/image-to-pdf", map[string]string{"x": "y"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCompress(t *testing.T) {
	h, _ := newTestServer(t, Options{})
	pdf, err := document.ImagesToPDF([][]byte{gradientPNG(t, 50, 50)})
	if err != nil {
		t.Fatal(err)
	}

	rec := postMultipart(t, h, "/api/documents/compress", nil, filePart{"file", "in.pdf", pdf})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON(t, rec)
	if resp["type"] != "PDF" {
		t.Errorf("type = %v, want PDF", resp["type"])
	}
	orig, _ := resp["original_size_kb"].(float64)
	size, _ := resp["size_kb"].(float64)
	if orig <= 0 || size > orig {
		t.Errorf("size_kb = %v, original_size_kb = %v", size, orig)
	}

	rec = postMultipart(t, h, "/api/documents/compress", nil, filePart{"file", "in.pdf", []byte("not a pdf")})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-PDF status = %d, want 400", rec.Code)
	}
}

func TestPDFToImage(t *testing.T) {
	if !document.IsPdftoppmAvailable() {
		t.Skip("pdftoppm not available")
	}
	h, _ := newTestServer(t, Options{})
	pdf, err := document.ImagesToPDF([][]byte{gradientPNG(t, 60, 60), gradientPNG(t, 60, 60)})
	if err != nil {
		t.Fatal(err)
	}

	rec := postMultipart(t, h, "/api/documents/pdf-to-image",
		map[string]string{"format": "png", "dpi": "72"},
		filePart{"file", "doc.pdf", pdf})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp pdfToImageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(resp.Pages))
	}
	for i, p := range resp.Pages {
		if p.Page != i+1 || p.Type != "PNG" {
			t.Errorf("page %d = %+v", i, p)
		}
	}
	if resp.Zip.Type != "ZIP" {
		t.Errorf("zip type = %q, want ZIP", resp.Zip.Type)
	}
}

func TestPDFToImage_InvalidDPI(t *testing.T) {
	h, _ := newTestServer(t, Options{})

	rec := postMultipart(t, h, "/api/documents/pdf-to-image",
		map[string]string{"dpi": "high"},
		filePart{"file", "doc.pdf", []byte("%PDF-1.4")})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPDFToImage_RasterUnavailable(t *testing.T) {
	t.Setenv("PATH", "")
	h, _ := newTestServer(t, Options{})

	rec := postMultipart(t, h, "/api/documents/pdf-to-image", nil,
		filePart{"file", "doc.pdf", []byte("%PDF-1.4\n")})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503: %s", rec.Code, rec.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	h, _ := newTestServer(t, Options{RateRPS: 0.001, RateBurst: 2})

	codes := []int{}
	for i := 0; i < 3; i++ {
		rec := postMultipart(t, h, "/api/bg-process", nil)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusServiceUnavailable || codes[1] != http.StatusServiceUnavailable {
		t.Errorf("first two responses = %v, want 503s", codes[:2])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third response = %d, want 429", codes[2])
	}

	if rec := get(h, "/api/health"); rec.Code != http.StatusOK {
		t.Errorf("GET after limit status = %d, want 200", rec.Code)
	}
}

func TestRateLimit_IgnoresRotatingForwardedFor(t *testing.T) {
	h, _ := newTestServer(t, Options{RateRPS: 0.001, RateBurst: 1})

	limited := 0
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/bg-process", nil)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i+1))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 4 {
		t.Errorf("rate limited requests = %d, want 4", limited)
	}
}

func TestRateLimit_TrustedProxyHeaders(t *testing.T) {
	h, _ := newTestServer(t, Options{RateRPS: 0.001, RateBurst: 1, TrustProxyHeaders: true})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/bg-process", nil)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			t.Errorf("client %d status = 429, want its own bucket", i+1)
		}
	}
}

func TestCORS(t *testing.T) {
	h, _ := newTestServer(t, Options{AllowedOrigins: []string{"https://resizer.example"}})

	tests := []struct {
		origin string
		allow  bool
	}{
		{"http://localhost:5173", true},
		{"http://127.0.0.1:8080", true},
		{"https://resizer.example", true},
		{"https://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/photo", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusNoContent {
				t.Errorf("OPTIONS status = %d, want 204", rec.Code)
			}
			got := rec.Header().Get("Access-Control-Allow-Origin") == tt.origin
			if got != tt.allow {
				t.Errorf("origin allowed = %v, want %v", got, tt.allow)
			}
		})
	}
}
