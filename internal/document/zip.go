package document

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/flate"
)

// ZipPages bundles files into a ZIP archive, storing files[i] as names[i].
// Entries use Deflate so every unzip tool can open the bundle; page images
// are already compressed, so the fastest level is used.
func ZipPages(names []string, files [][]byte) ([]byte, error) {
	if len(names) != len(files) {
		return nil, fmt.Errorf("zip pages: %d names for %d files", len(names), len(files))
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestSpeed)
	})

	modified := time.Now()
	for i, name := range names {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("zip entry %s: %w", name, err)
		}
		if _, err := w.Write(files[i]); err != nil {
			return nil, fmt.Errorf("zip entry %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize zip: %w", err)
	}
	return buf.Bytes(), nil
}

// PageName returns the file name used for page n (1-based) inside a bundle.
func PageName(n int, ext string) string {
	return fmt.Sprintf("page-%03d.%s", n, ext)
}
