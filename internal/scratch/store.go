// Package scratch manages the flat scratch directory shared by every endpoint:
// uploads and generated outputs are written there as <hex-id>.<ext> and removed
// by Sweep once they are older than the retention window. There is no index;
// every attribute of a file comes from a stat call.
package scratch

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-resizer/internal/apperr"
	"github.com/fpang/photo-resizer/internal/imaging"
)

// DefaultExt is used when an uploaded filename has no extension.
const DefaultExt = "bin"

// DefaultMaxAge is the retention window used by the web and Lambda entry points.
const DefaultMaxAge = 30 * time.Minute

var (
	// ErrInvalidExtension is returned for extensions outside [a-z0-9]{1,10}.
	ErrInvalidExtension = errors.New("invalid file extension")
	// ErrInvalidName is returned by Stat for names that are not <hex-id>.<ext>.
	ErrInvalidName = errors.New("invalid scratch file name")
	// ErrNotFound is returned by Stat when the file does not exist (or expired).
	ErrNotFound = errors.New("scratch file not found")
)

var (
	extRegex  = regexp.MustCompile(`^[a-z0-9]{1,10}$`)
	nameRegex = regexp.MustCompile(`^[0-9a-f]{32}\.[a-z0-9]{1,10}$`)
)

// File is one entry in the scratch directory.
type File struct {
	ID      string
	Ext     string
	Name    string
	Path    string
	ModTime time.Time
	Size    int64

	// Width and Height are set by SaveImage when the content decodes as an
	// image; both are zero otherwise.
	Width  int
	Height int
}

// SizeKB returns the file size in kilobytes rounded to one decimal place.
func (f *File) SizeKB() float64 {
	return imaging.RoundKB(f.Size)
}

// HasDimensions reports whether Width/Height were read from the content.
func (f *File) HasDimensions() bool {
	return f.Width > 0 && f.Height > 0
}

// Store writes and looks up files in one scratch directory.
type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve scratch dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, apperr.Storage("create scratch dir", err)
	}
	return &Store{dir: abs}, nil
}

// Dir returns the absolute scratch directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save persists the full contents of r under a fresh <id>.<ext> name, where
// ext is taken from originalName (lower-cased, DefaultExt when absent).
func (s *Store) Save(r io.Reader, originalName string) (*File, error) {
	ext, err := ExtFromFilename(originalName)
	if err != nil {
		return nil, err
	}
	return s.write(r, ext)
}

// SaveBytes persists generated output (encoder results, PDFs, page images).
// ext is given without a leading dot.
func (s *Store) SaveBytes(data []byte, ext string) (*File, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if !extRegex.MatchString(ext) {
		return nil, apperr.InvalidInput("extension "+ext, ErrInvalidExtension)
	}
	return s.write(bytes.NewReader(data), ext)
}

// SaveImage is Save followed by an image header probe. When the content is
// not a decodable image the file stays stored and is returned together with a
// KindUnreadableImage error, so callers can degrade to "no dimensions".
func (s *Store) SaveImage(r io.Reader, originalName string) (*File, error) {
	f, err := s.Save(r, originalName)
	if err != nil {
		return nil, err
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		return f, apperr.Storage("reopen upload", err)
	}
	defer fh.Close()

	cfg, err := imaging.Probe(fh)
	if err != nil {
		log.Debug().Err(err).Str("name", f.Name).Msg("Upload is not a decodable image")
		return f, err
	}
	f.Width, f.Height = cfg.Width, cfg.Height
	return f, nil
}

// Stat looks up an existing scratch file by name.
func (s *Store) Stat(name string) (*File, error) {
	if !nameRegex.MatchString(name) {
		return nil, apperr.InvalidInput("name "+name, ErrInvalidName)
	}
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound(name, ErrNotFound)
		}
		return nil, apperr.Storage("stat "+name, err)
	}
	if !info.Mode().IsRegular() {
		return nil, apperr.NotFound(name, ErrNotFound)
	}
	id, ext, _ := strings.Cut(name, ".")
	return &File{
		ID:      id,
		Ext:     ext,
		Name:    name,
		Path:    path,
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}, nil
}

// Sweep removes files older than maxAge from the store's directory.
func (s *Store) Sweep(maxAge time.Duration) {
	Sweep(s.dir, maxAge)
}

// write streams r into a temp file inside the scratch directory and renames
// it to <id>.<ext>, so readers never observe a partially written file under
// its final name.
func (s *Store) write(r io.Reader, ext string) (*File, error) {
	id := NewID()
	name := id + "." + ext
	path := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, apperr.Storage("create temp file", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return nil, apperr.Storage("write "+name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, apperr.Storage("rename "+name, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, apperr.Storage("stat "+name, err)
	}

	log.Debug().
		Str("name", name).
		Int64("size_bytes", n).
		Msg("Scratch file written")

	return &File{
		ID:      id,
		Ext:     ext,
		Name:    name,
		Path:    path,
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}, nil
}

// NewID returns a 128-bit random identifier rendered as 32 lowercase hex characters.
func NewID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// ExtFromFilename extracts the lower-cased extension (no dot) from a client
// filename. Both / and \ are treated as directory separators since browsers
// on Windows may send full paths. An empty extension yields DefaultExt.
func ExtFromFilename(name string) (string, error) {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return DefaultExt, nil
	}
	if !extRegex.MatchString(ext) {
		return "", apperr.InvalidInput("extension of "+name, ErrInvalidExtension)
	}
	return ext, nil
}
