package scratch

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-resizer/internal/metrics"
)

// Sweep deletes regular files in dir whose modification time is more than
// maxAge in the past. It never fails: a missing directory, unreadable entries,
// and files that vanish or refuse deletion are skipped. Subdirectories are
// left alone. Symlinks are followed when checking age and type.
func Sweep(dir string, maxAge time.Duration) {
	start := time.Now()
	removed := sweep(dir, maxAge, start)
	if removed > 0 {
		log.Info().
			Str("dir", dir).
			Int("removed", removed).
			Dur("max_age", maxAge).
			Msg("Expired scratch files removed")
	}
	metrics.RecordSweep(removed, time.Since(start))
}

// sweep returns the number of files removed.
func sweep(dir string, maxAge time.Duration, now time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("dir", dir).Msg("Failed to list scratch directory")
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.Remove(path); err != nil {
			log.Debug().Err(err).Str("path", path).Msg("Failed to remove expired scratch file")
			continue
		}
		removed++
	}
	return removed
}
