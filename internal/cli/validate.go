package cli

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-resizer/internal/apperr"
)

// ValidateAndResolveDirectory checks that the path exists and is a directory,
// then returns the absolute path. Exits fatally on failure.
func ValidateAndResolveDirectory(dirPath string) string {
	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Fatal().Str("path", dirPath).Msg("Directory not found")
		}
		log.Fatal().Err(err).Str("path", dirPath).Msg("Failed to access directory")
	}
	if !info.IsDir() {
		log.Fatal().Str("path", dirPath).Msg("Path is not a directory")
	}

	absPath, err := filepath.Abs(dirPath)
	if err == nil {
		dirPath = absPath
	}

	return dirPath
}

// ReadInputFile reads a file named on the command line. Exits fatally on failure.
func ReadInputFile(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Fatal().Str("path", path).Msg("Input file not found")
		}
		log.Fatal().Err(err).Str("path", path).Msg("Failed to read input file")
	}
	return data
}

// HandleError exits with a message matched to the error's kind.
func HandleError(err error, op string) {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput:
		log.Fatal().Err(err).Str("op", op).Msg("Invalid input")
	case apperr.KindUnreadableImage:
		log.Fatal().Err(err).Str("op", op).Msg("Input is not a readable image")
	case apperr.KindNotFound:
		log.Fatal().Err(err).Str("op", op).Msg("File not found")
	case apperr.KindStorage:
		log.Fatal().Err(err).Str("op", op).Msg("Failed to write output")
	default:
		log.Fatal().Err(err).Str("op", op).Msg("Operation failed")
	}
	os.Exit(1)
}
