package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init initializes the global logger with configuration from environment variables.
// RESIZER_LOG_LEVEL controls the log level: debug, info, warn, error (default: info)
// RESIZER_LOG_FORMAT selects the output: console (default) or json.
func Init() {
	Setup(os.Getenv("RESIZER_LOG_LEVEL"), os.Getenv("RESIZER_LOG_FORMAT"), os.Stderr)
}

// Setup configures the global logger explicitly. Entry points call it after
// config.Load so flags and .env values apply.
func Setup(level, format string, w io.Writer) {
	zerolog.SetGlobalLevel(ParseLevel(level))

	if strings.EqualFold(format, "json") {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w})
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
