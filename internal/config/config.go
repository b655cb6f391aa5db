// Package config loads resizer settings from the environment, with an
// optional .env file in the working directory.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LambdaScratchDir is the scratch directory used when running inside AWS
// Lambda, where /tmp is the only writable location.
const LambdaScratchDir = "/tmp/uploads"

type Config struct {
	Server   ServerConfig
	Scratch  ScratchConfig
	Limits   LimitsConfig
	Document DocumentConfig
	Security SecurityConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type ScratchConfig struct {
	Dir    string
	MaxAge time.Duration
}

type LimitsConfig struct {
	MaxUploadBytes int64
	RateRPS        float64
	RateBurst      int
}

type DocumentConfig struct {
	DPI int
}

type SecurityConfig struct {
	AllowedOrigins []string
	// TrustProxyHeaders makes the rate limiter read the client address from
	// X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool
}

type LogConfig struct {
	Level  string
	Format string
}

// InLambda reports whether the process runs inside AWS Lambda.
func InLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// Load reads .env (if present) and then RESIZER_* environment variables.
// Values already set in the environment win over .env entries.
func Load() (*Config, error) {
	_ = godotenv.Load()

	maxAge, err := time.ParseDuration(getEnv("RESIZER_MAX_AGE", "30m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RESIZER_MAX_AGE: %w", err)
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("invalid RESIZER_MAX_AGE: must be positive, got %s", maxAge)
	}

	maxUploadMB, err := strconv.Atoi(getEnv("RESIZER_MAX_UPLOAD_MB", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid RESIZER_MAX_UPLOAD_MB: %w", err)
	}
	if maxUploadMB <= 0 {
		return nil, fmt.Errorf("invalid RESIZER_MAX_UPLOAD_MB: must be positive, got %d", maxUploadMB)
	}

	rateRPS, err := strconv.ParseFloat(getEnv("RESIZER_RATE_RPS", "2"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RESIZER_RATE_RPS: %w", err)
	}

	rateBurst, err := strconv.Atoi(getEnv("RESIZER_RATE_BURST", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid RESIZER_RATE_BURST: %w", err)
	}

	trustProxy, err := strconv.ParseBool(getEnv("RESIZER_TRUST_PROXY", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid RESIZER_TRUST_PROXY: %w", err)
	}

	dpi, err := strconv.Atoi(getEnv("RESIZER_PDF_DPI", "150"))
	if err != nil {
		return nil, fmt.Errorf("invalid RESIZER_PDF_DPI: %w", err)
	}

	scratchDefault, logFormatDefault := "uploads", "console"
	if InLambda() {
		scratchDefault, logFormatDefault = LambdaScratchDir, "json"
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("RESIZER_PORT", "8080"),
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Scratch: ScratchConfig{
			Dir:    getEnv("RESIZER_SCRATCH_DIR", scratchDefault),
			MaxAge: maxAge,
		},
		Limits: LimitsConfig{
			MaxUploadBytes: int64(maxUploadMB) * 1024 * 1024,
			RateRPS:        rateRPS,
			RateBurst:      rateBurst,
		},
		Document: DocumentConfig{
			DPI: dpi,
		},
		Security: SecurityConfig{
			AllowedOrigins:    splitCSV(getEnv("RESIZER_ALLOWED_ORIGINS", "")),
			TrustProxyHeaders: trustProxy,
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("RESIZER_LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("RESIZER_LOG_FORMAT", logFormatDefault)),
		},
	}

	return cfg, nil
}

// RateLimitEnabled reports whether POST rate limiting is configured.
// A non-positive RESIZER_RATE_RPS disables it.
func (c *LimitsConfig) RateLimitEnabled() bool {
	return c.RateRPS > 0 && c.RateBurst > 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitCSV(raw string) []string {
	items := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
