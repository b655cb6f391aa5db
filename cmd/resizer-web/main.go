package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/photo-resizer/internal/config"
	"github.com/fpang/photo-resizer/internal/document"
	"github.com/fpang/photo-resizer/internal/logging"
	"github.com/fpang/photo-resizer/internal/metrics"
	"github.com/fpang/photo-resizer/internal/scratch"
	"github.com/fpang/photo-resizer/internal/web"
)

// CLI flags
var (
	portFlag        int
	scratchDirFlag  string
	maxAgeFlag      time.Duration
	maxUploadMBFlag int
	metricsFlag     bool
)

var rootCmd = &cobra.Command{
	Use:   "resizer-web",
	Short: "HTTP server for photo/signature resizing and document conversion",
	Long: `Resizer Web starts a local HTTP server exposing the photo and signature
resizer and the document converter as a JSON API. Uploads and results live in
a scratch directory and are deleted after the retention window.

Settings come from RESIZER_* environment variables (optionally via .env);
flags override them.

Examples:
  resizer-web
  resizer-web --port 9090
  resizer-web --scratch-dir /var/tmp/resizer --max-age 10m`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (default RESIZER_PORT or 8080)")
	rootCmd.Flags().StringVar(&scratchDirFlag, "scratch-dir", "", "Scratch directory (default RESIZER_SCRATCH_DIR or ./uploads)")
	rootCmd.Flags().DurationVar(&maxAgeFlag, "max-age", 0, "Scratch file retention (default RESIZER_MAX_AGE or 30m)")
	rootCmd.Flags().IntVar(&maxUploadMBFlag, "max-upload-mb", 0, "Maximum request size in MiB (default RESIZER_MAX_UPLOAD_MB or 20)")
	rootCmd.Flags().BoolVar(&metricsFlag, "metrics", false, "Write CloudWatch EMF metric lines to stdout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	initStart := time.Now()

	cfg, err := config.Load()
	if err != nil {
		logging.Init()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	applyFlags(cmd, cfg)
	metrics.SetEnabled(metricsFlag)

	store, err := scratch.New(cfg.Scratch.Dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Scratch.Dir).Msg("Failed to prepare scratch directory")
	}

	rasterAvailable := document.IsPdftoppmAvailable()
	if !rasterAvailable {
		log.Warn().Msg("pdftoppm not found: /api/documents/pdf-to-image will fail until poppler is installed")
	}

	server := web.New(store, web.Options{
		MaxAge:            cfg.Scratch.MaxAge,
		MaxUploadBytes:    cfg.Limits.MaxUploadBytes,
		DPI:               cfg.Document.DPI,
		AllowedOrigins:    cfg.Security.AllowedOrigins,
		RateRPS:           cfg.Limits.RateRPS,
		RateBurst:         cfg.Limits.RateBurst,
		TrustProxyHeaders: cfg.Security.TrustProxyHeaders,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	logging.NewStartupLogger("resizer-web").
		CommitHash(commitHash).
		BuildTime(buildTime).
		Scratch(store.Dir(), cfg.Scratch.MaxAge).
		Limit("maxUploadMB", strconv.FormatInt(cfg.Limits.MaxUploadBytes>>20, 10)).
		Limit("rateRPS", strconv.FormatFloat(cfg.Limits.RateRPS, 'f', -1, 64)).
		Limit("rateBurst", strconv.Itoa(cfg.Limits.RateBurst)).
		Feature("pdfRaster", rasterAvailable).
		Feature("rateLimit", cfg.Limits.RateLimitEnabled()).
		Feature("trustProxyHeaders", cfg.Security.TrustProxyHeaders).
		Feature("metrics", metricsFlag).
		Feature("backgroundRemoval", false).
		Config("port", cfg.Server.Port).
		Config("pdfDPI", strconv.Itoa(cfg.Document.DPI)).
		InitDuration(time.Since(initStart)).
		Log()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	log.Info().Str("port", cfg.Server.Port).Msg("Starting web server")
	fmt.Printf("\n  Resizer API: http://localhost:%s/api/health\n\n", cfg.Server.Port)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// applyFlags overrides config values with flags the user set explicitly.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = strconv.Itoa(portFlag)
	}
	if flags.Changed("scratch-dir") {
		cfg.Scratch.Dir = scratchDirFlag
	}
	if flags.Changed("max-age") {
		if maxAgeFlag <= 0 {
			log.Fatal().Dur("max_age", maxAgeFlag).Msg("--max-age must be positive")
		}
		cfg.Scratch.MaxAge = maxAgeFlag
	}
	if flags.Changed("max-upload-mb") {
		if maxUploadMBFlag <= 0 {
			log.Fatal().Int("max_upload_mb", maxUploadMBFlag).Msg("--max-upload-mb must be positive")
		}
		cfg.Limits.MaxUploadBytes = int64(maxUploadMBFlag) << 20
	}
}
