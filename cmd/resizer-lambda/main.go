// Package main runs the resizer API as an AWS Lambda function behind an
// API Gateway HTTP API (payload format 2.0). The scratch directory lives in
// /tmp, which persists only for the lifetime of one execution environment.
package main

import (
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-resizer/internal/config"
	"github.com/fpang/photo-resizer/internal/document"
	"github.com/fpang/photo-resizer/internal/logging"
	"github.com/fpang/photo-resizer/internal/metrics"
	"github.com/fpang/photo-resizer/internal/scratch"
	"github.com/fpang/photo-resizer/internal/web"
)

var server *web.Server

func init() {
	initStart := time.Now()

	cfg, err := config.Load()
	if err != nil {
		logging.Init()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	metrics.SetEnabled(true)

	store, err := scratch.New(cfg.Scratch.Dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Scratch.Dir).Msg("Failed to prepare scratch directory")
	}

	rasterAvailable := document.IsPdftoppmAvailable()

	server = web.New(store, web.Options{
		MaxAge:            cfg.Scratch.MaxAge,
		MaxUploadBytes:    cfg.Limits.MaxUploadBytes,
		DPI:               cfg.Document.DPI,
		AllowedOrigins:    cfg.Security.AllowedOrigins,
		RateRPS:           cfg.Limits.RateRPS,
		RateBurst:         cfg.Limits.RateBurst,
		TrustProxyHeaders: cfg.Security.TrustProxyHeaders,
	})

	logging.NewStartupLogger("resizer-lambda").
		CommitHash(commitHash).
		BuildTime(buildTime).
		Scratch(store.Dir(), cfg.Scratch.MaxAge).
		Limit("maxUploadMB", strconv.FormatInt(cfg.Limits.MaxUploadBytes>>20, 10)).
		Limit("rateRPS", strconv.FormatFloat(cfg.Limits.RateRPS, 'f', -1, 64)).
		Feature("pdfRaster", rasterAvailable).
		Feature("rateLimit", cfg.Limits.RateLimitEnabled()).
		Feature("trustProxyHeaders", cfg.Security.TrustProxyHeaders).
		Feature("backgroundRemoval", false).
		Config("pdfDPI", strconv.Itoa(cfg.Document.DPI)).
		InitDuration(time.Since(initStart)).
		Log()
}

func main() {
	adapter := httpadapter.NewV2(server.Handler())
	lambda.Start(adapter.ProxyWithContext)
}
