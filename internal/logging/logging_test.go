package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})
	var buf bytes.Buffer
	Setup("info", "json", &buf)
	return &buf
}

func TestSetup_JSONRespectsLevel(t *testing.T) {
	buf := captureJSON(t)

	log.Debug().Msg("hidden")
	log.Info().Str("k", "v").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug event written at info level: %s", out)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &doc); err != nil {
		t.Fatalf("output is not a single JSON line: %v\n%s", err, out)
	}
	if doc["k"] != "v" || doc["message"] != "shown" {
		t.Errorf("unexpected event %v", doc)
	}
}

func TestStartupLogger_Log(t *testing.T) {
	buf := captureJSON(t)
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")

	NewStartupLogger("resizer-web").
		CommitHash("abc123").
		BuildTime("2026-01-01T00:00:00Z").
		Scratch("/tmp/uploads", 30*time.Minute).
		Limit("maxUploadMB", "20").
		Feature("pdfRaster", true).
		Config("port", "8080").
		InitDuration(5 * time.Millisecond).
		Log()

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &doc); err != nil {
		t.Fatalf("failed to parse startup event: %v", err)
	}

	if doc["message"] != "Startup complete" {
		t.Errorf("message = %v, want Startup complete", doc["message"])
	}
	process, _ := doc["process"].(map[string]interface{})
	if process["name"] != "resizer-web" || process["commitHash"] != "abc123" {
		t.Errorf("process = %v", process)
	}
	if _, ok := doc["lambda"]; ok {
		t.Error("lambda section present outside Lambda")
	}
	scratch, _ := doc["scratch"].(map[string]interface{})
	if scratch["dir"] != "/tmp/uploads" {
		t.Errorf("scratch.dir = %v, want /tmp/uploads", scratch["dir"])
	}
	features, _ := doc["features"].(map[string]interface{})
	if features["pdfRaster"] != true {
		t.Errorf("features.pdfRaster = %v, want true", features["pdfRaster"])
	}
	limits, _ := doc["limits"].(map[string]interface{})
	if limits["maxUploadMB"] != "20" {
		t.Errorf("limits.maxUploadMB = %v, want 20", limits["maxUploadMB"])
	}
}
