package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/rajpdus/meeting-sidekick/internal/errors"
)

var configEnv = []string{
	FileEnv, "OPENAI_API_KEY", "OPENAI_BASE_URL", "COMPLETION_MODEL", "STT_BACKEND", "WHISPER_MODEL",
	"INFERENCE_ADDR", "AUDIO_DEVICE", "SAMPLE_RATE", "FRAME_SAMPLES", "WINDOW_FRAMES", "OVERLAP_FRAMES",
	"SILENCE_THRESHOLD", "QUEUE_CAPACITY", "INSIGHT_COOLDOWN", "CONTEXT_SIZE", "MIN_INSIGHT_CONTEXT",
	"UPDATE_INTERVAL", "SUMMARY_EVERY", "ACTION_ITEMS_EVERY", "SUMMARY_WINDOW", "STOP_TIMEOUT",
	"JSON_REPAIR", "HTTP_ADDR", "EXPORT_DIRECTORY", "LOG_LEVEL",
	"COMPLETION_TIMEOUT", "TRANSCRIBE_TIMEOUT", "FINALIZE_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range configEnv {
		t.Setenv(v, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.FrameSamples != 2500 {
		t.Errorf("FrameSamples = %d, want 2500", cfg.FrameSamples)
	}
	if cfg.WindowFrames != 11 || cfg.OverlapFrames != 2 {
		t.Errorf("window/overlap = %d/%d, want 11/2", cfg.WindowFrames, cfg.OverlapFrames)
	}
	if cfg.SilenceThreshold != 0.01 {
		t.Errorf("SilenceThreshold = %f, want 0.01", cfg.SilenceThreshold)
	}
	if cfg.InsightCooldown != 30*time.Second {
		t.Errorf("InsightCooldown = %v, want 30s", cfg.InsightCooldown)
	}
	if cfg.ContextSize != 20 || cfg.MinInsightContext != 3 {
		t.Errorf("context = %d/%d, want 20/3", cfg.ContextSize, cfg.MinInsightContext)
	}
	if cfg.UpdateInterval != 5*time.Second || cfg.SummaryEvery != 5 || cfg.ActionItemsEvery != 10 {
		t.Errorf("cadence = %v/%d/%d", cfg.UpdateInterval, cfg.SummaryEvery, cfg.ActionItemsEvery)
	}
	if cfg.CompletionModel != "gpt-4" {
		t.Errorf("CompletionModel = %q, want gpt-4", cfg.CompletionModel)
	}
	if cfg.CompletionTimeout != 30*time.Second || cfg.TranscribeTimeout != 30*time.Second || cfg.FinalizeTimeout != 45*time.Second {
		t.Errorf("timeouts = %v/%v/%v", cfg.CompletionTimeout, cfg.TranscribeTimeout, cfg.FinalizeTimeout)
	}
	if cfg.ExportDir != "meeting_exports" {
		t.Errorf("ExportDir = %q", cfg.ExportDir)
	}
	if cfg.HasAPIKey() {
		t.Error("HasAPIKey should be false without OPENAI_API_KEY")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "sidekick.yaml")
	doc := "openai_api_key: from-file\ninsight_cooldown: 45s\ncontext_size: 12\nstt_backend: grpc\nhttp_addr: \":9000\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(FileEnv, path)
	t.Setenv("CONTEXT_SIZE", "8")
	t.Setenv("UPDATE_INTERVAL", "2.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.OpenAIAPIKey != "from-file" {
		t.Errorf("OpenAIAPIKey = %q", cfg.OpenAIAPIKey)
	}
	if cfg.InsightCooldown != 45*time.Second {
		t.Errorf("InsightCooldown = %v, want 45s", cfg.InsightCooldown)
	}
	if cfg.ContextSize != 8 {
		t.Errorf("ContextSize = %d, env should override file", cfg.ContextSize)
	}
	if cfg.UpdateInterval != 2500*time.Millisecond {
		t.Errorf("UpdateInterval = %v, want 2.5s", cfg.UpdateInterval)
	}
	if cfg.STTBackend != STTGRPC || cfg.HTTPAddr != ":9000" {
		t.Errorf("backend/addr = %q/%q", cfg.STTBackend, cfg.HTTPAddr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !apperrors.IsCode(err, apperrors.CodeConfigInvalid) {
		t.Errorf("Load() error = %v, want CONFIG_INVALID", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		code   apperrors.Code
		ok     bool
	}{
		{"valid", func(c *Config) {}, 0, true},
		{"missing key", func(c *Config) { c.OpenAIAPIKey = "  " }, apperrors.CodeConfigMissing, false},
		{"unknown backend", func(c *Config) { c.STTBackend = "vosk" }, apperrors.CodeConfigInvalid, false},
		{"grpc without addr", func(c *Config) { c.STTBackend = STTGRPC; c.InferenceAddr = "" }, apperrors.CodeConfigMissing, false},
		{"zero window", func(c *Config) { c.WindowFrames = 0 }, apperrors.CodeConfigInvalid, false},
		{"overlap too large", func(c *Config) { c.OverlapFrames = 11 }, apperrors.CodeConfigInvalid, false},
		{"zero interval", func(c *Config) { c.UpdateInterval = 0 }, apperrors.CodeConfigInvalid, false},
		{"zero completion timeout", func(c *Config) { c.CompletionTimeout = 0 }, apperrors.CodeConfigInvalid, false},
		{"zero finalize timeout", func(c *Config) { c.FinalizeTimeout = 0 }, apperrors.CodeConfigInvalid, false},
		{"negative cooldown", func(c *Config) { c.InsightCooldown = -time.Second }, apperrors.CodeConfigInvalid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.OpenAIAPIKey = "sk-test"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.ok {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !apperrors.IsCode(err, tt.code) {
				t.Errorf("Validate() = %v, want code %v", err, tt.code)
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "hello")
	if v := getEnv("TEST_STRING", "default"); v != "hello" {
		t.Errorf("getEnv = %q, want %q", v, "hello")
	}
	if v := getEnv("NONEXISTENT_SIDEKICK", "default"); v != "default" {
		t.Errorf("getEnv = %q, want %q", v, "default")
	}

	t.Setenv("TEST_INT_INVALID", "not-a-number")
	if v := getEnvInt("TEST_INT_INVALID", 100); v != 100 {
		t.Errorf("getEnvInt with invalid = %d, want %d", v, 100)
	}

	t.Setenv("TEST_FLOAT", "3.14")
	if v := getEnvFloat("TEST_FLOAT", 0.0); v != 3.14 {
		t.Errorf("getEnvFloat = %f, want %f", v, 3.14)
	}

	t.Setenv("TEST_BOOL_ONE", "1")
	if !getEnvBool("TEST_BOOL_ONE", false) {
		t.Error("getEnvBool should return true for '1'")
	}

	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"1m", time.Minute},
		{"12", 12 * time.Second},
		{"0.5", 500 * time.Millisecond},
		{"garbage", 7 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.raw)
			if got := getEnvDuration("TEST_DURATION", 7*time.Second); got != tt.want {
				t.Errorf("getEnvDuration(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
