// Package config handles sidekick configuration: defaults, an optional YAML file, then environment overrides.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/rajpdus/meeting-sidekick/internal/errors"
)

// Environment variable naming the YAML config file.
const FileEnv = "SIDEKICK_CONFIG"

// STT backends.
const (
	STTOpenAI = "openai"
	STTGRPC   = "grpc"
)

type Config struct {
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	CompletionModel string `yaml:"completion_model"`
	STTBackend      string `yaml:"stt_backend"`
	WhisperModel    string `yaml:"whisper_model"`
	InferenceAddr   string `yaml:"inference_addr"`

	AudioDevice      string  `yaml:"audio_device"`
	SampleRate       int     `yaml:"sample_rate"`
	FrameSamples     int     `yaml:"frame_samples"`
	WindowFrames     int     `yaml:"window_frames"`
	OverlapFrames    int     `yaml:"overlap_frames"`
	SilenceThreshold float64 `yaml:"silence_threshold"`
	QueueCapacity    int     `yaml:"queue_capacity"`

	InsightCooldown   time.Duration `yaml:"insight_cooldown"`
	ContextSize       int           `yaml:"context_size"`
	MinInsightContext int           `yaml:"min_insight_context"`
	UpdateInterval    time.Duration `yaml:"update_interval"`
	SummaryEvery      int           `yaml:"summary_every"`
	ActionItemsEvery  int           `yaml:"action_items_every"`
	SummaryWindow     int           `yaml:"summary_window"`
	StopTimeout       time.Duration `yaml:"stop_timeout"`
	JSONRepair        bool          `yaml:"json_repair"`

	CompletionTimeout time.Duration `yaml:"completion_timeout"` // per completion attempt
	TranscribeTimeout time.Duration `yaml:"transcribe_timeout"` // per recognizer call
	FinalizeTimeout   time.Duration `yaml:"finalize_timeout"`   // whole final pass on stop

	HTTPAddr  string `yaml:"http_addr"`
	ExportDir string `yaml:"export_dir"`
	LogLevel  string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CompletionModel:   "gpt-4",
		STTBackend:        STTOpenAI,
		WhisperModel:      "whisper-1",
		InferenceAddr:     "localhost:50051",
		SampleRate:        16000,
		FrameSamples:      2500,
		WindowFrames:      11,
		OverlapFrames:     2,
		SilenceThreshold:  0.01,
		QueueCapacity:     480,
		InsightCooldown:   30 * time.Second,
		ContextSize:       20,
		MinInsightContext: 3,
		UpdateInterval:    5 * time.Second,
		SummaryEvery:      5,
		ActionItemsEvery:  10,
		SummaryWindow:     10,
		StopTimeout:       time.Second,
		CompletionTimeout: 30 * time.Second,
		TranscribeTimeout: 30 * time.Second,
		FinalizeTimeout:   45 * time.Second,
		HTTPAddr:          ":8000",
		ExportDir:         "meeting_exports",
		LogLevel:          "info",
	}
}

// Load builds a Config from defaults, the YAML file at path (or $SIDEKICK_CONFIG) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto c.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "open config %s", path)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "decode config %s", path)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.CompletionModel = getEnv("COMPLETION_MODEL", c.CompletionModel)
	c.STTBackend = getEnv("STT_BACKEND", c.STTBackend)
	c.WhisperModel = getEnv("WHISPER_MODEL", c.WhisperModel)
	c.InferenceAddr = getEnv("INFERENCE_ADDR", c.InferenceAddr)

	c.AudioDevice = getEnv("AUDIO_DEVICE", c.AudioDevice)
	c.SampleRate = getEnvInt("SAMPLE_RATE", c.SampleRate)
	c.FrameSamples = getEnvInt("FRAME_SAMPLES", c.FrameSamples)
	c.WindowFrames = getEnvInt("WINDOW_FRAMES", c.WindowFrames)
	c.OverlapFrames = getEnvInt("OVERLAP_FRAMES", c.OverlapFrames)
	c.SilenceThreshold = getEnvFloat("SILENCE_THRESHOLD", c.SilenceThreshold)
	c.QueueCapacity = getEnvInt("QUEUE_CAPACITY", c.QueueCapacity)

	c.InsightCooldown = getEnvDuration("INSIGHT_COOLDOWN", c.InsightCooldown)
	c.ContextSize = getEnvInt("CONTEXT_SIZE", c.ContextSize)
	c.MinInsightContext = getEnvInt("MIN_INSIGHT_CONTEXT", c.MinInsightContext)
	c.UpdateInterval = getEnvDuration("UPDATE_INTERVAL", c.UpdateInterval)
	c.SummaryEvery = getEnvInt("SUMMARY_EVERY", c.SummaryEvery)
	c.ActionItemsEvery = getEnvInt("ACTION_ITEMS_EVERY", c.ActionItemsEvery)
	c.SummaryWindow = getEnvInt("SUMMARY_WINDOW", c.SummaryWindow)
	c.StopTimeout = getEnvDuration("STOP_TIMEOUT", c.StopTimeout)
	c.JSONRepair = getEnvBool("JSON_REPAIR", c.JSONRepair)
	c.CompletionTimeout = getEnvDuration("COMPLETION_TIMEOUT", c.CompletionTimeout)
	c.TranscribeTimeout = getEnvDuration("TRANSCRIBE_TIMEOUT", c.TranscribeTimeout)
	c.FinalizeTimeout = getEnvDuration("FINALIZE_TIMEOUT", c.FinalizeTimeout)

	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.ExportDir = getEnv("EXPORT_DIRECTORY", c.ExportDir)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// HasAPIKey reports whether completion credentials are configured.
func (c *Config) HasAPIKey() bool { return strings.TrimSpace(c.OpenAIAPIKey) != "" }

// Validate reports contract errors that must stop the process at startup.
func (c *Config) Validate() error {
	if !c.HasAPIKey() {
		return apperrors.New(apperrors.CodeConfigMissing, "OPENAI_API_KEY is not set")
	}
	switch c.STTBackend {
	case STTOpenAI:
		if c.WhisperModel == "" {
			return apperrors.New(apperrors.CodeConfigMissing, "whisper_model is required for the openai stt backend")
		}
	case STTGRPC:
		if c.InferenceAddr == "" {
			return apperrors.New(apperrors.CodeConfigMissing, "inference_addr is required for the grpc stt backend")
		}
	default:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "unknown stt_backend %q", c.STTBackend)
	}

	positive := []struct {
		name string
		v    int64
	}{
		{"sample_rate", int64(c.SampleRate)},
		{"frame_samples", int64(c.FrameSamples)},
		{"window_frames", int64(c.WindowFrames)},
		{"queue_capacity", int64(c.QueueCapacity)},
		{"context_size", int64(c.ContextSize)},
		{"summary_every", int64(c.SummaryEvery)},
		{"action_items_every", int64(c.ActionItemsEvery)},
		{"summary_window", int64(c.SummaryWindow)},
		{"update_interval", int64(c.UpdateInterval)},
		{"stop_timeout", int64(c.StopTimeout)},
		{"completion_timeout", int64(c.CompletionTimeout)},
		{"transcribe_timeout", int64(c.TranscribeTimeout)},
		{"finalize_timeout", int64(c.FinalizeTimeout)},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return apperrors.Newf(apperrors.CodeConfigInvalid, "%s must be positive", p.name)
		}
	}
	if c.OverlapFrames < 0 || c.OverlapFrames >= c.WindowFrames {
		return apperrors.Newf(apperrors.CodeConfigInvalid, "overlap_frames must be in [0, %d)", c.WindowFrames)
	}
	if c.InsightCooldown < 0 {
		return apperrors.New(apperrors.CodeConfigInvalid, "insight_cooldown must not be negative")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

// getEnvDuration accepts Go durations ("30s") or bare seconds ("30", "2.5").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return def
}
