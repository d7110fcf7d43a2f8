// Package llm adapts the OpenAI API to the completion and speech-to-text interfaces used by the session.
package llm

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/rajpdus/meeting-sidekick/internal/config"
	apperrors "github.com/rajpdus/meeting-sidekick/internal/errors"
	"github.com/rajpdus/meeting-sidekick/internal/resilience"
)

// Config holds OpenAI client settings.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	WhisperModel string
	SampleRate   int
	Retry        resilience.RetryConfig
	Breaker      resilience.BreakerConfig
	STTBreaker   resilience.BreakerConfig

	CompletionTimeout time.Duration // per attempt; zero disables
	TranscribeTimeout time.Duration // per upload; zero disables
}

// ConfigFrom maps application config onto client settings.
func ConfigFrom(c *config.Config) Config {
	return Config{
		APIKey:       c.OpenAIAPIKey,
		BaseURL:      c.OpenAIBaseURL,
		Model:        c.CompletionModel,
		WhisperModel: c.WhisperModel,
		SampleRate:   c.SampleRate,
		Retry:        resilience.DefaultRetryConfig(),
		Breaker:      resilience.DefaultBreakerConfig(),
		STTBreaker:   resilience.FastBreakerConfig(),

		CompletionTimeout: c.CompletionTimeout,
		TranscribeTimeout: c.TranscribeTimeout,
	}
}

// Client calls chat completions and audio transcriptions.
// Completions are retried on transient errors; both paths sit behind their own circuit breaker.
type Client struct {
	api        openai.Client
	model      string
	whisper    string
	sampleRate int
	retry      resilience.RetryConfig
	chat       *resilience.Breaker
	stt        *resilience.Breaker

	completionTimeout time.Duration
	transcribeTimeout time.Duration
}

// New creates a client. A missing API key is a configuration error.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, apperrors.New(apperrors.CodeLLMNotConfigured, "openai api key is not set")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Client{
		api:        openai.NewClient(opts...),
		model:      cfg.Model,
		whisper:    cfg.WhisperModel,
		sampleRate: cfg.SampleRate,
		retry:      cfg.Retry,
		chat:       resilience.NewBreaker("openai-chat", cfg.Breaker),
		stt:        resilience.NewBreaker("openai-stt", cfg.STTBreaker),

		completionTimeout: cfg.CompletionTimeout,
		transcribeTimeout: cfg.TranscribeTimeout,
	}, nil
}

// Complete sends one system and one user turn and returns the reply text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	return resilience.Do(ctx, c.retry, func() (string, error) {
		return resilience.Call(c.chat, func() (string, error) {
			return c.complete(ctx, system, user)
		})
	})
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.completionTimeout)
	defer cancel()

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", classify(err, apperrors.CodeLLMAPIError, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.New(apperrors.CodeLLMInvalidResponse, "completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// withTimeout bounds one request. The SDK sets no deadline of its own.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// classify maps transport and API failures onto application codes so retry and breaker
// decisions can be made without knowing the SDK.
func classify(err error, fallback apperrors.Code, op string) error {
	switch {
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.CodeCanceled, op+" canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.CodeTimeout, op+" timed out")
	}

	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, op+" failed")
	}

	code := fallback
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		code = apperrors.CodeLLMRateLimited
	case apiErr.StatusCode >= http.StatusInternalServerError:
		code = apperrors.CodeUnavailable
	case apiErr.StatusCode == http.StatusUnauthorized, apiErr.StatusCode == http.StatusForbidden:
		code = apperrors.CodeLLMNotConfigured
	}
	return apperrors.Wrap(err, code, op+" rejected").WithMetadata("status", strconv.Itoa(apiErr.StatusCode))
}
