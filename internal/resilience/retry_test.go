package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/rajpdus/meeting-sidekick/internal/errors"
)

func fastRetry(n int) RetryConfig {
	return RetryConfig{MaxRetries: n, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastRetry(3), func() (string, error) {
		calls++
		if calls < 3 {
			return "", apperrors.New(apperrors.CodeLLMRateLimited, "slow down")
		}
		return "summary", nil
	})

	if err != nil || got != "summary" {
		t.Errorf("Do() = (%q, %v), want (summary, nil)", got, err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	calls := 0
	retryErr := status.Error(codes.Unavailable, "always fail")

	_, err := Do(context.Background(), fastRetry(2), func() (string, error) {
		calls++
		return "", retryErr
	})

	if !errors.Is(err, retryErr) {
		t.Errorf("Do() = %v, want %v", err, retryErr)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoNonRetryableError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastRetry(5), func() (string, error) {
		calls++
		return "", apperrors.New(apperrors.CodeLLMInvalidResponse, "no choices")
	})

	if !apperrors.IsCode(err, apperrors.CodeLLMInvalidResponse) {
		t.Errorf("Do() = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoZeroRetriesCallsOnce(t *testing.T) {
	calls := 0
	_, _ = Do(context.Background(), RetryConfig{}, func() (int, error) {
		calls++
		return 0, status.Error(codes.Unavailable, "down")
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, cfg, func() (string, error) {
		return "", status.Error(codes.Unavailable, "fail")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() = %v, want context.Canceled", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"grpc unavailable", status.Error(codes.Unavailable, "x"), true},
		{"grpc deadline", status.Error(codes.DeadlineExceeded, "x"), true},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "x"), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "x"), false},
		{"app timeout", apperrors.New(apperrors.CodeTimeout, "x"), true},
		{"app api error", apperrors.New(apperrors.CodeLLMAPIError, "x"), false},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, JitterFactor: 0}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 300 * time.Millisecond},
		{5, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := backoffDelay(cfg, tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
