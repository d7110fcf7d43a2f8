// Package resilience guards calls to the speech and completion services.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	apperrors "github.com/rajpdus/meeting-sidekick/internal/errors"
)

// State represents circuit breaker state.
type State uint32

const (
	Closed   State = iota // calls flow
	Open                  // calls fail fast
	HalfOpen              // probing recovery
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is the cause of every rejection while the breaker is open.
var ErrOpen = errors.New("circuit breaker open")

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	Threshold         int           // consecutive failures before opening
	ResetTimeout      time.Duration // time open before a trial call is allowed
	HalfOpenSuccesses int           // trial successes needed to close
}

// DefaultBreakerConfig suits the hosted completion API.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Threshold: 5, ResetTimeout: 30 * time.Second, HalfOpenSuccesses: 2}
}

// FastBreakerConfig suits the speech path, which must recover quickly so the window backlog stays short.
func FastBreakerConfig() BreakerConfig {
	return BreakerConfig{Threshold: 3, ResetTimeout: 5 * time.Second, HalfOpenSuccesses: 1}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = d.HalfOpenSuccesses
	}
	return c
}

// Breaker implements the circuit breaker pattern with atomic state.
type Breaker struct {
	name      string
	cfg       BreakerConfig
	state     atomic.Uint32
	failures  atomic.Int32
	successes atomic.Int32
	openedAt  atomic.Int64 // unix nano
}

// NewBreaker creates a closed breaker. name appears in logs and rejection errors.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults()}
}

// State returns the current state.
func (b *Breaker) State() State { return State(b.state.Load()) }

// Allow returns nil when a call may proceed.
func (b *Breaker) Allow() error {
	if b.State() != Open {
		return nil
	}
	if time.Since(time.Unix(0, b.openedAt.Load())) >= b.cfg.ResetTimeout {
		b.transition(HalfOpen)
		return nil
	}
	return apperrors.Wrapf(ErrOpen, apperrors.CodeUnavailable, "%s unavailable", b.name)
}

// Success records a successful call.
func (b *Breaker) Success() {
	switch b.State() {
	case HalfOpen:
		if b.successes.Add(1) >= int32(b.cfg.HalfOpenSuccesses) {
			b.transition(Closed)
		}
	case Closed:
		b.failures.Store(0)
	}
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	count := b.failures.Add(1)
	switch b.State() {
	case HalfOpen:
		b.transition(Open)
	case Closed:
		if count >= int32(b.cfg.Threshold) {
			b.transition(Open)
		}
	}
}

func (b *Breaker) transition(to State) {
	from := State(b.state.Swap(uint32(to)))
	if from == to {
		return
	}

	b.successes.Store(0)
	switch to {
	case Closed:
		b.failures.Store(0)
		slog.Info("circuit breaker closed", "breaker", b.name)
	case Open:
		b.openedAt.Store(time.Now().UnixNano())
		slog.Warn("circuit breaker opened", "breaker", b.name, "failures", b.failures.Load())
	case HalfOpen:
		slog.Info("circuit breaker half-open", "breaker", b.name)
	}
}

// Call runs fn under breaker protection and returns its result.
// Caller cancellation is not counted as a service failure.
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	result, err := fn()
	switch {
	case err == nil:
		b.Success()
	case errors.Is(err, context.Canceled), apperrors.IsCode(err, apperrors.CodeCanceled):
	default:
		b.Failure()
	}
	if err != nil {
		return zero, err
	}
	return result, nil
}
