// Package insight decides when to ask for fresh conversational insights and applies the result.
package insight

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rajpdus/meeting-sidekick/internal/jsonextract"
	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/session"
	"github.com/rajpdus/meeting-sidekick/internal/trace"
)

const systemPrompt = "You are an AI assistant that provides real-time conversational insights."

const userPrompt = `Based on the following recent meeting conversation, generate 1-2 highly relevant insights that would help the user contribute meaningfully.

These insights should:
1. Be directly relevant to the current topic
2. Provide valuable information the user could mention
3. Be concise and ready to use in conversation (under 100 words)
4. Help the user sound more knowledgeable and prepared
5. Not repeat information already mentioned

Recent conversation:
%s

Format as a JSON object with "insights" array containing objects with "title" and "detail" fields.`

// Completer sends a system and user turn to a completion model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Handler receives each accepted, non-empty insight batch.
type Handler func(ctx context.Context, batch []session.Insight)

// Config gates insight requests.
type Config struct {
	Cooldown   time.Duration
	MinContext int  // segments required in the conversation window
	Repair     bool // run jsonrepair on malformed replies
}

// DefaultConfig returns a 30s cooldown with a minimum of 3 context segments.
func DefaultConfig() Config {
	return Config{Cooldown: 30 * time.Second, MinContext: 3}
}

// Outcome describes what one OnSegment call did.
type Outcome int

const (
	Skipped Outcome = iota // gated by cooldown or context size
	Failed                 // call or parse failed, or the batch was empty
	Applied                // new batch stored and delivered
)

func (o Outcome) String() string {
	return [...]string{"skipped", "failed", "applied"}[o]
}

// Scheduler applies the cooldown and context gates on every new segment.
type Scheduler struct {
	llm        Completer
	sess       *session.Session
	cfg        Config
	onInsights Handler
	parse      jsonextract.Extractor
	now        func() time.Time

	mu      sync.Mutex
	last    time.Time
	enabled bool
}

// NewScheduler creates an enabled scheduler. The cooldown counts from construction until Reset.
func NewScheduler(llm Completer, sess *session.Session, cfg Config, onInsights Handler) *Scheduler {
	if cfg.MinContext <= 0 {
		cfg.MinContext = DefaultConfig().MinContext
	}
	s := &Scheduler{
		llm:        llm,
		sess:       sess,
		cfg:        cfg,
		onInsights: onInsights,
		parse:      jsonextract.Extractor{Repair: cfg.Repair},
		now:        time.Now,
		enabled:    true,
	}
	s.last = s.now()
	return s
}

// Reset restarts the cooldown from at. Called when recording starts.
func (s *Scheduler) Reset(at time.Time) {
	s.mu.Lock()
	s.last = at
	s.mu.Unlock()
}

// SetEnabled turns insight generation on or off.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

// Enabled reports whether insight generation is on.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Due reports whether a request would be made at now.
func (s *Scheduler) Due(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || now.Sub(s.last) < s.cfg.Cooldown {
		return false
	}
	return s.sess.Transcript().WindowLen() >= s.cfg.MinContext
}

// OnSegment runs the gates and, when they pass, requests and applies a new batch.
// Failures are logged and never returned.
func (s *Scheduler) OnSegment(ctx context.Context) Outcome {
	now := s.now()
	if !s.Due(now) {
		return Skipped
	}

	ctx, span := trace.StartSpan(ctx, "insight.generate")
	defer span.End()
	log := trace.Logger(ctx)

	window := s.sess.Transcript().Snapshot()
	reply, err := s.llm.Complete(ctx, systemPrompt, fmt.Sprintf(userPrompt, window))
	if err != nil {
		log.Warn("insight request failed", "error", err)
		return Failed
	}

	var parsed struct {
		Insights []session.Insight `json:"insights"`
	}
	if err := s.parse.Object(reply, &parsed); err != nil {
		log.Warn("insight reply unparseable", "error", err)
		return Failed
	}
	if len(parsed.Insights) == 0 {
		log.Debug("insight reply empty")
		return Failed
	}

	s.mu.Lock()
	s.last = now
	s.mu.Unlock()

	s.sess.SetInsights(parsed.Insights, now)
	span.SetAttr("insights", len(parsed.Insights))
	log.Info("insights updated", "count", len(parsed.Insights))
	if s.onInsights != nil {
		s.onInsights(ctx, parsed.Insights)
	}
	return Applied
}
