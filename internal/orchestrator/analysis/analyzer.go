// Package analysis refreshes the meeting summary and action items from the transcript.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/rajpdus/meeting-sidekick/internal/errors"
	"github.com/rajpdus/meeting-sidekick/internal/jsonextract"
	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/session"
	"github.com/rajpdus/meeting-sidekick/internal/trace"
)

const (
	summarySystem = "You are a helpful assistant that summarizes meetings."
	summaryUser   = `Previous summary: %s

New meeting transcript segment:
%s

Please update the summary to incorporate this new information.
Focus on key points, decisions, and important discussion topics.
Keep the summary concise but comprehensive.`

	actionsSystem = "You are a helpful assistant that extracts action items from meeting transcripts."
	actionsUser   = `Based on the following meeting transcript, identify all action items.
For each action item, extract:
1. The responsible person
2. The specific task
3. The deadline (if mentioned)
4. Priority level (if indicated)

Format the output as a JSON array of objects with the following structure:
[
    {"person": "Name", "task": "Task description", "deadline": "Deadline or null", "priority": "Priority or null"}
]

Meeting transcript:
%s`
)

// ErrEmptyTranscript is returned when there is nothing to analyze yet.
var ErrEmptyTranscript = errors.New("transcript is empty")

// Completer sends a system and user turn to a completion model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Hooks observe applied updates.
type Hooks struct {
	OnSummary     func(ctx context.Context, summary string)
	OnActionItems func(ctx context.Context, items []session.ActionItem)
}

// Analyzer performs summary refresh and action item extraction against a session.
// Each operation is serialized with itself so scheduled and on-demand runs never interleave.
type Analyzer struct {
	llm           Completer
	sess          *session.Session
	summaryWindow int
	parse         jsonextract.Extractor
	hooks         Hooks
	now           func() time.Time

	summaryMu sync.Mutex
	actionsMu sync.Mutex
}

// NewAnalyzer creates an analyzer that summarizes the last summaryWindow segments on each refresh.
func NewAnalyzer(llm Completer, sess *session.Session, summaryWindow int, repair bool, hooks Hooks) *Analyzer {
	if summaryWindow <= 0 {
		summaryWindow = 10
	}
	return &Analyzer{
		llm:           llm,
		sess:          sess,
		summaryWindow: summaryWindow,
		parse:         jsonextract.Extractor{Repair: repair},
		hooks:         hooks,
		now:           time.Now,
	}
}

// RefreshSummary folds the most recent segments into the previous summary.
// On failure the previous summary is kept and the error returned.
func (a *Analyzer) RefreshSummary(ctx context.Context) error {
	a.summaryMu.Lock()
	defer a.summaryMu.Unlock()

	log := a.sess.Transcript()
	if log.Len() == 0 {
		return ErrEmptyTranscript
	}

	ctx, span := trace.StartSpan(ctx, "analysis.summary")
	defer span.End()

	prompt := fmt.Sprintf(summaryUser, a.sess.Summary(), log.RecentText(a.summaryWindow))
	reply, err := a.llm.Complete(ctx, summarySystem, prompt)
	if err != nil {
		return err
	}
	summary := strings.TrimSpace(reply)
	if summary == "" {
		return apperrors.New(apperrors.CodeLLMInvalidResponse, "empty summary")
	}

	a.sess.SetSummary(summary, a.now())
	trace.Logger(ctx).Info("summary updated", "chars", len(summary))
	if a.hooks.OnSummary != nil {
		a.hooks.OnSummary(ctx, summary)
	}
	return nil
}

// ExtractActionItems replaces the action items with those found in the full transcript.
// A failed call keeps the previous list. An unparseable reply replaces the list with
// ParseFailureItem and returns the parse error.
func (a *Analyzer) ExtractActionItems(ctx context.Context) error {
	a.actionsMu.Lock()
	defer a.actionsMu.Unlock()

	log := a.sess.Transcript()
	if log.Len() == 0 {
		return ErrEmptyTranscript
	}

	ctx, span := trace.StartSpan(ctx, "analysis.action_items")
	defer span.End()

	reply, err := a.llm.Complete(ctx, actionsSystem, fmt.Sprintf(actionsUser, log.Text()))
	if err != nil {
		return err
	}

	var raw []session.ActionItem
	parseErr := a.parse.Array(reply, &raw)
	items := make([]session.ActionItem, 0, len(raw))
	if parseErr != nil {
		items = append(items, session.ParseFailureItem())
		trace.Logger(ctx).Warn("action item reply unparseable", "error", parseErr)
	} else {
		for _, it := range raw {
			if it = it.Normalize(); it.Task != "" {
				items = append(items, it)
			}
		}
	}

	a.sess.SetActionItems(items, a.now())
	span.SetAttr("items", len(items))
	trace.Logger(ctx).Info("action items updated", "count", len(items))
	if a.hooks.OnActionItems != nil {
		a.hooks.OnActionItems(ctx, items)
	}
	return parseErr
}

// Finalize runs one summary refresh and one action item extraction, in that order.
func (a *Analyzer) Finalize(ctx context.Context) error {
	return errors.Join(ignoreEmpty(a.RefreshSummary(ctx)), ignoreEmpty(a.ExtractActionItems(ctx)))
}

func ignoreEmpty(err error) error {
	if errors.Is(err, ErrEmptyTranscript) {
		return nil
	}
	return err
}
