package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/rajpdus/meeting-sidekick/internal/trace"
)

// Cadence sets the tick interval and how many ticks pass between each job.
type Cadence struct {
	Interval         time.Duration
	SummaryEvery     int
	ActionItemsEvery int
}

// DefaultCadence ticks every 5s, summarizing every 5th tick and extracting action items every 10th.
func DefaultCadence() Cadence {
	return Cadence{Interval: 5 * time.Second, SummaryEvery: 5, ActionItemsEvery: 10}
}

// Scheduler drives an Analyzer from a fixed ticker.
type Scheduler struct {
	a       *Analyzer
	cadence Cadence
	ticks   int
}

// NewScheduler creates a scheduler for a.
func NewScheduler(a *Analyzer, cadence Cadence) *Scheduler {
	d := DefaultCadence()
	if cadence.Interval <= 0 {
		cadence.Interval = d.Interval
	}
	if cadence.SummaryEvery <= 0 {
		cadence.SummaryEvery = d.SummaryEvery
	}
	if cadence.ActionItemsEvery <= 0 {
		cadence.ActionItemsEvery = d.ActionItemsEvery
	}
	return &Scheduler{a: a, cadence: cadence}
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cadence.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick advances the counter and runs whichever jobs fall due, summary first.
func (s *Scheduler) Tick(ctx context.Context) (summarized, extracted bool) {
	s.ticks++
	log := trace.Logger(ctx)

	if s.ticks%s.cadence.SummaryEvery == 0 {
		summarized = true
		if err := s.a.RefreshSummary(ctx); err != nil && !errors.Is(err, ErrEmptyTranscript) {
			log.Warn("summary refresh failed, keeping previous", "tick", s.ticks, "error", err)
		}
	}
	if s.ticks%s.cadence.ActionItemsEvery == 0 {
		extracted = true
		if err := s.a.ExtractActionItems(ctx); err != nil && !errors.Is(err, ErrEmptyTranscript) {
			log.Warn("action item extraction failed", "tick", s.ticks, "error", err)
		}
	}
	return summarized, extracted
}

// Ticks returns the number of ticks so far. Not safe while Run is active.
func (s *Scheduler) Ticks() int { return s.ticks }
