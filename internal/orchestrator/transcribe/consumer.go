// Package transcribe turns queued audio frames into transcript segments.
package transcribe

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/rajpdus/meeting-sidekick/internal/audio"
	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/transcript"
	"github.com/rajpdus/meeting-sidekick/internal/trace"
)

// Recognizer converts mono 16 kHz samples in [-1, 1] to text.
type Recognizer interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
}

// SegmentHandler is called once for each non-empty segment, after it is appended to the log.
type SegmentHandler func(ctx context.Context, seg transcript.Segment)

// Config controls windowing and silence gating.
type Config struct {
	WindowFrames     int           // frames that trigger a transcription attempt
	OverlapFrames    int           // trailing frames carried into the next window
	SilenceThreshold float64       // windows with mean |x| below this are skipped
	PollInterval     time.Duration // queue wait per iteration
	ErrorBackoff     time.Duration
}

// DefaultConfig returns 11-frame windows with a 2-frame overlap and a 0.01 silence gate.
func DefaultConfig() Config {
	return Config{
		WindowFrames:     11,
		OverlapFrames:    2,
		SilenceThreshold: 0.01,
		PollInterval:     100 * time.Millisecond,
		ErrorBackoff:     100 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WindowFrames <= 0 {
		c.WindowFrames = d.WindowFrames
	}
	if c.OverlapFrames < 0 || c.OverlapFrames >= c.WindowFrames {
		c.OverlapFrames = min(d.OverlapFrames, c.WindowFrames-1)
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = d.ErrorBackoff
	}
	return c
}

// Stats counts window outcomes.
type Stats struct {
	Windows  int
	Silent   int
	Failed   int
	Segments int
}

// Consumer drains frames in arrival order, transcribes overlapping windows and appends segments to a log.
// A Consumer is owned by a single goroutine.
type Consumer struct {
	rec       Recognizer
	log       *transcript.Log
	cfg       Config
	onSegment SegmentHandler

	window  []audio.Frame
	samples []float32
	stats   Stats
}

// NewConsumer creates a consumer. onSegment may be nil.
func NewConsumer(rec Recognizer, log *transcript.Log, cfg Config, onSegment SegmentHandler) *Consumer {
	return &Consumer{
		rec:       rec,
		log:       log,
		cfg:       cfg.withDefaults(),
		onSegment: onSegment,
	}
}

// Run consumes q until it is closed and drained, or until ctx is done.
func (c *Consumer) Run(ctx context.Context, q *audio.Queue) {
	for {
		f, err := q.Pop(c.cfg.PollInterval)
		switch {
		case err == nil:
			c.Push(ctx, f)
		case errors.Is(err, audio.ErrQueueClosed):
			return
		case errors.Is(err, audio.ErrQueueEmpty):
		default:
			slog.Warn("audio queue read failed", "error", err)
			c.backoff(ctx)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Push adds f to the window and processes the window once it reaches the trigger size.
func (c *Consumer) Push(ctx context.Context, f audio.Frame) {
	c.window = append(c.window, f)
	if len(c.window) < c.cfg.WindowFrames {
		return
	}
	if err := c.processWindow(ctx); err != nil {
		c.stats.Failed++
		trace.Logger(ctx).Warn("window transcription failed", "error", err, "first_seq", c.window[0].Seq)
		c.backoff(ctx)
	}
	c.resetWindow()
}

func (c *Consumer) processWindow(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "transcribe.window")
	defer span.End()

	c.stats.Windows++
	c.samples = c.samples[:0]
	for _, f := range c.window {
		c.samples = audio.AppendNormalized(c.samples, f.Data)
	}

	level := audio.MeanAbs(c.samples)
	span.SetAttr("level", level)
	if level < c.cfg.SilenceThreshold {
		c.stats.Silent++
		return nil
	}

	text, err := c.rec.Transcribe(ctx, c.samples)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	seg := c.log.Append(text)
	c.stats.Segments++
	trace.Logger(ctx).Debug("segment transcribed", "index", seg.Index, "chars", len(text))
	if c.onSegment != nil {
		c.onSegment(ctx, seg)
	}
	return nil
}

// resetWindow keeps the trailing overlap frames.
func (c *Consumer) resetWindow() {
	keep := min(c.cfg.OverlapFrames, len(c.window))
	n := copy(c.window, c.window[len(c.window)-keep:])
	clear(c.window[n:])
	c.window = c.window[:n]
}

func (c *Consumer) backoff(ctx context.Context) {
	timer := time.NewTimer(c.cfg.ErrorBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Stats returns window counters. Call only from the goroutine running the consumer or after Run returns.
func (c *Consumer) Stats() Stats { return c.stats }

// Pending returns the number of frames currently held in the window.
func (c *Consumer) Pending() int { return len(c.window) }
