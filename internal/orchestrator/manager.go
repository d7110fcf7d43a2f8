package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rajpdus/meeting-sidekick/internal/audio"
	"github.com/rajpdus/meeting-sidekick/internal/config"
	apperrors "github.com/rajpdus/meeting-sidekick/internal/errors"
	"github.com/rajpdus/meeting-sidekick/internal/export"
	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/analysis"
	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/insight"
	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/session"
	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/transcribe"
	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/transcript"
	"github.com/rajpdus/meeting-sidekick/internal/trace"
)

// Completer sends a system and user turn to a completion model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Manager owns one meeting session and the loops that feed it while recording.
type Manager struct {
	cfg      *config.Config
	rec      transcribe.Recognizer
	open     audio.Opener
	sess     *session.Session
	insights *insight.Scheduler
	analyzer *analysis.Analyzer
	hub      *Hub
	now      func() time.Time

	mu  sync.Mutex // serializes start and stop
	run *recording
}

// recording holds the loops of one Idle -> Recording -> Idle cycle.
type recording struct {
	queue    *audio.Queue
	producer *audio.Producer
	consumer *transcribe.Consumer
	trigger  chan struct{}

	cancelConsumer context.CancelFunc
	consumerDone   chan struct{}
	cancelWorkers  context.CancelFunc
	workers        sync.WaitGroup
}

// New creates an idle manager. Recognizer and completer calls go through rec and llm,
// and each recording opens a fresh device through open.
func New(cfg *config.Config, rec transcribe.Recognizer, llm Completer, open audio.Opener) *Manager {
	m := &Manager{
		cfg:  cfg,
		rec:  rec,
		open: open,
		hub:  NewHub(EventBuffer),
		now:  time.Now,
	}
	m.sess = session.New(cfg.ContextSize, m.now())
	m.insights = insight.NewScheduler(llm, m.sess, insight.Config{
		Cooldown:   cfg.InsightCooldown,
		MinContext: cfg.MinInsightContext,
		Repair:     cfg.JSONRepair,
	}, func(_ context.Context, batch []session.Insight) {
		m.hub.Publish(Event{Type: EventInsights, Insights: batch})
	})
	m.analyzer = analysis.NewAnalyzer(llm, m.sess, cfg.SummaryWindow, cfg.JSONRepair, analysis.Hooks{
		OnSummary: func(_ context.Context, summary string) {
			m.hub.Publish(Event{Type: EventSummary, Summary: summary})
		},
		OnActionItems: func(_ context.Context, items []session.ActionItem) {
			m.hub.Publish(Event{Type: EventActionItems, ActionItems: items})
		},
	})
	return m
}

// StartRecording opens the capture device and starts transcription, insights and periodic analysis.
// Starting while already recording is a no-op.
func (m *Manager) StartRecording(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run != nil {
		return nil
	}

	ctx, span := trace.StartSpan(ctx, "recording.start")
	defer span.End()
	log := trace.Logger(ctx)
	base := context.WithoutCancel(ctx)

	q := audio.NewQueue(m.cfg.QueueCapacity)
	p := audio.NewProducer(m.open, q)
	if err := p.Start(base); err != nil {
		q.Close()
		span.SetAttr("error", err.Error())
		log.Error("capture device unavailable", "error", err)
		return err
	}

	now := m.now()
	m.sess.MarkRecording(now)
	m.insights.Reset(now)

	r := &recording{
		queue:        q,
		producer:     p,
		trigger:      make(chan struct{}, 1),
		consumerDone: make(chan struct{}),
	}
	r.consumer = transcribe.NewConsumer(m.rec, m.sess.Transcript(), transcribe.Config{
		WindowFrames:     m.cfg.WindowFrames,
		OverlapFrames:    m.cfg.OverlapFrames,
		SilenceThreshold: m.cfg.SilenceThreshold,
		PollInterval:     queuePoll,
	}, m.segmentHandler(r.trigger))

	var consumerCtx, workerCtx context.Context
	consumerCtx, r.cancelConsumer = context.WithCancel(base)
	workerCtx, r.cancelWorkers = context.WithCancel(base)

	go func() {
		defer close(r.consumerDone)
		r.consumer.Run(consumerCtx, q)
	}()

	sched := analysis.NewScheduler(m.analyzer, analysis.Cadence{
		Interval:         m.cfg.UpdateInterval,
		SummaryEvery:     m.cfg.SummaryEvery,
		ActionItemsEvery: m.cfg.ActionItemsEvery,
	})
	r.workers.Add(2)
	go func() {
		defer r.workers.Done()
		m.insightWorker(workerCtx, r.trigger)
	}()
	go func() {
		defer r.workers.Done()
		sched.Run(workerCtx)
	}()

	m.run = r
	log.Info("recording started",
		"session", m.sess.ID(),
		"queue_capacity", m.cfg.QueueCapacity,
		"queue_span", audio.FrameDuration(m.cfg.QueueCapacity*m.cfg.FrameSamples, m.cfg.SampleRate))
	m.publishStatus()
	return nil
}

// StopRecording stops capture, drains queued audio through transcription, then runs one final
// summary refresh and action item extraction bounded by FinalizeTimeout. Stopping while idle is a no-op.
func (m *Manager) StopRecording(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.run
	if r == nil {
		return nil
	}
	m.run = nil

	ctx, span := trace.StartSpan(ctx, "recording.stop")
	defer span.End()
	log := trace.Logger(ctx)
	timeout := m.cfg.StopTimeout

	if err := r.producer.Stop(timeout); err != nil {
		log.Warn("capture did not stop cleanly", "error", err)
	}
	r.queue.Close()

	drained := waitFor(r.consumerDone, timeout)
	if !drained {
		log.Warn("transcription drain timed out, cancelling", "pending_frames", r.queue.Len())
		r.cancelConsumer()
		drained = waitFor(r.consumerDone, cancelGrace)
	}
	r.cancelConsumer()

	r.cancelWorkers()
	workersDone := make(chan struct{})
	go func() {
		r.workers.Wait()
		close(workersDone)
	}()
	if !waitFor(workersDone, timeout) {
		log.Warn("insight or analysis loop still running after stop")
	}

	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.FinalizeTimeout)
	err := m.analyzer.Finalize(finalCtx)
	cancel()
	if err != nil {
		log.Warn("final analysis incomplete", "error", err, "timeout", m.cfg.FinalizeTimeout)
	}
	m.sess.MarkIdle(m.now())

	attrs := []any{"segments", m.sess.Transcript().Len(), "dropped_frames", r.queue.Dropped()}
	if drained {
		st := r.consumer.Stats()
		attrs = append(attrs, "windows", st.Windows, "silent", st.Silent, "failed", st.Failed)
	}
	log.Info("recording stopped", attrs...)
	m.publishStatus()
	return nil
}

func (m *Manager) segmentHandler(trigger chan<- struct{}) transcribe.SegmentHandler {
	return func(_ context.Context, seg transcript.Segment) {
		m.hub.Publish(Event{Type: EventTranscript, Segment: &seg})
		select {
		case trigger <- struct{}{}:
		default:
		}
	}
}

// insightWorker keeps completion latency off the transcription path.
// Triggers arriving while a request is in flight collapse into one.
func (m *Manager) insightWorker(ctx context.Context, trigger <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-trigger:
			m.insights.OnSegment(ctx)
		}
	}
}

func (m *Manager) publishStatus() {
	m.hub.Publish(Event{Type: EventStatus, Status: &Status{
		Recording:       m.sess.Recording(),
		Title:           m.sess.Title(),
		Segments:        m.sess.Transcript().Len(),
		InsightsEnabled: m.insights.Enabled(),
	}})
}

// Recording reports whether a recording is active.
func (m *Manager) Recording() bool { return m.sess.Recording() }

// Session returns the managed session.
func (m *Manager) Session() *session.Session { return m.sess }

// Snapshot returns a point-in-time copy of the session.
func (m *Manager) Snapshot() session.Snapshot { return m.sess.Snapshot() }

// SetTitle renames the meeting.
func (m *Manager) SetTitle(title string) error {
	if !m.sess.SetTitle(title) {
		return apperrors.New(apperrors.CodeInvalidArgument, "title must not be blank")
	}
	m.publishStatus()
	return nil
}

// SetInsightsEnabled pauses or resumes insight generation. Transcription and analysis continue.
func (m *Manager) SetInsightsEnabled(enabled bool) {
	m.insights.SetEnabled(enabled)
	m.publishStatus()
}

// RefreshSummary forces a summary refresh outside the periodic cadence.
func (m *Manager) RefreshSummary(ctx context.Context) error {
	return m.analyzer.RefreshSummary(ctx)
}

// ExtractActionItems forces an action item extraction outside the periodic cadence.
func (m *Manager) ExtractActionItems(ctx context.Context) error {
	return m.analyzer.ExtractActionItems(ctx)
}

// Export writes the current session to the configured export directory and returns the file path.
func (m *Manager) Export(ctx context.Context, format string) (string, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return "", err
	}
	path, err := export.Write(m.cfg.ExportDir, m.Snapshot(), f, m.now())
	if err != nil {
		return "", err
	}
	trace.Logger(ctx).Info("session exported", "path", path, "format", f)
	return path, nil
}

// Subscribe registers for session events. Call the returned func to unsubscribe.
func (m *Manager) Subscribe() (<-chan Event, func()) { return m.hub.Subscribe() }

// Close stops any active recording and closes all subscriptions.
func (m *Manager) Close(ctx context.Context) error {
	err := m.StopRecording(ctx)
	m.hub.Close()
	return err
}

func waitFor(done <-chan struct{}, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}
