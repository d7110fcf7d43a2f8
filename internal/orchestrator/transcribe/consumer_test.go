package transcribe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rajpdus/meeting-sidekick/internal/audio"
	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/transcript"
)

type mockRecognizer struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
	lengths []int
}

func (m *mockRecognizer) Transcribe(_ context.Context, samples []float32) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lengths = append(m.lengths, len(samples))
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "text", nil
	}
	r := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return r, nil
}

func (m *mockRecognizer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

const testFrameSamples = 2500

func voicedFrame(seq uint64) audio.Frame {
	samples := make([]int16, testFrameSamples)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 3277 // ~0.1
		} else {
			samples[i] = -3277
		}
	}
	return audio.Frame{Seq: seq, Data: audio.EncodePCM16(samples)}
}

func silentFrame(seq uint64) audio.Frame {
	samples := make([]int16, testFrameSamples)
	for i := range samples {
		samples[i] = 100 // ~0.003
	}
	return audio.Frame{Seq: seq, Data: audio.EncodePCM16(samples)}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.ErrorBackoff = time.Millisecond
	return cfg
}

func TestWindowTriggersAtElevenFramesAndKeepsOverlap(t *testing.T) {
	rec := &mockRecognizer{replies: []string{"hello"}}
	log := transcript.NewLog(20)
	c := NewConsumer(rec, log, testConfig(), nil)

	for i := 0; i < 10; i++ {
		c.Push(context.Background(), voicedFrame(uint64(i)))
	}
	if rec.callCount() != 0 {
		t.Fatalf("recognizer called before window filled")
	}

	c.Push(context.Background(), voicedFrame(10))

	if rec.callCount() != 1 {
		t.Errorf("recognizer calls = %d, want 1", rec.callCount())
	}
	if rec.lengths[0] != 11*testFrameSamples {
		t.Errorf("window samples = %d, want %d", rec.lengths[0], 11*testFrameSamples)
	}
	if c.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", c.Pending())
	}
	if c.window[0].Seq != 9 || c.window[1].Seq != 10 {
		t.Errorf("overlap = %d,%d, want 9,10", c.window[0].Seq, c.window[1].Seq)
	}

	for i := 11; i < 20; i++ {
		c.Push(context.Background(), voicedFrame(uint64(i)))
	}
	if rec.callCount() != 2 {
		t.Errorf("second window should trigger after 9 more frames, calls = %d", rec.callCount())
	}
}

func TestSilentWindowSkipsRecognizer(t *testing.T) {
	rec := &mockRecognizer{}
	log := transcript.NewLog(20)
	var emitted int
	c := NewConsumer(rec, log, testConfig(), func(context.Context, transcript.Segment) { emitted++ })

	for i := 0; i < 11; i++ {
		c.Push(context.Background(), silentFrame(uint64(i)))
	}

	if rec.callCount() != 0 {
		t.Errorf("recognizer calls = %d, want 0", rec.callCount())
	}
	if emitted != 0 || log.Len() != 0 {
		t.Errorf("emitted = %d, log = %d, want none", emitted, log.Len())
	}
	if c.Pending() != 2 {
		t.Errorf("silent window should still reset to overlap, Pending() = %d", c.Pending())
	}
	if s := c.Stats(); s.Silent != 1 || s.Windows != 1 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestWhitespaceResultIsDiscarded(t *testing.T) {
	rec := &mockRecognizer{replies: []string{"  \n\t "}}
	log := transcript.NewLog(20)
	var emitted int
	c := NewConsumer(rec, log, testConfig(), func(context.Context, transcript.Segment) { emitted++ })

	for i := 0; i < 11; i++ {
		c.Push(context.Background(), voicedFrame(uint64(i)))
	}

	if rec.callCount() != 1 {
		t.Errorf("recognizer calls = %d, want 1", rec.callCount())
	}
	if emitted != 0 || log.Len() != 0 {
		t.Error("whitespace-only result should not produce a segment")
	}
}

func TestCallbackOncePerSegmentWithTrimmedText(t *testing.T) {
	rec := &mockRecognizer{replies: []string{" first ", "second"}}
	log := transcript.NewLog(20)
	var got []transcript.Segment
	c := NewConsumer(rec, log, testConfig(), func(_ context.Context, seg transcript.Segment) {
		got = append(got, seg)
	})

	for i := 0; i < 20; i++ {
		c.Push(context.Background(), voicedFrame(uint64(i)))
	}

	if len(got) != 2 {
		t.Fatalf("callbacks = %d, want 2", len(got))
	}
	if got[0].Text != "first" || got[0].Index != 0 || got[1].Text != "second" || got[1].Index != 1 {
		t.Errorf("segments = %+v", got)
	}
	if log.Len() != 2 {
		t.Errorf("log.Len() = %d, want 2", log.Len())
	}
}

func TestRecognizerErrorIsContained(t *testing.T) {
	rec := &mockRecognizer{err: errors.New("model crashed")}
	log := transcript.NewLog(20)
	c := NewConsumer(rec, log, testConfig(), nil)

	for i := 0; i < 11; i++ {
		c.Push(context.Background(), voicedFrame(uint64(i)))
	}

	if log.Len() != 0 {
		t.Error("failed window should not produce a segment")
	}
	if c.Pending() != 2 {
		t.Errorf("failed window should reset to overlap, Pending() = %d", c.Pending())
	}
	if c.Stats().Failed != 1 {
		t.Errorf("Failed = %d, want 1", c.Stats().Failed)
	}

	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()
	for i := 11; i < 20; i++ {
		c.Push(context.Background(), voicedFrame(uint64(i)))
	}
	if log.Len() != 1 {
		t.Errorf("consumer should recover after error, log.Len() = %d", log.Len())
	}
}

func TestRunDrainsQueueInOrderUntilClosed(t *testing.T) {
	counter := 0
	log := transcript.NewLog(20)
	cfg := testConfig()
	cfg.WindowFrames = 1
	cfg.OverlapFrames = 0

	var indices []int
	c := NewConsumer(recognizerFunc(func(_ context.Context, s []float32) (string, error) {
		counter++
		return fmt.Sprintf("seg%d", counter), nil
	}), log, cfg, func(_ context.Context, seg transcript.Segment) {
		indices = append(indices, seg.Index)
	})

	q := audio.NewQueue(64)
	for i := 0; i < 30; i++ {
		_ = q.Push(voicedFrame(uint64(i)))
	}
	q.Close()

	done := make(chan struct{})
	go func() {
		c.Run(context.Background(), q)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after queue closed")
	}

	if len(indices) != 30 {
		t.Fatalf("segments = %d, want 30", len(indices))
	}
	segs := log.Segments()
	for i, seg := range segs {
		if seg.Index != i || seg.Text != fmt.Sprintf("seg%d", i+1) {
			t.Errorf("segment %d = %+v", i, seg)
		}
	}
}

func TestErrorBackoffEndsOnCancel(t *testing.T) {
	rec := &mockRecognizer{err: errors.New("model crashed")}
	cfg := testConfig()
	cfg.ErrorBackoff = time.Minute
	c := NewConsumer(rec, transcript.NewLog(20), cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	for i := 0; i < 11; i++ {
		c.Push(ctx, voicedFrame(uint64(i)))
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Push blocked %v in backoff after cancel", elapsed)
	}
	if c.Stats().Failed != 1 {
		t.Errorf("Failed = %d, want 1", c.Stats().Failed)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	c := NewConsumer(&mockRecognizer{}, transcript.NewLog(20), testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	q := audio.NewQueue(4)

	done := make(chan struct{})
	go func() {
		c.Run(ctx, q)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type recognizerFunc func(ctx context.Context, samples []float32) (string, error)

func (f recognizerFunc) Transcribe(ctx context.Context, samples []float32) (string, error) {
	return f(ctx, samples)
}
