package audio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Pause after a failed device read.
const readBackoff = 100 * time.Millisecond

// ErrStopTimeout is returned when a loop did not exit within the join bound.
var ErrStopTimeout = errors.New("capture loop did not stop in time")

// Producer reads frames from a device on its own goroutine and pushes them onto a Queue.
type Producer struct {
	open  Opener
	queue *Queue
	now   func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProducer creates a producer feeding q from devices produced by open.
func NewProducer(open Opener, q *Queue) *Producer {
	return &Producer{open: open, queue: q, now: time.Now}
}

// Start opens the device and begins capture without blocking on audio.
// A device that cannot be opened is returned as an error; starting twice is a no-op.
func (p *Producer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return nil
	}

	dev, err := p.open()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, dev, p.done)
	return nil
}

// Stop signals the loop and waits up to timeout for it to release the device.
func (p *Producer) Stop(timeout time.Duration) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		slog.Warn("capture loop still running after stop", "timeout", timeout)
		return ErrStopTimeout
	}
}

func (p *Producer) run(ctx context.Context, dev Device, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := dev.Close(); err != nil {
			slog.Warn("closing capture device", "error", err)
		}
	}()

	// One timer serves every read backoff; Reset is safe on a stopped or fired timer.
	backoff := time.NewTimer(readBackoff)
	backoff.Stop()
	defer backoff.Stop()

	var seq uint64
	for ctx.Err() == nil {
		data, err := dev.Read()
		if err != nil {
			slog.Warn("audio read failed", "error", err)
			backoff.Reset(readBackoff)
			select {
			case <-ctx.Done():
				return
			case <-backoff.C:
			}
			continue
		}

		if err := p.queue.Push(Frame{Seq: seq, Data: data, CapturedAt: p.now()}); err != nil {
			return
		}
		seq++
	}
}
