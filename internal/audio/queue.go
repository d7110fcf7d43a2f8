package audio

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrQueueEmpty is returned by Pop when no frame arrived within the wait.
	ErrQueueEmpty = errors.New("audio queue empty")
	// ErrQueueClosed is returned once the queue is closed and fully drained.
	ErrQueueClosed = errors.New("audio queue closed")
)

// Log every Nth overflow drop after the first.
const dropLogEvery = 100

// Queue is a bounded FIFO of frames between the producer and the consumer.
// When full, Push evicts the oldest frame so capture never blocks.
type Queue struct {
	mu      sync.Mutex
	frames  []Frame
	head    int
	size    int
	closed  bool
	ready   chan struct{}
	dropped atomic.Uint64
}

// NewQueue creates a queue holding at most capacity frames.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{frames: make([]Frame, capacity), ready: make(chan struct{}, 1)}
}

// Push enqueues f. It returns ErrQueueClosed after Close.
func (q *Queue) Push(f Frame) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}

	var evicted *Frame
	if q.size == len(q.frames) {
		old := q.frames[q.head]
		evicted = &old
		q.head = (q.head + 1) % len(q.frames)
		q.size--
	}
	q.frames[(q.head+q.size)%len(q.frames)] = f
	q.size++
	q.mu.Unlock()

	if evicted != nil {
		n := q.dropped.Add(1)
		if n == 1 || n%dropLogEvery == 0 {
			slog.Warn("audio queue full, dropping oldest frame", "seq", evicted.Seq, "dropped_total", n)
		}
	}

	q.signal()
	return nil
}

// Pop dequeues the oldest frame, waiting up to wait for one to arrive.
func (q *Queue) Pop(wait time.Duration) (Frame, error) {
	var timer *time.Timer
	for {
		q.mu.Lock()
		if q.size > 0 {
			f := q.frames[q.head]
			q.frames[q.head] = Frame{}
			q.head = (q.head + 1) % len(q.frames)
			q.size--
			q.mu.Unlock()
			if timer != nil {
				timer.Stop()
			}
			return f, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return Frame{}, ErrQueueClosed
		}
		if timer == nil {
			timer = time.NewTimer(wait)
		}

		select {
		case <-q.ready:
		case <-timer.C:
			return Frame{}, ErrQueueEmpty
		}
	}
}

// Close stops accepting frames. Frames already queued can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Dropped returns how many frames were evicted by overflow.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
