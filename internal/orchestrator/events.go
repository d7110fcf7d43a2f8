package orchestrator

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/session"
	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/transcript"
)

// EventType names a session event on the wire.
type EventType string

const (
	EventTranscript  EventType = "transcript"
	EventInsights    EventType = "insights"
	EventSummary     EventType = "summary"
	EventActionItems EventType = "action_items"
	EventStatus      EventType = "status"
)

// Status is the payload of a status event.
type Status struct {
	Recording       bool   `json:"recording"`
	Title           string `json:"title"`
	Segments        int    `json:"segments"`
	InsightsEnabled bool   `json:"insights_enabled"`
}

// Event is one session change. Only the field matching Type is set.
type Event struct {
	Type        EventType            `json:"type"`
	Segment     *transcript.Segment  `json:"segment,omitempty"`
	Insights    []session.Insight    `json:"insights,omitempty"`
	Summary     string               `json:"summary,omitempty"`
	ActionItems []session.ActionItem `json:"action_items,omitempty"`
	Status      *Status              `json:"status,omitempty"`
}

// Hub fans events out to any number of subscribers without blocking the publisher.
type Hub struct {
	mu      sync.RWMutex
	subs    map[chan Event]struct{}
	buffer  int
	closed  bool
	dropped atomic.Uint64
}

// NewHub creates a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = EventBuffer
	}
	return &Hub{subs: make(map[chan Event]struct{}), buffer: buffer}
}

// Subscribe registers a subscriber. Call the returned func to unsubscribe; it closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Publish delivers e to every subscriber with room in its buffer.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			if n := h.dropped.Add(1); n == 1 || n%100 == 0 {
				slog.Debug("event subscriber full, dropping", "type", e.Type, "dropped", n)
			}
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Close closes every subscriber channel. Later subscribers receive a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
