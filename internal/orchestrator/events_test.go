package orchestrator

import (
	"testing"
	"time"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub(4)
	a, unsubA := h.Subscribe()
	b, unsubB := h.Subscribe()
	defer unsubA()
	defer unsubB()

	h.Publish(Event{Type: EventSummary, Summary: "s"})

	for name, ch := range map[string]<-chan Event{"a": a, "b": b} {
		select {
		case e := <-ch:
			if e.Type != EventSummary || e.Summary != "s" {
				t.Errorf("%s got %+v", name, e)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("%s: timeout waiting for event", name)
		}
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(1)
	_, unsub := h.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			h.Publish(Event{Type: EventTranscript})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if h.Dropped() != 4 {
		t.Errorf("Dropped() = %d, want 4", h.Dropped())
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub(1)
	ch, unsub := h.Subscribe()
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	if h.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d", h.Subscribers())
	}
	h.Publish(Event{Type: EventStatus})
}

func TestHubClose(t *testing.T) {
	h := NewHub(1)
	ch, unsub := h.Subscribe()
	h.Close()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("Close should close subscriber channels")
	}
	late, _ := h.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscribing after Close should yield a closed channel")
	}
}
