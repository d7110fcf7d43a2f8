package session

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

var t0 = time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC)

func TestNewSessionDefaults(t *testing.T) {
	s := New(20, t0)

	if s.ID() == "" {
		t.Error("session should have an id")
	}
	if s.Title() != "Meeting 2024-05-06 09:30" {
		t.Errorf("Title() = %q", s.Title())
	}
	if s.Recording() {
		t.Error("new session should be idle")
	}
	if s.Summary() != "" || len(s.Insights()) != 0 || len(s.ActionItems()) != 0 {
		t.Error("derived views should start empty")
	}
}

func TestStateMachineTransitions(t *testing.T) {
	s := New(20, t0)

	if s.MarkIdle(t0) {
		t.Error("stopping an idle session should be a no-op")
	}
	if !s.MarkRecording(t0) {
		t.Fatal("Idle -> Recording should succeed")
	}
	if s.MarkRecording(t0.Add(time.Second)) {
		t.Error("starting while recording should be a no-op")
	}
	if !s.MarkIdle(t0.Add(time.Minute)) {
		t.Fatal("Recording -> Idle should succeed")
	}
	if s.MarkIdle(t0.Add(2 * time.Minute)) {
		t.Error("second stop should be a no-op")
	}

	snap := s.Snapshot()
	if !snap.StartedAt.Equal(t0) || !snap.StoppedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("timestamps = %v / %v", snap.StartedAt, snap.StoppedAt)
	}
	if snap.Recordings != 1 {
		t.Errorf("Recordings = %d, want 1", snap.Recordings)
	}
}

func TestSettersReplaceWholesale(t *testing.T) {
	s := New(20, t0)

	s.SetInsights([]Insight{{Title: "a"}, {Title: "b"}}, t0)
	s.SetInsights([]Insight{{Title: "c"}}, t0)
	if got := s.Insights(); len(got) != 1 || got[0].Title != "c" {
		t.Errorf("Insights() = %+v, want [c]", got)
	}

	items := []ActionItem{{Task: "one"}, {Task: "two"}}
	s.SetActionItems(items, t0)
	items[0].Task = "mutated"
	if got := s.ActionItems(); got[0].Task != "one" {
		t.Error("session should copy action items on set")
	}

	if s.SetTitle("   ") {
		t.Error("blank title should be rejected")
	}
	if !s.SetTitle(" Weekly sync ") || s.Title() != "Weekly sync" {
		t.Errorf("Title() = %q", s.Title())
	}
}

func TestActionItemNormalize(t *testing.T) {
	got := ActionItem{Person: " Sam ", Task: " ship ", Deadline: "null", Priority: "N/A"}.Normalize()
	want := ActionItem{Person: "Sam", Task: "ship"}
	if got != want {
		t.Errorf("Normalize() = %+v, want %+v", got, want)
	}
	if ParseFailureItem().Task != ParseFailureTask {
		t.Error("ParseFailureItem should carry the failure task")
	}
}

func TestSnapshotIncludesTranscript(t *testing.T) {
	s := New(20, t0)
	s.Transcript().Append("we should ship Friday")
	s.Transcript().Append("agreed")
	s.SetSummary("Shipping Friday.", t0)

	snap := s.Snapshot()
	if snap.Transcript() != "we should ship Friday\nagreed" {
		t.Errorf("Transcript() = %q", snap.Transcript())
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"summary":"Shipping Friday."`, `"insights":[]`, `"action_items":[]`, `"segments":[{`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("snapshot JSON missing %s: %s", key, data)
		}
	}
}
