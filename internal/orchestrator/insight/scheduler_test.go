package insight

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/session"
)

type mockCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	prompts []string
}

func (m *mockCompleter) Complete(_ context.Context, _, user string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, user)
	return m.reply, m.err
}

// fakeClock is advanced manually by tests.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time       { return c.t }
func (c *fakeClock) set(sec int)          { c.t = c.at(sec) }
func (c *fakeClock) at(sec int) time.Time { return epoch.Add(time.Duration(sec) * time.Second) }

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

const goodReply = `Sure! {"insights":[{"title":"Release risk","detail":"You could mention the Friday freeze."}]} Hope this helps.`

func newTestScheduler(llm Completer, onInsights Handler) (*Scheduler, *session.Session, *fakeClock) {
	clock := &fakeClock{t: epoch}
	sess := session.New(20, epoch)
	s := NewScheduler(llm, sess, DefaultConfig(), onInsights)
	s.now = clock.now
	s.Reset(epoch)
	return s, sess, clock
}

func TestCooldownBlocksEarlySegments(t *testing.T) {
	llm := &mockCompleter{reply: goodReply}
	s, sess, clock := newTestScheduler(llm, nil)

	for _, sec := range []int{0, 5, 10} {
		clock.set(sec)
		sess.Transcript().Append("segment")
		if got := s.OnSegment(context.Background()); got != Skipped {
			t.Errorf("t=%d: OnSegment() = %v, want skipped", sec, got)
		}
	}
	if llm.calls != 0 {
		t.Fatalf("completion calls = %d before cooldown elapsed, want 0", llm.calls)
	}

	clock.set(30)
	sess.Transcript().Append("segment")
	if got := s.OnSegment(context.Background()); got != Applied {
		t.Errorf("t=30: OnSegment() = %v, want applied", got)
	}
	if llm.calls != 1 {
		t.Errorf("completion calls = %d, want 1", llm.calls)
	}
}

func TestMinimumContext(t *testing.T) {
	llm := &mockCompleter{reply: goodReply}
	s, sess, clock := newTestScheduler(llm, nil)
	clock.set(60)

	sess.Transcript().Append("one")
	sess.Transcript().Append("two")
	if s.OnSegment(context.Background()) != Skipped || llm.calls != 0 {
		t.Error("fewer than 3 context segments should skip")
	}

	sess.Transcript().Append("three")
	if s.OnSegment(context.Background()) != Applied {
		t.Error("3 context segments should trigger a request")
	}
	if !strings.Contains(llm.prompts[0], "one two three") {
		t.Errorf("prompt should carry the joined window: %q", llm.prompts[0])
	}
}

func TestAppliedBatchUpdatesSessionAndCooldown(t *testing.T) {
	llm := &mockCompleter{reply: goodReply}
	var delivered [][]session.Insight
	s, sess, clock := newTestScheduler(llm, func(_ context.Context, batch []session.Insight) {
		delivered = append(delivered, batch)
	})
	for i := 0; i < 3; i++ {
		sess.Transcript().Append("talk")
	}

	clock.set(30)
	s.OnSegment(context.Background())

	got := sess.Insights()
	if len(got) != 1 || got[0].Title != "Release risk" {
		t.Errorf("session insights = %+v", got)
	}
	if len(delivered) != 1 {
		t.Errorf("callback invoked %d times, want 1", len(delivered))
	}

	clock.set(45)
	if s.OnSegment(context.Background()) != Skipped {
		t.Error("cooldown should restart from the applied batch")
	}
	if s.Due(clock.at(59)) || !s.Due(clock.at(60)) {
		t.Error("next request should be due exactly one cooldown after the last batch")
	}
}

func TestFailuresAreSilentNoops(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{"call error", "", errors.New("503")},
		{"no json", "I can't help with that.", nil},
		{"empty list", `{"insights":[]}`, nil},
		{"wrong shape", `{"ideas":[{"title":"x"}]}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &mockCompleter{reply: tt.reply, err: tt.err}
			called := false
			s, sess, clock := newTestScheduler(llm, func(context.Context, []session.Insight) { called = true })
			previous := []session.Insight{{Title: "keep", Detail: "me"}}
			sess.SetInsights(previous, epoch)
			for i := 0; i < 3; i++ {
				sess.Transcript().Append("talk")
			}

			clock.set(31)
			if got := s.OnSegment(context.Background()); got != Failed {
				t.Errorf("OnSegment() = %v, want failed", got)
			}
			if called {
				t.Error("callback should not run on failure")
			}
			if got := sess.Insights(); len(got) != 1 || got[0].Title != "keep" {
				t.Errorf("insights changed on failure: %+v", got)
			}
			if !s.Due(clock.at(32)) {
				t.Error("failure should not restart the cooldown")
			}
		})
	}
}

func TestDisabledScheduler(t *testing.T) {
	llm := &mockCompleter{reply: goodReply}
	s, sess, clock := newTestScheduler(llm, nil)
	for i := 0; i < 3; i++ {
		sess.Transcript().Append("talk")
	}
	s.SetEnabled(false)
	if s.Enabled() {
		t.Fatal("Enabled() = true after SetEnabled(false)")
	}
	clock.set(100)

	if s.OnSegment(context.Background()) != Skipped || llm.calls != 0 {
		t.Error("disabled scheduler should not call the model")
	}
}

func TestCategorize(t *testing.T) {
	batch := []session.Insight{
		{Title: "a", Detail: "You should raise the budget."},
		{Title: "b", Detail: "According to Q3 data, churn fell."},
		{Title: "c", Detail: "Interesting parallel with last year."},
	}
	got := Categorize(batch)

	if len(got[CategorySuggestion]) != 1 || got[CategorySuggestion][0].Title != "a" {
		t.Errorf("suggestions = %+v", got[CategorySuggestion])
	}
	if len(got[CategoryFact]) != 1 || got[CategoryFact][0].Title != "b" {
		t.Errorf("facts = %+v", got[CategoryFact])
	}
	if len(got[CategoryOther]) != 1 || got[CategoryOther][0].Title != "c" {
		t.Errorf("other = %+v", got[CategoryOther])
	}
}
