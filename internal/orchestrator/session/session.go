// Package session holds the aggregate state of one meeting.
package session

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/transcript"
	"github.com/rajpdus/meeting-sidekick/internal/syncx"
)

// ParseFailureTask is the task text of the item that replaces the list when a reply cannot be parsed.
const ParseFailureTask = "Error parsing action items, please check transcript manually"

// Insight is one just-in-time conversational hint.
type Insight struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// ActionItem is one extracted follow-up. Only Task is required.
type ActionItem struct {
	Person   string `json:"person,omitempty"`
	Task     string `json:"task"`
	Deadline string `json:"deadline,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// ParseFailureItem flags a failed extraction to the user.
func ParseFailureItem() ActionItem { return ActionItem{Task: ParseFailureTask} }

// Normalize trims fields and clears placeholder values such as "null" or "N/A".
func (a ActionItem) Normalize() ActionItem {
	a.Person = optional(a.Person)
	a.Task = strings.TrimSpace(a.Task)
	a.Deadline = optional(a.Deadline)
	a.Priority = optional(a.Priority)
	return a
}

func optional(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "null", "none", "n/a", "unknown", "not mentioned", "not specified":
		return ""
	}
	return s
}

// DefaultTitle names a meeting after its start time.
func DefaultTitle(t time.Time) string {
	return "Meeting " + t.Format("2006-01-02 15:04")
}

type fields struct {
	title       string
	summary     string
	insights    []Insight
	actionItems []ActionItem
	recording   bool
	createdAt   time.Time
	startedAt   time.Time
	stoppedAt   time.Time
	insightsAt  time.Time
	summaryAt   time.Time
	actionsAt   time.Time
	recordings  int
}

// Session is safe for concurrent use. Derived views are replaced wholesale, never merged.
type Session struct {
	id  string
	log *transcript.Log
	st  *syncx.RWGuard[fields]
}

// New creates an idle session whose conversation window holds windowSize segments.
func New(windowSize int, now time.Time) *Session {
	return &Session{
		id:  uuid.New().String(),
		log: transcript.NewLog(windowSize),
		st:  syncx.NewGuard(fields{title: DefaultTitle(now), createdAt: now}),
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Transcript returns the session's transcript log.
func (s *Session) Transcript() *transcript.Log { return s.log }

// Title returns the meeting title.
func (s *Session) Title() string {
	return syncx.View(s.st, func(f *fields) string { return f.title })
}

// SetTitle renames the meeting. Blank titles are ignored.
func (s *Session) SetTitle(title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}
	s.st.Write(func(f *fields) { f.title = title })
	return true
}

// Summary returns the current summary.
func (s *Session) Summary() string {
	return syncx.View(s.st, func(f *fields) string { return f.summary })
}

// SetSummary replaces the summary.
func (s *Session) SetSummary(text string, at time.Time) {
	s.st.Write(func(f *fields) {
		f.summary = text
		f.summaryAt = at
	})
}

// Insights returns a copy of the current insight batch.
func (s *Session) Insights() []Insight {
	return syncx.View(s.st, func(f *fields) []Insight { return append([]Insight(nil), f.insights...) })
}

// SetInsights replaces the current insight batch.
func (s *Session) SetInsights(batch []Insight, at time.Time) {
	batch = append([]Insight(nil), batch...)
	s.st.Write(func(f *fields) {
		f.insights = batch
		f.insightsAt = at
	})
}

// ActionItems returns a copy of the current action items.
func (s *Session) ActionItems() []ActionItem {
	return syncx.View(s.st, func(f *fields) []ActionItem { return append([]ActionItem(nil), f.actionItems...) })
}

// SetActionItems replaces the action item list.
func (s *Session) SetActionItems(items []ActionItem, at time.Time) {
	items = append([]ActionItem(nil), items...)
	s.st.Write(func(f *fields) {
		f.actionItems = items
		f.actionsAt = at
	})
}

// Recording reports whether the session is in the Recording state.
func (s *Session) Recording() bool {
	return syncx.View(s.st, func(f *fields) bool { return f.recording })
}

// MarkRecording moves Idle to Recording. It returns false if already recording.
func (s *Session) MarkRecording(at time.Time) bool {
	return syncx.Modify(s.st, func(f *fields) bool {
		if f.recording {
			return false
		}
		f.recording = true
		f.startedAt = at
		f.recordings++
		return true
	})
}

// MarkIdle moves Recording to Idle. It returns false if already idle.
func (s *Session) MarkIdle(at time.Time) bool {
	return syncx.Modify(s.st, func(f *fields) bool {
		if !f.recording {
			return false
		}
		f.recording = false
		f.stoppedAt = at
		return true
	})
}

// Snapshot is a point-in-time copy of the session for rendering and export.
type Snapshot struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Recording   bool                 `json:"recording"`
	Recordings  int                  `json:"recordings"`
	CreatedAt   time.Time            `json:"created_at"`
	StartedAt   time.Time            `json:"started_at,omitzero"`
	StoppedAt   time.Time            `json:"stopped_at,omitzero"`
	Summary     string               `json:"summary"`
	SummaryAt   time.Time            `json:"summary_at,omitzero"`
	Insights    []Insight            `json:"insights"`
	InsightsAt  time.Time            `json:"insights_at,omitzero"`
	ActionItems []ActionItem         `json:"action_items"`
	ActionsAt   time.Time            `json:"action_items_at,omitzero"`
	Segments    []transcript.Segment `json:"segments"`
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	snap := syncx.View(s.st, func(f *fields) Snapshot {
		return Snapshot{
			ID:          s.id,
			Title:       f.title,
			Recording:   f.recording,
			Recordings:  f.recordings,
			CreatedAt:   f.createdAt,
			StartedAt:   f.startedAt,
			StoppedAt:   f.stoppedAt,
			Summary:     f.summary,
			SummaryAt:   f.summaryAt,
			Insights:    append([]Insight{}, f.insights...),
			InsightsAt:  f.insightsAt,
			ActionItems: append([]ActionItem{}, f.actionItems...),
			ActionsAt:   f.actionsAt,
		}
	})
	snap.Segments = s.log.Segments()
	if snap.Segments == nil {
		snap.Segments = []transcript.Segment{}
	}
	return snap
}

// Transcript joins segment texts one per line.
func (s Snapshot) Transcript() string {
	var b strings.Builder
	for i, seg := range s.Segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}
