// Package export writes a session snapshot to disk as Markdown or JSON.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/rajpdus/meeting-sidekick/internal/errors"
	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/session"
	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/transcript"
)

// Format selects the output layout.
type Format string

const (
	Markdown Format = "markdown"
	JSON     Format = "json"
)

// DefaultDir is used when no export directory is configured.
const DefaultDir = "meeting_exports"

const (
	dateLayout     = "2006-01-02 15:04:05"
	filenameLayout = "2006-01-02_15-04-05"
	invalidChars   = `<>:"/\|?*`
)

// ParseFormat accepts "markdown", "md" or "json", case-insensitively. Empty means Markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return Markdown, nil
	case "json":
		return JSON, nil
	default:
		return "", apperrors.Newf(apperrors.CodeInvalidArgument, "unknown export format %q", s)
	}
}

// Ext returns the file extension without the dot.
func (f Format) Ext() string {
	if f == JSON {
		return "json"
	}
	return "md"
}

// Sanitize replaces characters that are invalid in file names with underscores.
func Sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidChars, r) {
			return '_'
		}
		return r
	}, name)
}

// Filename builds "<title>_<YYYY-MM-DD_HH-MM-SS>.<ext>".
func Filename(title string, at time.Time, f Format) string {
	return fmt.Sprintf("%s_%s.%s", Sanitize(title), at.Format(filenameLayout), f.Ext())
}

// Write renders snap in format f into dir, creating dir if needed, and returns the file path.
func Write(dir string, snap session.Snapshot, f Format, now time.Time) (string, error) {
	if dir == "" {
		dir = DefaultDir
	}
	var (
		data []byte
		err  error
	)
	switch f {
	case Markdown:
		data = []byte(RenderMarkdown(snap))
	case JSON:
		data, err = RenderJSON(snap)
	default:
		err = apperrors.Newf(apperrors.CodeInvalidArgument, "unknown export format %q", f)
	}
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.Wrapf(err, apperrors.CodeExportFailed, "create export dir %s", dir)
	}
	path := filepath.Join(dir, Filename(snap.Title, now, f))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", apperrors.Wrapf(err, apperrors.CodeExportFailed, "write %s", path)
	}
	return path, nil
}

// RenderMarkdown lays out title, date, summary, insights, action items and the full transcript.
func RenderMarkdown(snap session.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", snap.Title)
	fmt.Fprintf(&b, "**Date:** %s\n\n", meetingDate(snap).Format(dateLayout))

	b.WriteString("## Summary\n\n")
	b.WriteString(snap.Summary)
	b.WriteString("\n\n")

	if len(snap.Insights) > 0 {
		b.WriteString("## Insights\n\n")
		for _, in := range snap.Insights {
			fmt.Fprintf(&b, "- **%s:** %s\n", in.Title, in.Detail)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Action Items\n\n")
	if len(snap.ActionItems) == 0 {
		b.WriteString("No action items.\n")
	}
	for _, it := range snap.ActionItems {
		person := it.Person
		if person == "" {
			person = "Unassigned"
		}
		fmt.Fprintf(&b, "- **%s:** %s", person, it.Task)
		if it.Deadline != "" {
			fmt.Fprintf(&b, " (Deadline: %s)", it.Deadline)
		}
		if it.Priority != "" {
			fmt.Fprintf(&b, " [Priority: %s]", it.Priority)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n## Full Transcript\n\n```\n")
	b.WriteString(snap.Transcript())
	b.WriteString("\n```\n")
	return b.String()
}

type document struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Date        string               `json:"date"`
	Summary     string               `json:"summary"`
	Insights    []session.Insight    `json:"insights"`
	ActionItems []session.ActionItem `json:"action_items"`
	Transcript  string               `json:"transcript"`
	Segments    []transcript.Segment `json:"segments"`
}

// RenderJSON encodes the same fields as the Markdown layout plus the session id and raw segments.
func RenderJSON(snap session.Snapshot) ([]byte, error) {
	doc := document{
		ID:          snap.ID,
		Title:       snap.Title,
		Date:        meetingDate(snap).Format(dateLayout),
		Summary:     snap.Summary,
		Insights:    snap.Insights,
		ActionItems: snap.ActionItems,
		Transcript:  snap.Transcript(),
		Segments:    snap.Segments,
	}
	if doc.Insights == nil {
		doc.Insights = []session.Insight{}
	}
	if doc.ActionItems == nil {
		doc.ActionItems = []session.ActionItem{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeExportFailed, "encode export")
	}
	return data, nil
}

func meetingDate(snap session.Snapshot) time.Time {
	if !snap.StartedAt.IsZero() {
		return snap.StartedAt
	}
	return snap.CreatedAt
}
