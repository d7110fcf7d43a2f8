package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/insight"
	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/session"
)

var (
	colorAccent = lipgloss.Color("#00FFFF")
	colorGray   = lipgloss.Color("#666666")
	colorYellow = lipgloss.Color("#FFFF00")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)
)

// renderReport prints the end-of-session summary, insights and action items.
func renderReport(w io.Writer, snap session.Snapshot) {
	var b strings.Builder

	b.WriteString(titleStyle.Render(snap.Title))
	b.WriteByte('\n')
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d segments, %d recordings", len(snap.Segments), snap.Recordings)))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Summary"))
	b.WriteByte('\n')
	if snap.Summary == "" {
		b.WriteString(dimStyle.Render("No summary yet."))
	} else {
		b.WriteString(snap.Summary)
	}
	b.WriteString("\n\n")

	if len(snap.Insights) > 0 {
		b.WriteString(headerStyle.Render("Insights"))
		b.WriteByte('\n')
		groups := insight.Categorize(snap.Insights)
		for _, cat := range []string{insight.CategorySuggestion, insight.CategoryFact, insight.CategoryOther} {
			for _, in := range groups[cat] {
				b.WriteString("• " + labelStyle.Render(in.Title) + ": " + in.Detail + dimStyle.Render(" ("+cat+")") + "\n")
			}
		}
		b.WriteByte('\n')
	}

	b.WriteString(headerStyle.Render("Action Items"))
	b.WriteByte('\n')
	if len(snap.ActionItems) == 0 {
		b.WriteString(dimStyle.Render("No action items."))
		b.WriteByte('\n')
	}
	for _, item := range snap.ActionItems {
		b.WriteString("• " + formatActionItem(item) + "\n")
	}

	fmt.Fprintln(w, panelStyle.Render(strings.TrimRight(b.String(), "\n")))
}

func formatActionItem(item session.ActionItem) string {
	person := item.Person
	if person == "" {
		person = "Unassigned"
	}
	line := labelStyle.Render(person) + ": " + item.Task
	if item.Deadline != "" {
		line += dimStyle.Render(" (Deadline: " + item.Deadline + ")")
	}
	if item.Priority != "" {
		line += dimStyle.Render(" [Priority: " + item.Priority + "]")
	}
	return line
}
