package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"labreport/internal/analysis"
)

var (
	badgeBase = lipgloss.NewStyle().Bold(true).Padding(0, 1)

	badgeColors = map[analysis.Method]lipgloss.Color{
		analysis.PrimaryAgent:         lipgloss.Color("#16a34a"),
		analysis.DirectFallback:       lipgloss.Color("#ca8a04"),
		analysis.ParsingErrorFallback: lipgloss.Color("#ea580c"),
		analysis.NotFound:             lipgloss.Color("#6b7280"),
		analysis.TerminalFailure:      lipgloss.Color("#dc2626"),
	}

	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
)

// methodBadge renders the method tag as a colored label.
func methodBadge(m analysis.Method) string {
	return badgeBase.
		Foreground(lipgloss.Color("#ffffff")).
		Background(badgeColors[m]).
		Render(m.String())
}

// renderMarkdown formats md for the terminal when --pretty is set.
func renderMarkdown(md string) string {
	if !pretty {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

func printResult(w io.Writer, subjectID string, res *analysis.Result) {
	fmt.Fprintf(w, "%s %s\n", methodBadge(res.Method), subjectID)
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf(
		"structured logs: %d  chat logs: %d  generated: %s",
		res.Metadata.TotalStructuredLogs, res.Metadata.TotalChatLogs,
		res.Metadata.GeneratedAt.Format("2006-01-02 15:04:05"),
	)))
	fmt.Fprintln(w, renderMarkdown(res.Text))
}
