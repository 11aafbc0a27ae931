package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/lukemcguire/retriever/stats"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	successStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	categoryStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	dimStyle      = lipgloss.NewStyle().Faint(true)
	countStyle    = lipgloss.NewStyle()
)

// categoryOrder defines the display order for error categories (most to
// least actionable), mirroring the teacher's categoryOrder convention.
var categoryOrder = []stats.ErrorCategory{
	stats.CategoryHTTPClient,
	stats.CategoryHTTPServer,
	stats.CategoryTransient,
	stats.CategoryBodyFraming,
	stats.CategoryFilesystem,
	stats.CategoryQuotaExceeded,
	stats.CategoryPermanent,
}

// formatCategory renders an ErrorCategory as a human label.
func formatCategory(cat stats.ErrorCategory) string {
	switch cat {
	case stats.CategoryHTTPClient:
		return "HTTP 4xx"
	case stats.CategoryHTTPServer:
		return "HTTP 5xx"
	case stats.CategoryTransient:
		return "transient network"
	case stats.CategoryBodyFraming:
		return "body framing"
	case stats.CategoryFilesystem:
		return "filesystem"
	case stats.CategoryQuotaExceeded:
		return "quota exceeded"
	case stats.CategoryPermanent:
		return "permanent"
	default:
		return "other"
	}
}

// RenderSummary produces a Lip Gloss styled summary of a finished crawl.
func RenderSummary(snap stats.Snapshot) string {
	var b strings.Builder

	if snap.JobsFail == 0 {
		b.WriteString(successStyle.Render("No failed fetches!"))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(fmt.Sprintf(
			"Fetched %d URLs (%d bytes) in %s",
			snap.JobsDone, snap.Bytes, snap.Elapsed.Round(1_000_000),
		)))
		b.WriteString("\n")
		return b.String()
	}

	rows := make([][]string, 0, len(categoryOrder))
	for _, cat := range categoryOrder {
		n := snap.ByCat[cat]
		if n == 0 {
			continue
		}
		rows = append(rows, []string{formatCategory(cat), fmt.Sprintf("%d", n)})
	}

	b.WriteString(categoryStyle.Render("## Failures by category"))
	b.WriteString("\n")
	catTable := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("Category", "Count").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return countStyle
		}).
		Rows(rows...)
	b.WriteString(catTable.Render())
	b.WriteString("\n\n")

	b.WriteString(titleStyle.Render(fmt.Sprintf(
		"Fetched %d, failed %d, %d bytes (%s) — exit %d",
		snap.JobsDone, snap.JobsFail, snap.Bytes, snap.Elapsed.Round(1_000_000), int(snap.Exit),
	)))
	b.WriteString("\n")

	return b.String()
}
