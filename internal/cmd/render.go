package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	passMark = color.New(color.FgGreen).Sprint("✓")
	warnMark = color.New(color.FgYellow).Sprint("⚠")
	failMark = color.New(color.FgRed).Sprint("✗")

	deleted  = color.New(color.FgRed, color.CrossedOut).SprintFunc()
	inserted = color.New(color.FgGreen, color.Bold).SprintFunc()
)

// renderTable writes rows in aligned columns under a styled header.
func renderTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}
	line := func(cells []string, style *lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			if i == len(cells)-1 {
				parts[i] = c
			} else {
				parts[i] = c + strings.Repeat(" ", widths[i]-lipgloss.Width(c))
			}
			if style != nil {
				parts[i] = style.Render(parts[i])
			}
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}
	fmt.Fprintln(w, line(headers, &headerStyle))
	for _, row := range rows {
		fmt.Fprintln(w, line(row, nil))
	}
}

func statusMark(status string) string {
	switch status {
	case "pass":
		return passMark
	case "warn":
		return warnMark
	default:
		return failMark
	}
}

// renderDiff writes original with removed spans as [-text-] and their
// replacements as {+text+}.
func renderDiff(w io.Writer, original, redacted string) {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(original, redacted, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			b.WriteString(deleted("[-" + d.Text + "-]"))
		case diffmatchpatch.DiffInsert:
			b.WriteString(inserted("{+" + d.Text + "+}"))
		default:
			b.WriteString(d.Text)
		}
	}
	fmt.Fprintln(w, b.String())
}
