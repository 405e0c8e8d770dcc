// Package report renders pipeline results and the command catalogue for
// terminals.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	successStyle = lipgloss.NewStyle().Foreground(colorGreen)
	failureStyle = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	skippedStyle = lipgloss.NewStyle().Foreground(colorYellow)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
)

// commandWidth bounds the command column.
const commandWidth = 24

// StatusIcon returns the glyph used for a step status.
func StatusIcon(s schema.StepStatus) string {
	switch s {
	case schema.StatusSuccess:
		return "✓"
	case schema.StatusFailure:
		return "✗"
	default:
		return "–"
	}
}

// StatusStyle returns the style used for a step status.
func StatusStyle(s schema.StepStatus) lipgloss.Style {
	switch s {
	case schema.StatusSuccess:
		return successStyle
	case schema.StatusFailure:
		return failureStyle
	default:
		return skippedStyle
	}
}

// WriteResult writes a human-readable summary of res to w.
func WriteResult(w io.Writer, res *schema.PipelineResult) error {
	_, err := io.WriteString(w, Result(res))
	return err
}

// Result renders res as a styled multi-line summary.
func Result(res *schema.PipelineResult) string {
	var b strings.Builder

	title := "Pipeline"
	if res.RunID != "" {
		title += " " + res.RunID
	}
	b.WriteString(titleStyle.Render(title) + "\n")

	width := 0
	for _, s := range res.Steps {
		if w := runewidth.StringWidth(s.Command); w > width {
			width = w
		}
	}
	if width > commandWidth {
		width = commandWidth
	}

	for i, s := range res.Steps {
		b.WriteString(StepLine(i, s, width) + "\n")
	}

	md := res.Metadata
	b.WriteString(dimStyle.Render(strings.Repeat("─", width+24)) + "\n")
	b.WriteString(fmt.Sprintf("%d/%d steps completed · confidence %.2f · %s\n",
		md.CompletedSteps, len(res.Steps), md.Confidence, formatMs(md.ExecutionTimeMs)))
	for _, r := range md.Reasoning {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %s: %s", r.Command, r.Reasoning)) + "\n")
	}
	return b.String()
}

// StepLine renders one step as "  ✓ 0  command   1.2ms  detail".
func StepLine(index int, s schema.StepResult, width int) string {
	status := s.Status()
	icon := StatusStyle(status).Render(StatusIcon(status))
	name := runewidth.FillRight(runewidth.Truncate(s.Command, width, "…"), width)

	line := fmt.Sprintf("  %s %-2d %s  %8s", icon, index, name, formatMs(s.ExecutionTimeMs))
	if s.Confidence != nil {
		line += fmt.Sprintf("  %.2f", *s.Confidence)
	}
	if detail := StepDetail(s); detail != "" {
		line += "  " + StatusStyle(status).Render(detail)
	}
	return line
}

// StepDetail is the one-line explanation shown next to a step: the error
// for failures, the skip reason for skipped steps, the reasoning otherwise.
func StepDetail(s schema.StepResult) string {
	switch out := s.Outcome.(type) {
	case schema.Failure:
		if out.Error == nil {
			return ""
		}
		detail := out.Error.Code + ": " + out.Error.Message
		if out.Error.Suggestion != "" {
			detail += " (" + out.Error.Suggestion + ")"
		}
		return detail
	case schema.Skipped:
		return "skipped (" + string(out.Reason) + ")"
	default:
		return s.Reasoning
	}
}

func formatMs(ms float64) string {
	if ms >= 1000 {
		return fmt.Sprintf("%.2fs", ms/1000)
	}
	return fmt.Sprintf("%.1fms", ms)
}
