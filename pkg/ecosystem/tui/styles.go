package tui

import "github.com/charmbracelet/lipgloss"

// Step status glyphs convey meaning without relying on color alone.
const (
	GlyphPending = "○"
	GlyphRunning = "◉"
	GlyphPassed  = "✓"
	GlyphFailed  = "✗"
	GlyphSkipped = "⊘"
	GlyphCursor  = "▸"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorBlue   = lipgloss.Color("39")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	passedStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	failedStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	skippedStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Faint(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	panelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim)
)

func stepIcon(status string) string {
	switch status {
	case "pending":
		return GlyphPending
	case "running":
		return GlyphRunning
	case "success":
		return passedStyle.Render(GlyphPassed)
	case "failure":
		return failedStyle.Render(GlyphFailed)
	case "skipped":
		return skippedStyle.Render(GlyphSkipped)
	default:
		return "?"
	}
}
