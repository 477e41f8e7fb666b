package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tonhe/fieldscan/tui/styles"
)

// RenderHeader renders the top header bar with app name, the current view,
// scan state, and device/frame counts.
func RenderHeader(theme styles.Theme, view, state string, devices, frames, width int) string {
	left := lipgloss.NewStyle().
		Foreground(theme.Base0D).
		Background(theme.Base01).
		Bold(true).
		Render("fieldscan")

	center := lipgloss.NewStyle().
		Foreground(theme.Base05).
		Background(theme.Base01).
		Render(view)

	statusColor := theme.Base08
	switch state {
	case "running":
		statusColor = theme.Base0B
	case "stopping":
		statusColor = theme.Base0A
	}
	right := lipgloss.NewStyle().
		Foreground(statusColor).
		Background(theme.Base01).
		Render(fmt.Sprintf("%-8s", strings.ToUpper(state)))

	counts := lipgloss.NewStyle().
		Foreground(theme.Base04).
		Background(theme.Base01).
		Render(fmt.Sprintf("%d devices  %d frames", devices, frames))

	content := fmt.Sprintf(" %s  |  %s  |  %s  |  %s ", left, center, right, counts)

	return lipgloss.NewStyle().
		Background(theme.Base01).
		Width(width).
		Render(content)
}
