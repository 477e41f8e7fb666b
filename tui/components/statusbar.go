package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tonhe/fieldscan/internal/metrics"
	"github.com/tonhe/fieldscan/internal/quality"
	"github.com/tonhe/fieldscan/tui/styles"
)

// RenderStatusBar renders the two-line footer: throughput, saturation,
// data quality and heartbeat on top, key bindings below.
func RenderStatusBar(theme styles.Theme, health metrics.SystemHealth, q quality.Summary, heartbeatOK bool, width int) string {
	bg := theme.Base01
	bgStyle := lipgloss.NewStyle().Background(bg)
	sep := lipgloss.NewStyle().Foreground(theme.Base03).Background(bg).Render(" | ")
	plain := lipgloss.NewStyle().Foreground(theme.Base05).Background(bg)

	tpmSeg := plain.Render(fmt.Sprintf("in %s/min  out %s/min",
		FormatCount(health.IngressTPM), FormatCount(health.EgressTPM)))

	satColor := theme.Base0B
	switch {
	case health.SaturationIndex > 110:
		satColor = theme.Base08
	case health.SaturationIndex > 100:
		satColor = theme.Base0A
	}
	satSeg := lipgloss.NewStyle().Foreground(satColor).Background(bg).
		Render(fmt.Sprintf("sat %.0f%%", health.SaturationIndex))

	dropColor := theme.Base05
	if health.TotalDropped > 0 {
		dropColor = theme.Base0A
	}
	dropSeg := lipgloss.NewStyle().Foreground(dropColor).Background(bg).
		Render(fmt.Sprintf("dropped %d", health.TotalDropped))

	qualityColor := theme.Base0B
	if q.Stale > 0 {
		qualityColor = theme.Base0A
	}
	qualitySeg := lipgloss.NewStyle().Foreground(qualityColor).Background(bg).
		Render(fmt.Sprintf("%d/%d good", q.Good, q.Total))

	hbText, hbColor := "heartbeat ok", theme.Base0B
	if !heartbeatOK {
		hbText, hbColor = "heartbeat DEGRADED", theme.Base08
	}
	hbSeg := lipgloss.NewStyle().Foreground(hbColor).Background(bg).Render(hbText)

	topContent := bgStyle.Render(" ") + tpmSeg + sep + satSeg + sep + dropSeg + sep + qualitySeg + sep + hbSeg
	topWidth := lipgloss.Width(topContent)
	if topWidth < width {
		topContent += bgStyle.Render(strings.Repeat(" ", width-topWidth))
	}

	keyStyle := lipgloss.NewStyle().Foreground(theme.Base0D).Background(bg).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(theme.Base04).Background(bg)
	spacer := bgStyle.Render("  ")

	keys := bgStyle.Render(" ") +
		keyStyle.Render("enter") + descStyle.Render(":detail") + spacer +
		keyStyle.Render("tab") + descStyle.Render(":health") + spacer +
		keyStyle.Render("s") + descStyle.Render(":start/stop") + spacer +
		keyStyle.Render("?") + descStyle.Render(":help") + spacer +
		keyStyle.Render("q") + descStyle.Render(":quit")

	keysWidth := lipgloss.Width(keys)
	if keysWidth < width {
		keys += bgStyle.Render(strings.Repeat(" ", width-keysWidth))
	}

	return lipgloss.JoinVertical(lipgloss.Left, topContent, keys)
}
