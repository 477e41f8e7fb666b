package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tonhe/fieldscan/internal/heartbeat"
	"github.com/tonhe/fieldscan/internal/metrics"
	"github.com/tonhe/fieldscan/internal/quality"
	"github.com/tonhe/fieldscan/internal/resource"
	"github.com/tonhe/fieldscan/tui/components"
	"github.com/tonhe/fieldscan/tui/styles"
)

// maxWarningLines bounds the heartbeat warnings listed.
const maxWarningLines = 5

// HealthData is everything the health view shows. Nil pointers render as
// "n/a".
type HealthData struct {
	System     metrics.SystemHealth
	Drift      metrics.DriftStats
	Quality    quality.Summary
	Heartbeat  *heartbeat.Snapshot
	Warnings   []heartbeat.DriftEvent
	Resources  *resource.Stats
	CPUHistory []float64
}

// HealthView shows scheduler throughput, clock drift, data quality,
// heartbeat and process resources.
type HealthView struct {
	theme  styles.Theme
	sty    *styles.Styles
	data   HealthData
	width  int
	height int
}

// NewHealthView creates a new HealthView with the given theme.
func NewHealthView(theme styles.Theme) HealthView {
	return HealthView{
		theme: theme,
		sty:   styles.NewStyles(theme),
	}
}

// SetData replaces the displayed data.
func (v *HealthView) SetData(d HealthData) {
	v.data = d
}

// SetSize updates the available dimensions for the view.
func (v *HealthView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

// View renders the health view.
func (v HealthView) View() string {
	colWidth := v.width / 2
	if colWidth < 36 {
		colWidth = 36
	}
	left := lipgloss.NewStyle().Width(colWidth).Render(
		strings.Join(append(v.schedulerSection(), v.qualitySection()...), "\n"))
	right := lipgloss.NewStyle().Width(colWidth).Render(
		strings.Join(append(v.heartbeatSection(), v.resourceSection()...), "\n"))
	panels := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	chartHeight := v.height - lipgloss.Height(panels) - 1
	if chartHeight < 4 {
		return panels
	}
	chart := lipgloss.NewStyle().
		Foreground(v.theme.Base0C).
		Render(components.RenderChart(v.data.CPUHistory, v.width-2, chartHeight, components.ChartOptions{
			Title:  "Process CPU %",
			Format: components.FormatCount,
		}))
	return lipgloss.JoinVertical(lipgloss.Left, panels, chart)
}

func (v HealthView) section(title string) string {
	return "  " + v.sty.GroupHeader.Render(title)
}

func (v HealthView) line(label, value string) string {
	return fmt.Sprintf("  %s%s", v.sty.PanelLabel.Width(18).Render(label), value)
}

func (v HealthView) schedulerSection() []string {
	s := v.data.System
	val := v.sty.PanelValue

	satStyle := v.sty.StatusUp
	switch {
	case s.SaturationIndex > 110:
		satStyle = v.sty.StatusDown
	case s.SaturationIndex > 100:
		satStyle = v.sty.StatusWarn
	}

	d := v.data.Drift
	return []string{
		"",
		v.section("Scheduler"),
		v.line("Ingress:", val.Render(components.FormatCount(s.IngressTPM)+"/min")),
		v.line("Egress:", val.Render(components.FormatCount(s.EgressTPM)+"/min")),
		v.line("Dropped:", val.Render(fmt.Sprintf("%s/min  (%d total)", components.FormatCount(s.DroppedTPM), s.TotalDropped))),
		v.line("Saturation:", satStyle.Render(fmt.Sprintf("%.1f%%", s.SaturationIndex))),
		v.line("Queue depth:", val.Render(fmt.Sprintf("%d", s.Queue.Depth))),
		"",
		v.section("Clock drift"),
		v.line("Samples:", val.Render(fmt.Sprintf("%d", d.Count))),
		v.line("Mean:", val.Render(components.FormatMillis(d.MeanMs))),
		v.line("Min / Max:", val.Render(components.FormatMillis(d.MinMs)+" / "+components.FormatMillis(d.MaxMs))),
		v.line("Std dev:", val.Render(components.FormatMillis(d.StdDevMs))),
	}
}

func (v HealthView) qualitySection() []string {
	q := v.data.Quality
	return []string{
		"",
		v.section("Data quality"),
		v.line("Points:", v.sty.PanelValue.Render(fmt.Sprintf("%d", q.Total))),
		v.line("Good:", v.sty.StatusUp.Render(fmt.Sprintf("%d", q.Good))),
		v.line("Stale:", v.sty.StatusDown.Render(fmt.Sprintf("%d", q.Stale))),
		v.line("Uncertain:", v.sty.StatusWarn.Render(fmt.Sprintf("%d", q.Uncertain))),
	}
}

func (v HealthView) heartbeatSection() []string {
	lines := []string{"", v.section("Heartbeat")}
	hb := v.data.Heartbeat
	if hb == nil {
		return append(lines, v.line("Status:", v.sty.TableCellDim.Render("n/a")))
	}
	status := v.sty.StatusUp.Render("healthy")
	if !hb.Healthy {
		status = v.sty.StatusDown.Render("degraded")
	}
	val := v.sty.PanelValue
	lines = append(lines,
		v.line("Status:", status),
		v.line("Latency:", val.Render(fmt.Sprintf("%dms", hb.LatencyMs))),
		v.line("Clock drift:", val.Render(fmt.Sprintf("%dms", hb.ClockDriftMs))),
		v.line("Warnings:", val.Render(fmt.Sprintf("%d", len(v.data.Warnings)))),
	)
	start := len(v.data.Warnings) - maxWarningLines
	if start < 0 {
		start = 0
	}
	for _, w := range v.data.Warnings[start:] {
		lines = append(lines, "    "+v.sty.StatusWarn.Render(
			truncate(fmt.Sprintf("%s %s", w.Timestamp.Format("15:04:05"), w.Kind), v.width/2-6)))
	}
	return lines
}

func (v HealthView) resourceSection() []string {
	lines := []string{"", v.section("Process")}
	r := v.data.Resources
	if r == nil {
		return append(lines, v.line("Status:", v.sty.TableCellDim.Render("n/a")))
	}
	val := v.sty.PanelValue
	return append(lines,
		v.line("CPU:", val.Render(fmt.Sprintf("%.1f%%", r.CPUPercent))),
		v.line("Memory:", val.Render(fmt.Sprintf("%.1f MB", r.MemoryMB))),
		v.line("Goroutines:", val.Render(fmt.Sprintf("%d", r.Goroutines))),
		v.line("System CPU:", val.Render(fmt.Sprintf("%.1f%%", r.SystemCPUPercent))),
		v.line("System memory:", val.Render(fmt.Sprintf("%.1f%%", r.SystemMemPercent))),
	)
}
