package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tonhe/fieldscan/internal/scan"
	"github.com/tonhe/fieldscan/tui/components"
	"github.com/tonhe/fieldscan/tui/keys"
	"github.com/tonhe/fieldscan/tui/styles"
)

// Column width constants (minimum widths).
const (
	colFrame    = 16
	colStatus   = 8
	colRange    = 12
	colInterval = 9
	colResp     = 9
	colReads    = 9
	colFails    = 7
	colSparkMin = 12
)

// Response time thresholds, as a fraction of the frame interval.
const (
	respWarnRatio = 0.5
	respHighRatio = 0.8
)

// FrameRow is one selectable row of the dashboard.
type FrameRow struct {
	Device string
	Mode   scan.Mode
	Frame  scan.FrameStats
}

// DashboardView is the main monitoring table showing every frame grouped
// by device.
type DashboardView struct {
	theme    styles.Theme
	sty      *styles.Styles
	snapshot *scan.Snapshot
	rows     []FrameRow
	cursor   int
	width    int
	height   int
}

// NewDashboardView creates a new DashboardView with the given theme.
func NewDashboardView(theme styles.Theme) DashboardView {
	return DashboardView{
		theme: theme,
		sty:   styles.NewStyles(theme),
	}
}

// Update handles key messages for cursor navigation within the dashboard.
func (v DashboardView) Update(msg tea.Msg) (DashboardView, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.DefaultKeyMap.Up):
			if v.cursor > 0 {
				v.cursor--
			}
		case key.Matches(msg, keys.DefaultKeyMap.Down):
			if v.cursor < len(v.rows)-1 {
				v.cursor++
			}
		}
	}
	return v, nil
}

// SetSnapshot updates the table data and clamps the cursor.
func (v *DashboardView) SetSnapshot(snap *scan.Snapshot) {
	v.snapshot = snap
	v.rows = nil
	if snap != nil {
		for _, d := range snap.Devices {
			for _, f := range d.Frames {
				v.rows = append(v.rows, FrameRow{Device: d.Name, Mode: d.Mode, Frame: f})
			}
		}
	}
	if v.cursor >= len(v.rows) {
		v.cursor = len(v.rows) - 1
	}
	if v.cursor < 0 {
		v.cursor = 0
	}
}

// Selected returns the row under the cursor.
func (v DashboardView) Selected() (FrameRow, bool) {
	if v.cursor < 0 || v.cursor >= len(v.rows) {
		return FrameRow{}, false
	}
	return v.rows[v.cursor], true
}

// SetSize updates the available dimensions for the view.
func (v *DashboardView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

// View renders the dashboard view.
func (v DashboardView) View() string {
	if len(v.rows) == 0 {
		return v.renderEmpty()
	}
	return v.renderTable()
}

// columnWidths gives the trend column all remaining space.
func (v DashboardView) columnWidths() (frame, spark int) {
	fixed := colFrame + colStatus + colRange + colInterval + colResp + colReads + colFails
	spark = v.width - fixed
	if spark < colSparkMin {
		spark = colSparkMin
	}
	return colFrame, spark
}

// renderTable renders the table with device headers and frame rows.
func (v DashboardView) renderTable() string {
	wFrame, wSpark := v.columnWidths()

	var lines []string

	headerStyle := v.sty.TableHeader
	header := fmt.Sprintf(
		"%s%s%s%s%s%s%s%s",
		headerStyle.Render(padRight("Frame", wFrame)),
		headerStyle.Render(padRight("Status", colStatus)),
		headerStyle.Render(padRight("Registers", colRange)),
		headerStyle.Render(padLeft("Every", colInterval)),
		headerStyle.Render(padLeft("Resp", colResp)),
		headerStyle.Render(padLeft("Reads", colReads)),
		headerStyle.Render(padLeft("Fail", colFails)),
		headerStyle.Render(padRight(" Response trend", wSpark)),
	)
	lines = append(lines, header)

	type row struct {
		isGroup bool
		text    string
	}
	var rows []row
	cursorIdx := 0
	prevDevice := ""
	for i, r := range v.rows {
		if i == 0 || r.Device != prevDevice {
			groupLine := v.sty.GroupHeader.Render(
				padRight(fmt.Sprintf("--- %s  %s (%s) ---", r.Device, r.Frame.Key.Device, r.Mode), v.width),
			)
			rows = append(rows, row{isGroup: true, text: groupLine})
			prevDevice = r.Device
		}
		if i == v.cursor {
			cursorIdx = len(rows)
		}
		rows = append(rows, row{text: v.renderFrameRow(r.Frame, wFrame, wSpark, i == v.cursor)})
	}

	// Scroll so the cursor row stays visible.
	visibleHeight := v.height - 1
	if visibleHeight < 1 {
		visibleHeight = 1
	}
	startIdx := 0
	if cursorIdx >= visibleHeight {
		startIdx = cursorIdx - visibleHeight + 1
	}
	endIdx := startIdx + visibleHeight
	if endIdx > len(rows) {
		endIdx = len(rows)
	}
	for i := startIdx; i < endIdx; i++ {
		lines = append(lines, rows[i].text)
	}

	return strings.Join(lines, "\n")
}

// frameStatus classifies a frame for display.
func frameStatus(f scan.FrameStats) string {
	switch {
	case f.Reads == 0:
		return "wait"
	case f.LastError != "":
		return "error"
	default:
		return "ok"
	}
}

func (v DashboardView) renderFrameRow(f scan.FrameStats, wFrame, wSpark int, selected bool) string {
	rowStyle := v.sty.TableRow
	if selected {
		rowStyle = v.sty.TableRowSel
	}
	withSel := func(st lipgloss.Style) lipgloss.Style {
		if selected {
			return st.Background(v.theme.Base02)
		}
		return st
	}

	name := rowStyle.Render(padRight(truncate(f.Name, wFrame-1), wFrame))

	status := frameStatus(f)
	var statusStyle lipgloss.Style
	switch status {
	case "ok":
		statusStyle = v.sty.StatusUp
	case "error":
		statusStyle = v.sty.StatusDown
	default:
		statusStyle = v.sty.StatusWarn
	}
	statusStr := withSel(statusStyle).Render(padRight(status, colStatus))

	rangeStr := rowStyle.Render(padRight(fmt.Sprintf("%d+%d", f.StartAddress, f.Count), colRange))
	intervalStr := rowStyle.Render(padLeft(components.FormatMillis(float64(f.Interval.Milliseconds())), colInterval))

	respMs := float64(f.LastResponse) / float64(time.Millisecond)
	respStyle := v.sty.LatencyLow
	if f.Interval > 0 {
		ratio := float64(f.LastResponse) / float64(f.Interval)
		switch {
		case ratio >= respHighRatio:
			respStyle = v.sty.LatencyHigh
		case ratio >= respWarnRatio:
			respStyle = v.sty.LatencyMid
		}
	}
	respStr := withSel(respStyle).Render(padLeft(components.FormatMillis(respMs), colResp))

	readsStr := rowStyle.Render(padLeft(components.FormatCount(float64(f.Reads)), colReads))
	failStyle := rowStyle
	if f.Failures > 0 {
		failStyle = withSel(v.sty.StatusDown)
	}
	failsStr := failStyle.Render(padLeft(fmt.Sprintf("%d", f.Failures), colFails))

	sparkData := extractSparkData(f, wSpark-1)
	sparkStr := withSel(v.sty.SparklineStyle).Render(" " + components.Sparkline(sparkData, wSpark-1))

	return name + statusStr + rangeStr + intervalStr + respStr + readsStr + failsStr + sparkStr
}

// renderEmpty renders a centered message when no session has run.
func (v DashboardView) renderEmpty() string {
	msgStyle := lipgloss.NewStyle().
		Foreground(v.theme.Base04).
		Align(lipgloss.Center)

	keyStyle := lipgloss.NewStyle().
		Foreground(v.theme.Base0D).
		Bold(true)

	msg := lipgloss.JoinVertical(lipgloss.Center,
		"",
		msgStyle.Render("No scan session"),
		"",
		msgStyle.Render(fmt.Sprintf(
			"Press %s to start scanning the configured devices",
			keyStyle.Render("[s]"),
		)),
		"",
	)

	return lipgloss.Place(v.width, v.height, lipgloss.Center, lipgloss.Center, msg)
}

// extractSparkData returns the newest response times of a frame.
func extractSparkData(f scan.FrameStats, maxWidth int) []float64 {
	if f.History == nil {
		return nil
	}
	return f.History.Recent(maxWidth)
}

// padRight pads s with spaces on the right to the given width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// padLeft pads s with spaces on the left to the given width.
func padLeft(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return strings.Repeat(" ", width-len(s)) + s
}

// truncate shortens s to maxLen characters, adding an ellipsis if needed.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
