package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tonhe/fieldscan/tui/components"
	"github.com/tonhe/fieldscan/tui/keys"
	"github.com/tonhe/fieldscan/tui/styles"
)

// maxValueColumns bounds how many register values are listed per line.
const maxValueColumns = 8

// DetailView shows one frame: its configuration and latest read at the top,
// and a response time chart below.
type DetailView struct {
	theme  styles.Theme
	sty    *styles.Styles
	row    FrameRow
	set    bool
	width  int
	height int
}

// NewDetailView creates a new DetailView with the given theme.
func NewDetailView(theme styles.Theme) DetailView {
	return DetailView{
		theme: theme,
		sty:   styles.NewStyles(theme),
	}
}

// SetFrame updates the detail view with new frame data.
func (v *DetailView) SetFrame(row FrameRow) {
	v.row = row
	v.set = true
}

// Key returns the identifier of the displayed frame.
func (v DetailView) Key() (string, bool) {
	if !v.set {
		return "", false
	}
	return v.row.Frame.Key.String(), true
}

// SetSize updates the available dimensions for the view.
func (v *DetailView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

// Update handles key messages for the detail view. The third return value
// indicates whether the user wants to go back (Esc pressed).
func (v DetailView) Update(msg tea.Msg) (DetailView, tea.Cmd, bool) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, keys.DefaultKeyMap.Escape) {
		return v, nil, true
	}
	return v, nil, false
}

// View renders the detail view.
func (v DetailView) View() string {
	if !v.set {
		msg := lipgloss.NewStyle().
			Foreground(v.theme.Base04).
			Render("No frame selected")
		return lipgloss.Place(v.width, v.height, lipgloss.Center, lipgloss.Center, msg)
	}

	info := v.renderInfoPanel()
	infoHeight := lipgloss.Height(info)

	chartHeight := v.height - infoHeight - 2
	if chartHeight < 6 {
		chartHeight = 6
	}
	chartWidth := v.width - 2
	if chartWidth < 20 {
		chartWidth = 20
	}

	var data []float64
	if v.row.Frame.History != nil {
		data = v.row.Frame.History.All()
	}
	chart := lipgloss.NewStyle().
		Foreground(v.theme.Base0C).
		Render(components.RenderChart(data, chartWidth, chartHeight, components.ChartOptions{
			Title:  "Response time",
			Format: components.FormatMillis,
			Limit:  float64(v.row.Frame.Interval.Milliseconds()),
		}))

	return lipgloss.JoinVertical(lipgloss.Left, info, "", chart, v.renderHelp())
}

func (v DetailView) renderInfoPanel() string {
	f := v.row.Frame
	label := v.sty.PanelLabel.Width(16)
	value := v.sty.PanelValue
	highlight := lipgloss.NewStyle().Foreground(v.theme.Base0D).Bold(true)

	status := frameStatus(f)
	statusStyle := v.sty.StatusWarn
	switch status {
	case "ok":
		statusStyle = v.sty.StatusUp
	case "error":
		statusStyle = v.sty.StatusDown
	}

	lastRead := "never"
	if !f.LastRead.IsZero() {
		lastRead = fmt.Sprintf("%s (%s ago)", f.LastRead.Format("15:04:05"),
			time.Since(f.LastRead).Round(time.Second))
	}

	line := func(l, val string) string {
		return fmt.Sprintf("  %s%s", label.Render(l), val)
	}

	rows := []string{
		"",
		line("Device:", highlight.Render(fmt.Sprintf("%s  %s (%s)", v.row.Device, f.Key.Device, v.row.Mode))),
		line("Frame:", highlight.Render(f.Name)),
		line("Registers:", value.Render(fmt.Sprintf("%d..%d (%d)", f.StartAddress, f.StartAddress+f.Count-1, f.Count))),
		line("Interval:", value.Render(f.Interval.String())),
		line("Status:", statusStyle.Render(status)),
		line("Reads:", value.Render(fmt.Sprintf("%d  (%d failed)", f.Reads, f.Failures))),
		line("Last read:", value.Render(lastRead)),
		line("Response:", value.Render(components.FormatMillis(float64(f.LastResponse)/float64(time.Millisecond)))),
	}
	if f.LastError != "" {
		rows = append(rows, line("Last error:", v.sty.StatusDown.Render(truncate(f.LastError, v.width-20))))
	}
	rows = append(rows, v.renderValues(label)...)
	return strings.Join(rows, "\n")
}

// renderValues lists the last register values, maxValueColumns per line.
func (v DetailView) renderValues(label lipgloss.Style) []string {
	f := v.row.Frame
	if len(f.LastValues) == 0 {
		return nil
	}
	var out []string
	for i := 0; i < len(f.LastValues); i += maxValueColumns {
		end := i + maxValueColumns
		if end > len(f.LastValues) {
			end = len(f.LastValues)
		}
		cells := make([]string, 0, end-i)
		for j := i; j < end; j++ {
			cells = append(cells, fmt.Sprintf("%d=%d", f.StartAddress+j, f.LastValues[j]))
		}
		l := ""
		if i == 0 {
			l = "Values:"
		}
		out = append(out, fmt.Sprintf("  %s%s", label.Render(l), v.sty.PanelValue.Render(strings.Join(cells, "  "))))
	}
	return out
}

func (v DetailView) renderHelp() string {
	helpStyle := lipgloss.NewStyle().Foreground(v.theme.Base04)
	keyStyle := lipgloss.NewStyle().Foreground(v.theme.Base0D).Bold(true)
	return helpStyle.Render(fmt.Sprintf("  %s to go back", keyStyle.Render("[esc]")))
}
