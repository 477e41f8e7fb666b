package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tonhe/fieldscan/internal/config"
	"github.com/tonhe/fieldscan/internal/heartbeat"
	"github.com/tonhe/fieldscan/internal/quality"
	"github.com/tonhe/fieldscan/internal/resource"
	"github.com/tonhe/fieldscan/internal/scan"
	"github.com/tonhe/fieldscan/tui/components"
	"github.com/tonhe/fieldscan/tui/keys"
	"github.com/tonhe/fieldscan/tui/styles"
	"github.com/tonhe/fieldscan/tui/views"
)

const (
	// stopTimeout bounds how long the toggle key waits for a session to stop.
	stopTimeout = 10 * time.Second
	// minRefresh limits event-driven refreshes between ticks.
	minRefresh = 250 * time.Millisecond
)

// AppState represents the current screen/view of the application.
type AppState int

const (
	StateDashboard AppState = iota
	StateDetail
	StateHealth
)

func (s AppState) String() string {
	switch s {
	case StateDetail:
		return "Frame detail"
	case StateHealth:
		return "Health"
	default:
		return "Dashboard"
	}
}

// TickMsg triggers a periodic UI refresh to pick up new scan data.
type TickMsg struct{}

// ScanEventMsg wraps a task event from the scan manager.
type ScanEventMsg scan.Event

// toggledMsg reports the outcome of a start or stop issued from the UI.
type toggledMsg struct {
	err error
}

// AppModel is the root Bubble Tea model that manages all views and state.
type AppModel struct {
	state     AppState
	theme     styles.Theme
	config    *config.Config
	manager   *scan.Manager
	heartbeat *heartbeat.Monitor
	resources *resource.Monitor
	dashboard views.DashboardView
	detail    views.DetailView
	health    views.HealthView
	help      views.HelpView
	events    <-chan scan.Event
	snapshot  *scan.Snapshot
	refreshed time.Time
	notice    string
	busy      bool
	width     int
	height    int
}

// NewAppModel creates a new AppModel. hb and res may be nil when those
// monitors are disabled.
func NewAppModel(cfg *config.Config, mgr *scan.Manager, hb *heartbeat.Monitor, res *resource.Monitor) AppModel {
	theme, _ := styles.ResolveTheme(cfg.Theme)
	m := AppModel{
		state:     StateDashboard,
		theme:     theme,
		config:    cfg,
		manager:   mgr,
		heartbeat: hb,
		resources: res,
		dashboard: views.NewDashboardView(theme),
		detail:    views.NewDetailView(theme),
		health:    views.NewHealthView(theme),
		help:      views.NewHelpView(theme),
		events:    mgr.Subscribe(),
	}
	m.refresh()
	return m
}

// Init returns the initial command to start the tick loop.
func (m AppModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), listenCmd(m.events))
}

// listenCmd waits for the next scan event.
func listenCmd(events <-chan scan.Event) tea.Cmd {
	return func() tea.Msg {
		return ScanEventMsg(<-events)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

// toggleCmd stops a running session or restarts the last one.
func (m AppModel) toggleCmd() tea.Cmd {
	mgr := m.manager
	return func() tea.Msg {
		if mgr.IsRunning() {
			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			return toggledMsg{err: mgr.Stop(ctx)}
		}
		devs := mgr.Devices()
		if len(devs) == 0 {
			return toggledMsg{err: errors.New("no devices to scan")}
		}
		return toggledMsg{err: mgr.Start(context.Background(), devs)}
	}
}

// refresh pulls fresh data from the manager and monitors into every view.
func (m *AppModel) refresh() {
	m.refreshed = time.Now()
	m.snapshot = m.manager.Snapshot()
	m.dashboard.SetSnapshot(m.snapshot)

	if id, ok := m.detail.Key(); ok {
		for _, d := range m.snapshot.Devices {
			for _, f := range d.Frames {
				if f.Key.String() == id {
					m.detail.SetFrame(views.FrameRow{Device: d.Name, Mode: d.Mode, Frame: f})
				}
			}
		}
	}

	data := views.HealthData{
		System:  m.manager.SystemHealth(),
		Drift:   m.manager.Drift().Statistics(),
		Quality: m.qualitySummary(),
	}
	if m.heartbeat != nil {
		if snap, ok := m.heartbeat.Current(); ok {
			data.Heartbeat = &snap
		}
		data.Warnings = m.heartbeat.Warnings()
	}
	if m.resources != nil {
		cur := m.resources.Current()
		if !cur.Timestamp.IsZero() {
			data.Resources = &cur
		}
		for _, s := range m.resources.History() {
			data.CPUHistory = append(data.CPUHistory, s.CPUPercent)
		}
	}
	m.health.SetData(data)
}

func (m AppModel) qualitySummary() quality.Summary {
	if q := m.manager.Quality(); q != nil {
		return q.Summary()
	}
	return quality.Summary{}
}

func (m *AppModel) setSize(width, height int) {
	m.width = width
	m.height = height
	// Body height = total - 1 (header) - 2 (status bar lines)
	body := height - 3
	m.dashboard.SetSize(width, body)
	m.detail.SetSize(width, body)
	m.health.SetSize(width, body)
	m.help.SetSize(width, body)
}

// Update handles messages and dispatches to the active view.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case ScanEventMsg:
		// Failures show up before the next tick.
		if msg.Failed && time.Since(m.refreshed) >= minRefresh {
			m.refresh()
		}
		return m, listenCmd(m.events)

	case toggledMsg:
		m.busy = false
		m.notice = ""
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	km := keys.DefaultKeyMap

	if m.help.IsVisible() {
		if key.Matches(msg, km.Help, km.Escape) {
			m.help.Toggle()
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, km.Quit):
		return m, tea.Quit
	case key.Matches(msg, km.Help):
		m.help.Toggle()
		return m, nil
	case key.Matches(msg, km.Toggle):
		if m.busy {
			return m, nil
		}
		m.busy = true
		return m, m.toggleCmd()
	case key.Matches(msg, km.Health):
		if m.state == StateHealth {
			m.state = StateDashboard
		} else {
			m.state = StateHealth
		}
		return m, nil
	case key.Matches(msg, km.Clear):
		if m.heartbeat != nil {
			m.heartbeat.ClearWarnings()
			m.refresh()
		}
		return m, nil
	}

	switch m.state {
	case StateDashboard:
		if key.Matches(msg, km.Enter) {
			if row, ok := m.dashboard.Selected(); ok {
				m.detail.SetFrame(row)
				m.state = StateDetail
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.dashboard, cmd = m.dashboard.Update(msg)
		return m, cmd

	case StateDetail:
		var cmd tea.Cmd
		var back bool
		m.detail, cmd, back = m.detail.Update(msg)
		if back {
			m.state = StateDashboard
		}
		return m, cmd

	case StateHealth:
		if key.Matches(msg, km.Escape) {
			m.state = StateDashboard
		}
	}
	return m, nil
}

// View renders the full application UI by composing header, body, and status.
func (m AppModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	frames := 0
	for _, d := range m.snapshot.Devices {
		frames += len(d.Frames)
	}
	title := m.state.String()
	if m.notice != "" {
		title += "  (" + m.notice + ")"
	}
	header := components.RenderHeader(m.theme, title, m.manager.State(),
		len(m.snapshot.Devices), frames, m.width)

	var body string
	switch {
	case m.help.IsVisible():
		body = m.help.View()
	case m.state == StateDetail:
		body = m.detail.View()
	case m.state == StateHealth:
		body = m.health.View()
	default:
		body = m.dashboard.View()
	}

	heartbeatOK := m.heartbeat == nil || m.heartbeat.Healthy()
	statusBar := components.RenderStatusBar(m.theme, m.manager.SystemHealth(), m.qualitySummary(), heartbeatOK, m.width)

	// Fill body to the available height between header and status bar
	bodyHeight := m.height - 1 - 2
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	bodyStyle := lipgloss.NewStyle().
		Width(m.width).
		Height(bodyHeight).
		Background(m.theme.Base00).
		Foreground(m.theme.Base05)

	return lipgloss.JoinVertical(lipgloss.Left, header, bodyStyle.Render(body), statusBar)
}
