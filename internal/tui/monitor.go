package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/drivelink/internal/events"
)

const eventLogSize = 50

type tickMsg time.Time

// Model is the BubbleTea model for the monitor.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	health      healthMsg
	tracker     *tracker
	eventLog    []events.Event
	lastEventID int64
	lastError   string

	table   table.Model
	spinner spinner.Model
	theme   Theme

	hubEvents chan events.Event
}

// NewMonitor creates a monitor for the drivelink API at apiURL.
func NewMonitor(apiURL, apiKey string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Kind", Width: 13},
			{Title: "Command", Width: 24},
			{Title: "Phase", Width: 14},
			{Title: "ID", Width: 8},
			{Title: "Duration", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &Model{
		apiURL:    strings.TrimRight(apiURL, "/"),
		apiKey:    apiKey,
		tracker:   newTracker(),
		table:     t,
		spinner:   sp,
		theme:     NewDefaultTheme(),
		hubEvents: make(chan events.Event, 100),
	}
}

// Run starts the monitor and blocks until the user quits.
func Run(apiURL, apiKey string) error {
	_, err := tea.NewProgram(NewMonitor(apiURL, apiKey), tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL) },
		m.spinner.Tick,
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(m.width - 6)
		return m, nil

	case tickMsg:
		// Durations of running commands keep moving.
		m.refreshTable(time.Time(msg))
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		e := events.Event(msg)
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > eventLogSize {
			m.eventLog = m.eventLog[:eventLogSize]
		}
		if e.ID > m.lastEventID {
			m.lastEventID = e.ID
		}
		m.tracker.apply(e)
		m.refreshTable(time.Now())
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health = msg
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL)
		})

	case sseDisconnectedMsg:
		m.lastError = "event stream disconnected, reconnecting..."
		if msg.err != nil {
			m.lastError = fmt.Sprintf("event stream: %v, reconnecting...", msg.err)
		}
		// The pending receiveNextEvent keeps reading the same channel.
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.lastEventID, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL)
		})
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) refreshTable(now time.Time) {
	var rows []table.Row
	for _, c := range m.tracker.list() {
		id := c.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, table.Row{
			m.theme.statusSymbol(c.Status),
			c.Kind,
			c.Command,
			c.Phase,
			id,
			c.Duration(now).Round(time.Millisecond).String(),
		})
	}
	m.table.SetRows(rows)
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	commands := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("Commands"),
			m.table.View(),
		),
	)
	eventsView := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("Event Stream"),
			m.renderEvents(),
		),
	)

	parts := []string{m.renderHeader(), commands, eventsView}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit • [↑/↓] Scroll Commands"))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) renderHeader() string {
	remote := m.theme.StatusFailed.Render("DISCONNECTED")
	switch {
	case m.tracker.remoteShutdown:
		remote = m.theme.StatusDim.Render("SHUT DOWN")
	case m.health.Connected || m.tracker.connected:
		remote = m.theme.StatusOK.Render("CONNECTED")
	}

	activity := "idle"
	if m.tracker.current != "" || m.health.Busy {
		activity = m.spinner.View() + " busy"
	}

	uptime := time.Duration(m.health.UptimeSeconds) * time.Second
	items := []string{
		"Remote: " + remote,
		"Stage: " + m.health.Stage,
		"Driver: " + activity,
		"Uptime: " + uptime.String(),
	}

	col := lipgloss.NewStyle().Width((m.width - 4) / len(items))
	cells := make([]string, len(items))
	for i, it := range items {
		cells[i] = col.Render(it)
	}
	return m.theme.Border.Width(m.width - 4).Render(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
}

func (m Model) renderEvents() string {
	var lines []string
	for i, e := range m.eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, fmt.Sprintf("%s | %-22s | %s", e.At.Format("15:04:05"), e.Type, string(e.Data)))
	}
	if len(lines) == 0 {
		return "  No events yet..."
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}
