package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/seamlezz/livebridge/bridge"
	"github.com/seamlezz/livebridge/executor"
	"github.com/seamlezz/livebridge/stream"
	"github.com/seamlezz/livebridge/subscription"
)

const monitorHistory = 200

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	queryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	actionStyles = map[string]lipgloss.Style{
		"create": lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98")),
		"update": lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD866")),
		"delete": lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		"killed": lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")),
	}

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type monitorState int

const (
	stateWatching monitorState = iota
	stateRunning
	stateEnded
)

type monitorModel struct {
	ctx    context.Context
	err    error
	bridge *bridge.Bridge
	stream *stream.Adapter
	query  string
	log    []string
	input  textinput.Model
	height int
	events int
	limit  int
	state  monitorState
}

type eventMsg subscription.Event

type streamEndedMsg struct {
	err error
}

type outcomeMsg struct {
	err   error
	query string
	out   executor.Outcomes
}

func newMonitorModel(ctx context.Context, b *bridge.Bridge, s *stream.Adapter, query string, limit int) *monitorModel {
	ti := textinput.New()
	ti.Placeholder = "INSERT INTO ..."
	ti.Prompt = "sql> "
	ti.Width = 72
	ti.Focus()

	return &monitorModel{
		ctx:    ctx,
		bridge: b,
		stream: s,
		query:  query,
		input:  ti,
		limit:  limit,
		state:  stateWatching,
	}
}

func (m *monitorModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitEvent)
}

func (m *monitorModel) waitEvent() tea.Msg {
	ev, ok, err := m.stream.Next(m.ctx)
	if err != nil || !ok {
		return streamEndedMsg{err: err}
	}
	return eventMsg(ev)
}

func (m *monitorModel) run(query string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.bridge.Query(m.ctx, query, nil)
		return outcomeMsg{query: query, out: out, err: err}
	}
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.stream.Cancel()
			return m, tea.Quit

		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.state == stateRunning {
				return m, nil
			}
			m.input.Reset()
			m.state = stateRunning
			return m, m.run(q)
		}

	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.input.Width = max(msg.Width-len(m.input.Prompt)-1, 10)
		return m, nil

	case eventMsg:
		m.events++
		m.append(formatEvent(subscription.Event(msg)))
		if m.limit > 0 && m.events >= m.limit {
			m.stream.Cancel()
			return m, tea.Quit
		}
		return m, m.waitEvent

	case streamEndedMsg:
		m.err = msg.err
		m.state = stateEnded
		m.append(helpStyle.Render("stream ended"))
		return m, nil

	case outcomeMsg:
		if m.state == stateRunning {
			m.state = stateWatching
		}
		m.append(queryStyle.Render("> " + msg.query))
		if msg.err != nil {
			m.append(errorStyle.Render("  error: " + executor.Message(msg.err)))
			return m, nil
		}
		for i, oc := range msg.out {
			v := viewOutcome(i+1, oc)
			if v.Status == "ok" {
				m.append(resultStyle.Render(fmt.Sprintf("  [%d] %s", v.Statement, inline(v.Result))))
				continue
			}
			m.append(errorStyle.Render(fmt.Sprintf("  [%d] %s: %s", v.Statement, v.Status, v.Error)))
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *monitorModel) append(line string) {
	m.log = append(m.log, line)
	if len(m.log) > monitorHistory {
		m.log = m.log[len(m.log)-monitorHistory:]
	}
}

func formatEvent(ev subscription.Event) string {
	action := ev.Action.String()
	style, ok := actionStyles[action]
	if !ok {
		style = helpStyle
	}
	return fmt.Sprintf("%s %s", style.Render(fmt.Sprintf("%-7s", actionLabel(action))), inline(decode(ev.Data)))
}

func (m *monitorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("livebridge"))
	b.WriteString(" ")
	b.WriteString(queryStyle.Render(m.query))
	b.WriteString("\n")

	s := m.bridge.Stats()
	b.WriteString(helpStyle.Render(fmt.Sprintf("events %d • queries %d • failures %d", m.events, s.Queries, s.Failures)))
	b.WriteString("\n\n")

	lines := m.log
	if m.height > 8 && len(lines) > m.height-8 {
		lines = lines[len(lines)-(m.height-8):]
	}
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	if len(lines) == 0 {
		b.WriteString(helpStyle.Render("waiting for events..."))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch m.state {
	case stateEnded:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n")
		}
		b.WriteString(m.input.View())
	case stateRunning:
		b.WriteString(helpStyle.Render("running..."))
	default:
		b.WriteString(m.input.View())
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter run statement • esc quit"))

	return b.String()
}

func runMonitor(ctx context.Context, b *bridge.Bridge, s *stream.Adapter, query string, limit int) error {
	p := tea.NewProgram(newMonitorModel(ctx, b, s, query, limit), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
