package main

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamlezz/livebridge/bridge"
	"github.com/seamlezz/livebridge/driver"
	"github.com/seamlezz/livebridge/driver/drivertest"
	"github.com/seamlezz/livebridge/subscription"
)

func newTestMonitor(t *testing.T, limit int) *monitorModel {
	t.Helper()
	ctx := context.Background()

	d := drivertest.New(&driver.Response{Results: []driver.Result{{Value: "q1", LiveID: "q1"}}})
	b := bridge.New(d)
	t.Cleanup(func() { _ = b.Shutdown(ctx) })

	_, s, err := b.Subscribe(ctx, "LIVE SELECT * FROM person", nil)
	require.NoError(t, err)
	return newMonitorModel(ctx, b, s, "LIVE SELECT * FROM person", limit)
}

func TestMonitor_Events(t *testing.T) {
	m := newTestMonitor(t, 0)
	assert.Contains(t, m.View(), "waiting for events")

	_, cmd := m.Update(eventMsg(subscription.Event{
		SubscriptionID: 1,
		QueryID:        "q1",
		Action:         driver.ActionCreate,
		Data:           cborOf(t, map[string]any{"name": "Tobie"}),
	}))
	require.NotNil(t, cmd, "monitor should wait for the next event")
	assert.Equal(t, 1, m.events)

	view := m.View()
	assert.Contains(t, view, "livebridge")
	assert.Contains(t, view, "LIVE SELECT * FROM person")
	assert.Contains(t, view, "Create")
	assert.Contains(t, view, `{"name":"Tobie"}`)
	assert.Contains(t, view, "events 1")
}

func TestMonitor_Limit(t *testing.T) {
	m := newTestMonitor(t, 1)

	_, cmd := m.Update(eventMsg(subscription.Event{Action: driver.ActionDelete}))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.stream.Cancelled())
}

func TestMonitor_RunStatement(t *testing.T) {
	m := newTestMonitor(t, 0)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd, "empty input runs nothing")

	m.input.SetValue("INSERT INTO person (name) VALUES ('Tobie')")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, stateRunning, m.state)
	assert.Contains(t, m.View(), "running...")
	assert.Empty(t, m.input.Value())

	msg := cmd()
	out, ok := msg.(outcomeMsg)
	require.True(t, ok, "got %T", msg)
	require.NoError(t, out.err)

	m.Update(out)
	assert.Equal(t, stateWatching, m.state)
	view := m.View()
	assert.Contains(t, view, "> INSERT INTO person (name) VALUES ('Tobie')")
	assert.Contains(t, view, `[1] "q1"`)
	assert.Contains(t, view, "queries 1")
}

func TestMonitor_StreamEnded(t *testing.T) {
	m := newTestMonitor(t, 0)

	m.Update(streamEndedMsg{err: context.DeadlineExceeded})
	assert.Equal(t, stateEnded, m.state)
	view := m.View()
	assert.Contains(t, view, "stream ended")
	assert.Contains(t, view, "context deadline exceeded")
}

func TestMonitor_Quit(t *testing.T) {
	m := newTestMonitor(t, 0)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.stream.Cancelled())
}

func TestMonitor_History(t *testing.T) {
	m := newTestMonitor(t, 0)
	for range monitorHistory + 10 {
		m.append("line")
	}
	assert.Len(t, m.log, monitorHistory)
}
