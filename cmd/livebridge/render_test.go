package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/seamlezz/livebridge/bridge"
	"github.com/seamlezz/livebridge/codec"
	"github.com/seamlezz/livebridge/driver"
	"github.com/seamlezz/livebridge/executor"
	"github.com/seamlezz/livebridge/subscription"
)

func noColor(t *testing.T) {
	t.Helper()
	old := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = old })
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func cborOf(t *testing.T, v any) []byte {
	t.Helper()
	data, err := codec.EncodeResult(v)
	require.NoError(t, err)
	return data
}

func sampleOutcomes(t *testing.T) executor.Outcomes {
	return executor.Outcomes{
		{Data: cborOf(t, []any{map[string]any{"id": int64(1), "name": "Tobie"}})},
		{Err: "no such table: nope", Failed: true},
		{Err: executor.FailedTransactionPhrase, Failed: true, Skipped: true},
	}
}

func sampleEvents(t *testing.T) []subscription.Event {
	return []subscription.Event{
		{
			SubscriptionID: 1,
			Action:         driver.ActionCreate,
			QueryID:        "q-1",
			Data:           cborOf(t, map[string]any{"id": int64(1), "name": "Tobie"}),
		},
		{
			SubscriptionID: 1,
			Action:         driver.ActionKilled,
			QueryID:        "q-1",
		},
	}
}

func TestRenderer_Golden(t *testing.T) {
	noColor(t)

	for _, format := range []string{"text", "json"} {
		t.Run(format, func(t *testing.T) {
			g := golden(t)

			var buf bytes.Buffer
			r := newRenderer(&buf, format)
			require.NoError(t, r.Outcomes(sampleOutcomes(t)))
			g.Assert(t, "outcomes_"+format, buf.Bytes())

			buf.Reset()
			for _, ev := range sampleEvents(t) {
				require.NoError(t, r.Event(ev))
			}
			g.Assert(t, "events_"+format, buf.Bytes())

			buf.Reset()
			require.NoError(t, r.Stats(bridge.Snapshot{Queries: 1, Subscriptions: 2, Cancels: 3, Failures: 4, Events: 5}))
			g.Assert(t, "stats_"+format, buf.Bytes())
		})
	}
}

func TestRenderer_YAML(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, "yaml")
	require.NoError(t, r.Outcomes(sampleOutcomes(t)))

	var got []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 3)

	assert.Equal(t, "ok", got[0]["status"])
	assert.Equal(t, []any{map[string]any{"id": 1, "name": "Tobie"}}, got[0]["result"])
	assert.Equal(t, "error", got[1]["status"])
	assert.Equal(t, "no such table: nope", got[1]["error"])
	assert.Equal(t, "skipped", got[2]["status"])
	assert.NotContains(t, got[1], "result")
}

func TestRenderer_YAMLEventsAreDocuments(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, "yaml")
	for _, ev := range sampleEvents(t) {
		require.NoError(t, r.Event(ev))
	}

	dec := yaml.NewDecoder(&buf)
	var actions []string
	for {
		var doc struct {
			Action string `yaml:"action"`
		}
		if err := dec.Decode(&doc); err != nil {
			break
		}
		actions = append(actions, doc.Action)
	}
	assert.Equal(t, []string{"create", "killed"}, actions)
}

func TestRenderer_Error(t *testing.T) {
	noColor(t)

	var buf bytes.Buffer
	err := executor.Message(assert.AnError)
	require.NoError(t, newRenderer(&buf, "text").Error(assert.AnError))
	assert.Equal(t, "error "+err+"\n", buf.String())
}

func TestDecode(t *testing.T) {
	assert.Nil(t, decode(nil))
	assert.Equal(t, "0xff", decode([]byte{0xff}))
	assert.Equal(t, map[string]any{"n": int64(2)}, decode(cborOf(t, map[string]any{"n": int64(2)})))
}

func TestActionLabel(t *testing.T) {
	assert.Equal(t, "Create", actionLabel("create"))
	assert.Equal(t, "Killed", actionLabel("KILLED"))
}
