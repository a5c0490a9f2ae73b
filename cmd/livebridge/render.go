package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/seamlezz/livebridge/bridge"
	"github.com/seamlezz/livebridge/codec"
	"github.com/seamlezz/livebridge/executor"
	"github.com/seamlezz/livebridge/subscription"
)

var (
	okColor     = color.New(color.FgGreen, color.Bold)
	errColor    = color.New(color.FgRed, color.Bold)
	skipColor   = color.New(color.FgYellow)
	actionColor = color.New(color.FgCyan, color.Bold)
	dimColor    = color.New(color.Faint)
)

// statementView is the structured form of one outcome.
type statementView struct {
	Statement int    `json:"statement" yaml:"statement"`
	Status    string `json:"status" yaml:"status"`
	Result    any    `json:"result,omitempty" yaml:"result,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// eventView is the structured form of one live event.
type eventView struct {
	Subscription uint64 `json:"subscription" yaml:"subscription"`
	Action       string `json:"action" yaml:"action"`
	QueryID      string `json:"query_id" yaml:"query_id"`
	Data         any    `json:"data" yaml:"data"`
}

type statsView struct {
	Queries       uint64 `json:"queries" yaml:"queries"`
	Subscriptions uint64 `json:"subscriptions" yaml:"subscriptions"`
	Cancels       uint64 `json:"cancels" yaml:"cancels"`
	Failures      uint64 `json:"failures" yaml:"failures"`
	Events        uint64 `json:"events" yaml:"events"`
}

// renderer writes outcomes, events and stats in one output format.
type renderer struct {
	w      io.Writer
	format string
}

func newRenderer(w io.Writer, format string) *renderer {
	return &renderer{w: w, format: format}
}

// Outcomes writes one entry per statement.
func (r *renderer) Outcomes(out executor.Outcomes) error {
	views := make([]statementView, len(out))
	for i, oc := range out {
		views[i] = viewOutcome(i+1, oc)
	}

	switch r.format {
	case "json":
		return r.json(views)
	case "yaml":
		return r.yaml(views)
	}

	for _, v := range views {
		var status string
		switch v.Status {
		case "ok":
			status = okColor.Sprint("ok     ")
		case "skipped":
			status = skipColor.Sprint("skipped")
		default:
			status = errColor.Sprint("error  ")
		}
		detail := v.Error
		if v.Status == "ok" {
			detail = inline(v.Result)
		}
		fmt.Fprintf(r.w, "[%d] %s %s\n", v.Statement, status, detail)
	}
	return nil
}

// Event writes one live event.
func (r *renderer) Event(ev subscription.Event) error {
	v := eventView{
		Data:         decode(ev.Data),
		Action:       ev.Action.String(),
		QueryID:      ev.QueryID,
		Subscription: ev.SubscriptionID,
	}

	switch r.format {
	case "json":
		return r.json(v)
	case "yaml":
		return r.yamlDoc(v)
	}

	fmt.Fprintf(r.w, "#%d %s %s %s\n",
		v.Subscription,
		actionColor.Sprintf("%-7s", actionLabel(v.Action)),
		inline(v.Data),
		dimColor.Sprintf("(%s)", v.QueryID))
	return nil
}

// Stats writes the bridge counters.
func (r *renderer) Stats(s bridge.Snapshot) error {
	v := statsView(s)
	switch r.format {
	case "json":
		return r.json(v)
	case "yaml":
		return r.yaml(v)
	}
	fmt.Fprintf(r.w, "queries=%d subscriptions=%d cancels=%d failures=%d events=%d\n",
		v.Queries, v.Subscriptions, v.Cancels, v.Failures, v.Events)
	return nil
}

// Error writes a call that failed as a whole.
func (r *renderer) Error(err error) error {
	msg := executor.Message(err)
	switch r.format {
	case "json":
		return r.json(map[string]string{"error": msg})
	case "yaml":
		return r.yamlDoc(map[string]string{"error": msg})
	}
	fmt.Fprintf(r.w, "%s %s\n", errColor.Sprint("error"), msg)
	return nil
}

func (r *renderer) json(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *renderer) yaml(v any) error {
	enc := yaml.NewEncoder(r.w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// yamlDoc writes v as its own document, for streams of values.
func (r *renderer) yamlDoc(v any) error {
	if _, err := io.WriteString(r.w, "---\n"); err != nil {
		return err
	}
	return r.yaml(v)
}

func viewOutcome(n int, oc executor.Outcome) statementView {
	switch {
	case oc.Skipped:
		return statementView{Statement: n, Status: "skipped", Error: oc.Err}
	case oc.Failed:
		return statementView{Statement: n, Status: "error", Error: oc.Err}
	}
	return statementView{Statement: n, Status: "ok", Result: decode(oc.Data)}
}

// decode turns CBOR into plain data for display. Data that does not decode
// is shown as hex.
func decode(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	v, err := codec.DecodeParam(data)
	if err != nil {
		return "0x" + hex.EncodeToString(data)
	}
	return v.Native()
}

// actionLabel title-cases an action name for display.
func actionLabel(action string) string {
	return cases.Title(language.English).String(strings.ToLower(action))
}

func inline(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
