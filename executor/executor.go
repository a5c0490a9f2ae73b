// Package executor runs a query with bound parameters and shapes the
// driver's per-statement results into outcomes for the call boundary.
package executor

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/seamlezz/livebridge/codec"
	"github.com/seamlezz/livebridge/driver"
	"github.com/seamlezz/livebridge/errors"
	"github.com/seamlezz/livebridge/params"
)

// FailedTransactionPhrase is the text drivers use for a statement skipped
// because an earlier statement of its transaction failed.
const FailedTransactionPhrase = "The query was not executed due to a failed transaction"

// Outcome is the result of one statement: the CBOR encoding of its value,
// or an error message.
type Outcome struct {
	Err     string
	Data    []byte
	Failed  bool
	Skipped bool // did not run because its transaction failed
}

// OK reports whether the statement succeeded.
func (o Outcome) OK() bool { return !o.Failed }

// Outcomes holds one Outcome per statement, in statement order.
type Outcomes []Outcome

// Execute decodes every parameter, runs query and encodes each statement's
// result. A parameter that fails to decode aborts before the driver is
// called; a driver that cannot run the query at all aborts with
// query_execution. Everything else is reported per statement.
func Execute(ctx context.Context, d driver.Driver, query string, ps []params.Param) (Outcomes, error) {
	vars, err := params.Decode(ps)
	if err != nil {
		return nil, err
	}

	resp, err := d.Execute(ctx, query, vars)
	if err != nil {
		return nil, errors.QueryExecution(err)
	}

	return FromResponse(resp), nil
}

// FromResponse converts driver results into outcomes. An encoding failure
// becomes that statement's error.
func FromResponse(resp *driver.Response) Outcomes {
	out := make(Outcomes, resp.Len())
	for i, r := range resp.Results {
		if r.Err != nil {
			out[i] = Outcome{
				Err:     r.Err.Error(),
				Failed:  true,
				Skipped: stderrors.Is(r.Err, driver.ErrFailedTransaction),
			}
			continue
		}
		data, err := codec.EncodeResult(r.Value)
		if err != nil {
			out[i] = Outcome{Err: Message(err), Failed: true}
			continue
		}
		out[i] = Outcome{Data: data}
	}
	return out
}

// Message renders err for the call boundary, without the phase and kind
// prefix of structured errors.
func Message(err error) string {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Message()
	}
	return err.Error()
}

// Errors returns the messages of the failed statements that carry a root
// cause, leaving out statements skipped because their transaction failed.
func (o Outcomes) Errors() []string {
	var msgs []string
	for _, oc := range o {
		if !oc.Failed || isNoise(oc) {
			continue
		}
		msgs = append(msgs, oc.Err)
	}
	return msgs
}

// FindUserError joins the root-cause statement errors with "; ", or
// returns nil when every statement succeeded.
func (o Outcomes) FindUserError() error {
	msgs := o.Errors()
	if len(msgs) == 0 {
		return nil
	}
	return stderrors.New(strings.Join(msgs, "; "))
}

// Failed reports whether any statement failed.
func (o Outcomes) Failed() bool {
	for _, oc := range o {
		if oc.Failed {
			return true
		}
	}
	return false
}

func isNoise(o Outcome) bool {
	return o.Skipped || strings.Contains(o.Err, FailedTransactionPhrase)
}
