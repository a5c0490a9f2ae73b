// Package driver defines the database collaborator the bridge runs queries
// and live subscriptions against.
//
// A Driver executes a whole query string in one request and reports one
// Result per statement. Live statements leave a live id in their Result;
// Listen turns the live ids of a Response into a Feed of notifications.
// Both methods must be safe for concurrent use.
package driver

import (
	"context"
	"errors"

	"github.com/seamlezz/livebridge/codec"
)

// Driver errors shared by implementations. Executors classify statement
// errors with errors.Is against these before falling back to message text.
var (
	ErrFailedTransaction    = errors.New("The query was not executed due to a failed transaction")
	ErrCancelledTransaction = errors.New("The query was not executed due to a cancelled transaction")
	ErrNoLiveQuery          = errors.New("response contains no live query")
	ErrClosed               = errors.New("driver is closed")
)

// Driver is a ready database handle.
type Driver interface {
	// Execute runs every statement of query with vars bound by name. A non-nil
	// error means the request as a whole could not run.
	Execute(ctx context.Context, query string, vars codec.Object) (*Response, error)

	// Listen returns the notification feed for the live statements of resp.
	Listen(ctx context.Context, resp *Response) (Feed, error)

	// Close ends every open feed and releases the handle.
	Close() error
}

// Feed delivers the notifications of one or more live statements.
type Feed interface {
	// C is closed when the driver ends the feed.
	C() <-chan Notification

	// Close stops the live statements behind the feed. Safe to call more
	// than once.
	Close() error
}

// Response holds the per-statement results of one Execute.
type Response struct {
	Results []Result
}

// Result is the outcome of one statement.
type Result struct {
	Value  any
	Err    error
	LiveID string
}

// Len returns the number of statement results.
func (r *Response) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Results)
}

// LiveIDs returns the live ids of the successful live statements in
// statement order.
func (r *Response) LiveIDs() []string {
	if r == nil {
		return nil
	}
	var ids []string
	for _, res := range r.Results {
		if res.Err == nil && res.LiveID != "" {
			ids = append(ids, res.LiveID)
		}
	}
	return ids
}

// FirstError returns the first statement error, if any.
func (r *Response) FirstError() error {
	if r == nil {
		return nil
	}
	for _, res := range r.Results {
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}

// Notification is one change reported by a live statement.
type Notification struct {
	Result  any
	QueryID string
	Action  Action
}

// Action is the kind of change a notification reports.
type Action uint8

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionDelete
	ActionKilled
)

var actionNames = [...]string{"create", "update", "delete", "killed"}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unknown"
}

// ParseAction maps a lower-case action name to its Action.
func ParseAction(s string) (Action, bool) {
	for i, name := range actionNames {
		if name == s {
			return Action(i), true
		}
	}
	return 0, false
}
