// Package drivertest provides a scriptable in-memory driver for tests of
// the executor, subscription and bridge packages.
package drivertest

import (
	"context"
	"sync"

	"github.com/seamlezz/livebridge/codec"
	"github.com/seamlezz/livebridge/driver"
)

// Call records one Execute.
type Call struct {
	Vars  codec.Object
	Query string
}

// Driver is a driver.Driver whose behavior is set by its function fields.
// With no ExecuteFunc every call returns an empty response; with no
// ListenFunc every Listen opens a fresh Feed that tests reach via Feeds.
type Driver struct {
	ExecuteFunc func(ctx context.Context, query string, vars codec.Object) (*driver.Response, error)
	ListenFunc  func(ctx context.Context, resp *driver.Response) (driver.Feed, error)

	calls  []Call
	feeds  []*Feed
	mu     sync.Mutex
	closed bool
}

var _ driver.Driver = (*Driver)(nil)

// New creates a driver that answers every query with resp.
func New(resp *driver.Response) *Driver {
	return &Driver{
		ExecuteFunc: func(context.Context, string, codec.Object) (*driver.Response, error) {
			return resp, nil
		},
	}
}

func (d *Driver) Execute(ctx context.Context, query string, vars codec.Object) (*driver.Response, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, driver.ErrClosed
	}
	d.calls = append(d.calls, Call{Query: query, Vars: vars})
	fn := d.ExecuteFunc
	d.mu.Unlock()

	if fn == nil {
		return &driver.Response{}, nil
	}
	return fn(ctx, query, vars)
}

func (d *Driver) Listen(ctx context.Context, resp *driver.Response) (driver.Feed, error) {
	d.mu.Lock()
	fn := d.ListenFunc
	d.mu.Unlock()

	if fn != nil {
		return fn(ctx, resp)
	}
	if len(resp.LiveIDs()) == 0 {
		return nil, driver.ErrNoLiveQuery
	}

	f := NewFeed(0)
	d.mu.Lock()
	d.feeds = append(d.feeds, f)
	d.mu.Unlock()
	return f, nil
}

// Close ends every feed opened through Listen.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	for _, f := range d.feeds {
		f.End()
	}
	return nil
}

// Calls returns the recorded Execute calls.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Feeds returns the feeds opened so far.
func (d *Driver) Feeds() []*Feed {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Feed(nil), d.feeds...)
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Feed is a driver.Feed fed by the test.
type Feed struct {
	ch       chan driver.Notification
	consumer chan struct{}
	mu       sync.Mutex
	ended    bool
	once     sync.Once
}

var _ driver.Feed = (*Feed)(nil)

// NewFeed creates a feed with the given channel buffer.
func NewFeed(buffer int) *Feed {
	return &Feed{
		ch:       make(chan driver.Notification, buffer),
		consumer: make(chan struct{}),
	}
}

func (f *Feed) C() <-chan driver.Notification { return f.ch }

// Send delivers n, blocking until it is received. It returns false once the
// feed was ended or closed by its consumer.
func (f *Feed) Send(n driver.Notification) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ended {
		return false
	}
	select {
	case f.ch <- n:
		return true
	case <-f.consumer:
		return false
	}
}

// End closes the channel from the driver side.
func (f *Feed) End() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ended {
		f.ended = true
		close(f.ch)
	}
}

// Close is the consumer side of the feed.
func (f *Feed) Close() error {
	f.once.Do(func() { close(f.consumer) })
	return nil
}

// Done is closed once the consumer closed the feed.
func (f *Feed) Done() <-chan struct{} { return f.consumer }
