// Package bridge implements the three call-boundary operations, query,
// subscribe and cancel, over a shared driver handle.
//
// The driver sits behind a reader-writer lock. Every query and every live
// query submission holds the read side, so any number of them run at once;
// the write side is taken only by Swap and Shutdown.
//
//	b := bridge.New(db)
//	defer b.Shutdown(ctx)
//
//	outcomes, err := b.Query(ctx, "SELECT * FROM person", nil)
//	id, stream, err := b.Subscribe(ctx, "LIVE SELECT * FROM person", nil)
//	err = b.Cancel(id)
package bridge

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/seamlezz/livebridge/driver"
	"github.com/seamlezz/livebridge/errors"
	"github.com/seamlezz/livebridge/executor"
	"github.com/seamlezz/livebridge/params"
	"github.com/seamlezz/livebridge/stream"
	"github.com/seamlezz/livebridge/subscription"
)

type options struct {
	buffer int
}

// Option configures a Bridge.
type Option func(*options)

// WithEventBuffer sets how many events a subscription buffers ahead of its
// consumer.
func WithEventBuffer(n int) Option {
	return func(o *options) { o.buffer = n }
}

// Bridge serves query, subscribe and cancel calls.
type Bridge struct {
	driver driver.Driver
	subs   *subscription.Manager
	stats  Stats
	mu     sync.RWMutex
	closed atomic.Bool
}

// New creates a bridge over d. The bridge owns d and closes it on Shutdown.
func New(d driver.Driver, opts ...Option) *Bridge {
	o := options{buffer: subscription.DefaultBuffer}
	for _, opt := range opts {
		opt(&o)
	}
	return &Bridge{
		driver: d,
		subs:   subscription.NewManager(o.buffer),
	}
}

// Query runs query with ps bound and returns one outcome per statement.
func (b *Bridge) Query(ctx context.Context, query string, ps []params.Param) (executor.Outcomes, error) {
	if b.closed.Load() {
		return nil, errors.Shutdown(errors.PhaseQuery)
	}
	b.stats.queries.Add(1)

	b.mu.RLock()
	out, err := executor.Execute(ctx, b.driver, query, ps)
	b.mu.RUnlock()

	if err != nil {
		b.stats.failures.Add(1)
		Logger().Debug("query failed", zap.Error(err))
		return nil, err
	}
	return out, nil
}

// Subscribe submits a live query and starts a subscription over its feed.
// Parameter, execution and feed failures abort before any id is allocated.
// A statement error in the response is a stream-open failure.
func (b *Bridge) Subscribe(ctx context.Context, query string, ps []params.Param) (uint64, *stream.Adapter, error) {
	if b.closed.Load() {
		return 0, nil, errors.Shutdown(errors.PhaseSubscribe)
	}
	b.stats.subscriptions.Add(1)

	feed, err := b.open(ctx, query, ps)
	if err != nil {
		b.stats.failures.Add(1)
		Logger().Debug("subscribe failed", zap.Error(err))
		return 0, nil, err
	}

	id, recv, err := b.subs.Spawn(feed)
	if err != nil {
		b.stats.failures.Add(1)
		return 0, nil, err
	}

	Logger().Debug("subscribed", zap.Uint64("subscription_id", id))
	return id, stream.New(recv, stream.OnDeliver(b.delivered)), nil
}

func (b *Bridge) open(ctx context.Context, query string, ps []params.Param) (driver.Feed, error) {
	vars, err := params.Decode(ps)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	resp, err := b.driver.Execute(ctx, query, vars)
	if err != nil {
		return nil, errors.QueryExecution(err)
	}

	// Listen even when a statement failed so the live statements that did
	// start are released with the feed.
	feed, lerr := b.driver.Listen(ctx, resp)
	if serr := resp.FirstError(); serr != nil {
		if feed != nil {
			_ = feed.Close()
		}
		return nil, errors.StreamOpen(serr)
	}
	if lerr != nil {
		return nil, errors.StreamOpen(lerr)
	}
	return feed, nil
}

// Cancel stops subscription id and waits for its task to finish. An unknown
// id, including one that already ended on its own, is SubscriptionNotFound.
func (b *Bridge) Cancel(id uint64) error {
	b.stats.cancels.Add(1)
	if !b.subs.Cancel(id) {
		return errors.SubscriptionNotFound(id)
	}
	return nil
}

// Active returns the number of running subscriptions.
func (b *Bridge) Active() int {
	return b.subs.Len()
}

// Stats returns a snapshot of the call counters.
func (b *Bridge) Stats() Snapshot {
	return b.stats.Snapshot()
}

// Driver returns the current driver.
func (b *Bridge) Driver() driver.Driver {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.driver
}

// Swap installs d for later calls and returns the previous driver, which
// the caller now owns. Running subscriptions keep their feeds.
func (b *Bridge) Swap(d driver.Driver) driver.Driver {
	b.mu.Lock()
	old := b.driver
	b.driver = d
	b.mu.Unlock()

	Logger().Info("driver swapped")
	return old
}

// Shutdown stops every subscription and closes the driver. Later calls
// fail with a shutdown error. If ctx ends first the subscriptions keep
// stopping in the background and the driver is left open.
func (b *Bridge) Shutdown(ctx context.Context) error {
	if b.closed.Swap(true) {
		return nil
	}

	done := make(chan struct{})
	go func() {
		b.subs.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.mu.Lock()
	err := b.driver.Close()
	b.mu.Unlock()

	s := b.stats.Snapshot()
	Logger().Info("bridge shut down",
		zap.Uint64("queries", s.Queries),
		zap.Uint64("subscriptions", s.Subscriptions),
		zap.Uint64("cancels", s.Cancels),
		zap.Uint64("failures", s.Failures),
		zap.Uint64("events", s.Events))
	return err
}

func (b *Bridge) delivered(subscription.Event) {
	b.stats.events.Add(1)
}
