// Package stream turns the push channel of a subscription task into the
// pull-based, cancellable stream a guest polls.
//
// Each Poll has one of four outcomes: Completed (one event produced),
// Dropped (source exhausted), Pending (nothing yet, poll again later) and
// Cancelled (the consumer gave up). The adapter holds at most one event of
// lookahead and never reorders or drops events while the source is alive.
package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/seamlezz/livebridge/subscription"
)

// Outcome is the result of one poll.
type Outcome uint8

const (
	Completed Outcome = iota
	Dropped
	Pending
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Dropped:
		return "dropped"
	case Pending:
		return "pending"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

// Option configures an Adapter.
type Option func(*Adapter)

// OnDeliver registers fn to run for every event handed to the consumer.
func OnDeliver(fn func(subscription.Event)) Option {
	return func(a *Adapter) { a.onDeliver = fn }
}

// Adapter is the consumer side of one subscription.
type Adapter struct {
	recv      *subscription.Receiver
	onDeliver func(subscription.Event)
	cancelCh  chan struct{}
	slot      *subscription.Event

	mu         sync.Mutex
	waitMu     sync.Mutex
	cancelOnce sync.Once
	waiting    bool
	closed     bool
	cancelled  bool
}

// New creates an adapter over r. The adapter owns r from now on.
func New(r *subscription.Receiver, opts ...Option) *Adapter {
	a := &Adapter{
		recv:     r,
		cancelCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Poll never blocks. With finish set the consumer is cancelling: the
// adapter hangs up and reports Cancelled from then on.
func (a *Adapter) Poll(finish bool) (subscription.Event, Outcome) {
	if finish {
		a.Cancel()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancelled {
		return subscription.Event{}, Cancelled
	}
	if a.slot != nil {
		ev := *a.slot
		a.slot = nil
		a.deliver(ev)
		return ev, Completed
	}
	if a.closed {
		return subscription.Event{}, Dropped
	}
	// A blocked Wait owns the next receive; taking one here could overtake it.
	if a.waiting {
		return subscription.Event{}, Pending
	}

	select {
	case ev, ok := <-a.recv.C():
		if !ok {
			a.closed = true
			return subscription.Event{}, Dropped
		}
		a.deliver(ev)
		return ev, Completed
	default:
		return subscription.Event{}, Pending
	}
}

// Ready reports whether the next Poll will not be Pending, filling the
// lookahead slot if an event is available.
func (a *Adapter) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.slot != nil || a.closed || a.cancelled {
		return true
	}
	if a.waiting {
		return false
	}

	select {
	case ev, ok := <-a.recv.C():
		if !ok {
			a.closed = true
		} else {
			a.slot = &ev
		}
		return true
	default:
		return false
	}
}

// Wait blocks until Ready would report true or ctx is done.
func (a *Adapter) Wait(ctx context.Context) error {
	a.waitMu.Lock()
	defer a.waitMu.Unlock()

	a.mu.Lock()
	if a.slot != nil || a.closed || a.cancelled {
		a.mu.Unlock()
		return nil
	}
	a.waiting = true
	a.mu.Unlock()

	var (
		ev  subscription.Event
		ok  bool
		err error
		got bool
	)
	select {
	case ev, ok = <-a.recv.C():
		got = true
	case <-a.cancelCh:
	case <-ctx.Done():
		err = ctx.Err()
	}

	a.mu.Lock()
	a.waiting = false
	if got {
		switch {
		case !ok:
			a.closed = true
		case !a.cancelled:
			a.slot = &ev
		}
	}
	a.mu.Unlock()

	return err
}

// Next blocks for the next event. It returns false once the source is
// exhausted or the consumer cancelled.
func (a *Adapter) Next(ctx context.Context) (subscription.Event, bool, error) {
	for {
		ev, out := a.Poll(false)
		switch out {
		case Completed:
			return ev, true, nil
		case Dropped, Cancelled:
			return subscription.Event{}, false, nil
		}
		if err := a.Wait(ctx); err != nil {
			return subscription.Event{}, false, err
		}
	}
}

// Cancel is the consumer's cancellation request. The lookahead event is
// discarded and the task is told nobody listens; it ends and deregisters
// on its own. Safe to call more than once.
func (a *Adapter) Cancel() {
	a.mu.Lock()
	a.cancelled = true
	a.slot = nil
	a.mu.Unlock()

	a.cancelOnce.Do(func() {
		close(a.cancelCh)
		a.recv.Hangup()
	})
}

// Cancelled reports whether the consumer cancelled.
func (a *Adapter) Cancelled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelled
}

func (a *Adapter) deliver(ev subscription.Event) {
	if a.onDeliver != nil {
		a.onDeliver(ev)
	}
}
