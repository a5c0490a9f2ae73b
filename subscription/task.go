package subscription

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/seamlezz/livebridge/codec"
	"github.com/seamlezz/livebridge/driver"
	"github.com/seamlezz/livebridge/errors"
)

// State is a task's position in its lifecycle.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateCancelling
	StateEnding
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCancelling:
		return "cancelling"
	case StateEnding:
		return "ending"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Event is a live notification ready for the call boundary.
type Event struct {
	QueryID        string
	Data           []byte
	SubscriptionID uint64
	Action         driver.Action
}

// Translate encodes a driver notification as an Event of subscription id.
func Translate(id uint64, n driver.Notification) (Event, error) {
	if n.Action > driver.ActionKilled {
		return Event{}, errors.New(errors.PhaseSubscribe, errors.KindUnsupportedValue).
			Value(n.Action).
			Detail("unknown live action %d", n.Action).
			Build()
	}
	data, err := codec.EncodeResult(n.Result)
	if err != nil {
		return Event{}, err
	}
	return Event{
		SubscriptionID: id,
		QueryID:        n.QueryID,
		Action:         n.Action,
		Data:           data,
	}, nil
}

// Task forwards one feed to one Sender until stopped or the feed ends.
type Task struct {
	ctx    context.Context
	cancel context.CancelFunc
	feed   driver.Feed
	out    *Sender
	onExit func(id uint64)
	stop   chan struct{}
	exited chan struct{}
	done   chan struct{}

	id       uint64
	state    atomic.Int32
	stopOnce sync.Once
}

// NewTask creates a task for subscription id. onExit runs on the task's
// goroutine after the feed and sender are closed.
func NewTask(parent context.Context, id uint64, feed driver.Feed, out *Sender, onExit func(id uint64)) *Task {
	ctx, cancel := context.WithCancel(parent)
	return &Task{
		ctx:    ctx,
		cancel: cancel,
		feed:   feed,
		out:    out,
		onExit: onExit,
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
		done:   make(chan struct{}),
		id:     id,
	}
}

// ID returns the subscription id.
func (t *Task) ID() uint64 { return t.id }

// State returns the current lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

// Start launches the task's goroutine.
func (t *Task) Start() {
	t.state.Store(int32(StateRunning))
	go t.run()
}

// Stop signals the task, cancels its context and waits for it to finish.
// It must not be called before Start.
func (t *Task) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	t.cancel()
	<-t.done
}

// Done is closed once the task has terminated.
func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) exitedEarly() bool {
	select {
	case <-t.exited:
		return true
	default:
		return false
	}
}

func (t *Task) transition(s State) {
	t.state.Store(int32(s))
}

func (t *Task) run() {
	log := Logger().With(zap.Uint64("subscription_id", t.id))

	defer func() {
		if r := recover(); r != nil {
			log.Error("subscription task panicked", zap.Any("panic", r))
			t.transition(StateEnding)
		}
		if err := t.feed.Close(); err != nil {
			log.Warn("close live feed", zap.Error(err))
		}
		t.out.Close()
		t.cancel()
		close(t.exited)
		if t.onExit != nil {
			t.onExit(t.id)
		}
		log.Debug("subscription task terminated", zap.Stringer("state", t.State()))
		t.transition(StateTerminated)
		close(t.done)
	}()

	for {
		select {
		case <-t.stop:
			t.transition(StateCancelling)
			return

		case <-t.ctx.Done():
			t.transition(StateCancelling)
			return

		case <-t.out.Gone():
			t.transition(StateEnding)
			return

		case n, ok := <-t.feed.C():
			if !ok {
				log.Debug("live feed ended")
				t.transition(StateEnding)
				return
			}

			ev, err := Translate(t.id, n)
			if err != nil {
				log.Warn("translate live notification",
					zap.String("query_id", n.QueryID),
					zap.Stringer("action", n.Action),
					zap.Error(err))
				t.transition(StateEnding)
				return
			}

			if err := t.out.Send(t.ctx, t.stop, ev); err != nil {
				if stderrors.Is(err, ErrReceiverGone) {
					t.transition(StateEnding)
				} else {
					t.transition(StateCancelling)
				}
				return
			}
		}
	}
}
