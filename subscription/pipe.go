package subscription

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrReceiverGone is returned by Send once the receiver hung up.
	ErrReceiverGone = errors.New("receiver hung up")
	// ErrStopped is returned by Send when the stop signal fires first.
	ErrStopped = errors.New("subscription stopped")
)

type pipe struct {
	ch        chan Event
	hangup    chan struct{}
	closeOnce sync.Once
	hangOnce  sync.Once
}

// Pipe creates a connected Sender and Receiver. buffer is the number of
// events the channel holds before Send blocks.
func Pipe(buffer int) (*Sender, *Receiver) {
	if buffer < 0 {
		buffer = 0
	}
	p := &pipe{
		ch:     make(chan Event, buffer),
		hangup: make(chan struct{}),
	}
	return &Sender{p: p}, &Receiver{p: p}
}

// Sender is the producing end, owned by one Task.
type Sender struct {
	p *pipe
}

// Send delivers e, blocking while the channel is full. It gives up when
// the receiver hangs up, stop is closed or ctx is done.
func (s *Sender) Send(ctx context.Context, stop <-chan struct{}, e Event) error {
	select {
	case <-s.p.hangup:
		return ErrReceiverGone
	default:
	}

	select {
	case s.p.ch <- e:
		return nil
	case <-s.p.hangup:
		return ErrReceiverGone
	case <-stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the stream; the receiver sees its channel closed once the
// buffered events are drained.
func (s *Sender) Close() {
	s.p.closeOnce.Do(func() { close(s.p.ch) })
}

// Gone is closed when the receiver hangs up.
func (s *Sender) Gone() <-chan struct{} { return s.p.hangup }

// Receiver is the consuming end, owned by one stream adapter.
type Receiver struct {
	p *pipe
}

// C returns the event channel. It is closed after the task exits.
func (r *Receiver) C() <-chan Event { return r.p.ch }

// Hangup tells the task nobody is listening any more. The task ends on its
// own and deregisters. Safe to call more than once.
func (r *Receiver) Hangup() {
	r.p.hangOnce.Do(func() { close(r.p.hangup) })
}
