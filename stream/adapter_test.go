package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seamlezz/livebridge/driver"
	"github.com/seamlezz/livebridge/subscription"
)

func send(t *testing.T, s *subscription.Sender, ev subscription.Event) {
	t.Helper()
	if err := s.Send(context.Background(), nil, ev); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
}

func event(q string) subscription.Event {
	return subscription.Event{SubscriptionID: 1, QueryID: q, Action: driver.ActionCreate, Data: []byte{0xf6}}
}

func TestAdapter_Poll(t *testing.T) {
	s, r := subscription.Pipe(4)
	a := New(r)

	if _, out := a.Poll(false); out != Pending {
		t.Fatalf("empty Poll = %v, want pending", out)
	}

	send(t, s, event("a"))
	send(t, s, event("b"))

	for _, want := range []string{"a", "b"} {
		ev, out := a.Poll(false)
		if out != Completed || ev.QueryID != want {
			t.Fatalf("Poll = %+v, %v, want %s completed", ev, out, want)
		}
	}
	if _, out := a.Poll(false); out != Pending {
		t.Errorf("drained Poll = %v, want pending", out)
	}

	s.Close()
	for range 2 {
		if _, out := a.Poll(false); out != Dropped {
			t.Errorf("closed Poll = %v, want dropped", out)
		}
	}
	if !a.Ready() {
		t.Error("Ready should be true once the source is exhausted")
	}
}

func TestAdapter_DrainsBeforeDropped(t *testing.T) {
	s, r := subscription.Pipe(2)
	a := New(r)

	send(t, s, event("last"))
	s.Close()

	if ev, out := a.Poll(false); out != Completed || ev.QueryID != "last" {
		t.Fatalf("Poll = %+v, %v", ev, out)
	}
	if _, out := a.Poll(false); out != Dropped {
		t.Errorf("Poll = %v, want dropped", out)
	}
}

func TestAdapter_ReadyLookahead(t *testing.T) {
	s, r := subscription.Pipe(4)
	a := New(r)

	if a.Ready() {
		t.Fatal("Ready with no events")
	}

	send(t, s, event("first"))
	if !a.Ready() || !a.Ready() {
		t.Fatal("Ready should stay true while the slot is full")
	}
	send(t, s, event("second"))

	for _, want := range []string{"first", "second"} {
		ev, out := a.Poll(false)
		if out != Completed || ev.QueryID != want {
			t.Fatalf("Poll = %+v, %v, want %s", ev, out, want)
		}
	}
}

func TestAdapter_Cancel(t *testing.T) {
	s, r := subscription.Pipe(4)
	a := New(r)

	send(t, s, event("a"))
	a.Ready()

	if _, out := a.Poll(true); out != Cancelled {
		t.Fatalf("Poll(true) = %v, want cancelled", out)
	}
	if _, out := a.Poll(false); out != Cancelled {
		t.Errorf("Poll after cancel = %v, want cancelled", out)
	}
	if !a.Cancelled() || !a.Ready() {
		t.Error("cancelled adapter should be ready and cancelled")
	}

	select {
	case <-s.Gone():
	default:
		t.Error("cancel should hang up the receiver")
	}
	if err := s.Send(context.Background(), nil, event("b")); !errors.Is(err, subscription.ErrReceiverGone) {
		t.Errorf("Send after cancel = %v", err)
	}

	a.Cancel()
}

func TestAdapter_Next(t *testing.T) {
	s, r := subscription.Pipe(0)
	a := New(r)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = s.Send(context.Background(), nil, event("late"))
		s.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ev, ok, err := a.Next(ctx)
	if err != nil || !ok || ev.QueryID != "late" {
		t.Fatalf("Next = %+v, %v, %v", ev, ok, err)
	}
	ev, ok, err = a.Next(ctx)
	if err != nil || ok {
		t.Errorf("Next after close = %+v, %v, %v", ev, ok, err)
	}
}

func TestAdapter_NextContext(t *testing.T) {
	_, r := subscription.Pipe(0)
	a := New(r)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, _, err := a.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next error = %v, want deadline exceeded", err)
	}
}

func TestAdapter_CancelWakesNext(t *testing.T) {
	_, r := subscription.Pipe(0)
	a := New(r)

	done := make(chan bool)
	go func() {
		_, ok, _ := a.Next(context.Background())
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	a.Cancel()

	select {
	case ok := <-done:
		if ok {
			t.Error("Next should report no event after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Cancel did not wake Next")
	}
}

func TestAdapter_OnDeliver(t *testing.T) {
	s, r := subscription.Pipe(4)
	var delivered []string
	a := New(r, OnDeliver(func(ev subscription.Event) {
		delivered = append(delivered, ev.QueryID)
	}))

	send(t, s, event("a"))
	send(t, s, event("b"))
	a.Ready()
	a.Poll(false)
	a.Poll(false)
	a.Poll(false)

	if len(delivered) != 2 || delivered[0] != "a" || delivered[1] != "b" {
		t.Errorf("delivered = %v", delivered)
	}
}

func TestOutcome_String(t *testing.T) {
	for o, want := range map[Outcome]string{
		Completed:   "completed",
		Dropped:     "dropped",
		Pending:     "pending",
		Cancelled:   "cancelled",
		Outcome(10): "Outcome(10)",
	} {
		if got := o.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", o, got, want)
		}
	}
}
