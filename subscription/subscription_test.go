package subscription

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/seamlezz/livebridge/codec"
	"github.com/seamlezz/livebridge/driver"
	"github.com/seamlezz/livebridge/driver/drivertest"
	"github.com/seamlezz/livebridge/errors"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func recv(t *testing.T, r *Receiver) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-r.C():
		return ev, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}, false
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestManager_AllocateIDConcurrent(t *testing.T) {
	m := NewManager(0)

	const workers, perWorker = 16, 500
	ids := make(chan uint64, workers*perWorker)
	var wg sync.WaitGroup
	for range workers {
		wg.Go(func() {
			for range perWorker {
				ids <- m.AllocateID()
			}
		})
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for id := range ids {
		if id == 0 {
			t.Fatal("id 0 allocated")
		}
		if seen[id] {
			t.Fatalf("id %d allocated twice", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*perWorker {
		t.Errorf("got %d ids, want %d", len(seen), workers*perWorker)
	}
}

func TestManager_SpawnDeliversInOrder(t *testing.T) {
	m := NewManager(DefaultBuffer)
	feed := drivertest.NewFeed(0)

	id, r, err := m.Spawn(feed)
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Errorf("first id = %d, want 1", id)
	}
	if !m.Active(id) || m.Len() != 1 {
		t.Fatal("spawned task not registered")
	}

	actions := []driver.Action{driver.ActionCreate, driver.ActionUpdate, driver.ActionDelete}
	go func() {
		for i, a := range actions {
			feed.Send(driver.Notification{QueryID: "q", Action: a, Result: map[string]any{"n": i}})
		}
	}()

	for i, a := range actions {
		ev, ok := recv(t, r)
		if !ok {
			t.Fatal("stream closed early")
		}
		if ev.SubscriptionID != id || ev.QueryID != "q" || ev.Action != a {
			t.Errorf("event %d = %+v", i, ev)
		}
		var payload map[string]int
		if err := codec.Unmarshal(ev.Data, &payload); err != nil {
			t.Fatal(err)
		}
		if payload["n"] != i {
			t.Errorf("event %d payload = %v", i, payload)
		}
	}

	m.Shutdown()
}

func TestManager_CancelIdempotent(t *testing.T) {
	m := NewManager(0)
	feed := drivertest.NewFeed(0)
	id, r, err := m.Spawn(feed)
	if err != nil {
		t.Fatal(err)
	}

	if !m.Cancel(id) {
		t.Fatal("first Cancel should report true")
	}
	if m.Cancel(id) {
		t.Error("second Cancel should report false")
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d after cancel", m.Len())
	}
	if !closed(feed.Done()) {
		t.Error("feed should be closed once Cancel returns")
	}
	if _, ok := recv(t, r); ok {
		t.Error("receiver should be closed once Cancel returns")
	}
	if m.Cancel(999) {
		t.Error("Cancel of an unknown id should report false")
	}
}

func TestManager_CancelWhileBlockedOnSend(t *testing.T) {
	m := NewManager(0)
	feed := drivertest.NewFeed(0)
	id, _, err := m.Spawn(feed)
	if err != nil {
		t.Fatal(err)
	}

	// Nobody reads the receiver, so the task blocks handing this on.
	if !feed.Send(driver.Notification{QueryID: "q", Action: driver.ActionCreate}) {
		t.Fatal("task should take the notification")
	}

	done := make(chan bool)
	go func() { done <- m.Cancel(id) }()
	select {
	case ok := <-done:
		if !ok {
			t.Error("Cancel should report true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Cancel did not return")
	}
}

func TestManager_FeedEndDeregisters(t *testing.T) {
	m := NewManager(0)
	feed := drivertest.NewFeed(0)
	id, r, err := m.Spawn(feed)
	if err != nil {
		t.Fatal(err)
	}

	feed.End()

	if _, ok := recv(t, r); ok {
		t.Error("receiver should close after the feed ends")
	}
	waitFor(t, "self-deregistration", func() bool { return !m.Active(id) })
	if m.Cancel(id) {
		t.Error("Cancel after natural end should report false")
	}
}

func TestManager_HangupDeregisters(t *testing.T) {
	m := NewManager(0)
	feed := drivertest.NewFeed(0)
	id, r, err := m.Spawn(feed)
	if err != nil {
		t.Fatal(err)
	}

	r.Hangup()
	r.Hangup()

	waitFor(t, "self-deregistration", func() bool { return !m.Active(id) })
	waitFor(t, "feed close", func() bool { return closed(feed.Done()) })
}

func TestManager_TranslationFailureEndsOnlyThatTask(t *testing.T) {
	m := NewManager(DefaultBuffer)
	bad, good := drivertest.NewFeed(0), drivertest.NewFeed(0)

	badID, badR, err := m.Spawn(bad)
	if err != nil {
		t.Fatal(err)
	}
	goodID, goodR, err := m.Spawn(good)
	if err != nil {
		t.Fatal(err)
	}

	bad.Send(driver.Notification{QueryID: "q", Action: driver.ActionCreate, Result: make(chan int)})

	if _, ok := recv(t, badR); ok {
		t.Error("failing subscription should close without an event")
	}
	waitFor(t, "failing task to deregister", func() bool { return !m.Active(badID) })

	go good.Send(driver.Notification{QueryID: "g", Action: driver.ActionUpdate, Result: "ok"})
	ev, ok := recv(t, goodR)
	if !ok || ev.QueryID != "g" {
		t.Errorf("healthy subscription got %+v, %v", ev, ok)
	}
	if !m.Active(goodID) {
		t.Error("healthy subscription should stay registered")
	}

	m.Shutdown()
}

func TestManager_Shutdown(t *testing.T) {
	m := NewManager(0)
	var feeds []*drivertest.Feed
	for range 3 {
		f := drivertest.NewFeed(0)
		feeds = append(feeds, f)
		if _, _, err := m.Spawn(f); err != nil {
			t.Fatal(err)
		}
	}

	m.Shutdown()

	if m.Len() != 0 {
		t.Errorf("Len() = %d after shutdown", m.Len())
	}
	for i, f := range feeds {
		if !closed(f.Done()) {
			t.Errorf("feed %d still open after shutdown", i)
		}
	}

	late := drivertest.NewFeed(0)
	_, _, err := m.Spawn(late)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseSubscribe, Kind: errors.KindShutdown}) {
		t.Errorf("Spawn after shutdown error = %v", err)
	}
	if !closed(late.Done()) {
		t.Error("refused task should close its feed")
	}
}

func TestManager_RegisterSkipsExitedTask(t *testing.T) {
	m := NewManager(0)
	feed := drivertest.NewFeed(0)
	feed.End()

	s, _ := Pipe(0)
	var completed []uint64
	task := NewTask(context.Background(), m.AllocateID(), feed, s, func(id uint64) {
		completed = append(completed, id)
	})
	task.Start()
	<-task.Done()

	if err := m.Register(task.ID(), task); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 0 {
		t.Error("exited task should not be registered")
	}
	if len(completed) != 1 || completed[0] != task.ID() {
		t.Errorf("onExit calls = %v", completed)
	}
	if task.State() != StateTerminated {
		t.Errorf("State() = %v, want terminated", task.State())
	}
}

func TestTask_StopStates(t *testing.T) {
	feed := drivertest.NewFeed(0)
	s, r := Pipe(1)
	task := NewTask(context.Background(), 7, feed, s, nil)

	if task.State() != StateStarting {
		t.Errorf("State() = %v before Start", task.State())
	}
	task.Start()
	if task.State() != StateRunning {
		t.Errorf("State() = %v after Start", task.State())
	}

	task.Stop()
	task.Stop()

	if task.State() != StateTerminated {
		t.Errorf("State() = %v after Stop", task.State())
	}
	if _, ok := <-r.C(); ok {
		t.Error("pipe should be closed")
	}
}

func TestTask_ParentContextCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	feed := drivertest.NewFeed(0)
	s, _ := Pipe(0)
	task := NewTask(ctx, 1, feed, s, nil)
	task.Start()

	cancel()

	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task ignored context cancellation")
	}
}

func TestTranslate(t *testing.T) {
	ev, err := Translate(3, driver.Notification{QueryID: "q", Action: driver.ActionKilled})
	if err != nil {
		t.Fatal(err)
	}
	if ev.SubscriptionID != 3 || ev.Action != driver.ActionKilled || len(ev.Data) != 1 || ev.Data[0] != 0xf6 {
		t.Errorf("Translate() = %+v", ev)
	}

	if _, err := Translate(3, driver.Notification{Action: driver.Action(9)}); err == nil {
		t.Error("expected error for unknown action")
	}
	if _, err := Translate(3, driver.Notification{Result: func() {}}); !stderrors.Is(err, errors.ErrConversion) {
		t.Errorf("expected conversion error, got %v", err)
	}
}

func TestPipe_SendAfterHangup(t *testing.T) {
	s, r := Pipe(4)
	r.Hangup()
	if err := s.Send(context.Background(), nil, Event{}); !stderrors.Is(err, ErrReceiverGone) {
		t.Errorf("Send() = %v, want ErrReceiverGone", err)
	}

	s, _ = Pipe(0)
	stop := make(chan struct{})
	close(stop)
	if err := s.Send(context.Background(), stop, Event{}); !stderrors.Is(err, ErrStopped) {
		t.Errorf("Send() = %v, want ErrStopped", err)
	}
}
