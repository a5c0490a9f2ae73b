package sqlite

import (
	"sync"

	"github.com/seamlezz/livebridge/driver"
)

// feed collects the notifications of the live statements created by one
// Execute. Triggers push into an unbounded queue so the SQL callback never
// waits on the consumer; a pump goroutine moves the queue onto out.
type feed struct {
	db    *DB
	out   chan driver.Notification
	wake  chan struct{}
	done  chan struct{}
	ids   map[string]struct{}
	queue []driver.Notification

	mu        sync.Mutex
	closeOnce sync.Once
	ended     bool
	listened  bool
}

var _ driver.Feed = (*feed)(nil)

func newFeed(db *DB) *feed {
	f := &feed{
		db:   db,
		out:  make(chan driver.Notification),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		ids:  make(map[string]struct{}),
	}
	go f.pump()
	return f
}

func (f *feed) C() <-chan driver.Notification { return f.out }

// Close drops the triggers of every live id still attached to the feed.
func (f *feed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		ids := f.detach()
		err = f.db.release(f, ids)
	})
	return err
}

func (f *feed) add(id string) {
	f.mu.Lock()
	f.ids[id] = struct{}{}
	f.mu.Unlock()
}

// remove forgets an id whose live statement failed to start.
func (f *feed) remove(id string) {
	f.mu.Lock()
	delete(f.ids, id)
	f.mu.Unlock()
}

func (f *feed) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids)
}

// listen claims the feed for a consumer; only the first claim succeeds.
func (f *feed) listen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listened {
		return false
	}
	f.listened = true
	return true
}

// detach clears the ids and stops accepting notifications. What is already
// queued is still delivered unless the feed is closed.
func (f *feed) detach() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.ids))
	for id := range f.ids {
		ids = append(ids, id)
	}
	f.ids = make(map[string]struct{})
	f.ended = true
	return ids
}

func (f *feed) push(n driver.Notification) {
	f.mu.Lock()
	if f.ended {
		f.mu.Unlock()
		return
	}
	f.queue = append(f.queue, n)
	f.mu.Unlock()
	f.signal()
}

// kill queues the Killed notification for id and ends the feed once its
// last id is gone.
func (f *feed) kill(id string) {
	f.mu.Lock()
	delete(f.ids, id)
	if !f.ended {
		f.queue = append(f.queue, driver.Notification{QueryID: id, Action: driver.ActionKilled})
		f.ended = len(f.ids) == 0
	}
	f.mu.Unlock()
	f.signal()
}

// end lets the pump drain what is queued, then close out.
func (f *feed) end() {
	f.mu.Lock()
	f.ended = true
	f.mu.Unlock()
	f.signal()
}

func (f *feed) signal() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *feed) pump() {
	defer close(f.out)
	for {
		f.mu.Lock()
		if len(f.queue) == 0 {
			ended := f.ended
			f.mu.Unlock()
			if ended {
				return
			}
			select {
			case <-f.wake:
				continue
			case <-f.done:
				return
			}
		}
		n := f.queue[0]
		f.queue[0] = driver.Notification{}
		f.queue = f.queue[1:]
		f.mu.Unlock()

		select {
		case f.out <- n:
		case <-f.done:
			return
		}
	}
}
