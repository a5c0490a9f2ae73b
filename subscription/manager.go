package subscription

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/seamlezz/livebridge/driver"
	"github.com/seamlezz/livebridge/errors"
)

// DefaultBuffer is the event buffer of a spawned task's pipe.
const DefaultBuffer = 16

// Manager is the registry of running subscription tasks.
type Manager struct {
	tasks  map[uint64]*Task
	nextID atomic.Uint64
	buffer int
	mu     sync.Mutex
	closed bool
}

// NewManager creates a manager whose spawned tasks buffer up to buffer
// events ahead of their consumer.
func NewManager(buffer int) *Manager {
	return &Manager{
		tasks:  make(map[uint64]*Task),
		buffer: buffer,
	}
}

// AllocateID returns the next subscription id. Ids start at 1, strictly
// increase and are never reused.
func (m *Manager) AllocateID() uint64 {
	return m.nextID.Add(1)
}

// Register records a started task. A task that already exited is not
// recorded, since its Complete has run. After Shutdown registration is
// refused and the caller must stop the task.
func (m *Manager) Register(id uint64, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.Shutdown(errors.PhaseSubscribe)
	}
	if t.exitedEarly() {
		return nil
	}
	m.tasks[id] = t
	return nil
}

// Spawn starts a task over feed and registers it. The id is allocated only
// once the feed exists, so failed subscribes never consume ids.
func (m *Manager) Spawn(feed driver.Feed) (uint64, *Receiver, error) {
	id := m.AllocateID()
	sender, receiver := Pipe(m.buffer)

	t := NewTask(context.Background(), id, feed, sender, m.Complete)
	t.Start()

	if err := m.Register(id, t); err != nil {
		t.Stop()
		return 0, nil, err
	}

	Logger().Debug("subscription spawned", zap.Uint64("subscription_id", id))
	return id, receiver, nil
}

// Cancel removes id and stops its task, returning once the task has
// finished. It reports false, doing nothing, for an unknown id.
func (m *Manager) Cancel(id uint64) bool {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if ok {
		delete(m.tasks, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	t.Stop()
	Logger().Debug("subscription cancelled", zap.Uint64("subscription_id", id))
	return true
}

// Complete removes id if present. Tasks call it about themselves as they
// exit.
func (m *Manager) Complete(id uint64) {
	m.mu.Lock()
	delete(m.tasks, id)
	m.mu.Unlock()
}

// Len returns the number of registered tasks.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Active reports whether id is registered.
func (m *Manager) Active(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[id]
	return ok
}

// Shutdown drains the registry and stops every task, returning once all
// of them have finished. Later registrations are refused.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	tasks := m.tasks
	m.tasks = make(map[uint64]*Task)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Go(t.Stop)
	}
	wg.Wait()

	Logger().Debug("subscriptions shut down", zap.Int("stopped", len(tasks)))
}
