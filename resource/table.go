package resource

import (
	"errors"
	"sync"
)

// Handle is an opaque reference to a resource in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Dropper is implemented by values that release something when their
// handle is dropped.
type Dropper interface {
	Drop()
}

var ErrClosed = errors.New("resource table closed")

// EventType is a resource lifecycle change.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

// Observer is notified after a handle is created or dropped.
type Observer[T any] func(t EventType, h Handle, value T)

// Table maps handles to values of one resource type. Freed handles are
// reused.
type Table[T any] struct {
	entries  []entry[T]
	freeList []Handle
	observer Observer[T]
	count    int
	mu       sync.RWMutex
	closed   bool
}

type entry[T any] struct {
	value T
	valid bool
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		entries:  make([]entry[T], 0, 16),
		freeList: make([]Handle, 0, 8),
	}
}

// Observe sets the lifecycle observer. It must be called before the table
// is shared.
func (t *Table[T]) Observe(o Observer[T]) {
	t.observer = o
}

// Insert stores value and returns its handle.
func (t *Table[T]) Insert(value T) (Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}

	e := entry[T]{value: value, valid: true}
	var h Handle
	if n := len(t.freeList); n > 0 {
		h = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[h-1] = e
	} else {
		t.entries = append(t.entries, e)
		h = Handle(len(t.entries))
	}
	t.count++
	t.mu.Unlock()

	t.notify(EventCreated, h, value)
	return h, nil
}

// Get retrieves a value by handle.
func (t *Table[T]) Get(h Handle) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var zero T
	if h == 0 || int(h) > len(t.entries) {
		return zero, false
	}
	e := t.entries[h-1]
	if !e.valid {
		return zero, false
	}
	return e.value, true
}

// Remove drops a handle, calling Drop on a value that implements Dropper.
// It reports false for an unknown handle.
func (t *Table[T]) Remove(h Handle) (T, bool) {
	t.mu.Lock()
	var zero T
	if h == 0 || int(h) > len(t.entries) || !t.entries[h-1].valid {
		t.mu.Unlock()
		return zero, false
	}
	value := t.entries[h-1].value
	t.entries[h-1] = entry[T]{}
	t.freeList = append(t.freeList, h)
	t.count--
	t.mu.Unlock()

	if d, ok := any(value).(Dropper); ok {
		d.Drop()
	}
	t.notify(EventDropped, h, value)
	return value, true
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Each calls fn for every live handle until fn returns false.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	t.mu.RLock()
	snapshot := make([]entry[T], len(t.entries))
	copy(snapshot, t.entries)
	t.mu.RUnlock()

	for i, e := range snapshot {
		if e.valid && !fn(Handle(i+1), e.value) {
			return
		}
	}
}

// Close drops every handle and refuses later inserts.
func (t *Table[T]) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	var handles []Handle
	t.Each(func(h Handle, _ T) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
	return nil
}

func (t *Table[T]) notify(typ EventType, h Handle, value T) {
	if t.observer != nil {
		t.observer(typ, h, value)
	}
}
