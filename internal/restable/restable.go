// Package restable provides a bounded arena that maps opaque handles to live
// resources, such as open backend connections. Handles are stable for the
// lifetime of the entry and are never reused within one table's lifetime.
package restable

import (
	"errors"
	"sync"
)

// ErrTableFull indicates the table is at capacity. Callers should treat this
// as backpressure: close unused handles and retry.
var ErrTableFull = errors.New("resource table full")

// Table assigns opaque uint32 handles to values of type T.
//
// The internal lock protects only the handle-to-slot mapping. Callers that
// mutate the value behind a handle are responsible for serializing their own
// access to that handle.
type Table[T any] struct {
	mu       sync.RWMutex
	entries  map[uint32]*T
	capacity int
	next     uint32
}

// New creates a table that holds at most capacity entries.
func New[T any](capacity int) *Table[T] {
	return &Table[T]{
		entries:  make(map[uint32]*T),
		capacity: capacity,
	}
}

// Push inserts a value and returns its handle. Inserting beyond capacity
// returns ErrTableFull and leaves the table unchanged.
func (t *Table[T]) Push(value T) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= t.capacity {
		return 0, ErrTableFull
	}

	handle := t.next
	t.next++
	t.entries[handle] = &value
	return handle, nil
}

// Get returns a pointer to the value for the given handle, or false if the
// handle is not present.
func (t *Table[T]) Get(handle uint32) (*T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	value, ok := t.entries[handle]
	return value, ok
}

// Remove deletes the entry for the given handle and returns its value.
// Removing an unknown handle is a no-op.
func (t *Table[T]) Remove(handle uint32) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	value, ok := t.entries[handle]
	if !ok {
		var zero T
		return zero, false
	}
	delete(t.entries, handle)
	return *value, true
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.entries)
}

// Drain removes and returns every value in the table. Used at instance
// teardown to release all live connections.
func (t *Table[T]) Drain() []T {
	t.mu.Lock()
	defer t.mu.Unlock()

	values := make([]T, 0, len(t.entries))
	for handle, value := range t.entries {
		values = append(values, *value)
		delete(t.entries, handle)
	}
	return values
}
