// Package buffer provides the bounded queue between live-source delivery
// pumps and the scan loop. Writes never block; when a slow scan lets the
// queue fill, items are shed instead of pushing backpressure into the
// middleware client.
package buffer

import "sync"

// Policy selects which side of a full Ring is shed on write.
type Policy int

const (
	// DropOldest overwrites the oldest queued item. Live scans prefer
	// recent records over stale ones.
	DropOldest Policy = iota

	// DropNewest rejects the incoming item and keeps the queue as is.
	DropNewest
)

// Ring is a bounded FIFO between delivery goroutines and a reader. Safe
// for concurrent use. A reader that finds the ring empty waits on Ready
// and retries Get; Close marks the end of the stream while leaving
// queued items readable.
type Ring[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int
	count   int
	policy  Policy
	dropped uint64
	closed  bool

	// ready carries a coalesced wake-up token, sent after each Put and
	// after Close.
	ready chan struct{}
}

// NewRing creates a ring with the given capacity. Capacities below one
// are raised to one.
func NewRing[T any](capacity int, policy Policy) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		items:  make([]T, capacity),
		policy: policy,
		ready:  make(chan struct{}, 1),
	}
}

// Put queues an item. Returns false when the ring is closed or the item
// was shed under DropNewest.
func (r *Ring[T]) Put(item T) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	if r.count == len(r.items) {
		r.dropped++
		if r.policy == DropNewest {
			r.mu.Unlock()
			return false
		}
		// The tail slot coincides with head when full: overwrite the
		// oldest item in place and advance past it.
		r.items[r.head] = item
		r.head = (r.head + 1) % len(r.items)
		r.mu.Unlock()
		r.signal()
		return true
	}
	r.items[(r.head+r.count)%len(r.items)] = item
	r.count++
	r.mu.Unlock()
	r.signal()
	return true
}

// Get removes the oldest queued item without blocking.
func (r *Ring[T]) Get() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.count == 0 {
		return zero, false
	}
	item := r.items[r.head]
	r.items[r.head] = zero
	r.head = (r.head + 1) % len(r.items)
	r.count--
	return item, true
}

// Ready returns the wake-up channel. It is signalled after every Put and
// after Close; a woken reader must retry Get because tokens coalesce.
func (r *Ring[T]) Ready() <-chan struct{} {
	return r.ready
}

// Close marks the end of the stream. Later Puts are rejected, queued
// items stay readable. Idempotent.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.signal()
}

// Closed reports whether Close was called.
func (r *Ring[T]) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Len returns the number of queued items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Dropped returns how many items were shed since creation.
func (r *Ring[T]) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Ring[T]) signal() {
	select {
	case r.ready <- struct{}{}:
	default:
	}
}
