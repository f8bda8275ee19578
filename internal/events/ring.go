package events

import "sync"

// RingBuffer keeps the most recent events, oldest first.
type RingBuffer struct {
	mu     sync.RWMutex
	events []Event
	next   int
	full   bool
}

// NewRingBuffer creates a ring buffer holding up to size events.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer{events: make([]Event, size)}
}

// Add stores event, overwriting the oldest one when the buffer is full.
func (r *RingBuffer) Add(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.next] = event
	r.next++
	if r.next == len(r.events) {
		r.next = 0
		r.full = true
	}
}

// Len returns the number of stored events.
func (r *RingBuffer) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.len()
}

func (r *RingBuffer) len() int {
	if r.full {
		return len(r.events)
	}
	return r.next
}

// Get returns up to the n most recent events, oldest first.
func (r *RingBuffer) Get(n int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if count := r.len(); n > count {
		n = count
	}
	if n <= 0 {
		return nil
	}

	size := len(r.events)
	out := make([]Event, n)
	start := (r.next - n + size) % size
	for i := range out {
		out[i] = r.events[(start+i)%size]
	}
	return out
}

// Clear drops every stored event.
func (r *RingBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.events)
	r.next = 0
	r.full = false
}
