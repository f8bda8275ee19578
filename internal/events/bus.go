package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to a closed bus.
var ErrBusClosed = errors.New("event bus is closed")

// DefaultBufferSize is used when NewBus gets a non-positive size.
const DefaultBufferSize = 1024

// subscriberQueue bounds how far a Subscribe handler may lag behind.
const subscriberQueue = 256

// Subscriber is a function that receives events.
type Subscriber func(Event)

type subscription struct {
	types map[EventType]struct{}
	inbox chan Event
}

func (s *subscription) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus fans events out to subscribers. Publish never blocks the caller: events
// that do not fit in the bus buffer or in a subscriber's queue are dropped and
// counted. Each subscriber sees its events in publish order.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscription
	nextID      int
	eventChan   chan Event
	history     *RingBuffer
	closed      bool
	done        chan struct{}
	dropped     atomic.Uint64
}

// NewBus creates an event bus whose buffer and history hold bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	b := newBus(bufferSize, bufferSize)
	go b.run()
	return b
}

func newBus(bufferSize, historySize int) *Bus {
	return &Bus{
		subscribers: make(map[int]*subscription),
		eventChan:   make(chan Event, bufferSize),
		history:     NewRingBuffer(historySize),
		done:        make(chan struct{}),
	}
}

func (b *Bus) run() {
	for {
		select {
		case event := <-b.eventChan:
			b.history.Add(event)
			b.fanOut(event)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) fanOut(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.inbox <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Publish queues an event for delivery.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	select {
	case b.eventChan <- event:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded because a buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// PublishAsync waits for room in the bus buffer, or for ctx to end.
func (b *Bus) PublishAsync(ctx context.Context, event Event) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return ErrBusClosed
	}

	select {
	case b.eventChan <- event:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe runs handler on its own goroutine for every event of the given
// types (all types when none). Returns an unsubscribe function.
func (b *Bus) Subscribe(handler Subscriber, eventTypes ...EventType) func() {
	inbox, unsubscribe := b.add(subscriberQueue, eventTypes)
	go func() {
		for e := range inbox {
			handler(e)
		}
	}()
	return unsubscribe
}

// SubscribeChan returns a channel that receives events of the given types.
// The channel is closed on unsubscribe or when the bus closes.
func (b *Bus) SubscribeChan(bufSize int, eventTypes ...EventType) (<-chan Event, func()) {
	return b.add(bufSize, eventTypes)
}

func (b *Bus) add(queue int, eventTypes []EventType) (chan Event, func()) {
	sub := &subscription{inbox: make(chan Event, queue)}
	if len(eventTypes) > 0 {
		sub.types = make(map[EventType]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.inbox)
		return sub.inbox, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subscribers[id] = sub

	return sub.inbox, func() { b.remove(id) }
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.inbox)
	}
}

// History returns up to limit recent events, oldest first.
func (b *Bus) History(limit int) []Event {
	return b.history.Get(limit)
}

// Close stops delivery and closes every subscriber queue. It is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	close(b.done)
	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		close(sub.inbox)
	}
}
