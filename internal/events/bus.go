// README: In-process fan-out bus; publishing never blocks, slow subscribers lose events.
package events

import (
	"context"
	"sync"
	"sync/atomic"

	"haul/internal/observability"
)

type subscription struct {
	ch     chan Event
	filter func(Event) bool
}

type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscription
	next    int
	buffer  int
	closed  bool
	dropped atomic.Int64
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{subs: make(map[int]*subscription), buffer: buffer}
}

// Subscribe returns a channel of events accepted by filter (nil accepts all)
// and a function that removes the subscription and closes the channel.
func (b *Bus) Subscribe(filter func(Event) bool) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = &subscription{ch: ch, filter: filter}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
}

func (b *Bus) Publish(_ context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.filter != nil && !s.filter(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
			observability.EventsDropped.Inc()
		}
	}
	observability.EventsPublished.WithLabelValues(string(e.Type)).Inc()
}

// Dropped counts events lost to full subscriber buffers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
}

// ForOrder filters events for a single order.
func ForOrder(id string) func(Event) bool {
	return func(e Event) bool { return string(e.OrderID) == id }
}
