package feed

import (
	"context"
	"sync"

	"dreampuff/internal/domain"
)

// Snapshot is the full product list at one point in time
type Snapshot []*domain.Product

// Hub fans product snapshots out to subscribers. New subscribers immediately
// receive the latest snapshot; slow subscribers only ever see the newest one.
type Hub struct {
	mu     sync.Mutex
	last   Snapshot
	hasAny bool
	subs   map[*Subscription]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscription receives snapshots until Close is called or its context ends
type Subscription struct {
	hub  *Hub
	ch   chan Snapshot
	once sync.Once
}

// C returns the channel snapshots arrive on. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Snapshot {
	return s.ch
}

// Close unsubscribes; it is safe to call more than once
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Subscribe registers a subscriber that is removed when ctx is done
func (h *Hub) Subscribe(ctx context.Context) *Subscription {
	sub := &Subscription{hub: h, ch: make(chan Snapshot, 1)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	h.subs[sub] = struct{}{}
	if h.hasAny {
		sub.ch <- h.last
	}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	return sub
}

// Publish replaces the latest snapshot and delivers it to every subscriber
func (h *Hub) Publish(snapshot Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.last = snapshot
	h.hasAny = true

	for sub := range h.subs {
		select {
		case sub.ch <- snapshot:
		default:
			// Drop the stale snapshot the subscriber has not read yet.
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- snapshot
		}
	}
}

// Latest returns the most recent snapshot, if any has been published
func (h *Hub) Latest() (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.hasAny
}

// Subscribers returns the number of live subscriptions
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription and rejects further publishes
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*Subscription]struct{})
	h.closed = true
	h.mu.Unlock()

	for sub := range subs {
		sub.once.Do(func() { close(sub.ch) })
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()

	sub.once.Do(func() { close(sub.ch) })
}
