package events

import (
	"sync"

	"github.com/google/uuid"
)

const defaultClientBuffer = 16

// Event is a single live payload addressed to one user.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Subscription is one live listener for a user. A user may hold several
// subscriptions (multiple tabs); each gets its own buffered channel.
type Subscription struct {
	userID uuid.UUID
	ch     chan Event
	hub    *Hub
	once   sync.Once
}

// Events exposes the receive side of the subscription.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscription from the hub and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
		close(s.ch)
	})
}

// Hub fans live events out to per-user subscribers. Delivery is best-effort:
// a subscriber with a full buffer misses the event rather than blocking the
// publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*Subscription]struct{}
	buffer int
}

// NewHub builds a hub with the provided per-subscriber buffer size.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	return &Hub{
		subs:   make(map[uuid.UUID]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a live listener for the given user.
func (h *Hub) Subscribe(userID uuid.UUID) *Subscription {
	sub := &Subscription{
		userID: userID,
		ch:     make(chan Event, h.buffer),
		hub:    h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userSubs, ok := h.subs[sub.userID]
	if !ok {
		return
	}
	delete(userSubs, sub)
	if len(userSubs) == 0 {
		delete(h.subs, sub.userID)
	}
}

// Publish delivers the event to every live subscription of the user and
// reports how many listeners received it and how many were skipped because
// their buffer was full.
func (h *Hub) Publish(userID uuid.UUID, event Event) (delivered, dropped int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[userID] {
		select {
		case sub.ch <- event:
			delivered++
		default:
			dropped++
		}
	}
	return delivered, dropped
}

// SubscriberCount returns the number of live subscriptions for the user.
func (h *Hub) SubscriberCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
