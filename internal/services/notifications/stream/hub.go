// Package stream fans created notifications out to live subscribers.
package stream

import (
	"sync"

	"github.com/louisbranch/vvebeheer/internal/services/notifications/domain"
)

const defaultBuffer = 16

// Hub keeps per-user subscriptions. Publish never blocks: a subscriber whose
// buffer is full is dropped and must reconnect.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	buffer  int
	dropped int
}

// NewHub creates a hub with the given per-subscriber buffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

// Subscription receives notifications for one user.
type Subscription struct {
	hub    *Hub
	userID string
	ch     chan domain.Notification
	closed bool
}

// Subscribe registers a subscriber for userID.
func (h *Hub) Subscribe(userID string) *Subscription {
	sub := &Subscription{hub: h, userID: userID, ch: make(chan domain.Notification, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	return sub
}

// C delivers notifications. It is closed when the subscription ends.
func (s *Subscription) C() <-chan domain.Notification {
	return s.ch
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.removeLocked(s)
}

// Publish delivers notification to every subscriber of userID without
// blocking.
func (h *Hub) Publish(userID string, notification domain.Notification) {
	var slow []*Subscription
	h.mu.RLock()
	for sub := range h.subs[userID] {
		select {
		case sub.ch <- notification:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()
	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range slow {
		if !sub.closed {
			h.dropped++
		}
		h.removeLocked(sub)
	}
}

// Subscribers counts live subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Dropped counts subscribers removed for being too slow.
func (h *Hub) Dropped() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

func (h *Hub) removeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	subs := h.subs[sub.userID]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subs, sub.userID)
	}
}
