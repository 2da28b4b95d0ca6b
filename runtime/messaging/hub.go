package messaging

import (
	"context"
	"sync"
	"time"
)

// Hub correlates incoming interaction events with the sessions waiting for
// them. Transports call Dispatch for each event; sessions call Await.
type Hub struct {
	mu      sync.Mutex
	waiters map[*waiter]struct{}
}

type waiter struct {
	filters []Filter
	ch      chan *Event
}

// NewHub creates a hub with no waiters.
func NewHub() *Hub {
	return &Hub{waiters: make(map[*waiter]struct{})}
}

// Await implements Interactions.Await.
func (h *Hub) Await(ctx context.Context, timeout time.Duration, filters ...Filter) (*Event, error) {
	w := &waiter{filters: filters, ch: make(chan *Event, 1)}

	h.mu.Lock()
	h.waiters[w] = struct{}{}
	h.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-w.ch:
		return ev, nil
	case <-timer.C:
		if ev, ok := h.cancel(w); ok {
			return ev, nil
		}
		return nil, nil
	case <-ctx.Done():
		if ev, ok := h.cancel(w); ok {
			return ev, nil
		}
		return nil, ctx.Err()
	}
}

// cancel removes w. If a dispatch won the race the delivered event is returned.
func (h *Hub) cancel(w *waiter) (*Event, bool) {
	h.mu.Lock()
	_, pending := h.waiters[w]
	delete(h.waiters, w)
	h.mu.Unlock()

	if pending {
		return nil, false
	}
	return <-w.ch, true
}

// Dispatch hands ev to one waiter whose filters match and reports whether
// any did. Unclaimed events should be answered by the transport.
func (h *Hub) Dispatch(ev *Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for w := range h.waiters {
		if MatchAny(ev, w.filters) {
			delete(h.waiters, w)
			w.ch <- ev
			return true
		}
	}
	return false
}

// Waiting returns the number of registered waiters.
func (h *Hub) Waiting() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiters)
}
