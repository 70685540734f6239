package reconcile

import "sync"

// Hub fans "order changed" signals out from status writers to the loops
// watching that order. Signals carry no payload; receivers re-read storage.
type Hub struct {
	mu   sync.Mutex
	subs map[int64]map[chan struct{}]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int64]map[chan struct{}]struct{})}
}

// Subscribe returns a channel that receives a signal whenever orderID is
// published, and a function that ends the subscription. Signals coalesce:
// a slow receiver sees at most one pending signal.
func (h *Hub) Subscribe(orderID int64) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	set, ok := h.subs[orderID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		h.subs[orderID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[orderID], ch)
			if len(h.subs[orderID]) == 0 {
				delete(h.subs, orderID)
			}
		})
	}
}

// Publish signals every subscriber of orderID without blocking.
func (h *Hub) Publish(orderID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[orderID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns how many subscriptions orderID has.
func (h *Hub) Subscribers(orderID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[orderID])
}
