package hub

import (
	"context"
	"sync"

	"github.com/atikulmunna/memlens/internal/logging"
	"github.com/atikulmunna/memlens/internal/output"
)

const subscriberBuffer = 64

// Hub receives publications and broadcasts them to all subscribers.
type Hub struct {
	input       <-chan output.Publication
	mu          sync.RWMutex
	subscribers []chan output.Publication
	dropped     int64
	closed      bool
}

// New creates a Hub that reads from the input channel.
func New(input <-chan output.Publication) *Hub {
	return &Hub{input: input}
}

// Subscribe returns a buffered channel that will receive publications.
// Multiple consumers can subscribe; each gets a copy of every publication.
// Subscribing after the hub stopped returns a closed channel.
func (h *Hub) Subscribe() <-chan output.Publication {
	ch := make(chan output.Publication, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subscribers = append(h.subscribers, ch)
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (h *Hub) Unsubscribe(sub <-chan output.Publication) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, ch := range h.subscribers {
		if ch == sub {
			close(ch)
			h.subscribers = append(h.subscribers[:i], h.subscribers[i+1:]...)
			return
		}
	}
}

// Dropped returns the total number of publications dropped due to slow consumers.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Start begins reading from the input channel and broadcasting.
// Blocks until the context is cancelled or the input channel is closed.
func (h *Hub) Start(ctx context.Context) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-h.input:
			if !ok {
				return
			}
			h.broadcast(p)
		}
	}
}

// broadcast sends a publication to all subscribers.
// If a subscriber's channel is full, the publication is dropped for that subscriber.
func (h *Hub) broadcast(p output.Publication) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- p:
		default:
			h.dropped++
			logging.Warn("hub: dropped publication for slow consumer", "tool", p.Tool, "dropped", h.dropped)
		}
	}
}

// closeAll closes all subscriber channels.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = nil
	h.closed = true
}
