// Package broadcast bridges webhook handlers to streaming readers. Each
// registry maps a payment-rail correlation id to an in-memory event channel.
// Channels are a low-latency hint only; the invoice row stays the durable
// source of truth, so events may be dropped without correctness loss.
package broadcast

import (
	"sync"
	"time"
)

// Event is one state-change notification pushed by a webhook handler.
type Event struct {
	OrderState string `json:"order_state"`
}

const channelBuffer = 16

// Registry is a concurrency-safe map from correlation id to event channel.
// Channels are created lazily and live for the process lifetime; nothing is
// persisted across restarts.
type Registry struct {
	mu       sync.Mutex
	channels map[string]chan Event
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]chan Event)}
}

// Register creates the channel for key if it does not exist yet.
func (r *Registry) Register(key string) {
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[key]; !ok {
		r.channels[key] = make(chan Event, channelBuffer)
	}
}

// Publish delivers ev to the channel for key, if one is registered. Delivery
// is best-effort: an unregistered key or a full channel drops the event and
// reports false.
func (r *Registry) Publish(key string, ev Event) bool {
	r.mu.Lock()
	ch, ok := r.channels[key]
	r.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}

// Receive waits up to timeout for an event on the channel for key. The
// second return is false when no channel is registered or the wait timed
// out; a stalled reader must fall back to a direct invoice lookup.
func (r *Registry) Receive(key string, timeout time.Duration) (Event, bool) {
	r.mu.Lock()
	ch, ok := r.channels[key]
	r.mu.Unlock()
	if !ok {
		return Event{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-ch:
		return ev, true
	case <-timer.C:
		return Event{}, false
	}
}

// Remove drops the channel for key. Used when the invoice behind a
// correlation id is deleted; pending events on the channel are lost.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, key)
}

// Registered reports whether a channel exists for key.
func (r *Registry) Registered(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.channels[key]
	return ok
}
