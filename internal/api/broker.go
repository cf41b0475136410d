package api

import (
	"sync"
)

// Event is a live notification pushed to SSE/WebSocket subscribers.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Broker is the in-process event broker. Channels are keyed by audience:
// "user:<id>", "company:<id>", or "all".
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // key -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(key string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[key] == nil {
		b.subs[key] = map[chan Event]struct{}{}
	}
	b.subs[key][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(key string, ch chan Event) {
	b.mu.Lock()
	if m := b.subs[key]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, key)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(key string, evt Event) {
	b.mu.Lock()
	m := b.subs[key]
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
