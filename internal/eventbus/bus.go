package eventbus

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const subscriberBuffer = 64

// Bus is the in-process fan-out of domain events. Publish never blocks: a
// slow subscriber loses events rather than stalling the session dispatch
// loop.
type Bus struct {
	mu          sync.Mutex
	subscribers []chan Event
	bridges     []Publisher
	closed      bool
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a receive channel of all future events. The channel is
// closed when the bus closes.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Attach mirrors every published event to an external bridge. Bridge errors
// are logged and never propagate into the publisher.
func (b *Bus) Attach(bridge Publisher) {
	b.mu.Lock()
	b.bridges = append(b.bridges, bridge)
	b.mu.Unlock()
}

func (b *Bus) Publish(event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	subscribers := append([]chan Event(nil), b.subscribers...)
	bridges := append([]Publisher(nil), b.bridges...)
	b.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- event:
		default:
			log.Warn().Str("service", "eventbus").Str("kind", string(event.Kind)).Msg("subscriber full, event dropped")
		}
	}

	for _, bridge := range bridges {
		if err := bridge.Publish(event); err != nil {
			log.Error().Err(err).Str("service", "eventbus").Str("kind", string(event.Kind)).Msg("bridge publish failed")
		}
	}

	return nil
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
