package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/domain/providers"
)

// MemoryEventBus fans events out to in-process subscribers. Publish is
// serialized, so every subscriber sees events in publish order.
type MemoryEventBus struct {
	mu          sync.Mutex
	subscribers map[chan *entities.BookingEvent]struct{}
	bufferSize  int
	closed      bool
}

// NewMemoryEventBus creates an in-process event bus
func NewMemoryEventBus(bufferSize int) *MemoryEventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &MemoryEventBus{
		subscribers: make(map[chan *entities.BookingEvent]struct{}),
		bufferSize:  bufferSize,
	}
}

var _ providers.EventBus = (*MemoryEventBus)(nil)

// Publish delivers event to every current subscriber. A subscriber whose
// buffer is full misses the event.
func (b *MemoryEventBus) Publish(ctx context.Context, event *entities.BookingEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	for subscriber := range b.subscribers {
		select {
		case subscriber <- event:
		default:
			log.Warn().Str("event_id", event.ID).Str("event_type", string(event.Type)).
				Msg("Subscriber channel full, skipping event")
		}
	}
	return nil
}

// Subscribe streams events until ctx is done or the bus is closed
func (b *MemoryEventBus) Subscribe(ctx context.Context) (<-chan *entities.BookingEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	ch := make(chan *entities.BookingEvent, b.bufferSize)
	b.subscribers[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		b.remove(ch)
	}()

	return ch, nil
}

func (b *MemoryEventBus) remove(ch chan *entities.BookingEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Close closes every subscription
func (b *MemoryEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = make(map[chan *entities.BookingEvent]struct{})
	return nil
}
