package providers

import (
	"context"
	"errors"

	"github.com/zatekoja/resibooking/internal/domain/entities"
)

// EventBus publishes booking events to downstream collaborators.
// Implementations must deliver events for the same booking in publish order.
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, event *entities.BookingEvent) error

	// Subscribe streams events until ctx is done. Drivers that only
	// produce (Kafka, AMQP) return ErrSubscribeUnsupported.
	Subscribe(ctx context.Context) (<-chan *entities.BookingEvent, error)

	// Close closes the event bus and all subscriptions
	Close() error
}

// ErrSubscribeUnsupported is returned by publish-only drivers
var ErrSubscribeUnsupported = errors.New("event bus driver does not support in-process subscriptions")
