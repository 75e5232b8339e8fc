package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/domain/providers"
)

// AMQPEventBus publishes booking events to a topic exchange. The event
// type is the routing key, e.g. booking.completed.
type AMQPEventBus struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
	// amqp channels are not safe for concurrent publishing
	mu sync.Mutex
}

// NewAMQPEventBus dials the broker and declares the exchange. queue names
// the durable queue Subscribe consumes from; empty makes the bus publish-only.
func NewAMQPEventBus(url, exchange, queue string) (providers.EventBus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPEventBus{conn: conn, ch: ch, exchange: exchange, queue: queue}, nil
}

// Publish sends the event as a persistent JSON message
func (b *AMQPEventBus) Publish(ctx context.Context, event *entities.BookingEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	err = b.ch.PublishWithContext(ctx, b.exchange, string(event.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish event to rabbitmq: %w", err)
	}
	return nil
}

// Subscribe binds the queue to every booking event and streams deliveries
func (b *AMQPEventBus) Subscribe(ctx context.Context) (<-chan *entities.BookingEvent, error) {
	if b.queue == "" {
		return nil, providers.ErrSubscribeUnsupported
	}

	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	q, err := ch.QueueDeclare(b.queue, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "booking.#", b.exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bind booking.#: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume %s: %w", q.Name, err)
	}

	out := make(chan *entities.BookingEvent, 100)
	go func() {
		defer close(out)
		defer ch.Close()

		for d := range deliveries {
			var event entities.BookingEvent
			if err := json.Unmarshal(d.Body, &event); err != nil {
				log.Warn().Err(err).Str("routing_key", d.RoutingKey).Msg("Dropping malformed booking event")
				_ = d.Nack(false, false)
				continue
			}

			select {
			case out <- &event:
				_ = d.Ack(false)
			case <-ctx.Done():
				_ = d.Nack(false, true)
				return
			}
		}
	}()

	return out, nil
}

// Close closes the channel and connection
func (b *AMQPEventBus) Close() error {
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
