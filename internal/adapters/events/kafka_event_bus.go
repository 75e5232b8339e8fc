package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/domain/providers"
)

// KafkaEventBus publishes booking events to a Kafka topic keyed by
// booking ID, so each booking's events land on one partition in order.
type KafkaEventBus struct {
	writer  *kafka.Writer
	brokers []string
	topic   string
	groupID string
}

// NewKafkaEventBus creates a Kafka-backed event bus. groupID is only used
// by Subscribe; an empty groupID makes the bus publish-only.
func NewKafkaEventBus(brokers []string, topic, groupID string) providers.EventBus {
	return &KafkaEventBus{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		brokers: brokers,
		topic:   topic,
		groupID: groupID,
	}
}

// Publish writes the event synchronously
func (b *KafkaEventBus) Publish(ctx context.Context, event *entities.BookingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.BookingID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish event to kafka: %w", err)
	}
	return nil
}

// Subscribe consumes the topic as part of the configured consumer group
func (b *KafkaEventBus) Subscribe(ctx context.Context) (<-chan *entities.BookingEvent, error) {
	if b.groupID == "" {
		return nil, providers.ErrSubscribeUnsupported
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: b.brokers,
		Topic:   b.topic,
		GroupID: b.groupID,
	})

	out := make(chan *entities.BookingEvent, 100)
	go func() {
		defer close(out)
		defer reader.Close()

		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					log.Error().Err(err).Str("topic", b.topic).Msg("Kafka read failed")
				}
				return
			}

			var event entities.BookingEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				log.Warn().Err(err).Int64("offset", msg.Offset).Msg("Failed to unmarshal booking event")
				continue
			}

			select {
			case out <- &event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close flushes and closes the writer
func (b *KafkaEventBus) Close() error {
	return b.writer.Close()
}
