package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/domain/providers"
	redisclient "github.com/zatekoja/resibooking/internal/infrastructure/clients/redis"
)

// RedisEventBus implements the EventBus interface using Redis Pub/Sub.
// All booking events share one channel, which preserves publish order
// per connection.
type RedisEventBus struct {
	client       *redisclient.Client
	channel      string
	subscription *redis.PubSub
	subscribers  map[chan *entities.BookingEvent]struct{}
	bufferSize   int
	mu           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewRedisEventBus creates a new Redis-based event bus
func NewRedisEventBus(client *redisclient.Client, channel string, bufferSize int) providers.EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client:      client,
		channel:     channel,
		subscribers: make(map[chan *entities.BookingEvent]struct{}),
		bufferSize:  bufferSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Publish publishes an event to all subscribers
func (b *RedisEventBus) Publish(ctx context.Context, event *entities.BookingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.client.Client().Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Debug().
		Str("channel", b.channel).
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Msg("Published booking event")
	return nil
}

// Subscribe streams booking events until ctx is done
func (b *RedisEventBus) Subscribe(ctx context.Context) (<-chan *entities.BookingEvent, error) {
	b.mu.Lock()
	if b.ctx.Err() != nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("event bus is closed")
	}

	if b.subscription == nil {
		pubsub := b.client.Client().Subscribe(b.ctx, b.channel)
		b.subscription = pubsub
		go b.receiveMessages(pubsub)
	}

	eventChan := make(chan *entities.BookingEvent, b.bufferSize)
	b.subscribers[eventChan] = struct{}{}
	subscriberCount := len(b.subscribers)
	b.mu.Unlock()

	log.Info().Str("channel", b.channel).Int("subscribers", subscriberCount).Msg("Subscribed to booking events")

	go func() {
		select {
		case <-ctx.Done():
		case <-b.ctx.Done():
		}
		b.removeSubscriber(eventChan)
	}()

	return eventChan, nil
}

// receiveMessages decodes messages from Redis and fans them out. It
// exits when pubsub is closed by the last unsubscribe or by Close.
func (b *RedisEventBus) receiveMessages(pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event entities.BookingEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Str("channel", b.channel).Msg("Failed to unmarshal booking event")
				continue
			}

			b.mu.RLock()
			for subscriber := range b.subscribers {
				select {
				case subscriber <- &event:
				default:
					log.Warn().Str("event_id", event.ID).Msg("Subscriber channel full, skipping event")
				}
			}
			b.mu.RUnlock()
		}
	}
}

func (b *RedisEventBus) removeSubscriber(eventChan chan *entities.BookingEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[eventChan]; !ok {
		return
	}
	delete(b.subscribers, eventChan)
	close(eventChan)

	if len(b.subscribers) == 0 && b.subscription != nil {
		_ = b.subscription.Close()
		b.subscription = nil
		log.Info().Str("channel", b.channel).Msg("Closed booking event subscription")
	}
}

func (b *RedisEventBus) closeSubscription() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subscriber := range b.subscribers {
		close(subscriber)
	}
	b.subscribers = make(map[chan *entities.BookingEvent]struct{})

	if b.subscription != nil {
		if err := b.subscription.Close(); err != nil {
			log.Warn().Err(err).Str("channel", b.channel).Msg("Failed to close subscription")
		}
		b.subscription = nil
	}
}

// Close closes the event bus and all subscriptions
func (b *RedisEventBus) Close() error {
	b.cancel()
	b.closeSubscription()
	log.Info().Msg("Event bus closed")
	return nil
}
