package events

import (
	"fmt"

	"github.com/zatekoja/resibooking/internal/domain/providers"
	redisclient "github.com/zatekoja/resibooking/internal/infrastructure/clients/redis"
	"github.com/zatekoja/resibooking/pkg/config"
)

// NewEventBus builds the bus selected by cfg.Driver. redis may be nil for
// every driver but redis.
func NewEventBus(cfg config.EventsConfig, redis *redisclient.Client) (providers.EventBus, error) {
	switch cfg.Driver {
	case config.EventBusDriverRedis:
		if redis == nil {
			return nil, fmt.Errorf("redis event bus requires a redis client")
		}
		return NewRedisEventBus(redis, cfg.RedisChannel, cfg.MemoryBufSize), nil
	case config.EventBusDriverKafka:
		return NewKafkaEventBus(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID), nil
	case config.EventBusDriverAMQP:
		return NewAMQPEventBus(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	case config.EventBusDriverMemory:
		return NewMemoryEventBus(cfg.MemoryBufSize), nil
	default:
		return nil, fmt.Errorf("unknown event bus driver %q", cfg.Driver)
	}
}

// NewConsumerBus returns a bus on which consumer receives every event.
// Redis and memory buses fan out to all subscribers, so shared is reused.
// Kafka and AMQP deliver each message once per group or queue, so consumer
// gets its own identity there.
func NewConsumerBus(shared providers.EventBus, cfg config.EventsConfig, redis *redisclient.Client, consumer string) (providers.EventBus, error) {
	switch cfg.Driver {
	case config.EventBusDriverRedis, config.EventBusDriverMemory:
		if shared == nil {
			return nil, fmt.Errorf("%s event bus is not available", cfg.Driver)
		}
		return shared, nil
	default:
		return NewEventBus(cfg.ForConsumer(consumer), redis)
	}
}
