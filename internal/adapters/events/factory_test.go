package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/resibooking/internal/adapters/events"
	"github.com/zatekoja/resibooking/pkg/config"
)

func TestNewEventBus(t *testing.T) {
	cfg := config.Defaults().Events

	cfg.Driver = config.EventBusDriverMemory
	bus, err := events.NewEventBus(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &events.MemoryEventBus{}, bus)
	assert.NoError(t, bus.Close())

	cfg.Driver = config.EventBusDriverKafka
	bus, err = events.NewEventBus(cfg, nil)
	require.NoError(t, err)
	assert.NoError(t, bus.Close())

	cfg.Driver = config.EventBusDriverRedis
	_, err = events.NewEventBus(cfg, nil)
	assert.Error(t, err)

	cfg.Driver = "carrier-pigeon"
	_, err = events.NewEventBus(cfg, nil)
	assert.Error(t, err)
}

func TestNewConsumerBus(t *testing.T) {
	cfg := config.Defaults().Events

	t.Run("fan-out drivers share the bus", func(t *testing.T) {
		cfg.Driver = config.EventBusDriverMemory
		shared := events.NewMemoryEventBus(4)
		defer shared.Close()

		bus, err := events.NewConsumerBus(shared, cfg, nil, "resi-cache-invalidator")
		require.NoError(t, err)
		assert.Same(t, shared, bus)

		cfg.Driver = config.EventBusDriverRedis
		_, err = events.NewConsumerBus(nil, cfg, nil, "resi-cache-invalidator")
		assert.Error(t, err)
	})

	t.Run("consumer identity differs from the notifier", func(t *testing.T) {
		consumer := cfg.ForConsumer("resi-cache-invalidator")
		assert.NotEqual(t, cfg.KafkaGroupID, consumer.KafkaGroupID)
		assert.NotEqual(t, cfg.AMQPQueue, consumer.AMQPQueue)
		assert.Equal(t, cfg.KafkaTopic, consumer.KafkaTopic)
		assert.Equal(t, cfg.AMQPExchange, consumer.AMQPExchange)
	})
}
