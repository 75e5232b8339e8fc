//go:build integration

package events_test

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/resibooking/internal/adapters/events"
	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/infrastructure/clients/redis"
	"github.com/zatekoja/resibooking/pkg/config"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	port, _ := strconv.Atoi(os.Getenv("TEST_REDIS_PORT"))
	if port == 0 {
		port = 6379
	}
	client, err := redis.NewClient(context.Background(), &config.RedisConfig{
		Host: os.Getenv("TEST_REDIS_HOST"),
		Port: port,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func waitForEvent(t *testing.T, ch <-chan *entities.BookingEvent) *entities.BookingEvent {
	t.Helper()
	select {
	case event := <-ch:
		require.NotNil(t, event)
		return event
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for booking event")
		return nil
	}
}

func TestRedisEventBusFanoutIntegration(t *testing.T) {
	if os.Getenv("TEST_REDIS_HOST") == "" {
		t.Skip("Skipping integration test: TEST_REDIS_HOST not set")
	}

	bus := events.NewRedisEventBus(newTestRedisClient(t), "booking:events:test", 16)
	defer bus.Close()

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel1()
	defer cancel2()

	sub1, err := bus.Subscribe(ctx1)
	require.NoError(t, err)
	sub2, err := bus.Subscribe(ctx2)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	created := entities.NewBookingEvent(entities.BookingCreated{BookingID: "b-1", ClientID: "C1", ScheduledAt: time.Now().UTC()})
	assigned := entities.NewBookingEvent(entities.ResiAssigned{BookingID: "b-1", ResiID: "R1"})
	require.NoError(t, bus.Publish(context.Background(), created))
	require.NoError(t, bus.Publish(context.Background(), assigned))

	for _, sub := range []<-chan *entities.BookingEvent{sub1, sub2} {
		first := waitForEvent(t, sub)
		second := waitForEvent(t, sub)
		assert.Equal(t, created.ID, first.ID)
		assert.Equal(t, assigned.ID, second.ID)

		payload, ok := second.Payload.(entities.ResiAssigned)
		require.True(t, ok)
		assert.Equal(t, "R1", payload.ResiID)
	}
}
