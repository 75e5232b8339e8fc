package events_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/resibooking/internal/adapters/events"
	"github.com/zatekoja/resibooking/internal/domain/entities"
)

func receive(t *testing.T, ch <-chan *entities.BookingEvent) *entities.BookingEvent {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestMemoryEventBus_PublishOrder(t *testing.T) {
	bus := events.NewMemoryEventBus(16)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	second, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(ctx, entities.NewBookingEvent(entities.BookingStatusChanged{
			BookingID: fmt.Sprintf("b-%d", i),
		})))
	}

	for _, sub := range []<-chan *entities.BookingEvent{first, second} {
		for i := 0; i < 5; i++ {
			assert.Equal(t, fmt.Sprintf("b-%d", i), receive(t, sub).BookingID)
		}
	}
}

func TestMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := events.NewMemoryEventBus(1)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	t.Run("publish after close fails", func(t *testing.T) {
		require.NoError(t, bus.Close())
		err := bus.Publish(context.Background(), entities.NewBookingEvent(entities.ResiAssigned{BookingID: "b-1"}))
		assert.Error(t, err)
	})
}

func TestMemoryEventBus_FullSubscriberDoesNotBlock(t *testing.T) {
	bus := events.NewMemoryEventBus(1)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, entities.NewBookingEvent(entities.ResiAssigned{BookingID: "b-1"})))
	require.NoError(t, bus.Publish(ctx, entities.NewBookingEvent(entities.ResiAssigned{BookingID: "b-2"})))

	assert.Equal(t, "b-1", receive(t, ch).BookingID)
}
