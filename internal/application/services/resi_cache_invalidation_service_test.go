package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/resibooking/internal/adapters/events"
	"github.com/zatekoja/resibooking/internal/application/services"
	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/domain/providers"
)

type recordingCache struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (c *recordingCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, providers.ErrCacheMiss
}

func (c *recordingCache) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	return nil
}

func (c *recordingCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, key)
	return c.err
}

func (c *recordingCache) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deleted...)
}

type publishOnlyBus struct{}

func (publishOnlyBus) Publish(ctx context.Context, event *entities.BookingEvent) error { return nil }
func (publishOnlyBus) Subscribe(ctx context.Context) (<-chan *entities.BookingEvent, error) {
	return nil, providers.ErrSubscribeUnsupported
}
func (publishOnlyBus) Close() error { return nil }

func TestResiCacheInvalidationService(t *testing.T) {
	ctx := context.Background()
	cache := &recordingCache{}
	bus := events.NewMemoryEventBus(8)
	defer bus.Close()

	svc := services.NewResiCacheInvalidationService(cache, bus)
	require.NoError(t, svc.Start())

	resiID := "R2"
	require.NoError(t, bus.Publish(ctx, entities.NewBookingEvent(entities.BookingConfirmed{BookingID: "b-1", ResiID: "R9"})))
	require.NoError(t, bus.Publish(ctx, entities.NewBookingEvent(entities.BookingCompleted{BookingID: "b-1", ResiID: "R1", ClientID: "C1"})))
	require.NoError(t, bus.Publish(ctx, entities.NewBookingEvent(entities.BookingDisputed{BookingID: "b-2", ClientID: "C1"})))
	require.NoError(t, bus.Publish(ctx, entities.NewBookingEvent(entities.BookingDisputed{BookingID: "b-3", ResiID: &resiID, ClientID: "C1"})))

	assert.Eventually(t, func() bool {
		return len(cache.keys()) == 2
	}, time.Second, 10*time.Millisecond)
	svc.Stop()

	assert.Equal(t, []string{"resi:R1", "resi:R2"}, cache.keys())
}

func TestResiCacheInvalidationService_InvalidateResi(t *testing.T) {
	cache := &recordingCache{err: errors.New("connection refused")}
	svc := services.NewResiCacheInvalidationService(cache, events.NewMemoryEventBus(1))

	err := svc.InvalidateResi(context.Background(), "R1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "R1")
}

func TestResiCacheInvalidationService_PublishOnlyBus(t *testing.T) {
	svc := services.NewResiCacheInvalidationService(&recordingCache{}, publishOnlyBus{})
	err := svc.Start()
	assert.ErrorIs(t, err, providers.ErrSubscribeUnsupported)
}
