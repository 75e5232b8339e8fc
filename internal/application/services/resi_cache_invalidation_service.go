package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/domain/providers"
)

// ResiCacheInvalidationService drops cached resi profiles when a booking
// outcome may change how that resi ranks. Eligibility lists are left to
// expire on their short TTL.
type ResiCacheInvalidationService struct {
	cache    providers.CacheProvider
	eventBus providers.EventBus
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewResiCacheInvalidationService creates a new cache invalidation service
func NewResiCacheInvalidationService(cache providers.CacheProvider, eventBus providers.EventBus) *ResiCacheInvalidationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &ResiCacheInvalidationService{
		cache:    cache,
		eventBus: eventBus,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start begins listening for booking events. Buses that cannot subscribe
// return providers.ErrSubscribeUnsupported.
func (s *ResiCacheInvalidationService) Start() error {
	eventChan, err := s.eventBus.Subscribe(s.ctx)
	if err != nil {
		if errors.Is(err, providers.ErrSubscribeUnsupported) {
			return err
		}
		return fmt.Errorf("failed to subscribe to booking events: %w", err)
	}

	go s.processEvents(eventChan)
	log.Info().Msg("Resi cache invalidation service started")
	return nil
}

// Stop stops the service and waits for the event loop to exit
func (s *ResiCacheInvalidationService) Stop() {
	s.cancel()
	<-s.done
	log.Info().Msg("Resi cache invalidation service stopped")
}

func (s *ResiCacheInvalidationService) processEvents(eventChan <-chan *entities.BookingEvent) {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event != nil {
				s.handleEvent(event)
			}
		}
	}
}

func (s *ResiCacheInvalidationService) handleEvent(event *entities.BookingEvent) {
	var resiID string
	switch p := event.Payload.(type) {
	case entities.BookingCompleted:
		resiID = p.ResiID
	case entities.BookingDisputed:
		if p.ResiID != nil {
			resiID = *p.ResiID
		}
	}
	if resiID == "" {
		return
	}

	if err := s.InvalidateResi(context.Background(), resiID); err != nil {
		log.Warn().Err(err).Str("resi_id", resiID).Str("event_id", event.ID).Msg("Failed to invalidate resi cache")
	}
}

// InvalidateResi removes the cached profile of one resi
func (s *ResiCacheInvalidationService) InvalidateResi(ctx context.Context, resiID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.cache.Delete(ctx, entities.ResiCacheKey(resiID)); err != nil {
		return fmt.Errorf("failed to invalidate resi %s: %w", resiID, err)
	}
	log.Debug().Str("resi_id", resiID).Msg("Invalidated resi cache")
	return nil
}
