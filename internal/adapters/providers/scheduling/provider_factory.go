package scheduling

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/resibooking/internal/domain/providers"
)

// FallbackProvider wraps a primary availability provider and answers from
// the fallback when the primary errors
type FallbackProvider struct {
	primary  providers.AvailabilityProvider
	fallback providers.AvailabilityProvider
}

// NewAvailabilityProvider returns primary guarded by the stub, or just the
// stub when primary is nil
func NewAvailabilityProvider(primary providers.AvailabilityProvider) providers.AvailabilityProvider {
	stub := NewStubAdapter()
	if primary == nil {
		return stub
	}
	return &FallbackProvider{primary: primary, fallback: stub}
}

func (p *FallbackProvider) IsAvailable(ctx context.Context, resiID string, scheduledAt time.Time, durationMinutes int) (bool, error) {
	ok, err := p.primary.IsAvailable(ctx, resiID, scheduledAt, durationMinutes)
	if err != nil {
		log.Warn().Err(err).Str("resi_id", resiID).Msg("Availability provider failed, using fallback")
		return p.fallback.IsAvailable(ctx, resiID, scheduledAt, durationMinutes)
	}
	return ok, nil
}

func (p *FallbackProvider) FindNearby(ctx context.Context, addressID string, maxDistanceKm float64) ([]string, error) {
	ids, err := p.primary.FindNearby(ctx, addressID, maxDistanceKm)
	if err != nil {
		log.Warn().Err(err).Str("address_id", addressID).Msg("Proximity search failed, using fallback")
		return p.fallback.FindNearby(ctx, addressID, maxDistanceKm)
	}
	return ids, nil
}
