package providers

import (
	"context"
	"time"
)

// AvailabilityProvider answers calendar and proximity questions about
// providers. The only implementation today is a stub: every provider is
// available and nobody is "nearby". Matching must not depend on either
// answer until a real implementation is signed off.
type AvailabilityProvider interface {
	// IsAvailable reports whether resiID can take a booking at scheduledAt
	IsAvailable(ctx context.Context, resiID string, scheduledAt time.Time, durationMinutes int) (bool, error)

	// FindNearby returns provider IDs within maxDistanceKm of addressID
	FindNearby(ctx context.Context, addressID string, maxDistanceKm float64) ([]string, error)
}
