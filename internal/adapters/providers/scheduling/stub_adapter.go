package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/zatekoja/resibooking/internal/domain/providers"
)

// StubAdapter answers availability questions until calendars and geo
// search exist: everyone is available and nobody is nearby.
type StubAdapter struct{}

// NewStubAdapter creates the placeholder availability provider
func NewStubAdapter() providers.AvailabilityProvider {
	return &StubAdapter{}
}

// IsAvailable always reports true for a well-formed request
func (s *StubAdapter) IsAvailable(ctx context.Context, resiID string, scheduledAt time.Time, durationMinutes int) (bool, error) {
	if durationMinutes <= 0 {
		return false, fmt.Errorf("invalid duration %d", durationMinutes)
	}
	return true, nil
}

// FindNearby always returns an empty list
func (s *StubAdapter) FindNearby(ctx context.Context, addressID string, maxDistanceKm float64) ([]string, error) {
	return []string{}, nil
}
