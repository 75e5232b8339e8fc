package repositories

import (
	"context"

	"github.com/zatekoja/resibooking/internal/domain/entities"
)

// ResiRepository provides read access to provider profiles
type ResiRepository interface {
	// GetByID retrieves a provider profile by ID
	GetByID(ctx context.Context, id string) (*entities.ResiProfile, error)

	// FindEligible returns active, reviewed resi profiles whose rating is
	// unknown or at least filter.MinRating, ordered by COALESCE(rating, 3)
	// then total reviews, both descending
	FindEligible(ctx context.Context, filter ResiFilter) ([]*entities.ResiProfile, error)
}

// ResiFilter narrows the eligible provider pool
type ResiFilter struct {
	MinRating float64
	Exclude   []string
	Limit     int
}
