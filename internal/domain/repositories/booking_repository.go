package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/resibooking/internal/domain/entities"
)

// BookingRepository defines the interface for booking data operations
type BookingRepository interface {
	// Create inserts a new booking
	Create(ctx context.Context, booking *entities.Booking) error

	// GetByID retrieves a booking by ID
	GetByID(ctx context.Context, id string) (*entities.Booking, error)

	// ListByParty retrieves a page of bookings where partyID plays role,
	// together with the total number of matches
	ListByParty(ctx context.Context, partyID string, role entities.ActorRole, filter BookingFilter) ([]*entities.Booking, int, error)

	// Update applies a partial update without any status precondition
	Update(ctx context.Context, id string, patch entities.BookingPatch) (*entities.Booking, error)

	// UpdateIfStatus applies patch only while the stored status equals
	// expected. A lost race yields a CONFLICT error naming the current status.
	UpdateIfStatus(ctx context.Context, id string, expected entities.BookingStatus, patch entities.BookingPatch) (*entities.Booking, error)

	// FindUnassigned returns PENDING bookings without a resi at addressID
	// scheduled within window of scheduledAt, oldest first
	FindUnassigned(ctx context.Context, addressID string, scheduledAt time.Time, window time.Duration, limit int) ([]*entities.Booking, error)

	// AggregateRatingStats computes rating counts and averages over all rated bookings
	AggregateRatingStats(ctx context.Context) (*entities.RatingStats, error)
}

// Sortable booking columns
const (
	SortByCreatedAt   = "created_at"
	SortByScheduledAt = "scheduled_at"
	SortByUpdatedAt   = "updated_at"
	SortByStatus      = "status"
)

// SortOrder is asc or desc
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// BookingFilter defines filters for listing bookings
type BookingFilter struct {
	Status    entities.BookingStatus
	SortBy    string
	SortOrder SortOrder
	Limit     int
	Offset    int
}
