package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/domain/repositories"
	apperrors "github.com/zatekoja/resibooking/pkg/errors"
)

// BookingRepository is an in-process BookingRepository. Every read and
// write copies the booking so callers never alias stored state.
type BookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*entities.Booking
	now      func() time.Time
}

// NewBookingRepository creates an empty in-memory booking repository
func NewBookingRepository() *BookingRepository {
	return &BookingRepository{
		bookings: make(map[string]*entities.Booking),
		now:      time.Now,
	}
}

var _ repositories.BookingRepository = (*BookingRepository)(nil)

// Create stores a new booking
func (r *BookingRepository) Create(ctx context.Context, booking *entities.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bookings[booking.ID]; exists {
		return apperrors.NewConflictError(fmt.Sprintf("booking with id %s already exists", booking.ID))
	}
	r.bookings[booking.ID] = booking.Clone()
	return nil
}

// GetByID retrieves a booking by ID
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*entities.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, notFound(id)
	}
	return b.Clone(), nil
}

// ListByParty retrieves a page of a party's bookings
func (r *BookingRepository) ListByParty(ctx context.Context, partyID string, role entities.ActorRole, filter repositories.BookingFilter) ([]*entities.Booking, int, error) {
	r.mu.RLock()
	matches := make([]*entities.Booking, 0)
	for _, b := range r.bookings {
		if !belongsTo(b, partyID, role) {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		matches = append(matches, b.Clone())
	}
	r.mu.RUnlock()

	sortBookings(matches, filter.SortBy, filter.SortOrder)

	total := len(matches)
	if filter.Offset >= total {
		return []*entities.Booking{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < total {
		end = filter.Offset + filter.Limit
	}
	return matches[filter.Offset:end], total, nil
}

// Update applies a partial update
func (r *BookingRepository) Update(ctx context.Context, id string, patch entities.BookingPatch) (*entities.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, notFound(id)
	}
	return r.apply(b, patch), nil
}

// UpdateIfStatus applies patch only while the booking is in expected
func (r *BookingRepository) UpdateIfStatus(ctx context.Context, id string, expected entities.BookingStatus, patch entities.BookingPatch) (*entities.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, notFound(id)
	}
	if b.Status != expected {
		target := b.Status
		if patch.Status != nil {
			target = *patch.Status
		}
		return nil, apperrors.NewStateConflictError(string(b.Status), string(target))
	}
	return r.apply(b, patch), nil
}

// FindUnassigned returns PENDING unassigned bookings at addressID within
// window of scheduledAt, oldest first
func (r *BookingRepository) FindUnassigned(ctx context.Context, addressID string, scheduledAt time.Time, window time.Duration, limit int) ([]*entities.Booking, error) {
	r.mu.RLock()
	out := make([]*entities.Booking, 0)
	for _, b := range r.bookings {
		if b.Status != entities.BookingStatusPending || b.HasResi() || b.AddressID != addressID {
			continue
		}
		if b.ScheduledAt.Before(scheduledAt.Add(-window)) || b.ScheduledAt.After(scheduledAt.Add(window)) {
			continue
		}
		out = append(out, b.Clone())
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AggregateRatingStats computes rating counts and averages over all bookings
func (r *BookingRepository) AggregateRatingStats(ctx context.Context) (*entities.RatingStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats entities.RatingStats
	var resiSum, clientSum int
	for _, b := range r.bookings {
		if b.ResiRating != nil {
			stats.ResiRatingCount++
			resiSum += *b.ResiRating
		}
		if b.ClientRating != nil {
			stats.ClientRatingCount++
			clientSum += *b.ClientRating
		}
	}
	if stats.ResiRatingCount > 0 {
		stats.ResiRatingAverage = float64(resiSum) / float64(stats.ResiRatingCount)
	}
	if stats.ClientRatingCount > 0 {
		stats.ClientRatingAverage = float64(clientSum) / float64(stats.ClientRatingCount)
	}
	return &stats, nil
}

func (r *BookingRepository) apply(b *entities.Booking, patch entities.BookingPatch) *entities.Booking {
	next := b.Clone()
	patch.ApplyTo(next)
	next.UpdatedAt = r.now().UTC()
	r.bookings[next.ID] = next
	return next.Clone()
}

func belongsTo(b *entities.Booking, partyID string, role entities.ActorRole) bool {
	switch role {
	case entities.ActorRoleClient:
		return b.ClientID == partyID
	case entities.ActorRoleResi:
		return b.HasResi() && *b.ResiID == partyID
	}
	return false
}

func sortBookings(bookings []*entities.Booking, sortBy string, order repositories.SortOrder) {
	less := func(a, b *entities.Booking) int {
		switch sortBy {
		case repositories.SortByScheduledAt:
			return a.ScheduledAt.Compare(b.ScheduledAt)
		case repositories.SortByUpdatedAt:
			return a.UpdatedAt.Compare(b.UpdatedAt)
		case repositories.SortByStatus:
			switch {
			case a.Status < b.Status:
				return -1
			case a.Status > b.Status:
				return 1
			}
			return 0
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}

	sort.SliceStable(bookings, func(i, j int) bool {
		c := less(bookings[i], bookings[j])
		if c == 0 {
			return bookings[i].ID < bookings[j].ID
		}
		if order == repositories.SortAsc {
			return c < 0
		}
		return c > 0
	})
}

func notFound(id string) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("booking with id %s not found", id))
}
