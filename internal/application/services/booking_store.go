package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/domain/repositories"
	"github.com/zatekoja/resibooking/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/resibooking/pkg/errors"
)

// Unassigned sweep parameters
const (
	UnassignedWindow = 24 * time.Hour
	UnassignedLimit  = 10
)

// Listing defaults
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListOptions are the caller-facing paging and filtering options
type ListOptions struct {
	Status    entities.BookingStatus
	Page      int
	Limit     int
	SortBy    string
	SortOrder repositories.SortOrder
}

// BookingPage is one page of a party's bookings
type BookingPage struct {
	Items []*entities.Booking `json:"items"`
	Total int                 `json:"total"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
}

// LifecycleStore is the persistence-facing contract the booking service
// depends on. It is the only path that changes a booking's status.
type LifecycleStore interface {
	ValidateNew(b *entities.Booking) error
	Create(ctx context.Context, b *entities.Booking) error
	FindByID(ctx context.Context, id string) (*entities.Booking, error)
	FindByParty(ctx context.Context, partyID string, role entities.ActorRole, opts ListOptions) (*BookingPage, error)
	Update(ctx context.Context, id string, patch entities.BookingPatch) (*entities.Booking, *entities.Booking, error)
	Transition(ctx context.Context, id string, from, to entities.BookingStatus, patch entities.BookingPatch) (*entities.Booking, error)
	UpdateWhileStatus(ctx context.Context, id string, status entities.BookingStatus, patch entities.BookingPatch) (*entities.Booking, error)
	Cancel(ctx context.Context, id string, reason *string) (*entities.Booking, entities.BookingStatus, error)
	FindUnassignedNearby(ctx context.Context, addressID string, scheduledAt time.Time) ([]*entities.Booking, error)
	AggregateRatingStats(ctx context.Context, bookingID string) (*entities.RatingStats, error)
}

// BookingStore owns booking records and the legality of every status change
type BookingStore struct {
	repo    repositories.BookingRepository
	resis   repositories.ResiRepository
	metrics *observability.Metrics
	now     func() time.Time
}

// NewBookingStore creates a new booking store. resis may be nil, in which
// case single reads do not resolve the assigned provider.
func NewBookingStore(repo repositories.BookingRepository, resis repositories.ResiRepository, metrics *observability.Metrics) *BookingStore {
	return &BookingStore{
		repo:    repo,
		resis:   resis,
		metrics: metrics,
		now:     time.Now,
	}
}

// ValidateStateTransition fails with a CONFLICT error unless target is an
// allowed successor of current.
func ValidateStateTransition(current, target entities.BookingStatus) error {
	if !current.CanTransitionTo(target) {
		return apperrors.NewStateConflictError(string(current), string(target))
	}
	return nil
}

// ValidateNew checks the caller-supplied fields of a booking about to be created
func (s *BookingStore) ValidateNew(b *entities.Booking) error {
	if strings.TrimSpace(b.ClientID) == "" {
		return apperrors.NewValidationError("client id is required")
	}
	if strings.TrimSpace(b.AddressID) == "" {
		return apperrors.NewValidationError("address id is required")
	}
	if b.ScheduledAt.IsZero() {
		return apperrors.NewValidationError("scheduled time is required")
	}
	if b.Frequency == "" {
		b.Frequency = entities.FrequencyOneTime
	}
	return validateFields(fieldsOf(b))
}

// Create inserts a new PENDING booking
func (s *BookingStore) Create(ctx context.Context, b *entities.Booking) error {
	if err := s.ValidateNew(b); err != nil {
		return err
	}

	now := s.now().UTC()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Status = entities.BookingStatusPending
	b.CheckInAt = nil
	b.CheckOutAt = nil
	b.ResiRating, b.ResiReview = nil, nil
	b.ClientRating, b.ClientReview = nil, nil
	if b.Metadata == nil {
		b.Metadata = entities.Metadata{}
	}
	b.CreatedAt = now
	b.UpdatedAt = now

	if err := s.repo.Create(ctx, b); err != nil {
		return fmt.Errorf("failed to save booking: %w", err)
	}
	return nil
}

// FindByID returns the booking with its assigned provider resolved
func (s *BookingStore) FindByID(ctx context.Context, id string) (*entities.Booking, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewValidationError("booking id is required")
	}

	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.resis != nil && b.HasResi() {
		resi, err := s.resis.GetByID(ctx, *b.ResiID)
		switch {
		case err == nil:
			b.Resi = resi
		case apperrors.IsType(err, apperrors.ErrorTypeNotFound):
			// Provider rows can be archived independently of bookings.
		default:
			return nil, err
		}
	}
	return b, nil
}

// FindByParty lists a party's bookings in the given role
func (s *BookingStore) FindByParty(ctx context.Context, partyID string, role entities.ActorRole, opts ListOptions) (*BookingPage, error) {
	if strings.TrimSpace(partyID) == "" {
		return nil, apperrors.NewValidationError("party id is required")
	}
	if role != entities.ActorRoleClient && role != entities.ActorRoleResi {
		return nil, apperrors.NewValidationError(fmt.Sprintf("cannot list bookings for role %q", role))
	}

	filter, page, err := normalizeListOptions(opts)
	if err != nil {
		return nil, err
	}

	items, total, err := s.repo.ListByParty(ctx, partyID, role, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*entities.Booking{}
	}

	return &BookingPage{Items: items, Total: total, Page: page, Limit: filter.Limit}, nil
}

// Update applies a partial update. A status change is checked against the
// transition table and persisted with a compare-and-swap on the status it
// was validated against. Returns the previous and updated booking.
func (s *BookingStore) Update(ctx context.Context, id string, patch entities.BookingPatch) (*entities.Booking, *entities.Booking, error) {
	if err := validateFields(fieldsOfPatch(patch)); err != nil {
		return nil, nil, err
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if patch.Status != nil && *patch.Status == current.Status {
		patch.Status = nil
	}

	if patch.IsEmpty() {
		return current, current, nil
	}

	if patch.Status == nil {
		updated, err := s.repo.Update(ctx, id, patch)
		if err != nil {
			return nil, nil, err
		}
		return current, updated, nil
	}

	target := *patch.Status
	if err := ValidateStateTransition(current.Status, target); err != nil {
		return nil, nil, err
	}
	stampLifecycle(current.Status, target, &patch, s.now().UTC())

	updated, err := s.repo.UpdateIfStatus(ctx, id, current.Status, patch)
	if err != nil {
		return nil, nil, err
	}
	observability.RecordTransition(ctx, s.metrics, string(current.Status), string(target))
	return current, updated, nil
}

// Transition moves a booking from one status to another, applying patch
// in the same write
func (s *BookingStore) Transition(ctx context.Context, id string, from, to entities.BookingStatus, patch entities.BookingPatch) (*entities.Booking, error) {
	if err := ValidateStateTransition(from, to); err != nil {
		return nil, err
	}

	patch.Status = &to
	stampLifecycle(from, to, &patch, s.now().UTC())

	updated, err := s.repo.UpdateIfStatus(ctx, id, from, patch)
	if err != nil {
		return nil, err
	}
	observability.RecordTransition(ctx, s.metrics, string(from), string(to))
	return updated, nil
}

// UpdateWhileStatus applies a non-status patch only if the booking is
// still in status
func (s *BookingStore) UpdateWhileStatus(ctx context.Context, id string, status entities.BookingStatus, patch entities.BookingPatch) (*entities.Booking, error) {
	if patch.Status != nil {
		return nil, apperrors.NewInternalError("status changes must go through Transition", nil)
	}
	return s.repo.UpdateIfStatus(ctx, id, status, patch)
}

// Cancel loads the booking, validates the move to CANCELLED from its
// current status and records the reason. Returns the status it left.
func (s *BookingStore) Cancel(ctx context.Context, id string, reason *string) (*entities.Booking, entities.BookingStatus, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}

	if err := ValidateStateTransition(current.Status, entities.BookingStatusCancelled); err != nil {
		return nil, "", err
	}

	meta := entities.Metadata{
		entities.MetadataCancelledAt: s.now().UTC().Format(time.RFC3339),
	}
	if reason != nil && strings.TrimSpace(*reason) != "" {
		meta[entities.MetadataCancellationReason] = strings.TrimSpace(*reason)
	}

	updated, err := s.Transition(ctx, id, current.Status, entities.BookingStatusCancelled, entities.BookingPatch{Metadata: meta})
	if err != nil {
		return nil, "", err
	}
	return updated, current.Status, nil
}

// FindUnassignedNearby returns up to ten PENDING, unassigned bookings at
// addressID within a day of scheduledAt, oldest first
func (s *BookingStore) FindUnassignedNearby(ctx context.Context, addressID string, scheduledAt time.Time) ([]*entities.Booking, error) {
	if strings.TrimSpace(addressID) == "" {
		return nil, apperrors.NewValidationError("address id is required")
	}
	return s.repo.FindUnassigned(ctx, addressID, scheduledAt, UnassignedWindow, UnassignedLimit)
}

// AggregateRatingStats returns system-wide rating aggregates. bookingID is
// only checked for existence; the aggregate is not scoped to it.
func (s *BookingStore) AggregateRatingStats(ctx context.Context, bookingID string) (*entities.RatingStats, error) {
	if _, err := s.repo.GetByID(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.repo.AggregateRatingStats(ctx)
}

// stampLifecycle sets check-in on entering IN_PROGRESS and check-out on
// leaving it for COMPLETED.
func stampLifecycle(from, to entities.BookingStatus, patch *entities.BookingPatch, now time.Time) {
	if to == entities.BookingStatusInProgress && patch.CheckInAt == nil {
		patch.CheckInAt = &now
	}
	if from == entities.BookingStatusInProgress && to == entities.BookingStatusCompleted && patch.CheckOutAt == nil {
		patch.CheckOutAt = &now
	}
}

type bookingFields struct {
	duration  *int
	frequency *entities.Frequency
	payout    *float64
	price     *float64
	status    *entities.BookingStatus
	addressID *string
}

func fieldsOf(b *entities.Booking) bookingFields {
	return bookingFields{
		duration:  &b.EstimatedDurationMinutes,
		frequency: &b.Frequency,
		payout:    &b.AgreedPayout,
		price:     &b.ClientPrice,
	}
}

func fieldsOfPatch(p entities.BookingPatch) bookingFields {
	return bookingFields{
		duration:  p.EstimatedDurationMinutes,
		frequency: p.Frequency,
		payout:    p.AgreedPayout,
		price:     p.ClientPrice,
		status:    p.Status,
		addressID: p.AddressID,
	}
}

func validateFields(f bookingFields) error {
	if f.duration != nil && (*f.duration < entities.MinDurationMinutes || *f.duration > entities.MaxDurationMinutes) {
		return apperrors.NewValidationError(fmt.Sprintf(
			"estimated duration must be between %d and %d minutes", entities.MinDurationMinutes, entities.MaxDurationMinutes))
	}
	if f.frequency != nil && !f.frequency.IsValid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown frequency %q", *f.frequency))
	}
	if err := validateAmount("agreed payout", f.payout); err != nil {
		return err
	}
	if err := validateAmount("client price", f.price); err != nil {
		return err
	}
	if f.status != nil && !f.status.IsValid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown status %q", *f.status))
	}
	if f.addressID != nil && strings.TrimSpace(*f.addressID) == "" {
		return apperrors.NewValidationError("address id cannot be empty")
	}
	return nil
}

func validateAmount(name string, v *float64) error {
	if v == nil {
		return nil
	}
	if *v < 0 {
		return apperrors.NewValidationError(name + " must not be negative")
	}
	if !entities.HasAtMostTwoDecimals(*v) {
		return apperrors.NewValidationError(name + " must have at most 2 decimal places")
	}
	return nil
}

func normalizeListOptions(opts ListOptions) (repositories.BookingFilter, int, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if opts.Status != "" && !opts.Status.IsValid() {
		return repositories.BookingFilter{}, 0, apperrors.NewValidationError(fmt.Sprintf("unknown status %q", opts.Status))
	}

	sortBy := opts.SortBy
	switch sortBy {
	case "":
		sortBy = repositories.SortByCreatedAt
	case repositories.SortByCreatedAt, repositories.SortByScheduledAt, repositories.SortByUpdatedAt, repositories.SortByStatus:
	default:
		return repositories.BookingFilter{}, 0, apperrors.NewValidationError(fmt.Sprintf("cannot sort by %q", sortBy))
	}

	order := repositories.SortOrder(strings.ToLower(string(opts.SortOrder)))
	switch order {
	case "":
		order = repositories.SortDesc
	case repositories.SortAsc, repositories.SortDesc:
	default:
		return repositories.BookingFilter{}, 0, apperrors.NewValidationError(fmt.Sprintf("unknown sort order %q", opts.SortOrder))
	}

	return repositories.BookingFilter{
		Status:    opts.Status,
		SortBy:    sortBy,
		SortOrder: order,
		Limit:     limit,
		Offset:    (page - 1) * limit,
	}, page, nil
}
