package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/domain/providers"
	"github.com/zatekoja/resibooking/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/resibooking/pkg/errors"
)

// CreateBookingRequest carries the client-supplied fields of a new booking
type CreateBookingRequest struct {
	AddressID                string             `json:"address_id"`
	ScheduledAt              time.Time          `json:"scheduled_at"`
	EstimatedDurationMinutes int                `json:"estimated_duration_minutes"`
	Frequency                entities.Frequency `json:"frequency,omitempty"`
	AgreedPayout             float64            `json:"agreed_payout"`
	ClientPrice              float64            `json:"client_price"`
	Notes                    *string            `json:"notes,omitempty"`
	Metadata                 entities.Metadata  `json:"metadata,omitempty"`
}

// UpdateBookingRequest is an administrative partial update. The assigned
// resi and lifecycle timestamps are not editable here.
type UpdateBookingRequest struct {
	AddressID                *string                 `json:"address_id,omitempty"`
	ScheduledAt              *time.Time              `json:"scheduled_at,omitempty"`
	EstimatedDurationMinutes *int                    `json:"estimated_duration_minutes,omitempty"`
	Frequency                *entities.Frequency     `json:"frequency,omitempty"`
	AgreedPayout             *float64                `json:"agreed_payout,omitempty"`
	ClientPrice              *float64                `json:"client_price,omitempty"`
	Status                   *entities.BookingStatus `json:"status,omitempty"`
	Metadata                 entities.Metadata       `json:"metadata,omitempty"`
}

// RateBookingRequest is one party's rating of the other
type RateBookingRequest struct {
	Rating int     `json:"rating"`
	Review *string `json:"review,omitempty"`
}

// AvailabilityCriteria narrows findAvailableResis
type AvailabilityCriteria struct {
	AddressID     string
	ScheduledAt   time.Time
	MinRating     *float64
	Exclude       []string
	MaxDistanceKm *float64
	Limit         int
}

// BookingService drives the booking lifecycle: it checks preconditions,
// persists through the store and announces each change on the event bus.
type BookingService struct {
	store   LifecycleStore
	matcher ResiMatcher
	events  providers.EventBus
	metrics *observability.Metrics
	now     func() time.Time
}

// NewBookingService creates a new booking service. events may be nil.
func NewBookingService(
	store LifecycleStore,
	matcher ResiMatcher,
	events providers.EventBus,
	metrics *observability.Metrics,
) *BookingService {
	return &BookingService{
		store:   store,
		matcher: matcher,
		events:  events,
		metrics: metrics,
		now:     time.Now,
	}
}

// CreateBooking persists a PENDING booking, pre-assigning the best
// eligible resi when there is one
func (s *BookingService) CreateBooking(ctx context.Context, clientID string, req CreateBookingRequest) (*entities.Booking, error) {
	ctx, span := observability.StartSpan(ctx, "booking.CreateBooking")
	defer span.End()

	if strings.TrimSpace(clientID) == "" {
		return nil, apperrors.NewValidationError("client id is required")
	}
	if !req.ScheduledAt.After(s.now()) {
		return nil, apperrors.NewValidationError("scheduled time must be in the future")
	}

	meta := entities.Metadata{}.Merge(req.Metadata)
	if req.Notes != nil && strings.TrimSpace(*req.Notes) != "" {
		meta[entities.MetadataNotes] = strings.TrimSpace(*req.Notes)
	}

	booking := &entities.Booking{
		ClientID:                 clientID,
		AddressID:                req.AddressID,
		ScheduledAt:              req.ScheduledAt.UTC(),
		EstimatedDurationMinutes: req.EstimatedDurationMinutes,
		Frequency:                req.Frequency,
		AgreedPayout:             req.AgreedPayout,
		ClientPrice:              req.ClientPrice,
		Metadata:                 meta,
	}
	if err := s.store.ValidateNew(booking); err != nil {
		return nil, err
	}

	best, err := s.matcher.FindBestResi(ctx, booking.AddressID, booking.ScheduledAt, MatchOptions{})
	if err != nil {
		// Assignment is provisional; an unassigned booking is still valid.
		observability.RecordError(span, err)
		observability.LoggerFromContext(ctx).Warn().Err(err).
			Str("address_id", booking.AddressID).
			Msg("Matching failed, creating booking unassigned")
		best = nil
	}
	if best != nil {
		resiID := best.ID
		booking.ResiID = &resiID
		booking.Metadata[entities.MetadataMatchingAlgorithm] = MatchingAlgorithm
		booking.Metadata[entities.MetadataAssignedAt] = s.now().UTC().Format(time.RFC3339)
	}

	if err := s.store.Create(ctx, booking); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	ctx = observability.WithBookingID(ctx, booking.ID)
	observability.SetSpanAttributes(span, attribute.String("booking.id", booking.ID))
	observability.LoggerFromContext(ctx).Info().
		Str("client_id", booking.ClientID).
		Bool("pre_assigned", booking.HasResi()).
		Msg("Booking created")

	events := []entities.BookingEventPayload{
		entities.BookingCreated{
			BookingID:   booking.ID,
			ClientID:    booking.ClientID,
			ResiID:      booking.ResiID,
			ScheduledAt: booking.ScheduledAt,
		},
	}
	if booking.HasResi() {
		events = append(events, entities.ResiAssigned{BookingID: booking.ID, ResiID: *booking.ResiID})
	}
	s.publish(ctx, events...)

	return booking, nil
}

// ConfirmBooking lets a resi accept a PENDING booking. A pre-assigned
// booking can only be confirmed by its assignee.
func (s *BookingService) ConfirmBooking(ctx context.Context, bookingID, resiID string) (*entities.Booking, error) {
	ctx = observability.WithBookingID(ctx, bookingID)
	ctx, span := observability.StartSpan(ctx, "booking.ConfirmBooking")
	defer span.End()

	if strings.TrimSpace(resiID) == "" {
		return nil, apperrors.NewValidationError("resi id is required")
	}

	current, err := s.store.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := ValidateStateTransition(current.Status, entities.BookingStatusConfirmed); err != nil {
		return nil, err
	}
	if current.HasResi() && *current.ResiID != resiID {
		return nil, apperrors.NewForbiddenError("booking is assigned to another resi")
	}

	updated, err := s.store.Transition(ctx, bookingID, current.Status, entities.BookingStatusConfirmed,
		entities.BookingPatch{ResiID: &resiID})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	s.publish(ctx, entities.BookingConfirmed{
		BookingID: updated.ID,
		ResiID:    resiID,
		ClientID:  updated.ClientID,
	})
	return updated, nil
}

// StartBooking checks the resi in on a CONFIRMED booking
func (s *BookingService) StartBooking(ctx context.Context, bookingID string) (*entities.Booking, error) {
	ctx = observability.WithBookingID(ctx, bookingID)
	ctx, span := observability.StartSpan(ctx, "booking.StartBooking")
	defer span.End()

	current, err := s.store.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if current.Status != entities.BookingStatusConfirmed {
		return nil, apperrors.NewStateConflictError(string(current.Status), string(entities.BookingStatusInProgress))
	}

	updated, err := s.store.Transition(ctx, bookingID, current.Status, entities.BookingStatusInProgress, entities.BookingPatch{})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	s.publish(ctx, entities.BookingStarted{
		BookingID: updated.ID,
		ResiID:    derefString(updated.ResiID),
		ClientID:  updated.ClientID,
	})
	return updated, nil
}

// CompleteBooking checks the resi out of an IN_PROGRESS booking
func (s *BookingService) CompleteBooking(ctx context.Context, bookingID string) (*entities.Booking, error) {
	ctx = observability.WithBookingID(ctx, bookingID)
	ctx, span := observability.StartSpan(ctx, "booking.CompleteBooking")
	defer span.End()

	current, err := s.store.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if current.Status != entities.BookingStatusInProgress {
		return nil, apperrors.NewStateConflictError(string(current.Status), string(entities.BookingStatusCompleted))
	}

	updated, err := s.store.Transition(ctx, bookingID, current.Status, entities.BookingStatusCompleted, entities.BookingPatch{})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	s.publish(ctx, entities.BookingCompleted{
		BookingID:    updated.ID,
		ResiID:       derefString(updated.ResiID),
		ClientID:     updated.ClientID,
		AgreedPayout: updated.AgreedPayout,
	})
	return updated, nil
}

// CancelBooking cancels from any status that allows it
func (s *BookingService) CancelBooking(ctx context.Context, bookingID string, reason *string) (*entities.Booking, error) {
	ctx = observability.WithBookingID(ctx, bookingID)
	ctx, span := observability.StartSpan(ctx, "booking.CancelBooking")
	defer span.End()

	updated, from, err := s.store.Cancel(ctx, bookingID, reason)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	observability.LoggerFromContext(ctx).Info().
		Str("from_status", string(from)).
		Msg("Booking cancelled")

	s.publish(ctx, entities.BookingCancelled{
		BookingID: updated.ID,
		ResiID:    updated.ResiID,
		ClientID:  updated.ClientID,
		Reason:    trimmedOrNil(reason),
	})
	return updated, nil
}

// DisputeBooking raises a dispute on an IN_PROGRESS or COMPLETED booking
func (s *BookingService) DisputeBooking(ctx context.Context, bookingID, reason string) (*entities.Booking, error) {
	ctx = observability.WithBookingID(ctx, bookingID)
	ctx, span := observability.StartSpan(ctx, "booking.DisputeBooking")
	defer span.End()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("dispute reason is required")
	}

	current, err := s.store.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := ValidateStateTransition(current.Status, entities.BookingStatusDisputed); err != nil {
		return nil, err
	}

	updated, err := s.store.Transition(ctx, bookingID, current.Status, entities.BookingStatusDisputed,
		entities.BookingPatch{Metadata: entities.Metadata{
			entities.MetadataDisputeReason: reason,
			entities.MetadataDisputedAt:    s.now().UTC().Format(time.RFC3339),
		}})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	observability.LoggerFromContext(ctx).Warn().
		Str("from_status", string(current.Status)).
		Msg("Booking disputed")

	s.publish(ctx, entities.BookingDisputed{
		BookingID: updated.ID,
		ResiID:    updated.ResiID,
		ClientID:  updated.ClientID,
		Reason:    reason,
	})
	return updated, nil
}

// RateBooking records one party's rating of the other on a COMPLETED
// booking. The client rates the resi and the resi rates the client.
func (s *BookingService) RateBooking(ctx context.Context, bookingID string, actor entities.Actor, req RateBookingRequest) (*entities.Booking, error) {
	ctx = observability.WithBookingID(ctx, bookingID)
	ctx, span := observability.StartSpan(ctx, "booking.RateBooking")
	defer span.End()

	if req.Rating < entities.MinRating || req.Rating > entities.MaxRating {
		return nil, apperrors.NewValidationError(fmt.Sprintf(
			"rating must be between %d and %d", entities.MinRating, entities.MaxRating))
	}

	current, err := s.store.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if current.Status != entities.BookingStatusCompleted {
		return nil, apperrors.NewValidationError("only completed bookings can be rated")
	}

	rating := req.Rating
	review := trimmedOrNil(req.Review)

	var patch entities.BookingPatch
	switch actor.Role {
	case entities.ActorRoleClient:
		if current.ClientID != actor.ID {
			return nil, apperrors.NewForbiddenError("only the booking's client can rate its resi")
		}
		patch.ResiRating = &rating
		patch.ResiReview = review
	case entities.ActorRoleResi:
		if !current.HasResi() || *current.ResiID != actor.ID {
			return nil, apperrors.NewForbiddenError("only the booking's resi can rate its client")
		}
		patch.ClientRating = &rating
		patch.ClientReview = review
	default:
		return nil, apperrors.NewForbiddenError(fmt.Sprintf("role %s cannot rate bookings", actor.Role))
	}

	updated, err := s.store.UpdateWhileStatus(ctx, bookingID, entities.BookingStatusCompleted, patch)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	s.publish(ctx, entities.BookingRated{
		BookingID: updated.ID,
		Rating:    rating,
		UserRole:  actor.Role,
	})
	return updated, nil
}

// UpdateBooking applies an administrative update. A status change must be
// a legal transition and is announced as booking.status_changed.
func (s *BookingService) UpdateBooking(ctx context.Context, bookingID string, req UpdateBookingRequest) (*entities.Booking, error) {
	ctx = observability.WithBookingID(ctx, bookingID)
	ctx, span := observability.StartSpan(ctx, "booking.UpdateBooking")
	defer span.End()

	patch := entities.BookingPatch{
		AddressID:                req.AddressID,
		ScheduledAt:              req.ScheduledAt,
		EstimatedDurationMinutes: req.EstimatedDurationMinutes,
		Frequency:                req.Frequency,
		AgreedPayout:             req.AgreedPayout,
		ClientPrice:              req.ClientPrice,
		Status:                   req.Status,
		Metadata:                 req.Metadata,
	}
	if patch.IsEmpty() {
		return nil, apperrors.NewValidationError("update contains no changes")
	}

	previous, updated, err := s.store.Update(ctx, bookingID, patch)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	if previous.Status != updated.Status {
		s.publish(ctx, entities.BookingStatusChanged{
			BookingID: updated.ID,
			OldStatus: previous.Status,
			NewStatus: updated.Status,
		})
	}
	return updated, nil
}

// GetBooking returns a booking with its resi resolved
func (s *BookingService) GetBooking(ctx context.Context, bookingID string) (*entities.Booking, error) {
	return s.store.FindByID(ctx, bookingID)
}

// ListBookings pages through a party's bookings
func (s *BookingService) ListBookings(ctx context.Context, partyID string, role entities.ActorRole, opts ListOptions) (*BookingPage, error) {
	return s.store.FindByParty(ctx, partyID, role, opts)
}

// FindUnassignedNearby lists PENDING bookings still waiting for a resi
func (s *BookingService) FindUnassignedNearby(ctx context.Context, addressID string, scheduledAt time.Time) ([]*entities.Booking, error) {
	return s.store.FindUnassignedNearby(ctx, addressID, scheduledAt)
}

// RatingStats returns system-wide rating aggregates after checking that
// bookingID exists
func (s *BookingService) RatingStats(ctx context.Context, bookingID string) (*entities.RatingStats, error) {
	return s.store.AggregateRatingStats(ctx, bookingID)
}

// FindAvailableResis lists eligible providers decorated with their
// compatibility score. Proximity and calendar checks are not applied.
func (s *BookingService) FindAvailableResis(ctx context.Context, criteria AvailabilityCriteria) ([]entities.CandidateSummary, error) {
	ctx, span := observability.StartSpan(ctx, "booking.FindAvailableResis")
	defer span.End()

	if criteria.MinRating != nil && !(*criteria.MinRating >= 0 && *criteria.MinRating <= entities.MaxRating) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("min rating must be between 0 and %d", entities.MaxRating))
	}
	if criteria.MaxDistanceKm != nil && (math.IsNaN(*criteria.MaxDistanceKm) || math.IsInf(*criteria.MaxDistanceKm, 0) || *criteria.MaxDistanceKm < 0) {
		return nil, apperrors.NewValidationError("max distance must be a non-negative number")
	}

	limit := criteria.Limit
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	candidates, err := s.matcher.FindResiCandidates(ctx, criteria.AddressID, criteria.ScheduledAt, limit, MatchOptions{
		MinRating:     criteria.MinRating,
		Exclude:       criteria.Exclude,
		MaxDistanceKm: criteria.MaxDistanceKm,
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	out := make([]entities.CandidateSummary, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, entities.CandidateSummary{
			ResiID:             c.ID,
			DisplayName:        c.DisplayName,
			Rating:             c.Rating,
			TotalReviews:       c.TotalReviews,
			VerificationStatus: c.VerificationStatus,
			CompatibilityScore: s.matcher.CalculateCompatibilityScore(c),
		})
	}
	return out, nil
}

// publish sends events in order. The booking change is already durable,
// so a failed publish is logged and counted but not returned.
func (s *BookingService) publish(ctx context.Context, payloads ...entities.BookingEventPayload) {
	if s.events == nil {
		return
	}
	for _, p := range payloads {
		event := entities.NewBookingEvent(p)
		if err := s.events.Publish(ctx, event); err != nil {
			observability.RecordPublishFailure(ctx, s.metrics, string(event.Type))
			observability.LoggerFromContext(ctx).Error().Err(err).
				Str("event_type", string(event.Type)).
				Msg("Failed to publish booking event")
		}
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
