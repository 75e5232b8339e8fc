package handlers

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zatekoja/resibooking/internal/api/middleware"
	"github.com/zatekoja/resibooking/internal/application/services"
	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/domain/repositories"
	apperrors "github.com/zatekoja/resibooking/pkg/errors"
)

// BookingService defines the booking operations exposed over HTTP
type BookingService interface {
	CreateBooking(ctx context.Context, clientID string, req services.CreateBookingRequest) (*entities.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*entities.Booking, error)
	ListBookings(ctx context.Context, partyID string, role entities.ActorRole, opts services.ListOptions) (*services.BookingPage, error)
	ConfirmBooking(ctx context.Context, bookingID, resiID string) (*entities.Booking, error)
	StartBooking(ctx context.Context, bookingID string) (*entities.Booking, error)
	CompleteBooking(ctx context.Context, bookingID string) (*entities.Booking, error)
	CancelBooking(ctx context.Context, bookingID string, reason *string) (*entities.Booking, error)
	DisputeBooking(ctx context.Context, bookingID, reason string) (*entities.Booking, error)
	RateBooking(ctx context.Context, bookingID string, actor entities.Actor, req services.RateBookingRequest) (*entities.Booking, error)
	UpdateBooking(ctx context.Context, bookingID string, req services.UpdateBookingRequest) (*entities.Booking, error)
	FindUnassignedNearby(ctx context.Context, addressID string, scheduledAt time.Time) ([]*entities.Booking, error)
	RatingStats(ctx context.Context, bookingID string) (*entities.RatingStats, error)
}

// BookingHandler handles booking lifecycle requests
type BookingHandler struct {
	service BookingService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(service BookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

type reasonRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// CreateBooking handles POST /api/bookings
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req services.CreateBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, err)
		return
	}

	booking, err := h.service.CreateBooking(r.Context(), actor.ID, req)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, booking)
}

// GetBooking handles GET /api/bookings/{id}
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, ok := h.loadForParty(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, booking)
}

// ListBookings handles GET /api/bookings. Clients and resis see their own
// bookings; admins pass party_id and role.
func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	partyID, role := actor.ID, actor.Role
	if actor.Role == entities.ActorRoleAdmin {
		partyID = q.Get("party_id")
		role = entities.ActorRole(strings.ToUpper(q.Get("role")))
		if partyID == "" || role == "" {
			respondWithError(w, http.StatusBadRequest, "party_id and role are required")
			return
		}
	} else if requested := q.Get("role"); requested != "" && entities.ActorRole(strings.ToUpper(requested)) != actor.Role {
		respondWithError(w, http.StatusForbidden, "cannot list bookings for another role")
		return
	}

	page, err := intParam(q.Get("page"), "page")
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	result, err := h.service.ListBookings(r.Context(), partyID, role, services.ListOptions{
		Status:    entities.BookingStatus(strings.ToUpper(q.Get("status"))),
		Page:      page,
		Limit:     limit,
		SortBy:    q.Get("sort_by"),
		SortOrder: repositories.SortOrder(q.Get("sort_order")),
	})
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// ConfirmBooking handles POST /api/bookings/{id}/confirm
func (h *BookingHandler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	booking, err := h.service.ConfirmBooking(r.Context(), r.PathValue("id"), actor.ID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, booking)
}

// StartBooking handles POST /api/bookings/{id}/start
func (h *BookingHandler) StartBooking(w http.ResponseWriter, r *http.Request) {
	current, ok := h.loadForParty(w, r)
	if !ok {
		return
	}
	actor, _ := middleware.ActorFromContext(r.Context())
	if actor.Role == entities.ActorRoleClient {
		respondWithError(w, http.StatusForbidden, "only the assigned resi can start a booking")
		return
	}

	booking, err := h.service.StartBooking(r.Context(), current.ID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, booking)
}

// CompleteBooking handles POST /api/bookings/{id}/complete
func (h *BookingHandler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	current, ok := h.loadForParty(w, r)
	if !ok {
		return
	}

	booking, err := h.service.CompleteBooking(r.Context(), current.ID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, booking)
}

// CancelBooking handles POST /api/bookings/{id}/cancel
func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	current, ok := h.loadForParty(w, r)
	if !ok {
		return
	}

	var req reasonRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, err)
		return
	}

	booking, err := h.service.CancelBooking(r.Context(), current.ID, req.Reason)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, booking)
}

// DisputeBooking handles POST /api/bookings/{id}/dispute
func (h *BookingHandler) DisputeBooking(w http.ResponseWriter, r *http.Request) {
	current, ok := h.loadForParty(w, r)
	if !ok {
		return
	}

	var req reasonRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, err)
		return
	}
	reason := ""
	if req.Reason != nil {
		reason = *req.Reason
	}

	booking, err := h.service.DisputeBooking(r.Context(), current.ID, reason)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, booking)
}

// RateBooking handles POST /api/bookings/{id}/rate
func (h *BookingHandler) RateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req services.RateBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, err)
		return
	}

	booking, err := h.service.RateBooking(r.Context(), r.PathValue("id"), actor, req)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, booking)
}

// UpdateBooking handles PATCH /api/bookings/{id}
func (h *BookingHandler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	var req services.UpdateBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, err)
		return
	}

	booking, err := h.service.UpdateBooking(r.Context(), r.PathValue("id"), req)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, booking)
}

// ListUnassigned handles GET /api/admin/bookings/unassigned
func (h *BookingHandler) ListUnassigned(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scheduledAt, err := timeParam(q.Get("scheduled_at"), "scheduled_at")
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	bookings, err := h.service.FindUnassignedNearby(r.Context(), q.Get("address_id"), scheduledAt)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// GetRatingStats handles GET /api/admin/bookings/{id}/rating-stats
func (h *BookingHandler) GetRatingStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.RatingStats(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}

// loadForParty fetches the path booking and checks the actor may see it
func (h *BookingHandler) loadForParty(w http.ResponseWriter, r *http.Request) (*entities.Booking, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return nil, false
	}

	booking, err := h.service.GetBooking(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, err)
		return nil, false
	}

	if actor.Role != entities.ActorRoleAdmin && !booking.IsParty(actor.ID) {
		respondWithError(w, http.StatusForbidden, "not a party to this booking")
		return nil, false
	}

	return booking, true
}

func requireActor(w http.ResponseWriter, r *http.Request) (entities.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
	}
	return actor, ok
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError(name + " must be an integer")
	}
	return v, nil
}

func floatParam(raw, name string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, apperrors.NewValidationError(name + " must be a number")
	}
	return &v, nil
}

func timeParam(raw, name string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, apperrors.NewValidationError(name + " is required")
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError("invalid " + name + " format (use RFC3339)")
	}
	return t, nil
}
