package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/zatekoja/resibooking/internal/application/services"
	"github.com/zatekoja/resibooking/internal/domain/entities"
)

// ResiFinder lists providers available for a booking context
type ResiFinder interface {
	FindAvailableResis(ctx context.Context, criteria services.AvailabilityCriteria) ([]entities.CandidateSummary, error)
}

// ResiHandler handles provider discovery requests
type ResiHandler struct {
	finder ResiFinder
}

// NewResiHandler creates a new resi handler
func NewResiHandler(finder ResiFinder) *ResiHandler {
	return &ResiHandler{finder: finder}
}

// ListAvailable handles GET /api/resis/available
func (h *ResiHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	addressID := q.Get("address_id")
	if addressID == "" {
		respondWithError(w, http.StatusBadRequest, "address_id is required")
		return
	}

	scheduledAt, err := timeParam(q.Get("scheduled_at"), "scheduled_at")
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	minRating, err := floatParam(q.Get("min_rating"), "min_rating")
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	maxDistance, err := floatParam(q.Get("max_distance"), "max_distance")
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	var exclude []string
	for _, id := range strings.Split(q.Get("exclude"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			exclude = append(exclude, id)
		}
	}

	candidates, err := h.finder.FindAvailableResis(r.Context(), services.AvailabilityCriteria{
		AddressID:     addressID,
		ScheduledAt:   scheduledAt,
		MinRating:     minRating,
		Exclude:       exclude,
		MaxDistanceKm: maxDistance,
		Limit:         limit,
	})
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"resis": candidates,
		"count": len(candidates),
	})
}
