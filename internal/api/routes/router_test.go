package routes_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/resibooking/internal/adapters/events"
	"github.com/zatekoja/resibooking/internal/adapters/memory"
	"github.com/zatekoja/resibooking/internal/adapters/providers/scheduling"
	"github.com/zatekoja/resibooking/internal/api/handlers"
	"github.com/zatekoja/resibooking/internal/api/middleware"
	"github.com/zatekoja/resibooking/internal/api/routes"
	"github.com/zatekoja/resibooking/internal/application/services"
	"github.com/zatekoja/resibooking/internal/domain/entities"
)

const secret = "router-secret"

type apiClient struct {
	t       *testing.T
	handler http.Handler
}

func (c apiClient) do(actor *entities.Actor, method, target string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if actor != nil {
		token, err := middleware.IssueToken(secret, "", *actor, time.Hour)
		require.NoError(c.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	return w
}

func newAPI(t *testing.T) (apiClient, *events.MemoryEventBus) {
	rating := 4.9
	resis := memory.NewResiRepository(&entities.ResiProfile{
		ID:                 "R1",
		DisplayName:        "Ada",
		Role:               entities.ActorRoleResi,
		IsActive:           true,
		Rating:             &rating,
		TotalReviews:       50,
		VerificationStatus: entities.VerificationStatusApproved,
	})
	bus := events.NewMemoryEventBus(32)
	t.Cleanup(func() { _ = bus.Close() })

	store := services.NewBookingStore(memory.NewBookingRepository(), resis, nil)
	matcher := services.NewMatchingService(resis, scheduling.NewStubAdapter(), nil, 0, 0)
	svc := services.NewBookingService(store, matcher, bus, nil)

	router := routes.NewRouter(
		handlers.NewBookingHandler(svc),
		handlers.NewResiHandler(svc),
		middleware.AuthMiddleware(secret, ""),
		nil,
		nil,
	)
	return apiClient{t: t, handler: router.SetupRoutes()}, bus
}

func TestRouter_BookingLifecycle(t *testing.T) {
	api, _ := newAPI(t)
	client := &entities.Actor{ID: "C1", Role: entities.ActorRoleClient}
	resi := &entities.Actor{ID: "R1", Role: entities.ActorRoleResi}
	admin := &entities.Actor{ID: "A1", Role: entities.ActorRoleAdmin}

	w := api.do(client, http.MethodPost, "/api/bookings", map[string]interface{}{
		"address_id":                 "addr-1",
		"scheduled_at":               time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		"estimated_duration_minutes": 120,
		"agreed_payout":              80,
		"client_price":               100,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created entities.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, entities.BookingStatusPending, created.Status)
	require.NotNil(t, created.ResiID)
	assert.Equal(t, "R1", *created.ResiID)

	base := "/api/bookings/" + created.ID
	for _, step := range []struct {
		actor  *entities.Actor
		action string
		want   entities.BookingStatus
	}{
		{resi, "/confirm", entities.BookingStatusConfirmed},
		{resi, "/start", entities.BookingStatusInProgress},
		{client, "/complete", entities.BookingStatusCompleted},
	} {
		w = api.do(step.actor, http.MethodPost, base+step.action, nil)
		require.Equal(t, http.StatusOK, w.Code, "%s: %s", step.action, w.Body.String())

		var b entities.Booking
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
		assert.Equal(t, step.want, b.Status)
	}

	w = api.do(resi, http.MethodPost, base+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(client, http.MethodPost, base+"/rate", map[string]interface{}{"rating": 5, "review": "spotless"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(admin, http.MethodGet, "/api/admin/bookings/"+created.ID+"/rating-stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats entities.RatingStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.ResiRatingCount)
	assert.InDelta(t, 5.0, stats.ResiRatingAverage, 1e-9)

	w = api.do(client, http.MethodGet, "/api/bookings?status=completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page services.BookingPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
}

func TestRouter_Access(t *testing.T) {
	api, _ := newAPI(t)
	client := &entities.Actor{ID: "C1", Role: entities.ActorRoleClient}

	w := api.do(nil, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(nil, http.MethodGet, "/api/bookings", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(client, http.MethodPatch, "/api/bookings/b-1", map[string]string{"status": "CANCELLED"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(client, http.MethodGet, "/api/admin/bookings/unassigned?address_id=addr-1&scheduled_at=2030-01-02T09:00:00Z", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(client, http.MethodGet, "/api/bookings/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(client, http.MethodGet, "/api/resis/available?address_id=addr-1&scheduled_at=2030-01-02T09:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"resi_id":"R1"`)
}
