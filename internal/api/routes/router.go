package routes

import (
	"net/http"

	"github.com/zatekoja/resibooking/internal/api/handlers"
	"github.com/zatekoja/resibooking/internal/api/middleware"
	"github.com/zatekoja/resibooking/internal/domain/entities"
	"github.com/zatekoja/resibooking/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	bookingHandler *handlers.BookingHandler
	resiHandler    *handlers.ResiHandler

	auth           func(http.Handler) http.Handler
	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router. auth resolves the caller into an actor.
func NewRouter(
	bookingHandler *handlers.BookingHandler,
	resiHandler *handlers.ResiHandler,
	auth func(http.Handler) http.Handler,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:            http.NewServeMux(),
		bookingHandler: bookingHandler,
		resiHandler:    resiHandler,
		auth:           auth,
		allowedOrigins: allowedOrigins,
		metrics:        metrics,
	}
}

// handle registers an authenticated route limited to roles
func (r *Router) handle(pattern string, h http.HandlerFunc, roles ...entities.ActorRole) {
	r.mux.Handle(pattern, r.auth(middleware.RequireRole(roles...)(h)))
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	const (
		client = entities.ActorRoleClient
		resi   = entities.ActorRoleResi
		admin  = entities.ActorRoleAdmin
	)

	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Booking lifecycle
	r.handle("POST /api/bookings", r.bookingHandler.CreateBooking, client)
	r.handle("GET /api/bookings", r.bookingHandler.ListBookings, client, resi, admin)
	r.handle("GET /api/bookings/{id}", r.bookingHandler.GetBooking, client, resi, admin)
	r.handle("PATCH /api/bookings/{id}", r.bookingHandler.UpdateBooking, admin)
	r.handle("POST /api/bookings/{id}/confirm", r.bookingHandler.ConfirmBooking, resi)
	r.handle("POST /api/bookings/{id}/start", r.bookingHandler.StartBooking, resi, admin)
	r.handle("POST /api/bookings/{id}/complete", r.bookingHandler.CompleteBooking, client, resi, admin)
	r.handle("POST /api/bookings/{id}/cancel", r.bookingHandler.CancelBooking, client, resi, admin)
	r.handle("POST /api/bookings/{id}/dispute", r.bookingHandler.DisputeBooking, client, resi, admin)
	r.handle("POST /api/bookings/{id}/rate", r.bookingHandler.RateBooking, client, resi)

	// Matching
	r.handle("GET /api/resis/available", r.resiHandler.ListAvailable, client, admin)

	// Administration
	r.handle("GET /api/admin/bookings/unassigned", r.bookingHandler.ListUnassigned, admin)
	r.handle("GET /api/admin/bookings/{id}/rating-stats", r.bookingHandler.GetRatingStats, admin)

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
