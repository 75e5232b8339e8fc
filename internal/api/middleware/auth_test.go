package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/resibooking/internal/api/middleware"
	"github.com/zatekoja/resibooking/internal/domain/entities"
)

const testSecret = "test-secret"

func echoActor() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(string(actor.Role) + ":" + actor.ID))
	})
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/bookings", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	h := middleware.AuthMiddleware(testSecret, "resibooking")(echoActor())

	t.Run("valid token yields the actor", func(t *testing.T) {
		token, err := middleware.IssueToken(testSecret, "resibooking", entities.Actor{ID: "C1", Role: entities.ActorRoleClient}, time.Hour)
		require.NoError(t, err)

		w := serve(h, token)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "CLIENT:C1", w.Body.String())
	})

	t.Run("missing token", func(t *testing.T) {
		w := serve(h, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := middleware.IssueToken("other", "resibooking", entities.Actor{ID: "C1", Role: entities.ActorRoleClient}, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, serve(h, token).Code)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, err := middleware.IssueToken(testSecret, "someone-else", entities.Actor{ID: "C1", Role: entities.ActorRoleClient}, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, serve(h, token).Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := middleware.IssueToken(testSecret, "resibooking", entities.Actor{ID: "C1", Role: entities.ActorRoleClient}, -time.Minute)
		require.NoError(t, err)

		w := serve(h, token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "token expired")
	})

	t.Run("unknown role", func(t *testing.T) {
		token, err := middleware.IssueToken(testSecret, "resibooking", entities.Actor{ID: "C1", Role: "SUPERUSER"}, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, serve(h, token).Code)
	})

	t.Run("unsigned tokens are refused", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, middleware.ActorClaims{
			Role:             "ADMIN",
			RegisteredClaims: jwt.RegisteredClaims{Subject: "A1", Issuer: "resibooking"},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, serve(h, token).Code)
	})
}

func TestRequireRole(t *testing.T) {
	h := middleware.RequireRole(entities.ActorRoleAdmin)(echoActor())

	t.Run("allowed role passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(middleware.WithActor(req.Context(), entities.Actor{ID: "A1", Role: entities.ActorRoleAdmin}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("other roles are forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(middleware.WithActor(req.Context(), entities.Actor{ID: "C1", Role: entities.ActorRoleClient}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("anonymous is unauthorized", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestCORSMiddleware(t *testing.T) {
	h := middleware.CORSMiddleware(middleware.ParseOrigins("https://app.example.com, https://admin.example.com"))(echoActor())

	req := httptest.NewRequest(http.MethodOptions, "/api/bookings", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://admin.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/bookings", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, []string{"*"}, middleware.ParseOrigins(" , "))
}
