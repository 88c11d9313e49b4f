package router

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taamsimcha-backend/internal/middleware"
)

type staticAdmins map[uuid.UUID]bool

func (s staticAdmins) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s[userID], nil
}

func newTestRouter(t *testing.T, admins staticAdmins) (http.Handler, *middleware.JWTAuth) {
	t.Helper()
	jwt := middleware.NewJWTAuth("router-secret")
	authLimiter := middleware.NewRateLimiter(100, 100)
	aiLimiter := middleware.NewRateLimiter(100, 100)
	t.Cleanup(func() {
		authLimiter.Stop()
		aiLimiter.Stop()
	})

	return New(Deps{
		JWTAuth:      jwt,
		AdminChecker: admins,
		AuthLimiter:  authLimiter,
		AILimiter:    aiLimiter,
		FrontendURL:  "http://app.test",
		Logger:       zap.NewNop(),
	}), jwt
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/auth/me"},
		{http.MethodGet, "/api/v1/recipes/me"},
		{http.MethodPost, "/api/v1/recipes/add"},
		{http.MethodGet, "/api/v1/favorites/"},
		{http.MethodDelete, "/api/v1/comments/" + uuid.NewString()},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(rt.method, rt.path, nil))
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	userID := uuid.New()
	h, jwt := newTestRouter(t, staticAdmins{userID: false})

	// A stale admin claim in the token is not enough.
	token, err := jwt.GenerateAccessToken(userID, true)
	require.NoError(t, err)

	for _, path := range []string{"/api/v1/auth/admin/users", "/api/v1/recipes/admin/stats"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code, path)
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/ai/chat-recipe", nil)
	req.Header.Set("Origin", "http://app.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://app.test", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "http_requests_total")
}
