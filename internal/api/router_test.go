package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/lombeo/sep490-backend-sub003/internal/app"
	iauth "github.com/lombeo/sep490-backend-sub003/internal/auth"
	"github.com/lombeo/sep490-backend-sub003/internal/cache"
	"github.com/lombeo/sep490-backend-sub003/internal/database/testutil"
	"github.com/lombeo/sep490-backend-sub003/internal/locks"
	"github.com/lombeo/sep490-backend-sub003/internal/middleware"
	"github.com/lombeo/sep490-backend-sub003/internal/otp"
	"github.com/lombeo/sep490-backend-sub003/internal/services"
)

func newTestDeps(t *testing.T) Dependencies {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	store := cache.NewDatabaseStore(db)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "test", AccessTokenTTL: 15 * time.Minute})
	require.NoError(t, err)

	codes, err := otp.NewService(store)
	require.NoError(t, err)
	directory, err := services.NewUserDirectory(db, nil)
	require.NoError(t, err)
	require.NoError(t, directory.Load(context.Background()))
	sessions, err := iauth.NewSessionService(db, iauth.SessionConfig{})
	require.NoError(t, err)
	authSvc, err := services.NewAuthService(db, codes, directory, jwtSvc, sessions, nil)
	require.NoError(t, err)
	userSvc, err := services.NewUserService(db, directory, sessions, nil)
	require.NoError(t, err)
	lockSvc, err := locks.NewService(db, store)
	require.NoError(t, err)

	return Dependencies{
		DB:        db,
		JWT:       jwtSvc,
		Auth:      authSvc,
		Users:     userSvc,
		Directory: directory,
		Locks:     lockSvc,
		RateStore: middleware.NewMemoryRateStore(nil),
	}
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNewRouterValidatesDependencies(t *testing.T) {
	_, err := NewRouter(nil, Dependencies{})
	require.Error(t, err)

	_, err = NewRouter(&app.Config{}, Dependencies{})
	require.Error(t, err)
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, err := NewRouter(&app.Config{}, newTestDeps(t))
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health").Code)

	for _, path := range []string{
		"/api/plans/locks/acquire",
		"/api/plans/locks/release",
		"/api/plans/locks/extend",
		"/api/auth/request-verification",
		"/api/auth/change-password",
		"/api/auth/logout",
		"/api/admin/users",
	} {
		require.Equal(t, http.StatusUnauthorized, serve(router, http.MethodPost, path).Code, path)
	}
	require.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/api/plans/locks/status/1").Code)
	require.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/api/admin/users").Code)
	require.Equal(t, http.StatusUnauthorized, serve(router, http.MethodDelete, "/api/admin/users/2").Code)

	// Metrics are disabled in the zero config.
	require.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/metrics").Code)
}

func TestRouter_AuthEndpointsAreThrottled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := &app.Config{Server: app.ServerConfig{
		RateLimit: app.RateLimitConfig{Requests: 2, Window: time.Minute},
	}}
	router, err := NewRouter(cfg, newTestDeps(t))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusBadRequest, serve(router, http.MethodPost, "/api/auth/login").Code)
	}
	require.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodPost, "/api/auth/login").Code)

	// Other routes keep their own counters.
	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health").Code)
}

func TestRouter_CustomMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := &app.Config{Monitoring: app.MonitoringConfig{
		Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/internal/metrics"},
	}}
	router, err := NewRouter(cfg, newTestDeps(t))
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/internal/metrics").Code)
}
