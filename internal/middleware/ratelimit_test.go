package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/lombeo/sep490-backend-sub003/internal/cache"
	"github.com/lombeo/sep490-backend-sub003/internal/database/testutil"
)

func serveLimited(t *testing.T, store RateStore, limit int) (*gin.Engine, func() *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(store, RateLimitConfig{Limit: limit, Window: time.Minute}))
	r.POST("/login", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	return r, func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		return w
	}
}

func TestRateLimitWithMemoryStore(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryRateStore(func() time.Time { return now })
	_, call := serveLimited(t, store, 2)

	for i := 0; i < 2; i++ {
		w := call()
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := call()
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, "60", w.Header().Get("Retry-After"))

	now = now.Add(time.Minute)
	require.Equal(t, http.StatusOK, call().Code)
}

func TestRateLimitWithCacheStore(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	_, call := serveLimited(t, NewCacheRateStore(cache.NewDatabaseStore(db)), 1)

	require.Equal(t, http.StatusOK, call().Code)
	require.Equal(t, http.StatusTooManyRequests, call().Code)
}

type failingRateStore struct{}

func (failingRateStore) Increment(context.Context, string, time.Duration) (int, time.Duration, error) {
	return 0, 0, errors.New("store down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	_, call := serveLimited(t, failingRateStore{}, 1)

	require.Equal(t, http.StatusOK, call().Code)
	require.Equal(t, http.StatusOK, call().Code)
}

func TestRateLimitDisabled(t *testing.T) {
	_, call := serveLimited(t, nil, 1)
	require.Equal(t, http.StatusOK, call().Code)
	require.Equal(t, http.StatusOK, call().Code)
	require.Nil(t, NewCacheRateStore(nil))
}
