package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lombeo/sep490-backend-sub003/internal/app"
	"github.com/lombeo/sep490-backend-sub003/internal/cache"
	"github.com/lombeo/sep490-backend-sub003/internal/locks"
	"github.com/lombeo/sep490-backend-sub003/internal/models"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	return &app.Config{
		Server: app.ServerConfig{Port: 8000},
		Database: app.DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "sep490.sqlite"),
		},
		Cache: app.CacheConfig{Redis: app.RedisCacheConfig{
			Enabled:   true,
			Addresses: []string{"127.0.0.1:1"},
			Timeout:   200 * time.Millisecond,
		}},
		Auth: app.AuthConfig{JWT: app.JWTSettings{Secret: "bootstrap-secret"}},
		OTP:  app.OTPConfig{Length: 6, ResetLength: 8, ValidFor: 10 * time.Minute},
		Maintenance: app.MaintenanceConfig{
			LockCleanupInterval: time.Hour,
			LockCleanupBackoff:  time.Minute,
		},
	}
}

func TestBootstrapFallsBackToDatabaseCache(t *testing.T) {
	cfg := testConfig(t)
	log := zap.NewNop()
	ctx := context.Background()

	stack, err := bootstrapRuntime(ctx, cfg, log)
	require.NoError(t, err)

	require.Nil(t, stack.Redis)
	require.Same(t, stack.DBStore, stack.Store.(*cache.DatabaseStore))
	require.NotNil(t, stack.Router)

	require.NoError(t, stack.Start(ctx))

	w := httptest.NewRecorder()
	stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	stack.Shutdown(shutdownCtx, log)

	sqlDB, err := stack.DB.DB()
	require.NoError(t, err)
	require.Error(t, sqlDB.Ping())
}

func TestBootstrapClearsCachedLockState(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Redis.Enabled = false
	ctx := context.Background()

	first, err := bootstrapRuntime(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, first.Store.Set(ctx, locks.CacheKey(7), []byte(`{}`), time.Hour))
	first.Shutdown(ctx, zap.NewNop())

	second, err := bootstrapRuntime(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { second.Shutdown(context.Background(), zap.NewNop()) })

	_, found, err := second.Store.Get(ctx, locks.CacheKey(7))
	require.NoError(t, err)
	require.False(t, found)

	var system models.User
	require.NoError(t, second.DB.First(&system, models.SystemUserID).Error)
	require.Equal(t, "system", system.Username)
}

func TestBootstrapRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "open database")
}

func TestLoadApplicationConfig(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("server:\n  port: 9191\nauth:\n  jwt:\n    secret: file-secret\n"), 0o600))

	cfg, err := loadApplicationConfig(file)
	require.NoError(t, err)
	require.Equal(t, 9191, cfg.Server.Port)

	cfg, err = loadApplicationConfig(dir)
	require.NoError(t, err)
	require.Equal(t, "file-secret", cfg.Auth.JWT.Secret)

	_, err = loadApplicationConfig(filepath.Join(dir, "missing"))
	require.ErrorContains(t, err, "does not exist")
}
