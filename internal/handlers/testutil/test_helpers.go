package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lombeo/sep490-backend-sub003/internal/api"
	"github.com/lombeo/sep490-backend-sub003/internal/app"
	iauth "github.com/lombeo/sep490-backend-sub003/internal/auth"
	"github.com/lombeo/sep490-backend-sub003/internal/cache"
	sharedtestutil "github.com/lombeo/sep490-backend-sub003/internal/database/testutil"
	"github.com/lombeo/sep490-backend-sub003/internal/locks"
	"github.com/lombeo/sep490-backend-sub003/internal/middleware"
	"github.com/lombeo/sep490-backend-sub003/internal/models"
	"github.com/lombeo/sep490-backend-sub003/internal/otp"
	"github.com/lombeo/sep490-backend-sub003/internal/services"
	"github.com/lombeo/sep490-backend-sub003/pkg/crypto"
	"github.com/lombeo/sep490-backend-sub003/pkg/mail"
	"github.com/lombeo/sep490-backend-sub003/pkg/response"
)

// Clock is a settable time source shared by every service of an Env.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T         *testing.T
	DB        *gorm.DB
	Router    *gin.Engine
	JWT       *iauth.JWTService
	Store     *cache.DatabaseStore
	Codes     *otp.Service
	Directory *services.UserDirectory
	Mailer    *mail.Recorder
	Clock     *Clock
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())
	clock := &Clock{now: time.Now().UTC().Truncate(time.Second)}

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Server: app.ServerConfig{
			RateLimit: app.RateLimitConfig{Requests: 1000, Window: time.Minute},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	store := cache.NewDatabaseStore(db, cache.WithDatabaseClock(clock.Now))
	codes, err := otp.NewService(store, otp.WithClock(clock.Now))
	require.NoError(t, err)

	directory, err := services.NewUserDirectory(db, services.NewDayTracker(clock.Now))
	require.NoError(t, err)
	require.NoError(t, directory.Load(context.Background()))

	mailer := &mail.Recorder{}
	sessions, err := iauth.NewSessionService(db, iauth.SessionConfig{Clock: clock.Now})
	require.NoError(t, err)
	authSvc, err := services.NewAuthService(db, codes, directory, jwtSvc, sessions, mailer)
	require.NoError(t, err)
	userSvc, err := services.NewUserService(db, directory, sessions, mailer)
	require.NoError(t, err)

	lockSvc, err := locks.NewService(db, store, locks.WithClock(clock.Now))
	require.NoError(t, err)

	router, err := api.NewRouter(cfg, api.Dependencies{
		DB:        db,
		JWT:       jwtSvc,
		Auth:      authSvc,
		Users:     userSvc,
		Directory: directory,
		Locks:     lockSvc,
		RateStore: middleware.NewMemoryRateStore(clock.Now),
	})
	require.NoError(t, err)

	return &Env{
		T:         t,
		DB:        db,
		Router:    router,
		JWT:       jwtSvc,
		Store:     store,
		Codes:     codes,
		Directory: directory,
		Mailer:    mailer,
		Clock:     clock,
	}
}

// CreateUser inserts an administrator with a random username and refreshes the directory.
func (e *Env) CreateUser(password string, verified bool) *models.User {
	e.T.Helper()
	return e.CreateUserWithRole(password, verified, models.RoleAdmin)
}

// CreateUserWithRole inserts a user holding role and refreshes the directory.
func (e *Env) CreateUserWithRole(password string, verified bool, role string) *models.User {
	e.T.Helper()

	username := "user-" + uuid.NewString()[:8]
	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hashed,
		FullName: "Test " + username,
		Role:     role,
		IsVerify: verified,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	require.NoError(e.T, e.Directory.Upsert(context.Background(), user.ID))
	return user
}

// CreatePlan inserts a construction plan.
func (e *Env) CreatePlan(name string) *models.ConstructionPlan {
	e.T.Helper()

	plan := &models.ConstructionPlan{PlanName: name, ProjectID: 1}
	require.NoError(e.T, e.DB.Create(plan).Error)
	return plan
}

// LoginResult mirrors the payload of POST /api/auth/login.
type LoginResult struct {
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int       `json:"expires_in"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	UserID           uint      `json:"user_id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	IsVerify         bool      `json:"is_verify"`
}

// Login authenticates and returns the issued token.
func (e *Env) Login(identifier, password string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	require.NotEmpty(e.T, result.RefreshToken)
	require.Greater(e.T, result.ExpiresIn, 0)

	return result
}

// Token issues an access token for user without going through the login endpoint.
func (e *Env) Token(user *models.User) string {
	e.T.Helper()

	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		Verified: user.IsVerify,
	})
	require.NoError(e.T, err)
	return token
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
