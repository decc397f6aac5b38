package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/lombeo/sep490-backend-sub003/internal/app"
	iauth "github.com/lombeo/sep490-backend-sub003/internal/auth"
	"github.com/lombeo/sep490-backend-sub003/internal/handlers"
	"github.com/lombeo/sep490-backend-sub003/internal/locks"
	"github.com/lombeo/sep490-backend-sub003/internal/middleware"
	"github.com/lombeo/sep490-backend-sub003/internal/models"
	"github.com/lombeo/sep490-backend-sub003/internal/services"
)

// Dependencies carries the long-lived services the router exposes.
type Dependencies struct {
	DB        *gorm.DB
	JWT       *iauth.JWTService
	Auth      *services.AuthService
	Users     *services.UserService
	Directory *services.UserDirectory
	Locks     *locks.Service
	RateStore middleware.RateStore
	// Cache is pinged by /health when set.
	Cache handlers.Pinger
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(cfg *app.Config, deps Dependencies) (*gin.Engine, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("config must be provided")
	case deps.DB == nil:
		return nil, errors.New("database handle must be provided")
	case deps.JWT == nil:
		return nil, errors.New("jwt service must be provided")
	case deps.Auth == nil:
		return nil, errors.New("auth service must be provided")
	case deps.Users == nil:
		return nil, errors.New("user service must be provided")
	case deps.Directory == nil:
		return nil, errors.New("user directory must be provided")
	case deps.Locks == nil:
		return nil, errors.New("lock service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))

	r.GET("/health", handlers.Health(deps.DB, deps.Cache))

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	requireAuth := middleware.Auth(deps.JWT)
	throttle := middleware.RateLimit(deps.RateStore, middleware.RateLimitConfig{
		Limit:  cfg.Server.RateLimit.Requests,
		Window: cfg.Server.RateLimit.Window,
		Prefix: "RATE:auth:",
	})

	registerAuthRoutes(r.Group("/api/auth"), handlers.NewAuthHandler(deps.Auth), requireAuth, throttle)
	registerPlanLockRoutes(r.Group("/api/plans/locks", requireAuth), handlers.NewPlanLockHandler(deps.Locks))
	registerAdminUserRoutes(
		r.Group("/api/admin/users", requireAuth, middleware.RequireRole(deps.Directory, models.RoleAdmin)),
		handlers.NewUserHandler(deps.Users),
	)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func registerAuthRoutes(group *gin.RouterGroup, h *handlers.AuthHandler, requireAuth, throttle gin.HandlerFunc) {
	group.POST("/login", throttle, h.Login)
	group.POST("/forgot-password", throttle, h.ForgotPassword)
	group.POST("/verify-otp", throttle, h.VerifyOTP)
	group.POST("/refresh", throttle, h.Refresh)

	group.POST("/request-verification", requireAuth, throttle, h.RequestVerification)
	group.POST("/change-password", requireAuth, h.ChangePassword)
	group.POST("/logout", requireAuth, h.Logout)
}

func registerAdminUserRoutes(group *gin.RouterGroup, h *handlers.UserHandler) {
	group.GET("", h.List)
	group.POST("", h.Create)
	group.GET("/:userId", h.Get)
	group.PUT("/:userId", h.Update)
	group.DELETE("/:userId", h.Delete)
}

func registerPlanLockRoutes(group *gin.RouterGroup, h *handlers.PlanLockHandler) {
	group.POST("/acquire", h.Acquire)
	group.POST("/release", h.Release)
	group.POST("/extend", h.Extend)
	group.GET("/status/:planId", h.Status)
}
