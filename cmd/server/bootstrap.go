package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lombeo/sep490-backend-sub003/internal/api"
	"github.com/lombeo/sep490-backend-sub003/internal/app"
	"github.com/lombeo/sep490-backend-sub003/internal/app/maintenance"
	iauth "github.com/lombeo/sep490-backend-sub003/internal/auth"
	"github.com/lombeo/sep490-backend-sub003/internal/cache"
	"github.com/lombeo/sep490-backend-sub003/internal/database"
	"github.com/lombeo/sep490-backend-sub003/internal/handlers"
	"github.com/lombeo/sep490-backend-sub003/internal/locks"
	"github.com/lombeo/sep490-backend-sub003/internal/middleware"
	"github.com/lombeo/sep490-backend-sub003/internal/otp"
	"github.com/lombeo/sep490-backend-sub003/internal/services"
	"github.com/lombeo/sep490-backend-sub003/pkg/logger"
	"github.com/lombeo/sep490-backend-sub003/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB          *gorm.DB
	Redis       *cache.RedisStore
	DBStore     *cache.DatabaseStore
	Store       cache.Store
	Directory   *services.UserDirectory
	Locks       *locks.Service
	LockCleanup *maintenance.LockCleanup
	Cleaner     *maintenance.Cleaner
	Router      *gin.Engine
}

// bootstrapRuntime initialises databases, caches, services, background jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.DBStore = cache.NewDatabaseStore(stack.DB)
	stack.Store = stack.DBStore
	var healthCache handlers.Pinger
	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisStore(ctx, cfg.Cache.RedisOptions()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(err))
		} else {
			stack.Store = stack.Redis
			healthCache = stack.Redis
			log.Info("redis connected", zap.Strings("addrs", cfg.Cache.Redis.Addresses))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	codes, err := otp.NewService(stack.Store)
	if err != nil {
		return nil, fmt.Errorf("initialise otp service: %w", err)
	}

	stack.Directory, err = services.NewUserDirectory(stack.DB, services.NewDayTracker(nil))
	if err != nil {
		return nil, fmt.Errorf("initialise user directory: %w", err)
	}
	if err := stack.Directory.Load(ctx); err != nil {
		return nil, err
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	sessions, err := iauth.NewSessionService(stack.DB, cfg.Auth.SessionConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	authSvc, err := services.NewAuthService(stack.DB, codes, stack.Directory, jwtSvc, sessions, mailer,
		services.WithOTPPolicy(cfg.OTP.Policy()))
	if err != nil {
		return nil, fmt.Errorf("initialise auth service: %w", err)
	}

	userSvc, err := services.NewUserService(stack.DB, stack.Directory, sessions, mailer)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	lockOpts := cfg.Locks.ServiceOptions()
	stack.Locks, err = locks.NewService(stack.DB, stack.Store, lockOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise lock service: %w", err)
	}

	// Cached lock state may predate this process.
	if purged, err := stack.Locks.InvalidateAll(ctx); err != nil {
		log.Warn("failed to clear cached lock state", zap.Error(err))
	} else {
		log.Info("cached lock state cleared", zap.Int64("keys", purged))
	}

	stack.LockCleanup, err = maintenance.NewLockCleanup(
		maintenance.DatabaseScopeFactory(stack.DB, stack.Store, lockOpts...),
		cfg.Maintenance.LockCleanupOptions()...,
	)
	if err != nil {
		return nil, fmt.Errorf("initialise lock cleanup: %w", err)
	}

	// Expired cache rows only accumulate when the database is the cache.
	var purger maintenance.CachePurger
	if stack.Redis == nil {
		purger = stack.DBStore
	}
	cleanerOpts := append(cfg.Maintenance.CleanerOptions(), maintenance.WithSessionPurger(sessions))
	stack.Cleaner = maintenance.NewCleaner(stack.Directory, purger, cleanerOpts...)

	stack.Router, err = api.NewRouter(cfg, api.Dependencies{
		DB:        stack.DB,
		JWT:       jwtSvc,
		Auth:      authSvc,
		Users:     userSvc,
		Directory: stack.Directory,
		Locks:     stack.Locks,
		RateStore: middleware.NewCacheRateStore(stack.Store),
		Cache:     healthCache,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Start launches the background jobs. The lock cleanup loop stops when ctx is
// cancelled or Shutdown is called.
func (s *runtimeStack) Start(ctx context.Context) error {
	if err := s.Cleaner.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	s.LockCleanup.Start(ctx)
	return nil
}

// Shutdown stops background jobs before releasing the cache and database.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.LockCleanup != nil {
		s.LockCleanup.Stop()
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown", zap.Error(ctx.Err()))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}
