package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/lombeo/sep490-backend-sub003/pkg/logger"
)

const (
	defaultDirectorySpec  = "@every 1m"
	defaultCachePurgeSpec = "@daily"
	jobTimeout            = 2 * time.Minute
)

// DirectoryRefresher reloads the in-memory user directory at most once per day.
type DirectoryRefresher interface {
	RefreshDaily(ctx context.Context) (bool, error)
}

// CachePurger removes stale entries from the relational cache fallback.
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// SessionPurger removes refresh tokens that expired or were revoked.
type SessionPurger interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Cleaner coordinates scheduled maintenance jobs: refreshing the user
// directory and purging expired cache rows and refresh tokens. Nil
// dependencies disable the corresponding job.
type Cleaner struct {
	directory DirectoryRefresher
	purger    CachePurger
	sessions  SessionPurger
	cron      *cron.Cron
	log       *zap.Logger

	directorySchedule string
	purgeSchedule     string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithDirectorySchedule overrides the cron specification of the directory refresh check.
func WithDirectorySchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.directorySchedule = spec
		}
	}
}

// WithCachePurgeSchedule overrides the cron specification of the cache purge.
func WithCachePurgeSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.purgeSchedule = spec
		}
	}
}

// WithSessionPurger enables removal of dead refresh tokens on the purge schedule.
func WithSessionPurger(sessions SessionPurger) Option {
	return func(cleaner *Cleaner) {
		cleaner.sessions = sessions
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(directory DirectoryRefresher, purger CachePurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		directory:         directory,
		purger:            purger,
		directorySchedule: defaultDirectorySpec,
		purgeSchedule:     defaultCachePurgeSpec,
		log:               logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

// Start registers the enabled jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	if c.directory == nil && c.purger == nil && c.sessions == nil {
		return nil
	}

	if c.directory != nil {
		if _, err := c.cron.AddFunc(c.directorySchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			if _, err := c.directory.RefreshDaily(ctx); err != nil {
				c.log.Warn("user directory refresh failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.purger != nil {
		if _, err := c.cron.AddFunc(c.purgeSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			purged, err := c.purger.PurgeExpired(ctx)
			if err != nil {
				c.log.Warn("cache purge failed", zap.Error(err))
				return
			}
			c.log.Debug("expired cache entries purged", zap.Int64("count", purged))
		}); err != nil {
			return err
		}
	}

	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.purgeSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			removed, err := c.sessions.CleanupExpired(ctx)
			if err != nil {
				c.log.Warn("refresh token cleanup failed", zap.Error(err))
				return
			}
			c.log.Debug("dead refresh tokens removed", zap.Int64("count", removed))
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured job sequentially and reports all failures.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	var errs error

	if c.directory != nil {
		if _, err := c.directory.RefreshDaily(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.purger != nil {
		if _, err := c.purger.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.sessions != nil {
		if _, err := c.sessions.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
