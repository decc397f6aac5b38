package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lombeo/sep490-backend-sub003/internal/cache"
	"github.com/lombeo/sep490-backend-sub003/internal/locks"
	"github.com/lombeo/sep490-backend-sub003/pkg/logger"
	"github.com/lombeo/sep490-backend-sub003/pkg/metrics"
)

const (
	// DefaultLockCleanupInterval separates two successful cleanup cycles.
	DefaultLockCleanupInterval = 5 * time.Minute
	// DefaultLockCleanupBackoff is waited after a failed cycle.
	DefaultLockCleanupBackoff = time.Minute
)

// LockCleaner purges expired plan edit locks.
type LockCleaner interface {
	CleanupExpiredLocks(ctx context.Context) (int64, error)
}

// Scope holds the handles used by a single cleanup cycle. Close is called
// once the cycle ends, whatever its outcome.
type Scope interface {
	LockCleaner() LockCleaner
	Close() error
}

// ScopeFactory creates a fresh Scope for each cycle so no cycle reuses
// connection or transaction state from a previous one.
type ScopeFactory func(ctx context.Context) (Scope, error)

// DatabaseScopeFactory builds a locks.Service on a new gorm session for every cycle.
func DatabaseScopeFactory(db *gorm.DB, store cache.Store, opts ...locks.Option) ScopeFactory {
	return func(ctx context.Context) (Scope, error) {
		if db == nil {
			return nil, errors.New("lock cleanup: db is required")
		}
		session := db.Session(&gorm.Session{NewDB: true, Context: ctx})
		svc, err := locks.NewService(session, store, opts...)
		if err != nil {
			return nil, err
		}
		return &serviceScope{cleaner: svc}, nil
	}
}

type serviceScope struct {
	cleaner LockCleaner
}

func (s *serviceScope) LockCleaner() LockCleaner { return s.cleaner }

// Close is a no-op: gorm sessions borrow from the shared pool per statement.
func (s *serviceScope) Close() error { return nil }

// LockCleanup periodically releases expired plan locks. It cycles through
// running a cleanup and sleeping until its context is cancelled. Failures
// never stop the loop; they are logged and followed by a shorter backoff.
type LockCleanup struct {
	factory  ScopeFactory
	interval time.Duration
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	log      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// LockCleanupOption customises a LockCleanup.
type LockCleanupOption func(*LockCleanup)

// WithInterval overrides the delay between successful cycles.
func WithInterval(d time.Duration) LockCleanupOption {
	return func(l *LockCleanup) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithBackoff overrides the delay after a failed cycle.
func WithBackoff(d time.Duration) LockCleanupOption {
	return func(l *LockCleanup) {
		if d > 0 {
			l.backoff = d
		}
	}
}

// WithSleep replaces the wait between cycles. The function must return a
// non-nil error once ctx is cancelled.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) LockCleanupOption {
	return func(l *LockCleanup) {
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// NewLockCleanup constructs the cleanup loop.
func NewLockCleanup(factory ScopeFactory, opts ...LockCleanupOption) (*LockCleanup, error) {
	if factory == nil {
		return nil, errors.New("lock cleanup: scope factory is required")
	}

	l := &LockCleanup{
		factory:  factory,
		interval: DefaultLockCleanupInterval,
		backoff:  DefaultLockCleanupBackoff,
		sleep:    sleepContext,
		log:      logger.WithModule("lock-cleanup"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Run blocks until ctx is cancelled.
func (l *LockCleanup) Run(ctx context.Context) {
	l.log.Info("lock cleanup started",
		zap.Duration("interval", l.interval),
		zap.Duration("backoff", l.backoff),
	)

	for {
		if ctx.Err() != nil {
			l.log.Info("lock cleanup shutting down")
			return
		}

		wait := l.interval
		if err := l.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				l.log.Info("lock cleanup shutting down")
				return
			}
			l.log.Error("lock cleanup failed", zap.Error(err), zap.Duration("retry_in", l.backoff))
			wait = l.backoff
		}

		if err := l.sleep(ctx, wait); err != nil {
			l.log.Info("lock cleanup shutting down")
			return
		}
	}
}

// RunOnce executes a single cleanup cycle in a fresh scope. A panic raised by
// the cleaner is returned as an error.
func (l *LockCleanup) RunOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lock cleanup panicked: %v", r)
		}
		result := "success"
		if err != nil {
			result = "error"
		}
		metrics.LockCleanupRuns.WithLabelValues(result).Inc()
	}()

	l.log.Info("lock cleanup cycle starting")

	scope, err := l.factory(ctx)
	if err != nil {
		return fmt.Errorf("lock cleanup: open scope: %w", err)
	}
	defer func() {
		err = multierr.Append(err, scope.Close())
	}()

	released, err := scope.LockCleaner().CleanupExpiredLocks(ctx)
	if err != nil {
		return err
	}

	l.log.Info("lock cleanup cycle finished", zap.Int64("released", released))
	return nil
}

// Start runs the loop in its own goroutine. Calling Start twice is a no-op.
func (l *LockCleanup) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	go func() {
		defer close(done)
		l.Run(ctx)
	}()
}

// Stop cancels the loop and waits for it to return.
func (l *LockCleanup) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
