// Package locks coordinates exclusive editing of construction plans. A lock
// is held by one user for a bounded time and must be extended while the
// user keeps editing; expired locks are swept by a background job.
package locks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lombeo/sep490-backend-sub003/internal/cache"
	"github.com/lombeo/sep490-backend-sub003/internal/models"
	"github.com/lombeo/sep490-backend-sub003/pkg/logger"
	"github.com/lombeo/sep490-backend-sub003/pkg/metrics"
)

const (
	// DefaultDuration is the lifetime of a freshly acquired lock.
	DefaultDuration = 15 * time.Minute
	// DefaultExtension is added to the current time when a lock is extended.
	DefaultExtension = 15 * time.Minute

	cacheKeyPrefix = "PLAN_LOCK:"
	statusCacheTTL = time.Minute
)

var (
	ErrPlanNotFound = errors.New("locks: construction plan not found")
	ErrPlanLocked   = errors.New("locks: plan is locked by another user")
	ErrLockNotOwned = errors.New("locks: lock belongs to another user")
	ErrLockNotFound = errors.New("locks: no active lock")
)

// CacheKey returns the cache key holding the lock state of a plan.
func CacheKey(planID uint) string {
	return cacheKeyPrefix + strconv.FormatUint(uint64(planID), 10)
}

// LockView is the lock as presented to a given user.
type LockView struct {
	ID                uint      `json:"id"`
	PlanID            uint      `json:"plan_id"`
	UserID            uint      `json:"user_id"`
	UserName          string    `json:"user_name"`
	UserEmail         string    `json:"user_email"`
	LockAcquiredAt    time.Time `json:"lock_acquired_at"`
	LockExpiresAt     time.Time `json:"lock_expires_at"`
	IsCurrentUserLock bool      `json:"is_current_user_lock"`
}

// LockStatus reports whether a plan is locked and by whom.
type LockStatus struct {
	Locked bool      `json:"locked"`
	Lock   *LockView `json:"lock_info"`
}

// Config tunes lock lifetimes.
type Config struct {
	Duration  time.Duration
	Extension time.Duration
}

// Service manages plan edit locks.
type Service struct {
	db        *gorm.DB
	cache     cache.Store
	now       func() time.Time
	duration  time.Duration
	extension time.Duration
	log       *zap.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithConfig overrides lock lifetimes. Zero values keep the defaults.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		if cfg.Duration > 0 {
			s.duration = cfg.Duration
		}
		if cfg.Extension > 0 {
			s.extension = cfg.Extension
		}
	}
}

// NewService constructs a lock Service.
func NewService(db *gorm.DB, store cache.Store, opts ...Option) (*Service, error) {
	if db == nil {
		return nil, errors.New("locks: db is required")
	}
	if store == nil {
		return nil, errors.New("locks: cache store is required")
	}

	svc := &Service{
		db:        db,
		cache:     store,
		now:       time.Now,
		duration:  DefaultDuration,
		extension: DefaultExtension,
		log:       logger.WithModule("locks"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Acquire grants userID the edit lock on planID. Re-acquiring an owned lock
// refreshes its expiry.
func (s *Service) Acquire(ctx context.Context, planID, userID uint) (*LockView, error) {
	now := s.clock()

	var lock models.PlanEditLock
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var plan models.ConstructionPlan
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND deleted = ?", planID, false).
			Take(&plan).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPlanNotFound
		}
		if err != nil {
			return err
		}

		existing, err := activeLock(tx, planID, now)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.UserID != userID {
				return ErrPlanLocked
			}
			existing.LockExpiresAt = now.Add(s.duration)
			existing.Touch(userID, now)
			lock = *existing
			return tx.Save(&lock).Error
		}

		lock = models.PlanEditLock{
			BaseModel:      models.BaseModel{Creator: userID, Updater: userID},
			PlanID:         planID,
			UserID:         userID,
			LockAcquiredAt: now,
			LockExpiresAt:  now.Add(s.duration),
		}
		return tx.Create(&lock).Error
	})
	if err != nil {
		return nil, s.wrap("acquire", err)
	}

	if err := s.invalidate(ctx, planID); err != nil {
		return nil, err
	}
	s.log.Info("plan lock acquired",
		zap.Uint("plan_id", planID),
		zap.Uint("user_id", userID),
		zap.Time("expires_at", lock.LockExpiresAt),
	)
	return s.view(ctx, &lock, userID)
}

// Release gives up the lock held by userID. Releasing an unlocked plan is a no-op.
func (s *Service) Release(ctx context.Context, planID, userID uint) error {
	now := s.clock()

	released := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := activeLock(tx, planID, now)
		if err != nil || existing == nil {
			return err
		}
		if existing.UserID != userID {
			return ErrLockNotOwned
		}

		existing.Deleted = true
		existing.Touch(userID, now)
		released = true
		return tx.Save(existing).Error
	})
	if err != nil {
		return s.wrap("release", err)
	}
	if !released {
		return nil
	}

	if err := s.invalidate(ctx, planID); err != nil {
		return err
	}
	s.log.Info("plan lock released", zap.Uint("plan_id", planID), zap.Uint("user_id", userID))
	return nil
}

// Extend pushes the expiry of the lock held by userID to now plus the
// configured extension.
func (s *Service) Extend(ctx context.Context, planID, userID uint) (*LockView, error) {
	now := s.clock()

	var lock models.PlanEditLock
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := activeLock(tx, planID, now)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrLockNotFound
		}
		if existing.UserID != userID {
			return ErrLockNotOwned
		}

		existing.LockExpiresAt = now.Add(s.extension)
		existing.Touch(userID, now)
		lock = *existing
		return tx.Save(&lock).Error
	})
	if err != nil {
		return nil, s.wrap("extend", err)
	}

	if err := s.invalidate(ctx, planID); err != nil {
		return nil, err
	}
	return s.view(ctx, &lock, userID)
}

// Status reports the current lock on planID as seen by userID. An active lock
// is cached under CacheKey(planID) and dropped on every change.
func (s *Service) Status(ctx context.Context, planID, userID uint) (LockStatus, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ConstructionPlan{}).
		Where("id = ? AND deleted = ?", planID, false).
		Count(&count).Error
	if err != nil {
		return LockStatus{}, s.wrap("status", err)
	}
	if count == 0 {
		return LockStatus{}, ErrPlanNotFound
	}

	lock, err := s.cachedLock(ctx, planID)
	if err != nil {
		return LockStatus{}, err
	}
	if lock == nil {
		return LockStatus{Locked: false}, nil
	}

	view, err := s.view(ctx, lock, userID)
	if err != nil {
		return LockStatus{}, err
	}
	return LockStatus{Locked: true, Lock: view}, nil
}

// CleanupExpiredLocks soft deletes every lock whose expiry has passed,
// attributing the change to the system user, and drops the cached state of
// each affected plan. It returns the number of locks released.
func (s *Service) CleanupExpiredLocks(ctx context.Context) (int64, error) {
	now := s.clock()

	var expired []models.PlanEditLock
	err := s.db.WithContext(ctx).
		Select("id", "plan_id").
		Where("deleted = ? AND lock_expires_at <= ?", false, now).
		Find(&expired).Error
	if err != nil {
		return 0, fmt.Errorf("locks: find expired: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	ids := make([]uint, 0, len(expired))
	plans := make([]uint, 0, len(expired))
	seen := make(map[uint]struct{}, len(expired))
	for _, lock := range expired {
		ids = append(ids, lock.ID)
		if _, ok := seen[lock.PlanID]; !ok {
			seen[lock.PlanID] = struct{}{}
			plans = append(plans, lock.PlanID)
		}
	}

	res := s.db.WithContext(ctx).Model(&models.PlanEditLock{}).
		Where("id IN ? AND deleted = ?", ids, false).
		Updates(map[string]any{
			"deleted":    true,
			"updater":    models.SystemUserID,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("locks: release expired: %w", res.Error)
	}

	var errs error
	for _, planID := range plans {
		errs = multierr.Append(errs, s.invalidate(ctx, planID))
	}

	metrics.LocksPurged.Add(float64(res.RowsAffected))
	s.log.Info("expired plan locks released",
		zap.Int64("count", res.RowsAffected),
		zap.Int("plans", len(plans)),
	)
	return res.RowsAffected, errs
}

// InvalidateAll drops every cached plan lock state.
func (s *Service) InvalidateAll(ctx context.Context) (int64, error) {
	n, err := s.cache.DeletePrefix(ctx, cacheKeyPrefix)
	if err != nil {
		return n, fmt.Errorf("locks: invalidate cache: %w", err)
	}
	return n, nil
}

type cachedState struct {
	Lock *models.PlanEditLock `json:"lock"`
}

func (s *Service) cachedLock(ctx context.Context, planID uint) (*models.PlanEditLock, error) {
	now := s.clock()
	key := CacheKey(planID)

	state, found, err := cache.GetJSON[cachedState](ctx, s.cache, key)
	if err != nil {
		return nil, fmt.Errorf("locks: read cache: %w", err)
	}
	if found && state.Lock != nil && state.Lock.LockExpiresAt.After(now) {
		return state.Lock, nil
	}

	db := s.db.WithContext(ctx)
	lock, err := activeLock(db, planID, now)
	if err != nil {
		return nil, fmt.Errorf("locks: load lock: %w", err)
	}
	// An unlocked plan is never cached: an Acquire committing after the read
	// would otherwise stay hidden until the entry expired.
	if lock == nil {
		return nil, nil
	}

	ttl := min(statusCacheTTL, lock.LockExpiresAt.Sub(now))
	if err := cache.SetJSON(ctx, s.cache, key, cachedState{Lock: lock}, ttl); err != nil {
		return nil, fmt.Errorf("locks: write cache: %w", err)
	}

	// Release or Extend may have committed between the read and the write.
	current, err := activeLock(db, planID, now)
	if err != nil {
		return nil, fmt.Errorf("locks: reload lock: %w", err)
	}
	if current == nil || current.ID != lock.ID || !current.LockExpiresAt.Equal(lock.LockExpiresAt) {
		if err := s.invalidate(ctx, planID); err != nil {
			return nil, err
		}
		return current, nil
	}
	return lock, nil
}

func (s *Service) view(ctx context.Context, lock *models.PlanEditLock, currentUserID uint) (*LockView, error) {
	view := &LockView{
		ID:                lock.ID,
		PlanID:            lock.PlanID,
		UserID:            lock.UserID,
		UserName:          "Unknown User",
		UserEmail:         "unknown@example.com",
		LockAcquiredAt:    lock.LockAcquiredAt,
		LockExpiresAt:     lock.LockExpiresAt,
		IsCurrentUserLock: lock.UserID == currentUserID,
	}

	var owner models.User
	err := s.db.WithContext(ctx).Select("id", "username", "full_name", "email").
		Where("id = ?", lock.UserID).Take(&owner).Error
	switch {
	case err == nil:
		view.UserName = owner.DisplayName()
		view.UserEmail = owner.Email
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("locks: load owner: %w", err)
	}
	return view, nil
}

func (s *Service) invalidate(ctx context.Context, planID uint) error {
	if err := s.cache.Delete(ctx, CacheKey(planID)); err != nil {
		return fmt.Errorf("locks: invalidate plan %d: %w", planID, err)
	}
	return nil
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func (s *Service) wrap(op string, err error) error {
	switch {
	case errors.Is(err, ErrPlanNotFound), errors.Is(err, ErrPlanLocked),
		errors.Is(err, ErrLockNotOwned), errors.Is(err, ErrLockNotFound):
		return err
	}
	return fmt.Errorf("locks: %s: %w", op, err)
}

func activeLock(tx *gorm.DB, planID uint, now time.Time) (*models.PlanEditLock, error) {
	var lock models.PlanEditLock
	err := tx.Where("plan_id = ? AND deleted = ? AND lock_expires_at > ?", planID, false, now).
		Order("lock_expires_at DESC").
		Take(&lock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lock, nil
}
