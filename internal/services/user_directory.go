package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lombeo/sep490-backend-sub003/internal/models"
	"github.com/lombeo/sep490-backend-sub003/pkg/logger"
)

// UserDirectory is an in-memory snapshot of active users used by lookups on
// hot paths such as the forgot-password flow. It is reloaded once per day and
// patched whenever a user changes.
type UserDirectory struct {
	db      *gorm.DB
	tracker *DayTracker
	log     *zap.Logger

	mu      sync.RWMutex
	byID    map[uint]models.User
	byEmail map[string]uint
}

// NewUserDirectory constructs an empty directory. A nil tracker gets a UTC wall-clock tracker.
func NewUserDirectory(db *gorm.DB, tracker *DayTracker) (*UserDirectory, error) {
	if db == nil {
		return nil, errors.New("user directory: db is required")
	}
	if tracker == nil {
		tracker = NewDayTracker(nil)
	}
	return &UserDirectory{
		db:      db,
		tracker: tracker,
		log:     logger.WithModule("user-directory"),
		byID:    map[uint]models.User{},
		byEmail: map[string]uint{},
	}, nil
}

// Load replaces the snapshot with every non-deleted user.
func (d *UserDirectory) Load(ctx context.Context) error {
	var users []models.User
	if err := d.db.WithContext(ctx).
		Where("deleted = ?", false).
		Order("updated_at DESC").
		Find(&users).Error; err != nil {
		return fmt.Errorf("user directory: load: %w", err)
	}

	byID := make(map[uint]models.User, len(users))
	byEmail := make(map[string]uint, len(users))
	for _, user := range users {
		byID[user.ID] = user
		byEmail[normalizeEmail(user.Email)] = user.ID
	}

	d.mu.Lock()
	d.byID, d.byEmail = byID, byEmail
	d.mu.Unlock()

	d.tracker.Mark()
	d.log.Info("user directory loaded", zap.Int("users", len(users)))
	return nil
}

// RefreshDaily reloads the snapshot when it has not been loaded today. The
// boolean reports whether a reload happened.
func (d *UserDirectory) RefreshDaily(ctx context.Context) (bool, error) {
	if !d.tracker.Due() {
		return false, nil
	}
	if err := d.Load(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Upsert re-reads a single user, dropping it from the snapshot when it was
// deleted.
func (d *UserDirectory) Upsert(ctx context.Context, userID uint) error {
	var user models.User
	err := d.db.WithContext(ctx).Where("id = ? AND deleted = ?", userID, false).Take(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("user directory: reload user %d: %w", userID, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if previous, ok := d.byID[userID]; ok {
		delete(d.byEmail, normalizeEmail(previous.Email))
		delete(d.byID, userID)
	}
	if err == nil {
		d.byID[user.ID] = user
		d.byEmail[normalizeEmail(user.Email)] = user.ID
	}
	return nil
}

// Get returns the cached user with the given id.
func (d *UserDirectory) Get(userID uint) (models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.byID[userID]
	return user, ok
}

// FindVerifiedByEmail returns the verified user registered with email.
func (d *UserDirectory) FindVerifiedByEmail(email string) (models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[normalizeEmail(email)]
	if !ok {
		return models.User{}, false
	}
	user := d.byID[id]
	if !user.IsVerify {
		return models.User{}, false
	}
	return user, true
}

// Len returns the number of cached users.
func (d *UserDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.byID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
