package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lombeo/sep490-backend-sub003/internal/models"
)

var errDatabaseStoreNil = errors.New("cache: database store not initialised")

// keyColumn is quoted per dialect; KEY is reserved in MySQL.
var keyColumn = clause.Column{Name: "key"}

// DatabaseStore implements the cache Store interface using the primary SQL database.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// DatabaseOption customises a DatabaseStore.
type DatabaseOption func(*DatabaseStore)

// WithDatabaseClock overrides the time source used for expiry decisions.
func WithDatabaseClock(now func() time.Time) DatabaseOption {
	return func(s *DatabaseStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewDatabaseStore constructs a database-backed Store.
func NewDatabaseStore(db *gorm.DB, opts ...DatabaseOption) *DatabaseStore {
	if db == nil {
		return nil
	}
	store := &DatabaseStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// IncrementWithTTL atomically increments a counter for the supplied key.
func (s *DatabaseStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s == nil {
		return 0, 0, errDatabaseStoreNil
	}
	if window <= 0 {
		window = time.Minute
	}

	now := s.now()
	var count int64
	var expiry time.Time

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, found, err := lockEntry(tx, key)
		if err != nil {
			return err
		}
		if !found {
			count, expiry = 1, now.Add(window)
			res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{keyColumn}, DoNothing: true}).
				Create(&models.CacheEntry{Key: key, Value: []byte("1"), ExpiresAt: expiry})
			if res.Error != nil || res.RowsAffected == 1 {
				return res.Error
			}
			// A concurrent first hit inserted the row; count on top of it.
			if entry, found, err = lockEntry(tx, key); err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("cache: counter %s vanished", key)
			}
		}

		if entry.ExpiredAt(now) {
			count, expiry = 1, now.Add(window)
		} else {
			current, _ := strconv.ParseInt(string(entry.Value), 10, 64)
			count, expiry = current+1, entry.ExpiresAt
		}
		entry.Value = []byte(strconv.FormatInt(count, 10))
		entry.ExpiresAt = expiry
		return tx.Save(&entry).Error
	})
	if err != nil {
		return 0, 0, err
	}

	return count, expiry.Sub(now), nil
}

func lockEntry(tx *gorm.DB, key string) (models.CacheEntry, bool, error) {
	var entry models.CacheEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(clause.Eq{Column: keyColumn, Value: key}).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entry, false, nil
	}
	return entry, err == nil, err
}

// Set upserts the value for a given key with expiry. A non-positive ttl never expires.
func (s *DatabaseStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return errDatabaseStoreNil
	}

	var expiry time.Time
	if ttl > 0 {
		expiry = s.now().Add(ttl)
	}

	entry := models.CacheEntry{
		Key:       key,
		Value:     value,
		ExpiresAt: expiry,
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{keyColumn},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).Create(&entry).Error
}

// Get retrieves a value by key, respecting expiry.
func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, errDatabaseStoreNil
	}

	var entry models.CacheEntry
	err := s.db.WithContext(ctx).Where(clause.Eq{Column: keyColumn, Value: key}).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if entry.ExpiredAt(s.now()) {
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}

	return entry.Value, true, nil
}

// Delete removes keys from the store.
func (s *DatabaseStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil {
		return errDatabaseStoreNil
	}
	if len(keys) == 0 {
		return nil
	}

	values := make([]any, len(keys))
	for i, key := range keys {
		values[i] = key
	}
	return s.db.WithContext(ctx).
		Where(clause.IN{Column: keyColumn, Values: values}).
		Delete(&models.CacheEntry{}).Error
}

// DeletePrefix removes every key starting with prefix.
func (s *DatabaseStore) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	if s == nil {
		return 0, errDatabaseStoreNil
	}

	res := s.db.WithContext(ctx).
		Where(clause.Expr{SQL: "? LIKE ? ESCAPE '!'", Vars: []any{keyColumn, escapeLike(prefix) + "%"}}).
		Delete(&models.CacheEntry{})
	return res.RowsAffected, res.Error
}

// PurgeExpired drops entries whose expiry has passed. Redis evicts on its
// own; the relational fallback relies on this being scheduled.
func (s *DatabaseStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, errDatabaseStoreNil
	}

	res := s.db.WithContext(ctx).
		Where("expires_at <> ? AND expires_at <= ?", time.Time{}, s.now()).
		Delete(&models.CacheEntry{})
	return res.RowsAffected, res.Error
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}
