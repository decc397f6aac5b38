package models

import "time"

// CacheEntry is a row of the relational cache fallback used when Redis is
// disabled or unreachable.
type CacheEntry struct {
	Key       string `gorm:"primaryKey;size:256"`
	Value     []byte
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExpiredAt reports whether the entry is stale at now.
func (e *CacheEntry) ExpiredAt(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !e.ExpiresAt.After(now)
}
