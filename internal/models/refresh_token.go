package models

import "time"

// RefreshToken lets a signed-in user mint new access tokens. Each user holds
// at most one; signing in again replaces it.
type RefreshToken struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	User       *User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Token      string     `gorm:"uniqueIndex;size:128;not null" json:"-"`
	ExpiresAt  time.Time  `gorm:"index;not null" json:"expires_at"`
	LastUsedAt time.Time  `json:"last_used_at"`
	RevokedAt  *time.Time `json:"revoked_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// UsableAt reports whether the token may still be exchanged at now.
func (t *RefreshToken) UsableAt(now time.Time) bool {
	return t != nil && t.RevokedAt == nil && t.ExpiresAt.After(now)
}
