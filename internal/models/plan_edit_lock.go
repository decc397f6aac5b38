package models

import "time"

// PlanEditLock records which user currently edits a construction plan. A lock
// is active while it is not deleted and LockExpiresAt lies in the future.
type PlanEditLock struct {
	BaseModel

	PlanID         uint      `gorm:"index;not null" json:"plan_id"`
	UserID         uint      `gorm:"index;not null" json:"user_id"`
	LockAcquiredAt time.Time `gorm:"not null" json:"lock_acquired_at"`
	LockExpiresAt  time.Time `gorm:"index;not null" json:"lock_expires_at"`

	Plan *ConstructionPlan `gorm:"foreignKey:PlanID;constraint:OnDelete:CASCADE" json:"-"`
	User *User             `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// ActiveAt reports whether the lock still holds at the given instant.
func (l *PlanEditLock) ActiveAt(now time.Time) bool {
	return l != nil && !l.Deleted && l.LockExpiresAt.After(now)
}
