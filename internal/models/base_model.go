package models

import (
	"time"

	"gorm.io/gorm"
)

// SystemUserID is the actor recorded for changes made by background jobs.
const SystemUserID uint = 1

// BaseModel provides shared audit fields for all persistent models. Rows are
// soft deleted through the Deleted flag rather than gorm.DeletedAt so that
// queries decide explicitly whether they want tombstoned rows.
type BaseModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Deleted   bool      `gorm:"index;default:false" json:"-"`
	Creator   uint      `json:"creator"`
	Updater   uint      `json:"updater"`
}

// BeforeCreate defaults the updater to the creator.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.Updater == 0 {
		m.Updater = m.Creator
	}
	return nil
}

// Touch stamps the row as modified by actor at now.
func (m *BaseModel) Touch(actor uint, now time.Time) {
	m.Updater = actor
	m.UpdatedAt = now
}
