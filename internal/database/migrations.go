package database

import (
	"gorm.io/gorm"

	"github.com/lombeo/sep490-backend-sub003/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.ConstructionPlan{},
		&models.PlanEditLock{},
		&models.CacheEntry{},
		&models.RefreshToken{},
	)
}

// SeedData ensures the system account used as actor by background jobs exists.
// It never signs in: the password column holds no valid bcrypt hash.
func SeedData(db *gorm.DB) error {
	system := models.User{
		BaseModel: models.BaseModel{ID: models.SystemUserID},
		Username:  "system",
		Email:     "system@sep490.local",
		Password:  "!",
		FullName:  "System",
		Role:      models.RoleAdmin,
		IsVerify:  true,
	}

	err := db.Where(&models.User{BaseModel: models.BaseModel{ID: models.SystemUserID}}).
		Attrs(system).
		FirstOrCreate(&models.User{}).Error
	if err != nil {
		return err
	}

	// Postgres sequences do not advance on explicit ids.
	if db.Dialector.Name() == "postgres" {
		return db.Exec("SELECT setval(pg_get_serial_sequence('users', 'id'), GREATEST((SELECT MAX(id) FROM users), 1))").Error
	}
	return nil
}
