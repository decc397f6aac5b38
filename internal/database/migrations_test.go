package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lombeo/sep490-backend-sub003/internal/models"
)

func TestAutoMigrateAndSeed(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite", DSN: "file:migrations_seed?mode=memory&cache=shared&_foreign_keys=1"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, AutoMigrateAndSeed(db))

	migrator := db.Migrator()
	for _, table := range []any{&models.User{}, &models.ConstructionPlan{}, &models.PlanEditLock{}, &models.CacheEntry{}, &models.RefreshToken{}} {
		require.True(t, migrator.HasTable(table), "expected table for %T", table)
	}

	// Seeding twice keeps a single system account.
	require.NoError(t, SeedData(db))

	var users []models.User
	require.NoError(t, db.Find(&users).Error)
	require.Len(t, users, 1)
	require.Equal(t, models.SystemUserID, users[0].ID)
	require.Equal(t, "system", users[0].Username)
	require.True(t, users[0].IsVerify)
}
