package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lombeo/sep490-backend-sub003/internal/database/testutil"
	"github.com/lombeo/sep490-backend-sub003/internal/models"
)

func TestNewUserDirectoryRequiresDB(t *testing.T) {
	_, err := NewUserDirectory(nil, nil)
	require.Error(t, err)
}

func TestUserDirectoryLoadAndLookup(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	ctx := context.Background()

	verified := models.User{Username: "linh", Email: "Linh@Example.com", Password: "x", IsVerify: true}
	pending := models.User{Username: "minh", Email: "minh@example.com", Password: "x"}
	removed := models.User{Username: "old", Email: "old@example.com", Password: "x", IsVerify: true}
	removed.Deleted = true
	require.NoError(t, db.Create(&verified).Error)
	require.NoError(t, db.Create(&pending).Error)
	require.NoError(t, db.Create(&removed).Error)

	dir, err := NewUserDirectory(db, nil)
	require.NoError(t, err)
	require.NoError(t, dir.Load(ctx))
	require.Equal(t, 3, dir.Len()) // system, linh, minh

	user, ok := dir.FindVerifiedByEmail("  linh@example.COM ")
	require.True(t, ok)
	require.Equal(t, verified.ID, user.ID)

	_, ok = dir.FindVerifiedByEmail("minh@example.com")
	require.False(t, ok)

	_, ok = dir.FindVerifiedByEmail("old@example.com")
	require.False(t, ok)

	got, ok := dir.Get(pending.ID)
	require.True(t, ok)
	require.Equal(t, "minh", got.Username)
}

func TestUserDirectoryUpsert(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	ctx := context.Background()

	user := models.User{Username: "lan", Email: "lan@example.com", Password: "x"}
	require.NoError(t, db.Create(&user).Error)

	dir, err := NewUserDirectory(db, nil)
	require.NoError(t, err)
	require.NoError(t, dir.Load(ctx))

	require.NoError(t, db.Model(&user).Updates(map[string]any{"is_verify": true, "email": "lan.tran@example.com"}).Error)
	require.NoError(t, dir.Upsert(ctx, user.ID))

	_, ok := dir.FindVerifiedByEmail("lan@example.com")
	require.False(t, ok)
	found, ok := dir.FindVerifiedByEmail("lan.tran@example.com")
	require.True(t, ok)
	require.Equal(t, user.ID, found.ID)

	require.NoError(t, db.Model(&user).Update("deleted", true).Error)
	require.NoError(t, dir.Upsert(ctx, user.ID))
	_, ok = dir.Get(user.ID)
	require.False(t, ok)
}

func TestUserDirectoryRefreshDaily(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	dir, err := NewUserDirectory(db, NewDayTracker(func() time.Time { return now }))
	require.NoError(t, err)

	refreshed, err := dir.RefreshDaily(ctx)
	require.NoError(t, err)
	require.True(t, refreshed)
	require.Equal(t, 1, dir.Len())

	require.NoError(t, db.Create(&models.User{Username: "hoa", Email: "hoa@example.com", Password: "x"}).Error)

	refreshed, err = dir.RefreshDaily(ctx)
	require.NoError(t, err)
	require.False(t, refreshed)
	require.Equal(t, 1, dir.Len())

	now = now.Add(24 * time.Hour)
	refreshed, err = dir.RefreshDaily(ctx)
	require.NoError(t, err)
	require.True(t, refreshed)
	require.Equal(t, 2, dir.Len())
}
