package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lombeo/sep490-backend-sub003/internal/database/testutil"
	"github.com/lombeo/sep490-backend-sub003/internal/models"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func setupSessionService(t *testing.T) (*gorm.DB, *SessionService, *testClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &testClock{now: time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)}

	svc, err := NewSessionService(db, SessionConfig{Clock: clock.Now})
	require.NoError(t, err)
	return db, svc, clock
}

func createTestUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()
	user := models.User{Username: username, Email: username + "@example.com", Password: "x", IsVerify: true}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func TestNewSessionServiceDefaults(t *testing.T) {
	_, err := NewSessionService(nil, SessionConfig{})
	require.Error(t, err)

	_, svc, _ := setupSessionService(t)
	require.Equal(t, DefaultRefreshTokenTTL, svc.TTL())
}

func TestIssueStoresRefreshToken(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "hoa")

	session, err := svc.Issue(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	require.True(t, session.ExpiresAt.Equal(clock.Now().Add(7*24*time.Hour)))

	var stored models.RefreshToken
	require.NoError(t, db.Where("user_id = ?", user.ID).Take(&stored).Error)
	require.Equal(t, session.Token, stored.Token)
	require.Nil(t, stored.RevokedAt)
}

func TestIssueReplacesPreviousToken(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "khanh")
	ctx := context.Background()

	first, err := svc.Issue(ctx, user.ID)
	require.NoError(t, err)
	require.NoError(t, svc.RevokeUser(ctx, user.ID))

	clock.Advance(time.Hour)
	second, err := svc.Issue(ctx, user.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	var count int64
	require.NoError(t, db.Model(&models.RefreshToken{}).Where("user_id = ?", user.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)

	_, err = svc.Validate(ctx, first.Token)
	require.ErrorIs(t, err, ErrSessionNotFound)

	session, err := svc.Validate(ctx, second.Token)
	require.NoError(t, err, "signing in again clears the revocation")
	require.Equal(t, user.ID, session.UserID)
}

func TestValidateRecordsUse(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "minh")
	ctx := context.Background()

	issued, err := svc.Issue(ctx, user.ID)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	session, err := svc.Validate(ctx, " "+issued.Token+" ")
	require.NoError(t, err)
	require.True(t, session.LastUsedAt.Equal(clock.Now()))

	_, err = svc.Validate(ctx, "")
	require.ErrorIs(t, err, ErrSessionInvalidToken)
	_, err = svc.Validate(ctx, "unknown")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestValidateRejectsRevokedAndExpired(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	ctx := context.Background()

	revoked, err := svc.Issue(ctx, alice.ID)
	require.NoError(t, err)
	expiring, err := svc.Issue(ctx, bob.ID)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeUser(ctx, alice.ID))
	_, err = svc.Validate(ctx, revoked.Token)
	require.ErrorIs(t, err, ErrSessionRevoked)

	clock.Advance(DefaultRefreshTokenTTL)
	_, err = svc.Validate(ctx, expiring.Token)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestCleanupExpiredSessions(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	ctx := context.Background()

	for _, name := range []string{"an", "binh", "chi"} {
		user := createTestUser(t, db, name)
		_, err := svc.Issue(ctx, user.ID)
		require.NoError(t, err)
		if name == "binh" {
			require.NoError(t, svc.RevokeUser(ctx, user.ID))
		}
		if name == "an" {
			clock.Advance(24 * time.Hour)
		}
	}

	clock.Advance(DefaultRefreshTokenTTL - time.Hour)
	removed, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	var remaining []models.RefreshToken
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
}
