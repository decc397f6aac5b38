package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	iauth "github.com/lombeo/sep490-backend-sub003/internal/auth"
	"github.com/lombeo/sep490-backend-sub003/internal/cache"
	"github.com/lombeo/sep490-backend-sub003/internal/database/testutil"
	"github.com/lombeo/sep490-backend-sub003/internal/models"
)

type stubRefresher struct {
	calls int
	err   error
}

func (s *stubRefresher) RefreshDaily(context.Context) (bool, error) {
	s.calls++
	return s.err == nil, s.err
}

type stubPurger struct {
	calls int
	err   error
}

func (s *stubPurger) PurgeExpired(context.Context) (int64, error) {
	s.calls++
	return 0, s.err
}

type stubSessions struct{ calls int }

func (s *stubSessions) CleanupExpired(context.Context) (int64, error) {
	s.calls++
	return 0, nil
}

func TestCleanerRunOnce(t *testing.T) {
	refresher := &stubRefresher{}
	purger := &stubPurger{}

	c := NewCleaner(refresher, purger, WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))))
	require.NoError(t, c.RunOnce(context.Background()))
	require.Equal(t, 1, refresher.calls)
	require.Equal(t, 1, purger.calls)
}

func TestCleanerRunOnceAggregatesFailures(t *testing.T) {
	refresher := &stubRefresher{err: errors.New("directory query failed")}
	purger := &stubPurger{err: errors.New("cache table locked")}

	err := NewCleaner(refresher, purger).RunOnce(context.Background())
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 2)
	require.Equal(t, 1, purger.calls, "a failing job does not skip the next one")
}

func TestCleanerPurgesDatabaseCache(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)
	store := cache.NewDatabaseStore(db, cache.WithDatabaseClock(func() time.Time { return now }))

	require.NoError(t, store.Set(context.Background(), "OTP:1:SignUp", []byte("{}"), time.Nanosecond))
	now = now.Add(time.Second)

	require.NoError(t, NewCleaner(nil, store).RunOnce(context.Background()))

	var remaining int64
	require.NoError(t, db.Table("cache_entries").Count(&remaining).Error)
	require.Zero(t, remaining)
}

func TestCleanerRemovesDeadRefreshTokens(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)
	sessions, err := iauth.NewSessionService(db, iauth.SessionConfig{
		RefreshTokenTTL: time.Hour,
		Clock:           func() time.Time { return now },
	})
	require.NoError(t, err)

	ctx := context.Background()
	var ids []uint
	for _, name := range []string{"expired", "revoked", "live"} {
		user := models.User{Username: name, Email: name + "@example.com", Password: "x"}
		require.NoError(t, db.Create(&user).Error)
		ids = append(ids, user.ID)
	}
	_, err = sessions.Issue(ctx, ids[0])
	require.NoError(t, err)
	now = now.Add(2 * time.Hour)
	_, err = sessions.Issue(ctx, ids[1])
	require.NoError(t, err)
	require.NoError(t, sessions.RevokeUser(ctx, ids[1]))
	_, err = sessions.Issue(ctx, ids[2])
	require.NoError(t, err)

	require.NoError(t, NewCleaner(nil, nil, WithSessionPurger(sessions)).RunOnce(ctx))

	var remaining []models.RefreshToken
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, ids[2], remaining[0].UserID)
}

func TestCleanerStartRegistersJobs(t *testing.T) {
	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	c := NewCleaner(&stubRefresher{}, &stubPurger{}, WithCron(scheduler), WithDirectorySchedule("@every 1h"))

	require.NoError(t, c.Start())
	t.Cleanup(func() { <-c.Stop().Done() })
	require.Len(t, scheduler.Entries(), 2)

	withSessions := cron.New(cron.WithLogger(cron.DiscardLogger))
	c = NewCleaner(nil, nil, WithCron(withSessions), WithSessionPurger(&stubSessions{}))
	require.NoError(t, c.Start())
	t.Cleanup(func() { <-c.Stop().Done() })
	require.Len(t, withSessions.Entries(), 1)
}

func TestCleanerStartRejectsBadSchedule(t *testing.T) {
	c := NewCleaner(&stubRefresher{}, nil, WithDirectorySchedule("every tuesday"))
	require.Error(t, c.Start())
}

func TestCleanerWithoutJobsIsNoop(t *testing.T) {
	c := NewCleaner(nil, nil)
	require.NoError(t, c.Start())
	require.NoError(t, c.RunOnce(context.Background()))
}
