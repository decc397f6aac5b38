package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lombeo/sep490-backend-sub003/internal/database/testutil"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newDatabaseStore(t *testing.T) (*DatabaseStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)}
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	return NewDatabaseStore(db, WithDatabaseClock(clock.Now)), clock
}

func TestDatabaseStoreSetGetOverwrite(t *testing.T) {
	store, _ := newDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "OTP:7:SignUp", []byte("first"), time.Minute))
	require.NoError(t, store.Set(ctx, "OTP:7:SignUp", []byte("second"), time.Minute))

	value, found, err := store.Get(ctx, "OTP:7:SignUp")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("second"), value)

	_, found, err = store.Get(ctx, "OTP:8:SignUp")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseStoreExpiry(t *testing.T) {
	store, clock := newDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("v"), time.Minute))
	require.NoError(t, store.Set(ctx, "forever", []byte("v"), 0))

	clock.Advance(2 * time.Minute)

	_, found, err := store.Get(ctx, "short")
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = store.Get(ctx, "forever")
	require.NoError(t, err)
	require.True(t, found)
}

func TestDatabaseStoreDeleteAndPrefix(t *testing.T) {
	store, _ := newDatabaseStore(t)
	ctx := context.Background()

	for _, key := range []string{"PLAN_LOCK:1", "PLAN_LOCK:2", "PLANXLOCK:3", "OTP:1:SignUp"} {
		require.NoError(t, store.Set(ctx, key, []byte("x"), time.Hour))
	}

	removed, err := store.DeletePrefix(ctx, "PLAN_LOCK:")
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	_, found, err := store.Get(ctx, "PLANXLOCK:3")
	require.NoError(t, err)
	require.True(t, found, "underscore must not act as a wildcard")

	require.NoError(t, store.Delete(ctx, "OTP:1:SignUp", "missing"))
	_, found, err = store.Get(ctx, "OTP:1:SignUp")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseStorePurgeExpired(t *testing.T) {
	store, clock := newDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("1"), time.Hour))
	require.NoError(t, store.Set(ctx, "c", []byte("1"), 0))

	clock.Advance(10 * time.Minute)

	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)
}

func TestDatabaseStoreIncrementWithTTL(t *testing.T) {
	store, clock := newDatabaseStore(t)
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "rl:forgot:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, ttl)

	clock.Advance(20 * time.Second)
	count, ttl, err = store.IncrementWithTTL(ctx, "rl:forgot:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	require.Equal(t, 40*time.Second, ttl)

	clock.Advance(time.Minute)
	count, _, err = store.IncrementWithTTL(ctx, "rl:forgot:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestDatabaseStoreIncrementCountsConcurrentFirstHit(t *testing.T) {
	store, clock := newDatabaseStore(t)
	ctx := context.Background()
	expiry := clock.Now().Add(45 * time.Second)

	// Another first hit inserts the counter row right before this one does.
	var raced bool
	require.NoError(t, store.db.Callback().Create().Before("gorm:create").Register("test:concurrent_first_hit", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "cache_entries" {
			return
		}
		raced = true
		require.NoError(t, tx.Session(&gorm.Session{NewDB: true}).
			Exec(`INSERT INTO cache_entries ("key", value, expires_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
				"rl:login:5.6.7.8", []byte("1"), expiry, clock.Now(), clock.Now()).Error)
	}))

	count, ttl, err := store.IncrementWithTTL(ctx, "rl:login:5.6.7.8", time.Minute)
	require.NoError(t, err)
	require.True(t, raced)
	require.EqualValues(t, 2, count)
	require.Equal(t, 45*time.Second, ttl)
}

func TestNilDatabaseStore(t *testing.T) {
	var store *DatabaseStore
	_, _, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	require.Nil(t, NewDatabaseStore(nil))
}
