package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type record struct {
	UserID uint   `json:"user_id"`
	Code   string `json:"code"`
}

func TestJSONHelpersRoundTrip(t *testing.T) {
	store, _ := newDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, SetJSON(ctx, store, "OTP:3:EmailVerify", record{UserID: 3, Code: "001122"}, time.Minute))

	got, found, err := GetJSON[record](ctx, store, "OTP:3:EmailVerify")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, record{UserID: 3, Code: "001122"}, got)

	_, found, err = GetJSON[record](ctx, store, "OTP:4:EmailVerify")
	require.NoError(t, err)
	require.False(t, found)
}

func TestGetJSONDecodeFailure(t *testing.T) {
	store, _ := newDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "broken", []byte("{not json"), time.Minute))

	_, found, err := GetJSON[record](ctx, store, "broken")
	require.Error(t, err)
	require.False(t, found)
}
