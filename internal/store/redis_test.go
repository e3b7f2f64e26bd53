package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/keyprint/internal/model"
)

// openTestRedis connects to KEYPRINT_TEST_REDIS_ADDR under a random prefix.
func openTestRedis(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("KEYPRINT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KEYPRINT_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	prefix := "keyprint-test:" + uuid.NewString() + ":"
	st, err := OpenRedis(ctx, RedisOptions{Addr: addr, Prefix: prefix})
	require.NoError(t, err)
	t.Cleanup(func() {
		keys, err := st.rdb.Keys(ctx, prefix+"*").Result()
		if err == nil && len(keys) > 0 {
			_ = st.rdb.Del(ctx, keys...).Err()
		}
		_ = st.Close()
	})
	return st
}

func TestRedisProfileLifecycle(t *testing.T) {
	st := openTestRedis(t)
	ctx := context.Background()

	p, err := st.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, p)

	want := testProfile("alice")
	require.NoError(t, st.SaveProfile(ctx, want))
	got, err := st.GetProfile(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Hold, got.Hold)
	assert.Equal(t, want.DD, got.DD)
	assert.Nil(t, got.UU)

	profiles, err := st.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, profiles, 1)

	require.NoError(t, st.DeleteProfile(ctx, "alice"))
	assert.ErrorIs(t, st.DeleteProfile(ctx, "alice"), ErrProfileNotFound)
}

func TestRedisAttempts(t *testing.T) {
	st := openTestRedis(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, user := range []string{"alice", "bob", "alice"} {
		require.NoError(t, st.RecordAttempt(ctx, model.Attempt{
			ID:       uuid.NewString(),
			UserID:   user,
			At:       base.Add(time.Duration(i) * time.Second),
			Decision: model.DecisionAllow,
		}))
	}

	all, err := st.ListAttempts(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	alice, err := st.ListAttempts(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, alice, 1)
	assert.True(t, base.Add(2*time.Second).Equal(alice[0].At))
}

func TestNewRedisStoreDefaultPrefix(t *testing.T) {
	st := NewRedisStore(nil, "")
	assert.Equal(t, "keyprint:profile:alice", st.profileKey("alice"))
	assert.Equal(t, "keyprint:attempts", st.attemptsKey(""))
	assert.Equal(t, "keyprint:attempts:alice", st.attemptsKey("alice"))
}
