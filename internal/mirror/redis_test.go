package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	srv := miniredis.RunT(t)

	store, err := NewRedisStore(context.Background(), srv.Addr())
	require.NoError(t, err, "expected to connect to miniredis")
	t.Cleanup(func() {
		store.Close()
	})

	return store, srv
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	store, err := NewRedisStore(ctx, "127.0.0.1:1")
	assert.Error(t, err, "expected an error for an unreachable server")
	assert.Nil(t, store)
}

func TestRedisStore_SetGetDelete(t *testing.T) {
	store, srv := newTestRedisStore(t)
	ctx := context.Background()

	err := store.Set(ctx, MembersKey("P1"), []byte(`[{"user_id":"H"}]`), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, srv.TTL(MembersKey("P1")), "expected ttl to be applied")

	got, err := store.Get(ctx, MembersKey("P1"))
	require.NoError(t, err)
	assert.Equal(t, `[{"user_id":"H"}]`, string(got))

	require.NoError(t, store.Set(ctx, PartyKey("P1"), []byte(`{}`), DefaultTTL))
	require.NoError(t, store.Delete(ctx, PartyKey("P1"), MembersKey("P1")))
	assert.False(t, srv.Exists(PartyKey("P1")), "expected party key to be deleted")
	assert.False(t, srv.Exists(MembersKey("P1")), "expected members key to be deleted")

	_, err = store.Get(ctx, MembersKey("P1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Expiry(t *testing.T) {
	store, srv := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	srv.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound, "expected key to expire")
}

func TestRedisStore_DeleteNoKeys(t *testing.T) {
	store, _ := newTestRedisStore(t)
	assert.NoError(t, store.Delete(context.Background()))
}

func TestRedisStore_Ping(t *testing.T) {
	store, srv := newTestRedisStore(t)
	assert.NoError(t, store.Ping(context.Background()))

	srv.Close()
	assert.Error(t, store.Ping(context.Background()), "expected ping to fail once the server is gone")
}
