package registration

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/healthfirst-portals/internal/portal"
	"github.com/wolfman30/healthfirst-portals/internal/wizard"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func sampleSession() *Session {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return &Session{
		ID:     "sess-1",
		Portal: portal.Patient,
		State: wizard.State{
			Step:   1,
			Form:   wizard.FormRecord{"firstName": "Ana", "city": ""},
			Errors: wizard.ErrorMap{"city": "City is required"},
			Status: wizard.StatusIdle,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRedisStoreRoundTripAndExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	_, err := store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.Save(ctx, sampleSession(), time.Minute))
	assert.True(t, mr.Exists("registration:session:sess-1"))

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, sampleSession(), got)

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStoreDelete(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSession(), time.Minute))
	require.NoError(t, store.Delete(ctx, "sess-1"))
	_, err := store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisLockerIsExclusive(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewRedisLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "lock:a", time.Second)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "lock:a", time.Second)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))
	again, err := locker.Acquire(ctx, "lock:a", time.Second)
	require.NoError(t, err)

	// An expired holder must not release the new owner's lock.
	mr.FastForward(2 * time.Second)
	_, err = locker.Acquire(ctx, "lock:a", time.Second)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
	assert.True(t, mr.Exists("lock:a"))
}

func TestMemoryStoreExpiresAndCopies(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	sess := sampleSession()
	require.NoError(t, store.Save(ctx, sess, time.Minute))
	sess.State.Form["firstName"] = "changed"

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.State.Form["firstName"])

	now = now.Add(time.Minute)
	_, err = store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryLockerExpiry(t *testing.T) {
	locker := NewMemoryLocker()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	_, err = locker.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, ErrLockHeld)

	now = now.Add(2 * time.Second)
	_, err = locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	require.NoError(t, stale(ctx))
	_, err = locker.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, ErrLockHeld)
}
