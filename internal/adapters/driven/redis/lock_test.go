package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestLock_OwnerIDsAreUnique(t *testing.T) {
	_, client := setupTestRedis(t)

	a, b := NewLock(client, ""), NewLock(client, "")
	assert.NotEmpty(t, a.OwnerID())
	assert.NotEqual(t, a.OwnerID(), b.OwnerID())
}

func TestLock_AcquireWritesPrefixedKey(t *testing.T) {
	mr, client := setupTestRedis(t)
	lock := NewLock(client, "")

	ok, err := lock.Acquire(context.Background(), "reindex:1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	value, err := mr.Get("xmlcat:lock:reindex:1")
	require.NoError(t, err)
	assert.Equal(t, lock.OwnerID(), value)
	assert.Equal(t, 10*time.Second, mr.TTL("xmlcat:lock:reindex:1"))
}

func TestLock_AcquireIsExclusive(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	a, b := NewLock(client, ""), NewLock(client, "")

	ok, err := a.Acquire(ctx, "reindex:1", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Acquire(ctx, "reindex:1", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// not reentrant either
	ok, err = a.Acquire(ctx, "reindex:1", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// other names are independent
	ok, err = b.Acquire(ctx, "reindex:2", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_ReleaseOnlyByOwner(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	a, b := NewLock(client, ""), NewLock(client, "")

	ok, err := a.Acquire(ctx, "reindex:1", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, b.Release(ctx, "reindex:1"))
	holder, err := a.Holder(ctx, "reindex:1")
	require.NoError(t, err)
	assert.Equal(t, a.OwnerID(), holder)

	require.NoError(t, a.Release(ctx, "reindex:1"))
	holder, err = a.Holder(ctx, "reindex:1")
	require.NoError(t, err)
	assert.Empty(t, holder)

	ok, err = b.Acquire(ctx, "reindex:1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_ReleaseNotHeld(t *testing.T) {
	_, client := setupTestRedis(t)
	assert.NoError(t, NewLock(client, "").Release(context.Background(), "reindex:1"))
}

func TestLock_Expires(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	a, b := NewLock(client, ""), NewLock(client, "")

	ok, err := a.Acquire(ctx, "reindex:1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = b.Acquire(ctx, "reindex:1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_Extend(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	a, b := NewLock(client, "test:"), NewLock(client, "test:")

	err := a.Extend(ctx, "reindex:1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)

	ok, err := a.Acquire(ctx, "reindex:1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, a.Extend(ctx, "reindex:1", time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("test:reindex:1"))

	err = b.Extend(ctx, "reindex:1", time.Hour)
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)
}

func TestLock_Ping(t *testing.T) {
	_, client := setupTestRedis(t)
	assert.NoError(t, NewLock(client, "").Ping(context.Background()))
}
