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

func newTestQueue(t *testing.T) (*Queue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q, err := NewQueue(context.Background(), client, "test", "worker-1")
	require.NoError(t, err)
	return q, client
}

func TestNewQueue_RequiresClient(t *testing.T) {
	_, err := NewQueue(context.Background(), nil, "", "")
	assert.Error(t, err)
}

func TestNewQueue_ExistingGroup(t *testing.T) {
	q, client := newTestQueue(t)

	again, err := NewQueue(context.Background(), client, "test", "worker-2")
	require.NoError(t, err)
	assert.Equal(t, q.group, again.group)
}

func TestQueue_EnqueueDequeueAck(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	task := domain.NewIndexResourceTask(42)
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.DequeueWithTimeout(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, domain.TaskTypeIndexResource, got.Type)
	assert.Equal(t, int64(42), got.ResourceID())
	assert.Equal(t, domain.TaskStatusProcessing, got.Status)
	assert.Equal(t, 1, got.Attempts)

	require.NoError(t, q.Ack(ctx, task.ID))

	stored, err := q.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func TestQueue_EnqueueNil(t *testing.T) {
	q, _ := newTestQueue(t)
	assert.ErrorIs(t, q.Enqueue(context.Background(), nil), domain.ErrInvalidInput)
}

func TestQueue_DequeueEmpty(t *testing.T) {
	q, _ := newTestQueue(t)

	got, err := q.DequeueWithTimeout(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueue_NackRetries(t *testing.T) {
	ctx := context.Background()
	q, client := newTestQueue(t)

	task := domain.NewReindexTask(domain.IndexFilter{PackageID: "seismology"})
	require.NoError(t, q.Enqueue(ctx, task))
	_, err := q.DequeueWithTimeout(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, q.Nack(ctx, task.ID, "database unavailable"))

	stored, err := q.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, stored.Status)
	assert.Equal(t, "database unavailable", stored.Error)
	assert.True(t, stored.ScheduledFor.After(time.Now()))

	members, err := client.ZRange(ctx, q.scheduled, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{task.ID}, members)

	length, err := client.XLen(ctx, q.stream).Result()
	require.NoError(t, err)
	assert.Zero(t, length)
}

func TestQueue_NackExhausted(t *testing.T) {
	ctx := context.Background()
	q, client := newTestQueue(t)

	task := domain.NewIndexResourceTask(7)
	task.MaxAttempts = 1
	require.NoError(t, q.Enqueue(ctx, task))
	_, err := q.DequeueWithTimeout(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, q.Nack(ctx, task.ID, "parse error"))

	stored, err := q.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Equal(t, "parse error", stored.Error)

	count, err := client.ZCard(ctx, q.scheduled).Result()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestQueue_ScheduledTaskPromotion(t *testing.T) {
	ctx := context.Background()
	q, client := newTestQueue(t)

	task := domain.NewIndexResourceTask(3)
	task.ScheduledFor = time.Now().Add(time.Hour)
	require.NoError(t, q.Enqueue(ctx, task))

	length, err := client.XLen(ctx, q.stream).Result()
	require.NoError(t, err)
	assert.Zero(t, length)

	// make the task due
	require.NoError(t, client.ZAdd(ctx, q.scheduled, redis.Z{Score: 0, Member: task.ID}).Err())
	require.NoError(t, q.promoteScheduledTasks(ctx))

	count, err := client.ZCard(ctx, q.scheduled).Result()
	require.NoError(t, err)
	assert.Zero(t, count)

	got, err := q.DequeueWithTimeout(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
}

func TestQueue_GetTaskNotFound(t *testing.T) {
	q, _ := newTestQueue(t)

	_, err := q.GetTask(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, q.Ack(context.Background(), "missing"), domain.ErrNotFound)
	assert.ErrorIs(t, q.Nack(context.Background(), "missing", "x"), domain.ErrNotFound)
}

func TestQueue_Ping(t *testing.T) {
	q, _ := newTestQueue(t)
	assert.NoError(t, q.Ping(context.Background()))
	assert.NoError(t, q.Close())
}
