package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven"
)

const (
	// DefaultNamespace prefixes every key the queue writes
	DefaultNamespace = "xmlcat"

	consumerPrefix = "worker-"

	// claimTimeout is how long a delivered task may stay unacknowledged
	// before another worker claims it
	claimTimeout = 5 * time.Minute

	// taskTTL bounds how long task records outlive their last update
	taskTTL = 24 * time.Hour
)

// Verify interface compliance
var _ driven.TaskQueue = (*Queue)(nil)

// Queue implements TaskQueue using Redis Streams with a consumer group.
// Task records live in plain keys; the stream only carries task IDs.
// Delayed tasks (retries with backoff) wait in a sorted set until due.
type Queue struct {
	client       redis.UniversalClient
	consumerName string

	stream    string
	group     string
	scheduled string
	keyPrefix string
}

// NewQueue creates a Redis-backed task queue and its consumer group.
// consumerName should be unique per worker instance; empty generates one.
func NewQueue(ctx context.Context, client redis.UniversalClient, namespace, consumerName string) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if consumerName == "" {
		consumerName = fmt.Sprintf("%s%d", consumerPrefix, time.Now().UnixNano())
	}

	q := &Queue{
		client:       client,
		consumerName: consumerName,
		stream:       namespace + ":tasks",
		group:        namespace + ":workers",
		scheduled:    namespace + ":scheduled",
		keyPrefix:    namespace + ":task:",
	}

	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !isGroupExistsError(err) {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return q, nil
}

func (q *Queue) taskKey(id string) string    { return q.keyPrefix + id }
func (q *Queue) messageKey(id string) string { return q.keyPrefix + id + ":msg" }

func (q *Queue) streamValues(task *domain.Task) map[string]interface{} {
	return map[string]interface{}{
		"task_id":  task.ID,
		"type":     string(task.Type),
		"priority": task.Priority,
	}
}

// Enqueue stores the task and makes it visible to workers, immediately or
// once its ScheduledFor time has come
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return fmt.Errorf("%w: task is required", domain.ErrInvalidInput)
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.Set(ctx, q.taskKey(task.ID), data, taskTTL)
	if task.ScheduledFor.After(time.Now()) {
		pipe.ZAdd(ctx, q.scheduled, redis.Z{
			Score:  float64(task.ScheduledFor.Unix()),
			Member: task.ID,
		})
	} else {
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: q.stream, Values: q.streamValues(task)})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// DequeueWithTimeout retrieves the next task, waiting up to timeout seconds.
// Returns nil, nil when nothing arrives in time or ctx is done.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	// best effort; a failed promotion is retried on the next poll
	_ = q.promoteScheduledTasks(ctx)

	if task, err := q.claimAbandonedTask(ctx); err == nil && task != nil {
		return task, nil
	}

	// a zero BLOCK waits forever; no timeout means a single non-blocking read
	block := time.Duration(timeout) * time.Second
	if timeout <= 0 {
		block = -1
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumerName,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("read task stream: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}
	return q.deliver(ctx, streams[0].Messages[0])
}

// deliver marks the task of a stream message as processing. Messages whose
// task record is gone are acknowledged and dropped.
func (q *Queue) deliver(ctx context.Context, msg redis.XMessage) (*domain.Task, error) {
	taskID, ok := msg.Values["task_id"].(string)
	if !ok {
		q.drop(ctx, msg.ID)
		return nil, nil
	}
	task, err := q.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		q.drop(ctx, msg.ID)
		return nil, nil
	}

	task.MarkProcessing()
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}
	pipe := q.client.Pipeline()
	pipe.Set(ctx, q.taskKey(task.ID), data, taskTTL)
	pipe.Set(ctx, q.messageKey(task.ID), msg.ID, taskTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("mark task processing: %w", err)
	}
	return task, nil
}

func (q *Queue) drop(ctx context.Context, msgID string) {
	q.client.XAck(ctx, q.stream, q.group, msgID)
	q.client.XDel(ctx, q.stream, msgID)
}

// Ack acknowledges successful completion of a task
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	msgID, err := q.client.Get(ctx, q.messageKey(taskID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("get message id: %w", err)
	}

	task.MarkCompleted()
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	pipe := q.client.Pipeline()
	if msgID != "" {
		pipe.XAck(ctx, q.stream, q.group, msgID)
		pipe.XDel(ctx, q.stream, msgID)
	}
	pipe.Set(ctx, q.taskKey(taskID), data, taskTTL)
	pipe.Del(ctx, q.messageKey(taskID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack task: %w", err)
	}
	return nil
}

// Nack schedules a retry with backoff, or fails the task once its attempts are used up
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	msgID, _ := q.client.Get(ctx, q.messageKey(taskID)).Result()

	pipe := q.client.Pipeline()
	if msgID != "" {
		pipe.XAck(ctx, q.stream, q.group, msgID)
		pipe.XDel(ctx, q.stream, msgID)
	}
	if task.CanRetry() {
		task.Retry(reason)
		pipe.ZAdd(ctx, q.scheduled, redis.Z{
			Score:  float64(task.ScheduledFor.Unix()),
			Member: task.ID,
		})
	} else {
		task.MarkFailed(reason)
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	pipe.Set(ctx, q.taskKey(taskID), data, taskTTL)
	pipe.Del(ctx, q.messageKey(taskID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("nack task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID; ErrNotFound once it is unknown or expired
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := q.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: task %s", domain.ErrNotFound, taskID)
	}
	return task, nil
}

func (q *Queue) loadTask(ctx context.Context, taskID string) (*domain.Task, error) {
	data, err := q.client.Get(ctx, q.taskKey(taskID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	var task domain.Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &task, nil
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close is a no-op; the redis client is shared and closed by its owner.
func (q *Queue) Close() error {
	return nil
}

// promoteScheduledTasks moves due delayed tasks onto the stream
func (q *Queue) promoteScheduledTasks(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, q.scheduled, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", time.Now().Unix()),
	}).Result()
	if err != nil || len(due) == 0 {
		return err
	}

	pipe := q.client.Pipeline()
	for _, taskID := range due {
		pipe.ZRem(ctx, q.scheduled, taskID)
		task, err := q.loadTask(ctx, taskID)
		if err != nil || task == nil {
			continue
		}
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: q.stream, Values: q.streamValues(task)})
	}
	_, err = pipe.Exec(ctx)
	return err
}

// claimAbandonedTask takes over a task delivered to a worker that never
// acknowledged it within claimTimeout
func (q *Queue) claimAbandonedTask(ctx context.Context) (*domain.Task, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Start:  "-",
		End:    "+",
		Count:  10,
		Idle:   claimTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, p := range pending {
		claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   q.stream,
			Group:    q.group,
			Consumer: q.consumerName,
			MinIdle:  claimTimeout,
			Messages: []string{p.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}
		task, err := q.deliver(ctx, claimed[0])
		if err == nil && task != nil {
			return task, nil
		}
	}
	return nil, nil
}

func isGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
