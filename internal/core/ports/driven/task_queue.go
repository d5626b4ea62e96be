package driven

import (
	"context"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

// TaskQueue carries reindex and index_resource tasks from the API to the
// workers. Redis streams back it when redis is configured, a postgres table
// otherwise.
type TaskQueue interface {
	// Enqueue stores a pending task. Higher priority and earlier scheduled
	// tasks are handed out first.
	Enqueue(ctx context.Context, task *domain.Task) error

	// DequeueWithTimeout claims the next ready task, waiting at most timeout
	// seconds. A claimed task is in processing state and invisible to other
	// consumers. It returns nil, nil when nothing arrived in time.
	DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error)

	// Ack marks a claimed task completed.
	Ack(ctx context.Context, taskID string) error

	// Nack records reason and puts the task back for another attempt, or
	// marks it failed once its attempts are used up.
	Nack(ctx context.Context, taskID string, reason string) error

	// GetTask returns a task in any state, for status polling.
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)

	Ping(ctx context.Context) error
	Close() error
}
