package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven"
)

// Indexer is the part of the catalog service the worker drives
type Indexer interface {
	// IndexResource recomputes every index of one resource
	IndexResource(ctx context.Context, resourceID int64) (int, error)

	// Reindex recomputes the elements of every definition matching filter
	Reindex(ctx context.Context, filter domain.IndexFilter) (*domain.ReindexResult, error)
}

// Worker processes tasks from the task queue.
// It runs reindex and index_resource tasks against the catalog.
type Worker struct {
	taskQueue driven.TaskQueue
	indexer   Indexer
	logger    *slog.Logger

	// Configuration
	concurrency    int
	dequeueTimeout int // seconds

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue      driven.TaskQueue
	Indexer        Indexer
	Logger         *slog.Logger
	Concurrency    int // Number of concurrent task processors
	DequeueTimeout int // Seconds to wait for a task before checking again
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	return &Worker{
		taskQueue:      cfg.TaskQueue,
		indexer:        cfg.Indexer,
		logger:         logger.With("component", "worker"),
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
	}
}

// Start begins the worker loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
	)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

// processLoop dequeues and runs tasks until ctx is done or Stop is called
func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Debug("worker goroutine started")

	for !w.stopping(ctx) {
		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			continue
		case err != nil:
			logger.Error("failed to dequeue task", "error", err)
			w.pause(ctx, time.Second)
		case task != nil:
			w.processTask(ctx, task, logger)
		}
	}
	logger.Debug("worker goroutine exiting")
}

func (w *Worker) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *Worker) pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-w.stopCh:
	}
}

// taskHandler runs the work of one task type
type taskHandler func(w *Worker, ctx context.Context, task *domain.Task, logger *slog.Logger) error

var handlers = map[domain.TaskType]taskHandler{
	domain.TaskTypeReindex:       (*Worker).handleReindex,
	domain.TaskTypeIndexResource: (*Worker).handleIndexResource,
}

// processTask runs one task, then acks it or hands it back for retry
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type, "attempt", task.Attempts)
	logger.Info("processing task")

	started := time.Now()
	err := fmt.Errorf("unknown task type: %s", task.Type)
	if handle, ok := handlers[task.Type]; ok {
		err = handle(w, ctx, task, logger)
	}

	if err != nil {
		logger.Error("task failed", "duration", time.Since(started), "error", err)
		if nackErr := w.taskQueue.Nack(ctx, task.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack task", "nack_error", nackErr)
		}
		return
	}

	logger.Info("task completed", "duration", time.Since(started))
	if ackErr := w.taskQueue.Ack(ctx, task.ID); ackErr != nil {
		logger.Error("failed to ack task", "ack_error", ackErr)
	}
}

// handleReindex runs a reindex over the task's filter. Per-document failures
// are logged and do not fail the task; a held index lock does.
func (w *Worker) handleReindex(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	filter := task.Filter()
	result, err := w.indexer.Reindex(ctx, filter)
	if err != nil {
		return err
	}
	attrs := []any{"indexes", result.Indexes, "documents", result.Documents, "elements", result.Elements}
	if len(result.Failures) > 0 {
		logger.Warn("reindex finished with failures", append(attrs, "failed", len(result.Failures))...)
		return nil
	}
	logger.Info("reindex finished", attrs...)
	return nil
}

func (w *Worker) handleIndexResource(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	resourceID := task.ResourceID()
	if resourceID == 0 {
		return fmt.Errorf("%w: task has no resource_id", domain.ErrInvalidInput)
	}

	elements, err := w.indexer.IndexResource(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("index resource %d: %w", resourceID, err)
	}
	logger.Debug("resource indexed", "resource_id", resourceID, "elements", elements)
	return nil
}

// Health reports whether the worker runs and its queue answers
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	h := Health{Running: w.running, QueueHealth: true}
	w.mu.RUnlock()

	if err := w.taskQueue.Ping(ctx); err != nil {
		h.QueueHealth = false
		h.Error = err.Error()
	}
	return h
}
