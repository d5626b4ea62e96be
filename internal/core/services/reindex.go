package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven"
)

// ReindexConfig controls reindex runs
type ReindexConfig struct {
	Concurrency int           // documents indexed in parallel per index
	LockTTL     time.Duration // lifetime of the per-index lock
}

// DefaultReindexConfig returns the default reindex settings
func DefaultReindexConfig() ReindexConfig {
	return ReindexConfig{
		Concurrency: 4,
		LockTTL:     10 * time.Minute,
	}
}

// Reindexer flushes and recomputes the elements of index definitions.
// Each document is written in its own transaction, so a failure leaves the
// documents already indexed in place.
type Reindexer struct {
	indexes   driven.IndexStore
	resources driven.ResourceStore
	indexer   *Indexer
	lock      driven.DistributedLock
	cfg       ReindexConfig
	logger    *slog.Logger
}

// NewReindexer creates a Reindexer. lock may be nil in single-instance deployments.
func NewReindexer(
	indexes driven.IndexStore,
	resources driven.ResourceStore,
	indexer *Indexer,
	lock driven.DistributedLock,
	cfg ReindexConfig,
	logger *slog.Logger,
) *Reindexer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultReindexConfig().LockTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reindexer{
		indexes:   indexes,
		resources: resources,
		indexer:   indexer,
		lock:      lock,
		cfg:       cfg,
		logger:    logger,
	}
}

// LockName is the distributed lock held while an index is rebuilt
func LockName(indexID int64) string {
	return "reindex:" + strconv.FormatInt(indexID, 10)
}

// Reindex rebuilds every definition matching filter
func (r *Reindexer) Reindex(ctx context.Context, filter domain.IndexFilter) (*domain.ReindexResult, error) {
	start := time.Now()
	defs, err := r.indexes.ListIndexes(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := &domain.ReindexResult{}
	for _, def := range defs {
		docs, elements, failures, err := r.reindexOne(ctx, def)
		if err != nil {
			return nil, err
		}
		result.Indexes++
		result.Documents += docs
		result.Elements += elements
		result.Failures = append(result.Failures, failures...)
	}
	result.Duration = time.Since(start)

	r.logger.Info("reindex finished",
		"indexes", result.Indexes,
		"documents", result.Documents,
		"elements", result.Elements,
		"failures", len(result.Failures),
		"duration", result.Duration)
	return result, nil
}

func (r *Reindexer) reindexOne(ctx context.Context, def *domain.IndexDefinition) (int, int, []string, error) {
	if r.lock != nil {
		name := LockName(def.ID)
		acquired, err := r.lock.Acquire(ctx, name, r.cfg.LockTTL)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("acquire %s: %w", name, err)
		}
		if !acquired {
			return 0, 0, nil, fmt.Errorf("%w: index %d is being reindexed", domain.ErrLockNotAcquired, def.ID)
		}
		stop := r.keepLock(ctx, name)
		defer func() {
			stop()
			if err := r.lock.Release(context.WithoutCancel(ctx), name); err != nil {
				r.logger.Warn("failed to release reindex lock", "lock", name, "error", err)
			}
		}()
	}

	flushed, err := r.indexes.FlushIndex(ctx, def.ID)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("flush index %d: %w", def.ID, err)
	}

	latest, err := r.resources.ListLatestDocuments(ctx, def.PackageID, def.ResourceTypeID)
	if err != nil {
		return 0, 0, nil, err
	}

	var (
		mu       sync.Mutex
		elements int
		failures []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, res := range latest {
		g.Go(func() error {
			stats, err := r.indexer.IndexDocumentFor(gctx, def, res.Document)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				failures = append(failures, fmt.Sprintf("%s: %v", res.Path(), err))
				return nil
			}
			elements += stats.Elements
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, nil, err
	}

	r.logger.Debug("index rebuilt",
		"index_id", def.ID,
		"path", def.Path(),
		"flushed", flushed,
		"documents", len(latest),
		"elements", elements)
	return len(latest), elements, failures, nil
}

// keepLock extends a held lock every half TTL until the returned stop
// function is called
func (r *Reindexer) keepLock(ctx context.Context, name string) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(r.cfg.LockTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.lock.Extend(ctx, name, r.cfg.LockTTL); err != nil {
					r.logger.Warn("failed to extend reindex lock", "lock", name, "error", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}
