package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driving"
	"github.com/custodia-labs/xmlcat/internal/metrics"
)

// Ensure catalogService implements CatalogService
var _ driving.CatalogService = (*catalogService)(nil)

// CatalogConfig holds the dependencies of the catalog service.
// Views, Lock, Queue, Events and Metrics are optional.
type CatalogConfig struct {
	Resources driven.ResourceStore
	Indexes   driven.IndexStore
	Views     driven.IndexViewStore
	Executor  driven.QueryExecutor
	Parser    driven.XMLParser
	Lock      driven.DistributedLock
	Queue     driven.TaskQueue
	Events    driven.EventPublisher
	Metrics   *metrics.Metrics
	Reindex   ReindexConfig
	Logger    *slog.Logger
}

// catalogService implements the CatalogService interface
type catalogService struct {
	resources driven.ResourceStore
	indexes   driven.IndexStore
	views     driven.IndexViewStore
	parser    driven.XMLParser
	queue     driven.TaskQueue
	events    driven.EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	registry  *IndexRegistry
	indexer   *Indexer
	engine    *QueryEngine
	reindexer *Reindexer
}

// NewCatalogService wires the registry, indexer, query engine and reindexer
// into the catalog facade
func NewCatalogService(cfg CatalogConfig) driving.CatalogService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "catalog")

	registry := NewIndexRegistry(cfg.Indexes, cfg.Resources, cfg.Parser)
	indexer := NewIndexer(registry, cfg.Indexes, cfg.Parser, logger)
	return &catalogService{
		resources: cfg.Resources,
		indexes:   cfg.Indexes,
		views:     cfg.Views,
		parser:    cfg.Parser,
		queue:     cfg.Queue,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		logger:    logger,
		registry:  registry,
		indexer:   indexer,
		engine:    NewQueryEngine(NewCompiler(registry), cfg.Executor, cfg.Resources, logger),
		reindexer: NewReindexer(cfg.Indexes, cfg.Resources, indexer, cfg.Lock, cfg.Reindex, logger),
	}
}

// publish sends an event; failures are logged and never fail the operation
func (s *catalogService) publish(ctx context.Context, event domain.IndexEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish index event", "type", event.Type, "key", event.Key(), "error", err)
	}
}

func (s *catalogService) refreshIndexCount(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	defs, err := s.indexes.ListIndexes(ctx, domain.IndexFilter{})
	if err == nil {
		s.metrics.SetRegisteredIndexes(len(defs))
	}
}

// CreatePackage registers a new package
func (s *catalogService) CreatePackage(ctx context.Context, id, description string) (*domain.Package, error) {
	if err := domain.ValidateIdentifier("package id", id); err != nil {
		return nil, err
	}
	pkg := &domain.Package{ID: id, Description: description, CreatedAt: time.Now()}
	if err := s.resources.CreatePackage(ctx, pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

// ListPackages returns all packages
func (s *catalogService) ListPackages(ctx context.Context) ([]*domain.Package, error) {
	return s.resources.ListPackages(ctx)
}

// DeletePackage removes a package and its package-wide indexes.
// Returns ErrInUse while resource types remain.
func (s *catalogService) DeletePackage(ctx context.Context, id string) error {
	if _, err := s.resources.GetPackage(ctx, id); err != nil {
		return err
	}
	rts, err := s.resources.ListResourceTypes(ctx, id)
	if err != nil {
		return err
	}
	if len(rts) > 0 {
		return fmt.Errorf("%w: package %s has %d resource types", domain.ErrInUse, id, len(rts))
	}
	if _, err := s.DeleteAllIndexes(ctx, id, ""); err != nil {
		return err
	}
	return s.resources.DeletePackage(ctx, id)
}

// CreateResourceType registers a resource type within a package
func (s *catalogService) CreateResourceType(ctx context.Context, packageID string, req driving.CreateResourceTypeRequest) (*domain.ResourceType, error) {
	if err := domain.ValidateIdentifier("resource type id", req.ID); err != nil {
		return nil, err
	}
	rt := &domain.ResourceType{
		PackageID:         packageID,
		ID:                req.ID,
		VersionControlled: req.VersionControlled,
		Description:       req.Description,
		CreatedAt:         time.Now(),
	}
	if err := s.resources.CreateResourceType(ctx, rt); err != nil {
		return nil, err
	}
	return rt, nil
}

// ListResourceTypes returns the resource types of a package
func (s *catalogService) ListResourceTypes(ctx context.Context, packageID string) ([]*domain.ResourceType, error) {
	if _, err := s.resources.GetPackage(ctx, packageID); err != nil {
		return nil, err
	}
	return s.resources.ListResourceTypes(ctx, packageID)
}

// DeleteResourceType removes a resource type with its indexes and view.
// Returns ErrInUse while resources remain.
func (s *catalogService) DeleteResourceType(ctx context.Context, packageID, id string) error {
	if _, err := s.resources.GetResourceType(ctx, packageID, id); err != nil {
		return err
	}
	existing, err := s.resources.ListResources(ctx, packageID, id)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: resource type /%s/%s has %d resources", domain.ErrInUse, packageID, id, len(existing))
	}
	if _, err := s.DeleteAllIndexes(ctx, packageID, id); err != nil {
		return err
	}
	if s.views != nil {
		if err := s.views.DropIndexView(ctx, packageID, id); err != nil {
			return err
		}
	}
	return s.resources.DeleteResourceType(ctx, packageID, id)
}

// AddResource stores and indexes a new document. If indexing fails the
// resource is removed again.
func (s *catalogService) AddResource(ctx context.Context, packageID, resourceTypeID, name string, data []byte) (*domain.Resource, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = uuid.NewString()
	}
	if err := domain.ValidateResourceName(name); err != nil {
		return nil, err
	}
	rt, err := s.resources.GetResourceType(ctx, packageID, resourceTypeID)
	if err != nil {
		return nil, fmt.Errorf("resource type /%s/%s: %w", packageID, resourceTypeID, err)
	}
	tree, err := s.parser.Parse(data)
	if err != nil {
		return nil, err
	}

	res := &domain.Resource{
		PackageID:         packageID,
		ResourceTypeID:    resourceTypeID,
		Name:              name,
		VersionControlled: rt.VersionControlled,
	}
	doc := &domain.Document{Data: data, Tree: tree}
	if err := s.resources.CreateResource(ctx, res, doc); err != nil {
		return nil, err
	}

	stats, err := s.indexer.IndexDocument(ctx, res, doc)
	if err != nil {
		if derr := s.resources.DeleteResource(context.WithoutCancel(ctx), res.ID); derr != nil {
			s.logger.Error("failed to remove resource after indexing error", "resource", res.Path(), "error", derr)
		}
		return nil, err
	}
	s.indexed(ctx, res, doc, stats)

	res.Document = doc
	return res, nil
}

func (s *catalogService) indexed(ctx context.Context, res *domain.Resource, doc *domain.Document, stats IndexStats) {
	s.metrics.ObserveIndexed(stats.Elements, stats.Skipped)

	event := domain.NewIndexEvent(domain.EventResourceIndexed, res.PackageID, res.ResourceTypeID)
	event.ResourceName = res.Name
	event.DocumentID = doc.ID
	event.Elements = stats.Elements
	s.publish(ctx, event)
}

// GetResource returns a resource with one revision of its document
func (s *catalogService) GetResource(ctx context.Context, packageID, resourceTypeID, name string, revision int) (*domain.Resource, error) {
	res, err := s.resources.GetResource(ctx, packageID, resourceTypeID, name)
	if err != nil {
		return nil, err
	}
	doc, err := s.resources.GetDocument(ctx, res.ID, revision)
	if err != nil {
		return nil, fmt.Errorf("revision %d of %s: %w", revision, res.Path(), err)
	}
	loaded := *res
	loaded.Document = doc
	return &loaded, nil
}

// ListResources returns the resources of a resource type
func (s *catalogService) ListResources(ctx context.Context, packageID, resourceTypeID string) ([]*domain.Resource, error) {
	return s.resources.ListResources(ctx, packageID, resourceTypeID)
}

// GetResourceHistory returns every revision of a resource
func (s *catalogService) GetResourceHistory(ctx context.Context, packageID, resourceTypeID, name string) ([]*domain.Document, error) {
	res, err := s.resources.GetResource(ctx, packageID, resourceTypeID, name)
	if err != nil {
		return nil, err
	}
	return s.resources.ListRevisions(ctx, res.ID)
}

// ModifyResource stores new content: a new revision for version-controlled
// resources, an in-place replacement otherwise. Elements are extracted before
// anything is written. If storing them fails, replaced content is restored;
// a new revision stays but the previous revision keeps its elements.
func (s *catalogService) ModifyResource(ctx context.Context, packageID, resourceTypeID, name string, data []byte) (*domain.Resource, error) {
	res, err := s.resources.GetResource(ctx, packageID, resourceTypeID, name)
	if err != nil {
		return nil, err
	}
	tree, err := s.parser.Parse(data)
	if err != nil {
		return nil, err
	}
	previous, err := s.resources.GetDocument(ctx, res.ID, 0)
	if err != nil {
		return nil, err
	}

	doc := &domain.Document{Data: data, Tree: tree}
	elements, stats, err := s.indexer.Extract(ctx, res, doc)
	if err != nil {
		return nil, err
	}

	if res.VersionControlled {
		if err := s.resources.AddRevision(ctx, res, doc); err != nil {
			return nil, err
		}
		if stats, err = s.indexer.Store(ctx, res, doc, elements, stats); err != nil {
			return nil, err
		}
		if err := s.indexes.DeleteDocumentElements(ctx, previous.ID); err != nil {
			return nil, err
		}
	} else {
		doc.ID = previous.ID
		doc.ResourceID = previous.ResourceID
		doc.Revision = previous.Revision
		doc.CreatedAt = previous.CreatedAt
		if err := s.resources.ReplaceDocument(ctx, doc); err != nil {
			return nil, err
		}
		if stats, err = s.indexer.Store(ctx, res, doc, elements, stats); err != nil {
			if rerr := s.resources.ReplaceDocument(context.WithoutCancel(ctx), previous); rerr != nil {
				s.logger.Error("failed to restore resource after indexing error", "resource", res.Path(), "error", rerr)
			}
			return nil, err
		}
	}
	s.indexed(ctx, res, doc, stats)

	updated := *res
	updated.Document = doc
	return &updated, nil
}

// RenameResource changes the name of a resource
func (s *catalogService) RenameResource(ctx context.Context, packageID, resourceTypeID, name, newName string) error {
	newName = strings.TrimSpace(newName)
	if err := domain.ValidateResourceName(newName); err != nil {
		return err
	}
	res, err := s.resources.GetResource(ctx, packageID, resourceTypeID, name)
	if err != nil {
		return err
	}
	return s.resources.RenameResource(ctx, res.ID, newName)
}

// DeleteResource removes a resource, its revisions and its index elements
func (s *catalogService) DeleteResource(ctx context.Context, packageID, resourceTypeID, name string) error {
	res, err := s.resources.GetResource(ctx, packageID, resourceTypeID, name)
	if err != nil {
		return err
	}
	revisions, err := s.resources.ListRevisions(ctx, res.ID)
	if err != nil {
		return err
	}
	for _, doc := range revisions {
		if err := s.indexes.DeleteDocumentElements(ctx, doc.ID); err != nil {
			return err
		}
	}
	if err := s.resources.DeleteResource(ctx, res.ID); err != nil {
		return err
	}

	event := domain.NewIndexEvent(domain.EventResourceUnindexed, res.PackageID, res.ResourceTypeID)
	event.ResourceName = res.Name
	s.publish(ctx, event)
	return nil
}

// IndexResource recomputes every index of the latest revision of a resource
func (s *catalogService) IndexResource(ctx context.Context, resourceID int64) (int, error) {
	res, err := s.resources.GetResourceByID(ctx, resourceID)
	if err != nil {
		return 0, err
	}
	doc, err := s.resources.GetDocument(ctx, res.ID, 0)
	if err != nil {
		return 0, err
	}
	stats, err := s.indexer.IndexDocument(ctx, res, doc)
	if err != nil {
		return 0, err
	}
	s.indexed(ctx, res, doc, stats)
	return stats.Elements, nil
}

// IndexResourceAsync enqueues an index_resource task
func (s *catalogService) IndexResourceAsync(ctx context.Context, packageID, resourceTypeID, name string) (*domain.Task, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("%w: task queue", domain.ErrNotConfigured)
	}
	res, err := s.resources.GetResource(ctx, packageID, resourceTypeID, name)
	if err != nil {
		return nil, err
	}
	task := domain.NewIndexResourceTask(res.ID)
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// GetIndexData returns every index value of the latest revision keyed by index label
func (s *catalogService) GetIndexData(ctx context.Context, packageID, resourceTypeID, name string) (map[string][]domain.IndexValue, error) {
	res, err := s.resources.GetResource(ctx, packageID, resourceTypeID, name)
	if err != nil {
		return nil, err
	}
	doc, err := s.resources.GetDocument(ctx, res.ID, 0)
	if err != nil {
		return nil, err
	}
	elements, err := s.indexes.ListDocumentElements(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	labels := map[int64]string{}
	data := map[string][]domain.IndexValue{}
	for _, e := range elements {
		label, ok := labels[e.IndexID]
		if !ok {
			def, err := s.indexes.GetIndex(ctx, e.IndexID)
			if err != nil {
				return nil, err
			}
			label = def.Label
			labels[e.IndexID] = label
		}
		data[label] = append(data[label], e.Key)
	}
	return data, nil
}

// RegisterIndex validates and stores an index definition
func (s *catalogService) RegisterIndex(ctx context.Context, req driving.RegisterIndexRequest) (*domain.IndexDefinition, error) {
	def, err := s.registry.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logger.Info("index registered", "index_id", def.ID, "path", def.Path(), "type", def.Type, "label", def.Label)
	s.refreshIndexCount(ctx)

	event := domain.NewIndexEvent(domain.EventIndexRegistered, def.PackageID, def.ResourceTypeID)
	event.IndexID = def.ID
	s.publish(ctx, event)
	return def, nil
}

// GetIndex returns one index definition
func (s *catalogService) GetIndex(ctx context.Context, id int64) (*domain.IndexDefinition, error) {
	return s.indexes.GetIndex(ctx, id)
}

// ListIndexes returns the definitions matching filter
func (s *catalogService) ListIndexes(ctx context.Context, filter domain.IndexFilter) ([]*domain.IndexDefinition, error) {
	return s.indexes.ListIndexes(ctx, filter)
}

// RemoveIndex deletes a definition and its elements
func (s *catalogService) RemoveIndex(ctx context.Context, id int64) error {
	def, err := s.indexes.GetIndex(ctx, id)
	if err != nil {
		return err
	}
	if err := s.indexes.DeleteIndex(ctx, id); err != nil {
		return err
	}
	s.logger.Info("index removed", "index_id", id, "path", def.Path())
	s.refreshIndexCount(ctx)

	event := domain.NewIndexEvent(domain.EventIndexRemoved, def.PackageID, def.ResourceTypeID)
	event.IndexID = id
	s.publish(ctx, event)
	return nil
}

// DeleteAllIndexes deletes every definition of a package, optionally narrowed
// to one resource type
func (s *catalogService) DeleteAllIndexes(ctx context.Context, packageID, resourceTypeID string) (int, error) {
	if packageID == "" {
		return 0, fmt.Errorf("%w: package_id is required", domain.ErrInvalidInput)
	}
	defs, err := s.indexes.ListIndexes(ctx, domain.IndexFilter{PackageID: packageID, ResourceTypeID: resourceTypeID})
	if err != nil {
		return 0, err
	}
	for _, def := range defs {
		if err := s.RemoveIndex(ctx, def.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return 0, err
		}
	}
	return len(defs), nil
}

// FlushIndex drops the elements of an index and keeps the definition
func (s *catalogService) FlushIndex(ctx context.Context, id int64) (int64, error) {
	def, err := s.indexes.GetIndex(ctx, id)
	if err != nil {
		return 0, err
	}
	removed, err := s.indexes.FlushIndex(ctx, id)
	if err != nil {
		return 0, err
	}

	event := domain.NewIndexEvent(domain.EventIndexFlushed, def.PackageID, def.ResourceTypeID)
	event.IndexID = id
	event.Elements = int(removed)
	s.publish(ctx, event)
	return removed, nil
}

// Reindex recomputes the elements of every definition matching filter
func (s *catalogService) Reindex(ctx context.Context, filter domain.IndexFilter) (*domain.ReindexResult, error) {
	start := time.Now()
	result, err := s.reindexer.Reindex(ctx, filter)
	if err != nil {
		s.metrics.ObserveReindex("failed", time.Since(start))
		return nil, err
	}
	s.metrics.ObserveReindex("completed", result.Duration)

	event := domain.NewIndexEvent(domain.EventIndexReindexed, filter.PackageID, filter.ResourceTypeID)
	event.IndexID = filter.IndexID
	event.Elements = result.Elements
	s.publish(ctx, event)
	return result, nil
}

// ReindexAsync enqueues a reindex task
func (s *catalogService) ReindexAsync(ctx context.Context, filter domain.IndexFilter) (*domain.Task, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("%w: task queue", domain.ErrNotConfigured)
	}
	task := domain.NewReindexTask(filter)
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return nil, err
	}
	s.logger.Info("reindex task enqueued", "task_id", task.ID)
	return task, nil
}

// GetTask returns a background task
func (s *catalogService) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("%w: task queue", domain.ErrNotConfigured)
	}
	return s.queue.GetTask(ctx, id)
}

// Query runs a restricted XPath query
func (s *catalogService) Query(ctx context.Context, query string, full bool) (*domain.QueryResult, error) {
	start := time.Now()
	result, err := s.engine.Run(ctx, query, full)
	s.metrics.ObserveQuery(queryOutcome(result, err), time.Since(start), resultCount(result))
	return result, err
}

func queryOutcome(result *domain.QueryResult, err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case err != nil:
		return "error"
	case len(result.Ordered) == 0:
		return "empty"
	}
	return "ok"
}

func resultCount(result *domain.QueryResult) int {
	if result == nil {
		return 0
	}
	return len(result.Ordered)
}

// CreateIndexView creates or replaces the relational view of a resource type
func (s *catalogService) CreateIndexView(ctx context.Context, packageID, resourceTypeID string) error {
	if s.views == nil {
		return fmt.Errorf("%w: index views", domain.ErrNotConfigured)
	}
	if _, err := s.resources.GetResourceType(ctx, packageID, resourceTypeID); err != nil {
		return err
	}
	defs, err := s.registry.Applicable(ctx, packageID, resourceTypeID)
	if err != nil {
		return err
	}
	return s.views.CreateIndexView(ctx, packageID, resourceTypeID, defs)
}

// DropIndexView drops the relational view of a resource type
func (s *catalogService) DropIndexView(ctx context.Context, packageID, resourceTypeID string) error {
	if s.views == nil {
		return fmt.Errorf("%w: index views", domain.ErrNotConfigured)
	}
	return s.views.DropIndexView(ctx, packageID, resourceTypeID)
}
