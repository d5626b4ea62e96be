package services

import (
	"context"
	"log/slog"
	"sort"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven"
	"github.com/custodia-labs/xmlcat/internal/xpath"
)

// QueryEngine parses, compiles and executes restricted XPath queries
type QueryEngine struct {
	compiler  *Compiler
	executor  driven.QueryExecutor
	resources driven.ResourceStore
	logger    *slog.Logger
}

// NewQueryEngine creates a QueryEngine
func NewQueryEngine(compiler *Compiler, executor driven.QueryExecutor, resources driven.ResourceStore, logger *slog.Logger) *QueryEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryEngine{
		compiler:  compiler,
		executor:  executor,
		resources: resources,
		logger:    logger,
	}
}

// Run executes a query. With full set, the matched resources are loaded with
// their latest document, in result order.
func (e *QueryEngine) Run(ctx context.Context, query string, full bool) (*domain.QueryResult, error) {
	parsed, err := xpath.ParseQuery(query)
	if err != nil {
		return nil, err
	}

	var result *domain.QueryResult
	if parsed.Predicate == nil && len(parsed.OrderBy) == 0 && !parsed.Location.HasRootNode() {
		result, err = e.listAll(ctx, parsed)
	} else {
		var plan *domain.QueryPlan
		plan, err = e.compiler.Compile(ctx, parsed)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("query compiled",
			"query", parsed.String(),
			"filter", domain.DescribeCondition(plan.Filter),
			"order_terms", len(plan.OrderBy))
		result, err = e.executor.Execute(ctx, plan)
	}
	if err != nil {
		return nil, err
	}

	if full {
		if err := e.loadResources(ctx, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// listAll answers a query without predicates, ordering or root node straight
// from the resource catalog
func (e *QueryEngine) listAll(ctx context.Context, q *domain.ParsedQuery) (*domain.QueryResult, error) {
	latest, err := e.resources.ListLatestDocuments(ctx, q.Location.PackageID, q.Location.ResourceTypeID)
	if err != nil {
		return nil, err
	}
	sort.Slice(latest, func(i, j int) bool { return latest[i].Document.ID < latest[j].Document.ID })

	if q.Offset >= len(latest) {
		latest = nil
	} else {
		latest = latest[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(latest) {
		latest = latest[:q.Limit]
	}

	result := &domain.QueryResult{
		Ordered: make([]int64, 0, len(latest)),
		Rows:    make(map[int64]*domain.ResultRow, len(latest)),
	}
	for _, res := range latest {
		result.Ordered = append(result.Ordered, res.Document.ID)
		result.Rows[res.Document.ID] = &domain.ResultRow{
			DocumentID:     res.Document.ID,
			ResourceID:     res.ID,
			PackageID:      res.PackageID,
			ResourceTypeID: res.ResourceTypeID,
			ResourceName:   res.Name,
			Revision:       res.Document.Revision,
		}
	}
	return result, nil
}

func (e *QueryEngine) loadResources(ctx context.Context, result *domain.QueryResult) error {
	result.Resources = make([]*domain.Resource, 0, len(result.Ordered))
	for _, id := range result.Ordered {
		row := result.Rows[id]
		res, err := e.resources.GetResourceByID(ctx, row.ResourceID)
		if err != nil {
			return err
		}
		doc, err := e.resources.GetDocument(ctx, row.ResourceID, row.Revision)
		if err != nil {
			return err
		}
		loaded := *res
		loaded.Document = doc
		result.Resources = append(result.Resources, &loaded)
	}
	return nil
}
