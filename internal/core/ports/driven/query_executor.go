package driven

import (
	"context"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

// QueryExecutor runs compiled query plans against the index tables
type QueryExecutor interface {
	// Execute returns the matching latest documents, each once, in result order
	Execute(ctx context.Context, plan *domain.QueryPlan) (*domain.QueryResult, error)
}
