package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.QueryExecutor = (*QueryExecutor)(nil)

// QueryExecutor runs compiled query plans as a single SQL statement
type QueryExecutor struct {
	db     *DB
	logger *slog.Logger
}

// NewQueryExecutor creates a new QueryExecutor
func NewQueryExecutor(db *DB, logger *slog.Logger) *QueryExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryExecutor{db: db, logger: logger.With("component", "query_executor")}
}

// Execute returns the matching latest documents in result order
func (e *QueryExecutor) Execute(ctx context.Context, plan *domain.QueryPlan) (*domain.QueryResult, error) {
	rendered, err := renderPlan(plan)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("executing query plan", "sql", rendered.SQL, "args", len(rendered.Args))

	rows, err := e.db.QueryContext(ctx, rendered.SQL, rendered.Args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	result := &domain.QueryResult{Rows: make(map[int64]*domain.ResultRow)}
	for rows.Next() {
		row := &domain.ResultRow{}
		keys := make([]*keyScanner, len(plan.OrderBy))
		dest := []any{&row.DocumentID, &row.ResourceID, &row.PackageID, &row.ResourceTypeID, &row.ResourceName, &row.Revision}
		for i, term := range plan.OrderBy {
			keys[i] = newKeyScanner(term.Index.Type)
			dest = append(dest, keys[i].dest())
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, term := range plan.OrderBy {
			value, ok := keys[i].value()
			if !ok {
				continue
			}
			if row.Values == nil {
				row.Values = make(map[string]domain.IndexValue)
			}
			row.Values[term.Index.Path()] = value
		}
		result.Rows[row.DocumentID] = row
		result.Ordered = append(result.Ordered, row.DocumentID)
	}
	return result, rows.Err()
}
