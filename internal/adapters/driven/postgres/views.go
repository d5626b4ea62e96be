package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.IndexViewStore = (*IndexViewStore)(nil)

// IndexViewStore maintains the "/package/resourcetype" views exposing index
// values as columns
type IndexViewStore struct {
	db *DB
}

// NewIndexViewStore creates a new IndexViewStore
func NewIndexViewStore(db *DB) *IndexViewStore {
	return &IndexViewStore{db: db}
}

func viewName(packageID, resourceTypeID string) string {
	return quoteIdent("/" + packageID + "/" + resourceTypeID)
}

// CreateIndexView replaces the view of a resource type. The view is dropped
// first since a changed column set cannot be replaced in place.
func (s *IndexViewStore) CreateIndexView(ctx context.Context, packageID, resourceTypeID string, indexes []*domain.IndexDefinition) error {
	ddl, err := renderIndexView(packageID, resourceTypeID, indexes)
	if err != nil {
		return err
	}
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DROP VIEW IF EXISTS `+viewName(packageID, resourceTypeID)); err != nil {
			return fmt.Errorf("drop index view: %w", err)
		}
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create index view: %w", err)
		}
		return nil
	})
}

// DropIndexView drops the view if it exists
func (s *IndexViewStore) DropIndexView(ctx context.Context, packageID, resourceTypeID string) error {
	_, err := s.db.ExecContext(ctx, `DROP VIEW IF EXISTS `+viewName(packageID, resourceTypeID))
	return err
}

// renderIndexView builds the CREATE VIEW statement. DDL takes no bind
// parameters, so identifiers and literals are quoted inline. Indexes sharing
// a group path are joined on group_pos to the first index of their group.
func renderIndexView(packageID, resourceTypeID string, indexes []*domain.IndexDefinition) (string, error) {
	var cols, joins []string
	groupAnchor := make(map[string]string)
	seen := make(map[string]bool)

	for i, def := range indexes {
		table, err := elementTable(def.Type)
		if err != nil {
			return "", err
		}
		alias := "v" + strconv.Itoa(i+1)

		column := def.Label
		if seen[column] {
			column = def.Label + "_" + strconv.FormatInt(def.ID, 10)
		}
		seen[column] = true
		cols = append(cols, keyColumn(table, alias)+" AS "+quoteIdent(column))

		join := "LEFT JOIN " + table + " " + alias + " ON " + alias + ".document_id = d.id AND " +
			alias + ".index_id = " + strconv.FormatInt(def.ID, 10)
		if def.IsGrouped() {
			if anchor, ok := groupAnchor[def.GroupPath]; ok {
				join += " AND " + alias + ".group_pos = " + anchor + ".group_pos"
			} else {
				groupAnchor[def.GroupPath] = alias
			}
		}
		joins = append(joins, join)
	}

	var sb strings.Builder
	sb.WriteString("CREATE VIEW " + viewName(packageID, resourceTypeID) + " AS SELECT ")
	sb.WriteString("d.id AS document_id, d.package_id, d.resourcetype_id, d.name AS resource_name")
	for _, c := range cols {
		sb.WriteString(", " + c)
	}
	sb.WriteString(" FROM latest_documents d")
	for _, j := range joins {
		sb.WriteString(" " + j)
	}
	sb.WriteString(" WHERE d.package_id = " + pq.QuoteLiteral(packageID) +
		" AND d.resourcetype_id = " + pq.QuoteLiteral(resourceTypeID))
	return sb.String(), nil
}
