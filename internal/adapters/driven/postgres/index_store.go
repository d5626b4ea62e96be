package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.IndexStore = (*IndexStore)(nil)

// IndexStore implements driven.IndexStore using PostgreSQL.
// Elements live in one table per storage type (see elementTable).
type IndexStore struct {
	db *DB
}

// NewIndexStore creates a new IndexStore
func NewIndexStore(db *DB) *IndexStore {
	return &IndexStore{db: db}
}

const definitionColumns = `id, package_id, resourcetype_id, xpath, type, label, group_path, options, created_at`

func scanDefinition(row interface{ Scan(...any) error }) (*domain.IndexDefinition, error) {
	var def domain.IndexDefinition
	var typ string
	err := row.Scan(&def.ID, &def.PackageID, &def.ResourceTypeID, &def.XPath, &typ,
		&def.Label, &def.GroupPath, &def.Options, &def.CreatedAt)
	if err != nil {
		return nil, err
	}
	def.Type = domain.IndexType(typ)
	return &def, nil
}

// CreateIndex stores a definition and assigns its ID
func (s *IndexStore) CreateIndex(ctx context.Context, def *domain.IndexDefinition) error {
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO index_definitions (package_id, resourcetype_id, xpath, type, label, group_path, options, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		def.PackageID, def.ResourceTypeID, def.XPath, string(def.Type),
		def.Label, def.GroupPath, def.Options, def.CreatedAt).Scan(&def.ID)
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%w: index %s", domain.ErrAlreadyExists, def.Path())
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: package %s", domain.ErrNotFound, def.PackageID)
	}
	return err
}

// GetIndex retrieves a definition by ID
func (s *IndexStore) GetIndex(ctx context.Context, id int64) (*domain.IndexDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM index_definitions WHERE id = $1`, id)
	def, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: index %d", domain.ErrNotFound, id)
	}
	return def, err
}

// ListIndexes returns the definitions matching filter, ordered by ID
func (s *IndexStore) ListIndexes(ctx context.Context, filter domain.IndexFilter) ([]*domain.IndexDefinition, error) {
	var conds []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.IndexID != 0 {
		add("id", filter.IndexID)
	}
	if filter.PackageID != "" {
		add("package_id", filter.PackageID)
	}
	if filter.ResourceTypeID != "" {
		add("resourcetype_id", filter.ResourceTypeID)
	}
	if filter.XPath != "" {
		add("xpath", filter.XPath)
	}
	if filter.Label != "" {
		add("label", filter.Label)
	}
	if filter.Type != "" {
		add("type", string(filter.Type))
	}

	query := `SELECT ` + definitionColumns + ` FROM index_definitions`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*domain.IndexDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// DeleteIndex removes a definition; its elements cascade
func (s *IndexStore) DeleteIndex(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM index_definitions WHERE id = $1`, id)
	return expectOneRow(result, err, fmt.Sprintf("index %d", id))
}

// FlushIndex removes all elements of an index and keeps the definition
func (s *IndexStore) FlushIndex(ctx context.Context, id int64) (int64, error) {
	def, err := s.GetIndex(ctx, id)
	if err != nil {
		return 0, err
	}
	table, err := elementTable(def.Type)
	if err != nil {
		return 0, err
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE index_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("flush index %d: %w", id, err)
	}
	return result.RowsAffected()
}

// AddElements inserts elements atomically
func (s *IndexStore) AddElements(ctx context.Context, elements []domain.IndexElement) error {
	if len(elements) == 0 {
		return nil
	}
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		return insertElements(ctx, tx, elements)
	})
}

// ReplaceDocumentElements drops every element of a document and inserts the given ones
func (s *IndexStore) ReplaceDocumentElements(ctx context.Context, documentID int64, elements []domain.IndexElement) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := deleteDocumentElements(ctx, tx, documentID); err != nil {
			return err
		}
		return insertElements(ctx, tx, elements)
	})
}

// DeleteDocumentElements drops every element of a document
func (s *IndexStore) DeleteDocumentElements(ctx context.Context, documentID int64) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		return deleteDocumentElements(ctx, tx, documentID)
	})
}

func deleteDocumentElements(ctx context.Context, tx *sql.Tx, documentID int64) error {
	for _, table := range elementTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE document_id = $1`, documentID); err != nil {
			return fmt.Errorf("delete elements of document %d from %s: %w", documentID, table, err)
		}
	}
	return nil
}

// insertElements writes elements with one prepared statement per table
func insertElements(ctx context.Context, tx *sql.Tx, elements []domain.IndexElement) error {
	byTable := make(map[string][]domain.IndexElement)
	for _, e := range elements {
		table, err := elementTable(e.Key.Type)
		if err != nil {
			return err
		}
		byTable[table] = append(byTable[table], e)
	}

	for _, table := range elementTables {
		batch := byTable[table]
		if len(batch) == 0 {
			continue
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO `+table+` (index_id, document_id, keyval, group_pos) VALUES ($1, $2, $3, $4)`)
		if err != nil {
			return err
		}
		for _, e := range batch {
			if _, err := stmt.ExecContext(ctx, e.IndexID, e.DocumentID, keyArg(e.Key), e.GroupPos); err != nil {
				stmt.Close()
				if isForeignKeyViolation(err) {
					return fmt.Errorf("%w: index %d or document %d", domain.ErrNotFound, e.IndexID, e.DocumentID)
				}
				return fmt.Errorf("insert index element: %w", err)
			}
		}
		stmt.Close()
	}
	return nil
}

// ListDocumentElements returns the elements of a document ordered by index and group position
func (s *IndexStore) ListDocumentElements(ctx context.Context, documentID int64) ([]domain.IndexElement, error) {
	var elements []domain.IndexElement
	for _, table := range elementTables {
		rows, err := s.db.QueryContext(ctx, `
			SELECT e.index_id, d.type, `+keyColumn(table, "e")+`, e.group_pos
			FROM `+table+` e JOIN index_definitions d ON d.id = e.index_id
			WHERE e.document_id = $1`, documentID)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var indexID int64
			var typ string
			var groupPos int
			key := newKeyScanner(storageType[table])
			if err := rows.Scan(&indexID, &typ, key.dest(), &groupPos); err != nil {
				rows.Close()
				return nil, err
			}
			value, ok := key.value()
			if !ok {
				continue
			}
			if domain.IndexType(typ) == domain.IndexTypeTimestamp {
				value = domain.TimeValue(domain.IndexTypeTimestamp, value.Time())
			}
			elements = append(elements, domain.IndexElement{
				IndexID:    indexID,
				DocumentID: documentID,
				Key:        value,
				GroupPos:   groupPos,
			})
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	sort.SliceStable(elements, func(i, j int) bool {
		if elements[i].IndexID != elements[j].IndexID {
			return elements[i].IndexID < elements[j].IndexID
		}
		return elements[i].GroupPos < elements[j].GroupPos
	})
	return elements, nil
}
