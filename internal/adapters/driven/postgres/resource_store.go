package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ResourceStore = (*ResourceStore)(nil)

// ResourceStore implements driven.ResourceStore using PostgreSQL
type ResourceStore struct {
	db *DB
}

// NewResourceStore creates a new ResourceStore
func NewResourceStore(db *DB) *ResourceStore {
	return &ResourceStore{db: db}
}

// CreatePackage stores a package
func (s *ResourceStore) CreatePackage(ctx context.Context, pkg *domain.Package) error {
	if pkg.CreatedAt.IsZero() {
		pkg.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO packages (id, description, created_at) VALUES ($1, $2, $3)`,
		pkg.ID, pkg.Description, pkg.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: package %s", domain.ErrAlreadyExists, pkg.ID)
	}
	return err
}

// GetPackage retrieves a package by ID
func (s *ResourceStore) GetPackage(ctx context.Context, id string) (*domain.Package, error) {
	var pkg domain.Package
	err := s.db.QueryRowContext(ctx,
		`SELECT id, description, created_at FROM packages WHERE id = $1`, id).
		Scan(&pkg.ID, &pkg.Description, &pkg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: package %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

// ListPackages returns all packages ordered by ID
func (s *ResourceStore) ListPackages(ctx context.Context) ([]*domain.Package, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, description, created_at FROM packages ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pkgs []*domain.Package
	for rows.Next() {
		var pkg domain.Package
		if err := rows.Scan(&pkg.ID, &pkg.Description, &pkg.CreatedAt); err != nil {
			return nil, err
		}
		pkgs = append(pkgs, &pkg)
	}
	return pkgs, rows.Err()
}

// DeletePackage removes a package that has no resource types
func (s *ResourceStore) DeletePackage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM packages WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: package %s has resource types or indexes", domain.ErrInUse, id)
	}
	return expectOneRow(result, err, "package "+id)
}

// CreateResourceType stores a resource type
func (s *ResourceStore) CreateResourceType(ctx context.Context, rt *domain.ResourceType) error {
	if rt.CreatedAt.IsZero() {
		rt.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resourcetypes (package_id, id, version_controlled, description, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rt.PackageID, rt.ID, rt.VersionControlled, rt.Description, rt.CreatedAt)
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%w: resource type /%s/%s", domain.ErrAlreadyExists, rt.PackageID, rt.ID)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: package %s", domain.ErrNotFound, rt.PackageID)
	}
	return err
}

// GetResourceType retrieves a resource type
func (s *ResourceStore) GetResourceType(ctx context.Context, packageID, id string) (*domain.ResourceType, error) {
	var rt domain.ResourceType
	err := s.db.QueryRowContext(ctx, `
		SELECT package_id, id, version_controlled, description, created_at
		FROM resourcetypes WHERE package_id = $1 AND id = $2`, packageID, id).
		Scan(&rt.PackageID, &rt.ID, &rt.VersionControlled, &rt.Description, &rt.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: resource type /%s/%s", domain.ErrNotFound, packageID, id)
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// ListResourceTypes returns the resource types of a package ordered by ID
func (s *ResourceStore) ListResourceTypes(ctx context.Context, packageID string) ([]*domain.ResourceType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package_id, id, version_controlled, description, created_at
		FROM resourcetypes WHERE package_id = $1 ORDER BY id`, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rts []*domain.ResourceType
	for rows.Next() {
		var rt domain.ResourceType
		if err := rows.Scan(&rt.PackageID, &rt.ID, &rt.VersionControlled, &rt.Description, &rt.CreatedAt); err != nil {
			return nil, err
		}
		rts = append(rts, &rt)
	}
	return rts, rows.Err()
}

// DeleteResourceType removes a resource type that has no resources
func (s *ResourceStore) DeleteResourceType(ctx context.Context, packageID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM resourcetypes WHERE package_id = $1 AND id = $2`, packageID, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: resource type /%s/%s has resources", domain.ErrInUse, packageID, id)
	}
	return expectOneRow(result, err, "resource type /"+packageID+"/"+id)
}

// CreateResource stores a resource and its first revision in one transaction
func (s *ResourceStore) CreateResource(ctx context.Context, res *domain.Resource, doc *domain.Document) error {
	now := time.Now()
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO resources (package_id, resourcetype_id, name, latest_revision, created_at, updated_at)
			VALUES ($1, $2, $3, 1, $4, $4)
			RETURNING id`,
			res.PackageID, res.ResourceTypeID, res.Name, now).Scan(&res.ID)
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("%w: resource %s", domain.ErrAlreadyExists, res.Path())
		case isForeignKeyViolation(err):
			return fmt.Errorf("%w: resource type /%s/%s", domain.ErrNotFound, res.PackageID, res.ResourceTypeID)
		case err != nil:
			return fmt.Errorf("insert resource: %w", err)
		}
		res.Revision = 1
		res.CreatedAt, res.UpdatedAt = now, now
		return insertDocument(ctx, tx, res.ID, 1, doc, now)
	})
}

// AddRevision stores doc as the new latest revision of res
func (s *ResourceStore) AddRevision(ctx context.Context, res *domain.Resource, doc *domain.Document) error {
	now := time.Now()
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var revision int
		err := tx.QueryRowContext(ctx, `
			UPDATE resources SET latest_revision = latest_revision + 1, updated_at = $2
			WHERE id = $1
			RETURNING latest_revision`, res.ID, now).Scan(&revision)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: resource %d", domain.ErrNotFound, res.ID)
		}
		if err != nil {
			return fmt.Errorf("bump revision: %w", err)
		}
		res.Revision, res.UpdatedAt = revision, now
		return insertDocument(ctx, tx, res.ID, revision, doc, now)
	})
}

func insertDocument(ctx context.Context, tx *sql.Tx, resourceID int64, revision int, doc *domain.Document, now time.Time) error {
	doc.ResourceID = resourceID
	doc.Revision = revision
	doc.Size = len(doc.Data)
	doc.CreatedAt = now
	err := tx.QueryRowContext(ctx, `
		INSERT INTO documents (resource_id, revision, data, size, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		resourceID, revision, string(doc.Data), doc.Size, now).Scan(&doc.ID)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// ReplaceDocument overwrites the content of an existing revision in place
func (s *ResourceStore) ReplaceDocument(ctx context.Context, doc *domain.Document) error {
	doc.Size = len(doc.Data)
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE documents SET data = $2, size = $3 WHERE id = $1`,
			doc.ID, string(doc.Data), doc.Size)
		if err := expectOneRow(result, err, fmt.Sprintf("document %d", doc.ID)); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE resources SET updated_at = NOW() WHERE id = $1`, doc.ResourceID)
		return err
	})
}

const resourceColumns = `
	r.id, r.package_id, r.resourcetype_id, r.name, t.version_controlled,
	r.latest_revision, r.created_at, r.updated_at`

const resourceFrom = `
	FROM resources r
	JOIN resourcetypes t ON t.package_id = r.package_id AND t.id = r.resourcetype_id`

func scanResource(row interface{ Scan(...any) error }, extra ...any) (*domain.Resource, error) {
	var res domain.Resource
	dest := append([]any{
		&res.ID, &res.PackageID, &res.ResourceTypeID, &res.Name, &res.VersionControlled,
		&res.Revision, &res.CreatedAt, &res.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetResource retrieves a resource by name
func (s *ResourceStore) GetResource(ctx context.Context, packageID, resourceTypeID, name string) (*domain.Resource, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resourceColumns+resourceFrom+`
		WHERE r.package_id = $1 AND r.resourcetype_id = $2 AND r.name = $3`,
		packageID, resourceTypeID, name)
	res, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: resource /%s/%s/%s", domain.ErrNotFound, packageID, resourceTypeID, name)
	}
	return res, err
}

// GetResourceByID retrieves a resource by ID
func (s *ResourceStore) GetResourceByID(ctx context.Context, id int64) (*domain.Resource, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resourceColumns+resourceFrom+` WHERE r.id = $1`, id)
	res, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: resource %d", domain.ErrNotFound, id)
	}
	return res, err
}

const documentColumns = `d.id, d.resource_id, d.revision, d.data, d.size, d.created_at`

func scanDocument(row interface{ Scan(...any) error }) (*domain.Document, error) {
	var doc domain.Document
	var data string
	if err := row.Scan(&doc.ID, &doc.ResourceID, &doc.Revision, &data, &doc.Size, &doc.CreatedAt); err != nil {
		return nil, err
	}
	doc.Data = []byte(data)
	return &doc, nil
}

// GetDocument retrieves a revision of a resource; revision 0 means the latest
func (s *ResourceStore) GetDocument(ctx context.Context, resourceID int64, revision int) (*domain.Document, error) {
	var row *sql.Row
	if revision == 0 {
		row = s.db.QueryRowContext(ctx, `
			SELECT `+documentColumns+`
			FROM documents d JOIN resources r ON r.id = d.resource_id AND d.revision = r.latest_revision
			WHERE d.resource_id = $1`, resourceID)
	} else {
		row = s.db.QueryRowContext(ctx, `
			SELECT `+documentColumns+` FROM documents d
			WHERE d.resource_id = $1 AND d.revision = $2`, resourceID, revision)
	}
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: revision %d of resource %d", domain.ErrNotFound, revision, resourceID)
	}
	return doc, err
}

// ListRevisions returns every revision of a resource, oldest first
func (s *ResourceStore) ListRevisions(ctx context.Context, resourceID int64) ([]*domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents d
		WHERE d.resource_id = $1 ORDER BY d.revision`, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: resource %d", domain.ErrNotFound, resourceID)
	}
	return docs, nil
}

// scope renders the package/resource type restriction; empty and "*" match anything
func scope(packageID, resourceTypeID string, args []any) (string, []any) {
	clause := ""
	if packageID != "" && packageID != domain.Wildcard {
		args = append(args, packageID)
		clause += fmt.Sprintf(" AND r.package_id = $%d", len(args))
	}
	if resourceTypeID != "" && resourceTypeID != domain.Wildcard {
		args = append(args, resourceTypeID)
		clause += fmt.Sprintf(" AND r.resourcetype_id = $%d", len(args))
	}
	return clause, args
}

// ListResources returns the resources in scope ordered by name
func (s *ResourceStore) ListResources(ctx context.Context, packageID, resourceTypeID string) ([]*domain.Resource, error) {
	where, args := scope(packageID, resourceTypeID, nil)
	rows, err := s.db.QueryContext(ctx, `SELECT `+resourceColumns+resourceFrom+`
		WHERE TRUE`+where+` ORDER BY r.name, r.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []*domain.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return resources, rows.Err()
}

// ListLatestDocuments returns the resources in scope with their latest revision attached
func (s *ResourceStore) ListLatestDocuments(ctx context.Context, packageID, resourceTypeID string) ([]*domain.Resource, error) {
	where, args := scope(packageID, resourceTypeID, nil)
	rows, err := s.db.QueryContext(ctx, `SELECT `+resourceColumns+`, `+documentColumns+resourceFrom+`
		JOIN documents d ON d.resource_id = r.id AND d.revision = r.latest_revision
		WHERE TRUE`+where+` ORDER BY r.name, r.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []*domain.Resource
	for rows.Next() {
		var doc domain.Document
		var data string
		res, err := scanResource(rows, &doc.ID, &doc.ResourceID, &doc.Revision, &data, &doc.Size, &doc.CreatedAt)
		if err != nil {
			return nil, err
		}
		doc.Data = []byte(data)
		res.Document = &doc
		resources = append(resources, res)
	}
	return resources, rows.Err()
}

// RenameResource changes a resource's name
func (s *ResourceStore) RenameResource(ctx context.Context, id int64, newName string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE resources SET name = $2, updated_at = NOW() WHERE id = $1`, id, newName)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: resource %s", domain.ErrAlreadyExists, newName)
	}
	return expectOneRow(result, err, fmt.Sprintf("resource %d", id))
}

// DeleteResource removes a resource; revisions and their elements cascade
func (s *ResourceStore) DeleteResource(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = $1`, id)
	return expectOneRow(result, err, fmt.Sprintf("resource %d", id))
}

// expectOneRow maps a write that touched no row to ErrNotFound
func expectOneRow(result sql.Result, err error, what string) error {
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, what)
	}
	return nil
}
