package driven

import (
	"context"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

// IndexStore persists index definitions and their materialised elements.
// Every method that writes more than one row does so in a single transaction.
type IndexStore interface {
	// CreateIndex stores a definition and assigns its ID.
	// Returns ErrAlreadyExists if (package, resourcetype, xpath) or (package, resourcetype, label) is taken.
	CreateIndex(ctx context.Context, def *domain.IndexDefinition) error

	// GetIndex retrieves a definition by ID
	GetIndex(ctx context.Context, id int64) (*domain.IndexDefinition, error)

	// ListIndexes returns the definitions matching filter, ordered by ID
	ListIndexes(ctx context.Context, filter domain.IndexFilter) ([]*domain.IndexDefinition, error)

	// DeleteIndex removes a definition and all of its elements
	DeleteIndex(ctx context.Context, id int64) error

	// FlushIndex removes all elements of an index and keeps the definition
	FlushIndex(ctx context.Context, id int64) (int64, error)

	// AddElements inserts elements atomically
	AddElements(ctx context.Context, elements []domain.IndexElement) error

	// ReplaceDocumentElements drops every element of a document across all
	// value tables and inserts the given ones, atomically
	ReplaceDocumentElements(ctx context.Context, documentID int64, elements []domain.IndexElement) error

	// DeleteDocumentElements drops every element of a document
	DeleteDocumentElements(ctx context.Context, documentID int64) error

	// ListDocumentElements returns the elements of a document ordered by index and group position
	ListDocumentElements(ctx context.Context, documentID int64) ([]domain.IndexElement, error)
}

// IndexViewStore maintains one relational view per resource type exposing
// every index as a column
type IndexViewStore interface {
	// CreateIndexView creates or replaces the view "/package/resourcetype"
	CreateIndexView(ctx context.Context, packageID, resourceTypeID string, indexes []*domain.IndexDefinition) error

	// DropIndexView drops the view if it exists
	DropIndexView(ctx context.Context, packageID, resourceTypeID string) error
}
