package driving

import (
	"context"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

// RegisterIndexRequest describes an index to register.
// Either Expression ("/pkg/rt/root/node", '#' marks the group) or the
// PackageID, ResourceTypeID and XPath fields must be given.
type RegisterIndexRequest struct {
	Expression     string           `json:"expression,omitempty"`
	PackageID      string           `json:"package_id,omitempty"`
	ResourceTypeID string           `json:"resourcetype_id,omitempty"`
	XPath          string           `json:"xpath,omitempty"`
	Label          string           `json:"label,omitempty"`
	Type           domain.IndexType `json:"type,omitempty"`
	GroupPath      string           `json:"group_path,omitempty"`
	Options        string           `json:"options,omitempty"`
}

// CreateResourceTypeRequest describes a resource type to create
type CreateResourceTypeRequest struct {
	ID                string `json:"id"`
	VersionControlled bool   `json:"version_controlled"`
	Description       string `json:"description,omitempty"`
}

// CatalogService is the facade over packages, resources, indexes and queries
type CatalogService interface {
	// CreatePackage registers a new package
	CreatePackage(ctx context.Context, id, description string) (*domain.Package, error)

	// ListPackages returns all packages
	ListPackages(ctx context.Context) ([]*domain.Package, error)

	// DeletePackage removes a package without resource types
	DeletePackage(ctx context.Context, id string) error

	// CreateResourceType registers a resource type within a package
	CreateResourceType(ctx context.Context, packageID string, req CreateResourceTypeRequest) (*domain.ResourceType, error)

	// ListResourceTypes returns the resource types of a package
	ListResourceTypes(ctx context.Context, packageID string) ([]*domain.ResourceType, error)

	// DeleteResourceType removes a resource type without resources
	DeleteResourceType(ctx context.Context, packageID, id string) error

	// AddResource stores and indexes a new XML document. An empty name defaults to a UUID.
	AddResource(ctx context.Context, packageID, resourceTypeID, name string, data []byte) (*domain.Resource, error)

	// GetResource returns a resource with one revision of its document; 0 is the latest
	GetResource(ctx context.Context, packageID, resourceTypeID, name string, revision int) (*domain.Resource, error)

	// ListResources returns the resources of a resource type ("*" for all of the package)
	ListResources(ctx context.Context, packageID, resourceTypeID string) ([]*domain.Resource, error)

	// GetResourceHistory returns every revision of a resource, oldest first
	GetResourceHistory(ctx context.Context, packageID, resourceTypeID, name string) ([]*domain.Document, error)

	// ModifyResource stores new content and reindexes the latest revision
	ModifyResource(ctx context.Context, packageID, resourceTypeID, name string, data []byte) (*domain.Resource, error)

	// RenameResource changes the name of a resource
	RenameResource(ctx context.Context, packageID, resourceTypeID, name, newName string) error

	// DeleteResource removes a resource, its revisions and its index elements
	DeleteResource(ctx context.Context, packageID, resourceTypeID, name string) error

	// IndexResource recomputes every index of the latest revision of a resource
	// and returns the number of elements written
	IndexResource(ctx context.Context, resourceID int64) (int, error)

	// IndexResourceAsync enqueues an index_resource task
	IndexResourceAsync(ctx context.Context, packageID, resourceTypeID, name string) (*domain.Task, error)

	// GetIndexData returns every index value of the latest revision keyed by index label
	GetIndexData(ctx context.Context, packageID, resourceTypeID, name string) (map[string][]domain.IndexValue, error)

	// RegisterIndex validates and stores an index definition
	RegisterIndex(ctx context.Context, req RegisterIndexRequest) (*domain.IndexDefinition, error)

	// GetIndex returns one index definition
	GetIndex(ctx context.Context, id int64) (*domain.IndexDefinition, error)

	// ListIndexes returns the definitions matching filter
	ListIndexes(ctx context.Context, filter domain.IndexFilter) ([]*domain.IndexDefinition, error)

	// RemoveIndex deletes a definition and its elements
	RemoveIndex(ctx context.Context, id int64) error

	// DeleteAllIndexes deletes every definition of a package, optionally narrowed to a resource type
	DeleteAllIndexes(ctx context.Context, packageID, resourceTypeID string) (int, error)

	// FlushIndex drops the elements of an index and keeps the definition
	FlushIndex(ctx context.Context, id int64) (int64, error)

	// Reindex recomputes the elements of every definition matching filter
	Reindex(ctx context.Context, filter domain.IndexFilter) (*domain.ReindexResult, error)

	// ReindexAsync enqueues a reindex task
	ReindexAsync(ctx context.Context, filter domain.IndexFilter) (*domain.Task, error)

	// GetTask returns a background task
	GetTask(ctx context.Context, id string) (*domain.Task, error)

	// Query runs a restricted XPath query; full also loads the matched resources
	Query(ctx context.Context, query string, full bool) (*domain.QueryResult, error)

	// CreateIndexView creates or replaces the relational view of a resource type
	CreateIndexView(ctx context.Context, packageID, resourceTypeID string) error

	// DropIndexView drops the relational view of a resource type
	DropIndexView(ctx context.Context, packageID, resourceTypeID string) error
}
