package driven

import (
	"context"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

// ResourceStore persists packages, resource types, resources and their document revisions
type ResourceStore interface {
	// CreatePackage stores a package; ErrAlreadyExists if the ID is taken
	CreatePackage(ctx context.Context, pkg *domain.Package) error

	// GetPackage retrieves a package by ID
	GetPackage(ctx context.Context, id string) (*domain.Package, error)

	// ListPackages returns all packages ordered by ID
	ListPackages(ctx context.Context) ([]*domain.Package, error)

	// DeletePackage removes a package; ErrInUse while resource types remain
	DeletePackage(ctx context.Context, id string) error

	// CreateResourceType stores a resource type; ErrAlreadyExists if the ID is taken within the package
	CreateResourceType(ctx context.Context, rt *domain.ResourceType) error

	// GetResourceType retrieves a resource type
	GetResourceType(ctx context.Context, packageID, id string) (*domain.ResourceType, error)

	// ListResourceTypes returns the resource types of a package ordered by ID
	ListResourceTypes(ctx context.Context, packageID string) ([]*domain.ResourceType, error)

	// DeleteResourceType removes a resource type; ErrInUse while resources remain
	DeleteResourceType(ctx context.Context, packageID, id string) error

	// CreateResource stores a resource with its first revision and assigns both IDs.
	// Returns ErrAlreadyExists if the name is taken within (package, resourcetype).
	CreateResource(ctx context.Context, res *domain.Resource, doc *domain.Document) error

	// AddRevision stores doc as the new latest revision of res
	AddRevision(ctx context.Context, res *domain.Resource, doc *domain.Document) error

	// ReplaceDocument overwrites the content of an existing revision in place
	ReplaceDocument(ctx context.Context, doc *domain.Document) error

	// GetResource retrieves a resource by name
	GetResource(ctx context.Context, packageID, resourceTypeID, name string) (*domain.Resource, error)

	// GetResourceByID retrieves a resource by ID
	GetResourceByID(ctx context.Context, id int64) (*domain.Resource, error)

	// GetDocument retrieves a revision of a resource; revision 0 means the latest
	GetDocument(ctx context.Context, resourceID int64, revision int) (*domain.Document, error)

	// ListRevisions returns every revision of a resource, oldest first
	ListRevisions(ctx context.Context, resourceID int64) ([]*domain.Document, error)

	// ListResources returns the resources of a resource type ordered by name.
	// "*" or empty matches every resource type of the package.
	ListResources(ctx context.Context, packageID, resourceTypeID string) ([]*domain.Resource, error)

	// ListLatestDocuments returns the latest revision of every resource in scope,
	// with Resource fields populated on each entry
	ListLatestDocuments(ctx context.Context, packageID, resourceTypeID string) ([]*domain.Resource, error)

	// RenameResource changes a resource's name; ErrAlreadyExists if the new name is taken
	RenameResource(ctx context.Context, id int64, newName string) error

	// DeleteResource removes a resource and all of its revisions
	DeleteResource(ctx context.Context, id int64) error
}
