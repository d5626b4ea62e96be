package http

import (
	"context"
	"errors"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driving"
)

var errNotImplemented = errors.New("not implemented")

// mockCatalogService returns errNotImplemented for every method without a fn
type mockCatalogService struct {
	createPackageFn      func(ctx context.Context, id, description string) (*domain.Package, error)
	listPackagesFn       func(ctx context.Context) ([]*domain.Package, error)
	deletePackageFn      func(ctx context.Context, id string) error
	createResourceTypeFn func(ctx context.Context, packageID string, req driving.CreateResourceTypeRequest) (*domain.ResourceType, error)
	addResourceFn        func(ctx context.Context, packageID, resourceTypeID, name string, data []byte) (*domain.Resource, error)
	getResourceFn        func(ctx context.Context, packageID, resourceTypeID, name string, revision int) (*domain.Resource, error)
	renameResourceFn     func(ctx context.Context, packageID, resourceTypeID, name, newName string) error
	deleteResourceFn     func(ctx context.Context, packageID, resourceTypeID, name string) error
	getIndexDataFn       func(ctx context.Context, packageID, resourceTypeID, name string) (map[string][]domain.IndexValue, error)
	registerIndexFn      func(ctx context.Context, req driving.RegisterIndexRequest) (*domain.IndexDefinition, error)
	getIndexFn           func(ctx context.Context, id int64) (*domain.IndexDefinition, error)
	listIndexesFn        func(ctx context.Context, filter domain.IndexFilter) ([]*domain.IndexDefinition, error)
	flushIndexFn         func(ctx context.Context, id int64) (int64, error)
	reindexFn            func(ctx context.Context, filter domain.IndexFilter) (*domain.ReindexResult, error)
	reindexAsyncFn       func(ctx context.Context, filter domain.IndexFilter) (*domain.Task, error)
	getTaskFn            func(ctx context.Context, id string) (*domain.Task, error)
	queryFn              func(ctx context.Context, query string, full bool) (*domain.QueryResult, error)
	createIndexViewFn    func(ctx context.Context, packageID, resourceTypeID string) error
}

func (m *mockCatalogService) CreatePackage(ctx context.Context, id, description string) (*domain.Package, error) {
	if m.createPackageFn != nil {
		return m.createPackageFn(ctx, id, description)
	}
	return nil, errNotImplemented
}

func (m *mockCatalogService) ListPackages(ctx context.Context) ([]*domain.Package, error) {
	if m.listPackagesFn != nil {
		return m.listPackagesFn(ctx)
	}
	return nil, errNotImplemented
}

func (m *mockCatalogService) DeletePackage(ctx context.Context, id string) error {
	if m.deletePackageFn != nil {
		return m.deletePackageFn(ctx, id)
	}
	return errNotImplemented
}

func (m *mockCatalogService) CreateResourceType(ctx context.Context, packageID string, req driving.CreateResourceTypeRequest) (*domain.ResourceType, error) {
	if m.createResourceTypeFn != nil {
		return m.createResourceTypeFn(ctx, packageID, req)
	}
	return nil, errNotImplemented
}

func (m *mockCatalogService) ListResourceTypes(ctx context.Context, packageID string) ([]*domain.ResourceType, error) {
	return nil, errNotImplemented
}

func (m *mockCatalogService) DeleteResourceType(ctx context.Context, packageID, id string) error {
	return errNotImplemented
}

func (m *mockCatalogService) AddResource(ctx context.Context, packageID, resourceTypeID, name string, data []byte) (*domain.Resource, error) {
	if m.addResourceFn != nil {
		return m.addResourceFn(ctx, packageID, resourceTypeID, name, data)
	}
	return nil, errNotImplemented
}

func (m *mockCatalogService) GetResource(ctx context.Context, packageID, resourceTypeID, name string, revision int) (*domain.Resource, error) {
	if m.getResourceFn != nil {
		return m.getResourceFn(ctx, packageID, resourceTypeID, name, revision)
	}
	return nil, errNotImplemented
}

func (m *mockCatalogService) ListResources(ctx context.Context, packageID, resourceTypeID string) ([]*domain.Resource, error) {
	return nil, errNotImplemented
}

func (m *mockCatalogService) GetResourceHistory(ctx context.Context, packageID, resourceTypeID, name string) ([]*domain.Document, error) {
	return nil, errNotImplemented
}

func (m *mockCatalogService) ModifyResource(ctx context.Context, packageID, resourceTypeID, name string, data []byte) (*domain.Resource, error) {
	return nil, errNotImplemented
}

func (m *mockCatalogService) RenameResource(ctx context.Context, packageID, resourceTypeID, name, newName string) error {
	if m.renameResourceFn != nil {
		return m.renameResourceFn(ctx, packageID, resourceTypeID, name, newName)
	}
	return errNotImplemented
}

func (m *mockCatalogService) DeleteResource(ctx context.Context, packageID, resourceTypeID, name string) error {
	if m.deleteResourceFn != nil {
		return m.deleteResourceFn(ctx, packageID, resourceTypeID, name)
	}
	return errNotImplemented
}

func (m *mockCatalogService) IndexResource(ctx context.Context, resourceID int64) (int, error) {
	return 0, errNotImplemented
}

func (m *mockCatalogService) IndexResourceAsync(ctx context.Context, packageID, resourceTypeID, name string) (*domain.Task, error) {
	return nil, errNotImplemented
}

func (m *mockCatalogService) GetIndexData(ctx context.Context, packageID, resourceTypeID, name string) (map[string][]domain.IndexValue, error) {
	if m.getIndexDataFn != nil {
		return m.getIndexDataFn(ctx, packageID, resourceTypeID, name)
	}
	return nil, errNotImplemented
}

func (m *mockCatalogService) RegisterIndex(ctx context.Context, req driving.RegisterIndexRequest) (*domain.IndexDefinition, error) {
	if m.registerIndexFn != nil {
		return m.registerIndexFn(ctx, req)
	}
	return nil, errNotImplemented
}

func (m *mockCatalogService) GetIndex(ctx context.Context, id int64) (*domain.IndexDefinition, error) {
	if m.getIndexFn != nil {
		return m.getIndexFn(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockCatalogService) ListIndexes(ctx context.Context, filter domain.IndexFilter) ([]*domain.IndexDefinition, error) {
	if m.listIndexesFn != nil {
		return m.listIndexesFn(ctx, filter)
	}
	return nil, errNotImplemented
}

func (m *mockCatalogService) RemoveIndex(ctx context.Context, id int64) error {
	return errNotImplemented
}

func (m *mockCatalogService) DeleteAllIndexes(ctx context.Context, packageID, resourceTypeID string) (int, error) {
	return 0, errNotImplemented
}

func (m *mockCatalogService) FlushIndex(ctx context.Context, id int64) (int64, error) {
	if m.flushIndexFn != nil {
		return m.flushIndexFn(ctx, id)
	}
	return 0, errNotImplemented
}

func (m *mockCatalogService) Reindex(ctx context.Context, filter domain.IndexFilter) (*domain.ReindexResult, error) {
	if m.reindexFn != nil {
		return m.reindexFn(ctx, filter)
	}
	return nil, errNotImplemented
}

func (m *mockCatalogService) ReindexAsync(ctx context.Context, filter domain.IndexFilter) (*domain.Task, error) {
	if m.reindexAsyncFn != nil {
		return m.reindexAsyncFn(ctx, filter)
	}
	return nil, errNotImplemented
}

func (m *mockCatalogService) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	if m.getTaskFn != nil {
		return m.getTaskFn(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockCatalogService) Query(ctx context.Context, query string, full bool) (*domain.QueryResult, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, query, full)
	}
	return nil, errNotImplemented
}

func (m *mockCatalogService) CreateIndexView(ctx context.Context, packageID, resourceTypeID string) error {
	if m.createIndexViewFn != nil {
		return m.createIndexViewFn(ctx, packageID, resourceTypeID)
	}
	return errNotImplemented
}

func (m *mockCatalogService) DropIndexView(ctx context.Context, packageID, resourceTypeID string) error {
	return errNotImplemented
}

var _ driving.CatalogService = (*mockCatalogService)(nil)
