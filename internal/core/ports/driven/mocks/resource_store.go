package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven"
)

var _ driven.ResourceStore = (*MockResourceStore)(nil)

// MockResourceStore is an in-memory ResourceStore for testing
type MockResourceStore struct {
	mu            sync.RWMutex
	packages      map[string]*domain.Package
	resourceTypes map[string]*domain.ResourceType // key: pkg/rt
	resources     map[int64]*domain.Resource
	revisions     map[int64][]*domain.Document // key: resource ID, oldest first
	nextResource  int64
	nextDocument  int64

	// CreateResourceFn overrides CreateResource when set
	CreateResourceFn func(res *domain.Resource, doc *domain.Document) error
}

// NewMockResourceStore creates a new MockResourceStore
func NewMockResourceStore() *MockResourceStore {
	return &MockResourceStore{
		packages:      make(map[string]*domain.Package),
		resourceTypes: make(map[string]*domain.ResourceType),
		resources:     make(map[int64]*domain.Resource),
		revisions:     make(map[int64][]*domain.Document),
	}
}

func rtKey(packageID, id string) string {
	return packageID + "/" + id
}

func (m *MockResourceStore) CreatePackage(ctx context.Context, pkg *domain.Package) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.packages[pkg.ID]; ok {
		return fmt.Errorf("%w: package %s", domain.ErrAlreadyExists, pkg.ID)
	}
	if pkg.CreatedAt.IsZero() {
		pkg.CreatedAt = time.Now()
	}
	m.packages[pkg.ID] = pkg
	return nil
}

func (m *MockResourceStore) GetPackage(ctx context.Context, id string) (*domain.Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pkg, ok := m.packages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return pkg, nil
}

func (m *MockResourceStore) ListPackages(ctx context.Context) ([]*domain.Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Package, 0, len(m.packages))
	for _, pkg := range m.packages {
		result = append(result, pkg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockResourceStore) DeletePackage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.packages[id]; !ok {
		return domain.ErrNotFound
	}
	for _, rt := range m.resourceTypes {
		if rt.PackageID == id {
			return fmt.Errorf("%w: package %s has resource types", domain.ErrInUse, id)
		}
	}
	delete(m.packages, id)
	return nil
}

func (m *MockResourceStore) CreateResourceType(ctx context.Context, rt *domain.ResourceType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.packages[rt.PackageID]; !ok {
		return fmt.Errorf("%w: package %s", domain.ErrNotFound, rt.PackageID)
	}
	key := rtKey(rt.PackageID, rt.ID)
	if _, ok := m.resourceTypes[key]; ok {
		return fmt.Errorf("%w: resource type %s", domain.ErrAlreadyExists, key)
	}
	if rt.CreatedAt.IsZero() {
		rt.CreatedAt = time.Now()
	}
	m.resourceTypes[key] = rt
	return nil
}

func (m *MockResourceStore) GetResourceType(ctx context.Context, packageID, id string) (*domain.ResourceType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.resourceTypes[rtKey(packageID, id)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rt, nil
}

func (m *MockResourceStore) ListResourceTypes(ctx context.Context, packageID string) ([]*domain.ResourceType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.ResourceType
	for _, rt := range m.resourceTypes {
		if rt.PackageID == packageID {
			result = append(result, rt)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockResourceStore) DeleteResourceType(ctx context.Context, packageID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rtKey(packageID, id)
	if _, ok := m.resourceTypes[key]; !ok {
		return domain.ErrNotFound
	}
	for _, res := range m.resources {
		if res.PackageID == packageID && res.ResourceTypeID == id {
			return fmt.Errorf("%w: resource type %s has resources", domain.ErrInUse, key)
		}
	}
	delete(m.resourceTypes, key)
	return nil
}

func (m *MockResourceStore) CreateResource(ctx context.Context, res *domain.Resource, doc *domain.Document) error {
	if m.CreateResourceFn != nil {
		return m.CreateResourceFn(res, doc)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resourceTypes[rtKey(res.PackageID, res.ResourceTypeID)]; !ok {
		return fmt.Errorf("%w: resource type /%s/%s", domain.ErrNotFound, res.PackageID, res.ResourceTypeID)
	}
	for _, other := range m.resources {
		if other.PackageID == res.PackageID && other.ResourceTypeID == res.ResourceTypeID && other.Name == res.Name {
			return fmt.Errorf("%w: resource %s", domain.ErrAlreadyExists, res.Path())
		}
	}

	now := time.Now()
	m.nextResource++
	res.ID = m.nextResource
	res.Revision = 1
	res.CreatedAt, res.UpdatedAt = now, now
	m.resources[res.ID] = res

	m.addDocument(res, doc, 1, now)
	return nil
}

func (m *MockResourceStore) addDocument(res *domain.Resource, doc *domain.Document, revision int, now time.Time) {
	m.nextDocument++
	doc.ID = m.nextDocument
	doc.ResourceID = res.ID
	doc.Revision = revision
	doc.Size = len(doc.Data)
	doc.CreatedAt = now
	m.revisions[res.ID] = append(m.revisions[res.ID], doc)
}

func (m *MockResourceStore) AddRevision(ctx context.Context, res *domain.Resource, doc *domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.resources[res.ID]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	stored.Revision++
	stored.UpdatedAt = now
	res.Revision, res.UpdatedAt = stored.Revision, now
	m.addDocument(stored, doc, stored.Revision, now)
	return nil
}

func (m *MockResourceStore) ReplaceDocument(ctx context.Context, doc *domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.revisions[doc.ResourceID] {
		if existing.ID == doc.ID {
			doc.Size = len(doc.Data)
			m.revisions[doc.ResourceID][i] = doc
			if res, ok := m.resources[doc.ResourceID]; ok {
				res.UpdatedAt = time.Now()
			}
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockResourceStore) GetResource(ctx context.Context, packageID, resourceTypeID, name string) (*domain.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, res := range m.resources {
		if res.PackageID == packageID && res.ResourceTypeID == resourceTypeID && res.Name == name {
			return res, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockResourceStore) GetResourceByID(ctx context.Context, id int64) (*domain.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.resources[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return res, nil
}

func (m *MockResourceStore) GetDocument(ctx context.Context, resourceID int64, revision int) (*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	revs := m.revisions[resourceID]
	if len(revs) == 0 {
		return nil, domain.ErrNotFound
	}
	if revision == 0 {
		return revs[len(revs)-1], nil
	}
	for _, doc := range revs {
		if doc.Revision == revision {
			return doc, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockResourceStore) ListRevisions(ctx context.Context, resourceID int64) ([]*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	revs, ok := m.revisions[resourceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]*domain.Document(nil), revs...), nil
}

func (m *MockResourceStore) ListResources(ctx context.Context, packageID, resourceTypeID string) ([]*domain.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listResources(packageID, resourceTypeID), nil
}

func (m *MockResourceStore) listResources(packageID, resourceTypeID string) []*domain.Resource {
	var result []*domain.Resource
	for _, res := range m.resources {
		if !matches(packageID, res.PackageID) || !matches(resourceTypeID, res.ResourceTypeID) {
			continue
		}
		result = append(result, res)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (m *MockResourceStore) ListLatestDocuments(ctx context.Context, packageID, resourceTypeID string) ([]*domain.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestDocuments(packageID, resourceTypeID), nil
}

func (m *MockResourceStore) RenameResource(ctx context.Context, id int64, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[id]
	if !ok {
		return domain.ErrNotFound
	}
	for _, other := range m.resources {
		if other.ID != id && other.PackageID == res.PackageID && other.ResourceTypeID == res.ResourceTypeID && other.Name == newName {
			return fmt.Errorf("%w: resource %s", domain.ErrAlreadyExists, newName)
		}
	}
	res.Name = newName
	res.UpdatedAt = time.Now()
	return nil
}

func (m *MockResourceStore) DeleteResource(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.resources, id)
	delete(m.revisions, id)
	return nil
}

// latestDocuments returns copies of the resources in scope with their latest
// revision attached
func (m *MockResourceStore) latestDocuments(packageID, resourceTypeID string) []*domain.Resource {
	var result []*domain.Resource
	for _, res := range m.listResources(packageID, resourceTypeID) {
		revs := m.revisions[res.ID]
		if len(revs) == 0 {
			continue
		}
		latest := *res
		latest.Document = revs[len(revs)-1]
		result = append(result, &latest)
	}
	return result
}

// matches treats empty and "*" as wildcards
func matches(pattern, value string) bool {
	return pattern == "" || pattern == domain.Wildcard || pattern == value
}
