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

var _ driven.IndexStore = (*MockIndexStore)(nil)

// MockIndexStore is an in-memory IndexStore for testing
type MockIndexStore struct {
	mu       sync.RWMutex
	indexes  map[int64]*domain.IndexDefinition
	elements []domain.IndexElement
	nextID   int64

	// AddElementsFn overrides AddElements when set
	AddElementsFn func(elements []domain.IndexElement) error
	// ReplaceElementsFn overrides ReplaceDocumentElements when set
	ReplaceElementsFn func(documentID int64, elements []domain.IndexElement) error
}

// NewMockIndexStore creates a new MockIndexStore
func NewMockIndexStore() *MockIndexStore {
	return &MockIndexStore{
		indexes: make(map[int64]*domain.IndexDefinition),
	}
}

func (m *MockIndexStore) CreateIndex(ctx context.Context, def *domain.IndexDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.indexes {
		if other.PackageID != def.PackageID || other.ResourceTypeID != def.ResourceTypeID {
			continue
		}
		if other.XPath == def.XPath || other.Label == def.Label {
			return fmt.Errorf("%w: index %s", domain.ErrAlreadyExists, def.Path())
		}
	}
	m.nextID++
	def.ID = m.nextID
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now()
	}
	m.indexes[def.ID] = def
	return nil
}

func (m *MockIndexStore) GetIndex(ctx context.Context, id int64) (*domain.IndexDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.indexes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return def, nil
}

func (m *MockIndexStore) ListIndexes(ctx context.Context, filter domain.IndexFilter) ([]*domain.IndexDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.IndexDefinition
	for _, def := range m.indexes {
		if filter.Matches(def) {
			result = append(result, def)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockIndexStore) DeleteIndex(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.indexes, id)
	m.removeWhere(func(e domain.IndexElement) bool { return e.IndexID == id })
	return nil
}

func (m *MockIndexStore) FlushIndex(ctx context.Context, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[id]; !ok {
		return 0, domain.ErrNotFound
	}
	return m.removeWhere(func(e domain.IndexElement) bool { return e.IndexID == id }), nil
}

func (m *MockIndexStore) AddElements(ctx context.Context, elements []domain.IndexElement) error {
	if m.AddElementsFn != nil {
		return m.AddElementsFn(elements)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range elements {
		if _, ok := m.indexes[e.IndexID]; !ok {
			return fmt.Errorf("%w: index %d", domain.ErrNotFound, e.IndexID)
		}
	}
	m.elements = append(m.elements, elements...)
	return nil
}

func (m *MockIndexStore) ReplaceDocumentElements(ctx context.Context, documentID int64, elements []domain.IndexElement) error {
	if m.ReplaceElementsFn != nil {
		return m.ReplaceElementsFn(documentID, elements)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range elements {
		if _, ok := m.indexes[e.IndexID]; !ok {
			return fmt.Errorf("%w: index %d", domain.ErrNotFound, e.IndexID)
		}
	}
	m.removeWhere(func(e domain.IndexElement) bool { return e.DocumentID == documentID })
	m.elements = append(m.elements, elements...)
	return nil
}

func (m *MockIndexStore) DeleteDocumentElements(ctx context.Context, documentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeWhere(func(e domain.IndexElement) bool { return e.DocumentID == documentID })
	return nil
}

func (m *MockIndexStore) ListDocumentElements(ctx context.Context, documentID int64) ([]domain.IndexElement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.IndexElement
	for _, e := range m.elements {
		if e.DocumentID == documentID {
			result = append(result, e)
		}
	}
	sortElements(result)
	return result, nil
}

// Elements returns every stored element of an index, ordered by document and group position
func (m *MockIndexStore) Elements(indexID int64) []domain.IndexElement {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.IndexElement
	for _, e := range m.elements {
		if e.IndexID == indexID {
			result = append(result, e)
		}
	}
	sortElements(result)
	return result
}

// removeWhere must be called with the write lock held
func (m *MockIndexStore) removeWhere(drop func(domain.IndexElement) bool) int64 {
	var removed int64
	kept := m.elements[:0]
	for _, e := range m.elements {
		if drop(e) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.elements = kept
	return removed
}

func sortElements(elements []domain.IndexElement) {
	sort.SliceStable(elements, func(i, j int) bool {
		a, b := elements[i], elements[j]
		if a.IndexID != b.IndexID {
			return a.IndexID < b.IndexID
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.GroupPos < b.GroupPos
	})
}

var _ driven.IndexViewStore = (*MockIndexViewStore)(nil)

// MockIndexViewStore records the views it was asked to maintain
type MockIndexViewStore struct {
	mu    sync.Mutex
	views map[string][]string // key: /pkg/rt, value: index labels
}

// NewMockIndexViewStore creates a new MockIndexViewStore
func NewMockIndexViewStore() *MockIndexViewStore {
	return &MockIndexViewStore{views: make(map[string][]string)}
}

func (m *MockIndexViewStore) CreateIndexView(ctx context.Context, packageID, resourceTypeID string, indexes []*domain.IndexDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	labels := make([]string, len(indexes))
	for i, def := range indexes {
		labels[i] = def.Label
	}
	m.views["/"+packageID+"/"+resourceTypeID] = labels
	return nil
}

func (m *MockIndexViewStore) DropIndexView(ctx context.Context, packageID, resourceTypeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.views, "/"+packageID+"/"+resourceTypeID)
	return nil
}

// View returns the column labels of a view and whether it exists
func (m *MockIndexViewStore) View(packageID, resourceTypeID string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	labels, ok := m.views["/"+packageID+"/"+resourceTypeID]
	return labels, ok
}
