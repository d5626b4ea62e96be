package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven"
)

var _ driven.QueryExecutor = (*MockQueryExecutor)(nil)

// MockQueryExecutor evaluates query plans directly against a MockResourceStore
// and a MockIndexStore. Every executed plan is recorded.
type MockQueryExecutor struct {
	resources *MockResourceStore
	indexes   *MockIndexStore

	mu    sync.Mutex
	plans []*domain.QueryPlan

	// ExecuteFn overrides Execute when set
	ExecuteFn func(plan *domain.QueryPlan) (*domain.QueryResult, error)
}

// NewMockQueryExecutor creates an executor over the given stores
func NewMockQueryExecutor(resources *MockResourceStore, indexes *MockIndexStore) *MockQueryExecutor {
	return &MockQueryExecutor{resources: resources, indexes: indexes}
}

// Plans returns the executed plans in call order
func (m *MockQueryExecutor) Plans() []*domain.QueryPlan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.QueryPlan(nil), m.plans...)
}

// snapshot is the index state one execution runs against
type snapshot struct {
	latest map[int64]bool // latest document IDs
	rows   map[int64][]domain.IndexElement
}

func (m *MockQueryExecutor) Execute(ctx context.Context, plan *domain.QueryPlan) (*domain.QueryResult, error) {
	m.mu.Lock()
	m.plans = append(m.plans, plan)
	m.mu.Unlock()

	if m.ExecuteFn != nil {
		return m.ExecuteFn(plan)
	}

	all, err := m.resources.ListLatestDocuments(ctx, "", "")
	if err != nil {
		return nil, err
	}
	snap := &snapshot{latest: make(map[int64]bool), rows: make(map[int64][]domain.IndexElement)}
	for _, res := range all {
		snap.latest[res.Document.ID] = true
	}

	candidates, err := m.resources.ListLatestDocuments(ctx, plan.Location.PackageID, plan.Location.ResourceTypeID)
	if err != nil {
		return nil, err
	}

	result := &domain.QueryResult{Rows: make(map[int64]*domain.ResultRow)}
	for _, res := range candidates {
		ok, err := m.holds(plan.Filter, res.Document.ID, snap)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		row := &domain.ResultRow{
			DocumentID:     res.Document.ID,
			ResourceID:     res.ID,
			PackageID:      res.PackageID,
			ResourceTypeID: res.ResourceTypeID,
			ResourceName:   res.Name,
			Revision:       res.Document.Revision,
		}
		for _, term := range plan.OrderBy {
			key, found := m.orderKey(term, res.Document.ID, snap)
			if !found {
				continue
			}
			if row.Values == nil {
				row.Values = make(map[string]domain.IndexValue)
			}
			row.Values[term.Index.Path()] = key
		}
		result.Rows[row.DocumentID] = row
		result.Ordered = append(result.Ordered, row.DocumentID)
	}

	sort.SliceStable(result.Ordered, func(i, j int) bool {
		a, b := result.Rows[result.Ordered[i]], result.Rows[result.Ordered[j]]
		for _, term := range plan.OrderBy {
			path := term.Index.Path()
			va, okA := a.Values[path]
			vb, okB := b.Values[path]
			switch {
			case !okA && !okB:
				continue
			case !okA:
				return false
			case !okB:
				return true
			}
			c := domain.CompareOrder(va, vb)
			if term.Descending {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return a.DocumentID < b.DocumentID
	})

	result.Ordered = page(result.Ordered, plan.Offset, plan.Limit)
	kept := make(map[int64]*domain.ResultRow, len(result.Ordered))
	for _, id := range result.Ordered {
		kept[id] = result.Rows[id]
	}
	result.Rows = kept
	return result, nil
}

func page(ids []int64, offset, limit int) []int64 {
	if offset >= len(ids) {
		return nil
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	return ids
}

func (m *MockQueryExecutor) elements(indexID int64, snap *snapshot) []domain.IndexElement {
	if rows, ok := snap.rows[indexID]; ok {
		return rows
	}
	var rows []domain.IndexElement
	for _, e := range m.indexes.Elements(indexID) {
		if snap.latest[e.DocumentID] {
			rows = append(rows, e)
		}
	}
	snap.rows[indexID] = rows
	return rows
}

func (m *MockQueryExecutor) holds(c domain.Condition, docID int64, snap *snapshot) (bool, error) {
	switch n := c.(type) {
	case nil:
		return true, nil
	case *domain.NotCondition:
		ok, err := m.holds(n.Operand, docID, snap)
		return !ok, err
	case *domain.AndCondition:
		ok, err := m.holds(n.Left, docID, snap)
		if err != nil || !ok {
			return false, err
		}
		return m.holds(n.Right, docID, snap)
	case *domain.OrCondition:
		ok, err := m.holds(n.Left, docID, snap)
		if err != nil || ok {
			return ok, err
		}
		return m.holds(n.Right, docID, snap)
	case *domain.Match:
		chosen := make([]domain.IndexElement, len(n.Terms))
		return m.match(n.Terms, 0, chosen, docID, snap)
	}
	return false, nil
}

// match searches for one row per term, in term order, satisfying every constraint
func (m *MockQueryExecutor) match(terms []domain.MatchTerm, i int, chosen []domain.IndexElement, docID int64, snap *snapshot) (bool, error) {
	if i == len(terms) {
		return true, nil
	}
	term := terms[i]
	for _, row := range m.elements(term.Index.ID, snap) {
		if term.Local && row.DocumentID != docID {
			continue
		}
		if term.GroupWith >= 0 {
			anchor := chosen[term.GroupWith]
			if row.DocumentID != anchor.DocumentID || row.GroupPos != anchor.GroupPos {
				continue
			}
		}
		if term.Op != "" {
			var right domain.IndexValue
			switch {
			case term.Ref >= 0:
				right = chosen[term.Ref].Key
			case term.Value != nil:
				right = *term.Value
			default:
				continue
			}
			ok, err := domain.Compare(term.Op, row.Key, right)
			if err != nil {
				return false, err
			}
			if !ok {
				continue
			}
		}
		chosen[i] = row
		ok, err := m.match(terms, i+1, chosen, docID, snap)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (m *MockQueryExecutor) orderKey(term domain.OrderTerm, docID int64, snap *snapshot) (domain.IndexValue, bool) {
	var best domain.IndexValue
	found := false
	for _, row := range m.elements(term.Index.ID, snap) {
		if row.DocumentID != docID {
			continue
		}
		if !found {
			best, found = row.Key, true
			continue
		}
		c := domain.CompareOrder(row.Key, best)
		if (term.Descending && c > 0) || (!term.Descending && c < 0) {
			best = row.Key
		}
	}
	return best, found
}
