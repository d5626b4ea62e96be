package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

// Compiler resolves the paths of a parsed query to index definitions and
// builds the boolean condition tree a QueryExecutor runs. Every path is
// resolved before the plan is returned, so an unindexed path fails the whole
// query up front.
type Compiler struct {
	registry *IndexRegistry
}

// NewCompiler creates a Compiler
func NewCompiler(registry *IndexRegistry) *Compiler {
	return &Compiler{registry: registry}
}

// Compile turns a parsed query into a plan
func (c *Compiler) Compile(ctx context.Context, q *domain.ParsedQuery) (*domain.QueryPlan, error) {
	plan := &domain.QueryPlan{
		Location: q.Location,
		Limit:    q.Limit,
		Offset:   q.Offset,
	}

	switch {
	case q.Predicate != nil:
		filter, err := c.compile(ctx, q.Location, q.Predicate)
		if err != nil {
			return nil, err
		}
		plan.Filter = filter
	case q.Location.HasRootNode():
		def, err := c.registry.FindRootIndex(ctx, q.Location)
		if err != nil {
			return nil, err
		}
		plan.Filter = &domain.Match{Terms: []domain.MatchTerm{{
			Index:     def,
			Local:     true,
			Ref:       -1,
			GroupWith: -1,
		}}}
	}

	for _, o := range q.OrderBy {
		def, err := c.registry.FindIndex(ctx, o.Path)
		if err != nil {
			return nil, err
		}
		plan.OrderBy = append(plan.OrderBy, domain.OrderTerm{Index: def, Descending: o.Descending})
	}
	return plan, nil
}

func (c *Compiler) compile(ctx context.Context, loc domain.LocationPath, p domain.Predicate) (domain.Condition, error) {
	switch n := p.(type) {
	case *domain.PathPredicate:
		def, err := c.registry.FindIndex(ctx, n.Path)
		if err != nil {
			return nil, err
		}
		return &domain.Match{Terms: []domain.MatchTerm{{
			Index:     def,
			Local:     isLocal(loc, n.Path),
			Ref:       -1,
			GroupWith: -1,
		}}}, nil

	case *domain.Comparison:
		return c.compileComparison(ctx, loc, n)

	case *domain.Not:
		operand, err := c.compile(ctx, loc, n.Operand)
		if err != nil {
			return nil, err
		}
		return &domain.NotCondition{Operand: operand}, nil

	case *domain.Logical:
		if n.Op == domain.LogicalAnd {
			return c.compileConjunction(ctx, loc, n)
		}
		left, err := c.compile(ctx, loc, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := c.compile(ctx, loc, n.Right)
		if err != nil {
			return nil, err
		}
		return &domain.OrCondition{Left: left, Right: right}, nil
	}
	return nil, fmt.Errorf("%w: unsupported predicate %T", domain.ErrInvalidInput, p)
}

func (c *Compiler) compileComparison(ctx context.Context, loc domain.LocationPath, cmp *domain.Comparison) (domain.Condition, error) {
	left, err := c.registry.FindIndex(ctx, cmp.Left)
	if err != nil {
		return nil, err
	}
	if left.Type == domain.IndexTypeNone {
		return nil, fmt.Errorf("%w: %s is an existence index and cannot be compared", domain.ErrInvalidInput, cmp.Left)
	}
	if left.Type == domain.IndexTypeBoolean && cmp.Op != domain.OpEq && cmp.Op != domain.OpNe {
		return nil, fmt.Errorf("%w: operator %s is not defined for boolean index %s", domain.ErrInvalidInput, cmp.Op, cmp.Left)
	}

	if cmp.Right == nil {
		value, err := domain.ParseLiteral(left.Type, cmp.Value.Value)
		if err != nil {
			return nil, err
		}
		return &domain.Match{Terms: []domain.MatchTerm{{
			Index:     left,
			Local:     isLocal(loc, cmp.Left),
			Op:        cmp.Op,
			Value:     &value,
			Ref:       -1,
			GroupWith: -1,
		}}}, nil
	}

	right, err := c.registry.FindIndex(ctx, *cmp.Right)
	if err != nil {
		return nil, err
	}
	if !domain.Comparable(left.Type, right.Type) {
		return nil, fmt.Errorf("%w: cannot compare %s (%s) with %s (%s)",
			domain.ErrInvalidInput, cmp.Left, left.Type, *cmp.Right, right.Type)
	}

	rightTerm := domain.MatchTerm{
		Index:     right,
		Local:     isLocal(loc, *cmp.Right),
		Ref:       -1,
		GroupWith: -1,
	}
	leftTerm := domain.MatchTerm{
		Index:     left,
		Local:     isLocal(loc, cmp.Left),
		Op:        cmp.Op,
		Ref:       0,
		GroupWith: -1,
	}
	if leftTerm.Local && rightTerm.Local && left.IsGrouped() && left.GroupPath == right.GroupPath {
		leftTerm.GroupWith = 0
	}
	return &domain.Match{Terms: []domain.MatchTerm{rightTerm, leftTerm}}, nil
}

// compileConjunction compiles a chain of 'and' operands. Operands whose
// terms are all local and grouped by the same group path merge into one
// Match correlated by group position; the rest stay separate, in order.
func (c *Compiler) compileConjunction(ctx context.Context, loc domain.LocationPath, n *domain.Logical) (domain.Condition, error) {
	var operands []domain.Predicate
	flattenAnd(n, &operands)

	var (
		parts  []domain.Condition
		groups = map[string]*domain.Match{}
	)
	for _, operand := range operands {
		cond, err := c.compile(ctx, loc, operand)
		if err != nil {
			return nil, err
		}
		m, ok := cond.(*domain.Match)
		group := groupOf(m)
		if !ok || group == "" {
			parts = append(parts, cond)
			continue
		}
		if target, seen := groups[group]; seen {
			mergeGrouped(target, m, group)
			continue
		}
		groups[group] = m
		parts = append(parts, m)
	}

	result := parts[0]
	for _, part := range parts[1:] {
		result = &domain.AndCondition{Left: result, Right: part}
	}
	return result, nil
}

func flattenAnd(p domain.Predicate, out *[]domain.Predicate) {
	if l, ok := p.(*domain.Logical); ok && l.Op == domain.LogicalAnd {
		flattenAnd(l.Left, out)
		flattenAnd(l.Right, out)
		return
	}
	*out = append(*out, p)
}

// groupOf returns the shared group path of a Match whose terms are all local
// and whose grouped terms agree on one group path, or "" otherwise
func groupOf(m *domain.Match) string {
	if m == nil {
		return ""
	}
	group := ""
	for _, t := range m.Terms {
		if !t.Local {
			return ""
		}
		if !t.Index.IsGrouped() {
			continue
		}
		if group != "" && group != t.Index.GroupPath {
			return ""
		}
		group = t.Index.GroupPath
	}
	return group
}

// mergeGrouped appends the terms of src to dst and ties every uncorrelated
// grouped term of src to the first grouped term of dst
func mergeGrouped(dst, src *domain.Match, group string) {
	anchor := -1
	for i, t := range dst.Terms {
		if t.Index.GroupPath == group {
			anchor = i
			break
		}
	}

	offset := len(dst.Terms)
	for _, t := range src.Terms {
		if t.Ref >= 0 {
			t.Ref += offset
		}
		switch {
		case t.GroupWith >= 0:
			t.GroupWith += offset
		case t.Index.GroupPath == group:
			t.GroupWith = anchor
		}
		dst.Terms = append(dst.Terms, t)
	}
}

// isLocal reports whether a path addresses the documents being queried
func isLocal(loc domain.LocationPath, path domain.PathExpr) bool {
	return path.PackageID == loc.PackageID && path.ResourceTypeID == loc.ResourceTypeID
}
