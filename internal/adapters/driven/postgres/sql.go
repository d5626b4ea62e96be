package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

// renderedPlan is a query plan as SQL text with positional arguments
type renderedPlan struct {
	SQL  string
	Args []any
}

// planRenderer turns a QueryPlan into one SELECT over latest_documents.
// Every predicate leaf becomes an EXISTS sub-select over the element tables;
// table aliases come from a counter so nested sub-selects never collide.
type planRenderer struct {
	sb    strings.Builder
	args  []any
	alias int
}

func (r *planRenderer) arg(v any) string {
	r.args = append(r.args, v)
	return "$" + strconv.Itoa(len(r.args))
}

func (r *planRenderer) nextAlias() string {
	r.alias++
	return "x" + strconv.Itoa(r.alias)
}

func (r *planRenderer) write(parts ...string) {
	for _, p := range parts {
		r.sb.WriteString(p)
	}
}

// renderPlan renders the full query: candidate documents of the location,
// the filter, order keys, paging
func renderPlan(plan *domain.QueryPlan) (*renderedPlan, error) {
	r := &planRenderer{}

	r.write("SELECT d.id, d.resource_id, d.package_id, d.resourcetype_id, d.name, d.revision")
	for i := range plan.OrderBy {
		r.write(", o", strconv.Itoa(i+1), ".keyval")
	}
	r.write(" FROM latest_documents d")

	for i, term := range plan.OrderBy {
		if err := r.orderJoin(i+1, term); err != nil {
			return nil, err
		}
	}

	r.write(" WHERE TRUE")
	if loc := plan.Location; loc.PackageID != "" && loc.PackageID != domain.Wildcard {
		r.write(" AND d.package_id = ", r.arg(loc.PackageID))
	}
	if loc := plan.Location; loc.ResourceTypeID != "" && loc.ResourceTypeID != domain.Wildcard {
		r.write(" AND d.resourcetype_id = ", r.arg(loc.ResourceTypeID))
	}
	if plan.Filter != nil {
		r.write(" AND ")
		if err := r.condition(plan.Filter); err != nil {
			return nil, err
		}
	}

	r.write(" ORDER BY ")
	for i, term := range plan.OrderBy {
		dir := " ASC"
		if term.Descending {
			dir = " DESC"
		}
		r.write("o", strconv.Itoa(i+1), ".keyval", dir, " NULLS LAST, ")
	}
	r.write("d.id")

	if plan.Limit > 0 {
		r.write(" LIMIT ", r.arg(plan.Limit))
	}
	if plan.Offset > 0 {
		r.write(" OFFSET ", r.arg(plan.Offset))
	}
	return &renderedPlan{SQL: r.sb.String(), Args: r.args}, nil
}

// orderJoin joins the per-document sort key of one order term: the smallest
// key ascending, the largest descending
func (r *planRenderer) orderJoin(n int, term domain.OrderTerm) error {
	table, err := elementTable(term.Index.Type)
	if err != nil {
		return err
	}
	alias := "o" + strconv.Itoa(n)
	r.write(" LEFT JOIN (SELECT e.document_id, ", aggregate(term, table),
		" AS keyval FROM ", table, " e WHERE e.index_id = ", r.arg(term.Index.ID),
		" GROUP BY e.document_id) ", alias, " ON ", alias, ".document_id = d.id")
	return nil
}

func aggregate(term domain.OrderTerm, table string) string {
	key := keyColumn(table, "e")
	switch {
	case term.Index.Type == domain.IndexTypeBoolean && term.Descending:
		return "BOOL_OR(" + key + ")"
	case term.Index.Type == domain.IndexTypeBoolean:
		return "BOOL_AND(" + key + ")"
	case term.Descending:
		return "MAX(" + key + ")"
	default:
		return "MIN(" + key + ")"
	}
}

func (r *planRenderer) condition(c domain.Condition) error {
	switch n := c.(type) {
	case *domain.Match:
		return r.match(n)
	case *domain.NotCondition:
		r.write("NOT (")
		if err := r.condition(n.Operand); err != nil {
			return err
		}
		r.write(")")
	case *domain.AndCondition:
		return r.binary(n.Left, "AND", n.Right)
	case *domain.OrCondition:
		return r.binary(n.Left, "OR", n.Right)
	default:
		return fmt.Errorf("%w: unsupported condition %T", domain.ErrInvalidInput, c)
	}
	return nil
}

func (r *planRenderer) binary(left domain.Condition, op string, right domain.Condition) error {
	r.write("(")
	if err := r.condition(left); err != nil {
		return err
	}
	r.write(" ", op, " ")
	if err := r.condition(right); err != nil {
		return err
	}
	r.write(")")
	return nil
}

// match renders one EXISTS with a row per term. Local rows are correlated
// with the candidate document; other rows only have to belong to some
// latest document.
func (r *planRenderer) match(m *domain.Match) error {
	aliases := make([]string, len(m.Terms))
	tables := make([]string, len(m.Terms))
	for i, term := range m.Terms {
		table, err := elementTable(term.Index.Type)
		if err != nil {
			return err
		}
		aliases[i] = r.nextAlias()
		tables[i] = table
	}

	r.write("EXISTS (SELECT 1 FROM ")
	for i := range m.Terms {
		if i > 0 {
			r.write(", ")
		}
		r.write(tables[i], " ", aliases[i])
	}
	r.write(" WHERE ")

	for i, term := range m.Terms {
		a := aliases[i]
		if i > 0 {
			r.write(" AND ")
		}
		r.write(a, ".index_id = ", r.arg(term.Index.ID))
		if term.Local {
			r.write(" AND ", a, ".document_id = d.id")
		} else {
			r.write(" AND ", a, ".document_id IN (SELECT id FROM latest_documents)")
		}
		if term.GroupWith >= 0 {
			g := aliases[term.GroupWith]
			r.write(" AND ", a, ".document_id = ", g, ".document_id AND ", a, ".group_pos = ", g, ".group_pos")
		}
		if term.Op == "" {
			continue
		}
		op, err := sqlOperator(term.Op)
		if err != nil {
			return err
		}
		switch {
		case term.Ref >= 0:
			r.write(" AND ", a, ".keyval ", op, " ", aliases[term.Ref], ".keyval")
		case term.Value != nil:
			r.write(" AND ", a, ".keyval ", op, " ", r.arg(keyArg(*term.Value)))
		}
	}
	r.write(")")
	return nil
}

func sqlOperator(op domain.Operator) (string, error) {
	switch op {
	case domain.OpEq, domain.OpLt, domain.OpLe, domain.OpGt, domain.OpGe:
		return string(op), nil
	case domain.OpNe:
		return "<>", nil
	}
	return "", fmt.Errorf("%w: unknown operator %q", domain.ErrInvalidInput, op)
}
