package domain

import (
	"strconv"
	"strings"
)

// QueryPlan is a parsed query whose paths have all been resolved to index
// definitions. It is what a QueryExecutor runs.
type QueryPlan struct {
	Location LocationPath
	Filter   Condition // nil selects every latest document of the location
	OrderBy  []OrderTerm
	Limit    int
	Offset   int
}

// Condition is a node of the compiled boolean filter
type Condition interface {
	condition()
}

// Match holds when index rows exist that satisfy all terms jointly.
// Terms correlated by group position or by a joined-path comparison share one Match.
type Match struct {
	Terms []MatchTerm
}

// MatchTerm constrains one row of one index
type MatchTerm struct {
	Index *IndexDefinition

	// Local rows belong to the candidate document; other rows may belong to
	// any latest document of the index's scope (cross-resourcetype paths).
	Local bool

	// Op is empty for an existence test
	Op Operator

	// Value is the literal operand, nil for existence tests and joined paths
	Value *IndexValue

	// Ref is the position of the term whose key is the right operand, or -1
	Ref int

	// GroupWith is the position of the term whose group_pos must be equal, or -1
	GroupWith int
}

// NotCondition negates its operand
type NotCondition struct {
	Operand Condition
}

// AndCondition holds when both operands hold
type AndCondition struct {
	Left  Condition
	Right Condition
}

// OrCondition holds when either operand holds
type OrCondition struct {
	Left  Condition
	Right Condition
}

func (*Match) condition()        {}
func (*NotCondition) condition() {}
func (*AndCondition) condition() {}
func (*OrCondition) condition()  {}

// OrderTerm sorts by the smallest (ascending) or largest (descending) key of
// an index within each document; documents without a key sort last.
type OrderTerm struct {
	Index      *IndexDefinition
	Descending bool
}

// DescribeCondition renders a condition tree for logs and tests
func DescribeCondition(c Condition) string {
	switch n := c.(type) {
	case nil:
		return "true"
	case *Match:
		parts := make([]string, len(n.Terms))
		for i, t := range n.Terms {
			s := t.Index.Path()
			switch {
			case t.Ref >= 0:
				s += " " + string(t.Op) + " $" + strconv.Itoa(t.Ref)
			case t.Value != nil:
				s += " " + string(t.Op) + " " + t.Value.String()
			}
			if t.GroupWith >= 0 {
				s += " #" + strconv.Itoa(t.GroupWith)
			}
			parts[i] = s
		}
		return "exists(" + strings.Join(parts, ", ") + ")"
	case *NotCondition:
		return "not(" + DescribeCondition(n.Operand) + ")"
	case *AndCondition:
		return "(" + DescribeCondition(n.Left) + " and " + DescribeCondition(n.Right) + ")"
	case *OrCondition:
		return "(" + DescribeCondition(n.Left) + " or " + DescribeCondition(n.Right) + ")"
	}
	return "?"
}

// QueryResult holds the matching documents of a query in result order
type QueryResult struct {
	Ordered   []int64              `json:"ordered"`
	Rows      map[int64]*ResultRow `json:"rows"`
	Resources []*Resource          `json:"resources,omitempty"`
}

// ResultRow describes one matching document
type ResultRow struct {
	DocumentID     int64  `json:"document_id"`
	ResourceID     int64  `json:"resource_id"`
	PackageID      string `json:"package_id"`
	ResourceTypeID string `json:"resourcetype_id"`
	ResourceName   string `json:"resource_name"`
	Revision       int    `json:"revision"`

	// Values holds the order-by keys keyed by index path
	Values map[string]IndexValue `json:"values,omitempty"`
}
