package domain

import (
	"strconv"
	"strings"
)

// Operator is a relational operator of the query language
type Operator string

const (
	OpEq Operator = "="
	OpNe Operator = "!="
	OpLt Operator = "<"
	OpLe Operator = "<="
	OpGt Operator = ">"
	OpGe Operator = ">="
)

// ParseOperator parses a relational operator; "==" is accepted for "="
func ParseOperator(s string) (Operator, bool) {
	switch s {
	case "=", "==":
		return OpEq, true
	case "!=":
		return OpNe, true
	case "<":
		return OpLt, true
	case "<=":
		return OpLe, true
	case ">":
		return OpGt, true
	case ">=":
		return OpGe, true
	}
	return "", false
}

// LocationPath selects the documents a query targets. Empty or "*" fields match anything.
type LocationPath struct {
	PackageID      string `json:"package_id"`
	ResourceTypeID string `json:"resourcetype_id"`
	RootNode       string `json:"rootnode,omitempty"` // empty when the query names only /pkg/rt
}

// Steps returns the location steps in order, without the absent root node
func (l LocationPath) Steps() []string {
	steps := []string{l.PackageID, l.ResourceTypeID}
	if l.RootNode != "" {
		steps = append(steps, l.RootNode)
	}
	return steps
}

// HasRootNode returns true if a concrete root node restricts the location
func (l LocationPath) HasRootNode() bool {
	return l.RootNode != "" && l.RootNode != Wildcard
}

func (l LocationPath) String() string {
	return "/" + strings.Join(l.Steps(), "/")
}

// PathExpr is a predicate or order-by path resolved to the coordinates of
// the index registry: package, resource type and an xpath relative to the
// document, e.g. {"pkg", "rt", "station/lat"} or {"pkg", "rt", "lat"}.
type PathExpr struct {
	PackageID      string `json:"package_id"`
	ResourceTypeID string `json:"resourcetype_id"`
	XPath          string `json:"xpath"`
}

// String renders the path in absolute form, which parses back to the same PathExpr
func (p PathExpr) String() string {
	return "/" + p.PackageID + "/" + p.ResourceTypeID + "/" + p.XPath
}

// Literal is the constant right-hand side of a comparison
type Literal struct {
	Value  string `json:"value"`
	Quoted bool   `json:"quoted"`
}

func (l Literal) String() string {
	if !l.Quoted {
		return l.Value
	}
	if strings.Contains(l.Value, `"`) {
		return "'" + l.Value + "'"
	}
	return `"` + l.Value + `"`
}

// Predicate is a node of a parsed predicate tree
type Predicate interface {
	String() string
	predicate()
}

// PathPredicate is an existence test on a path
type PathPredicate struct {
	Path PathExpr
}

// Comparison compares a path with a literal, or with another path (a joined path)
type Comparison struct {
	Left  PathExpr
	Op    Operator
	Value *Literal
	Right *PathExpr
}

// Not negates its operand
type Not struct {
	Operand Predicate
}

// LogicalOp is "and" or "or"
type LogicalOp string

const (
	LogicalAnd LogicalOp = "and"
	LogicalOr  LogicalOp = "or"
)

// Logical combines two predicates with and/or
type Logical struct {
	Op    LogicalOp
	Left  Predicate
	Right Predicate
}

func (*PathPredicate) predicate() {}
func (*Comparison) predicate()    {}
func (*Not) predicate()           {}
func (*Logical) predicate()       {}

func (p *PathPredicate) String() string {
	return p.Path.String()
}

func (c *Comparison) String() string {
	rhs := ""
	if c.Right != nil {
		rhs = c.Right.String()
	} else if c.Value != nil {
		rhs = c.Value.String()
	}
	return c.Left.String() + " " + string(c.Op) + " " + rhs
}

func (n *Not) String() string {
	return "not(" + n.Operand.String() + ")"
}

func (l *Logical) String() string {
	return operand(l.Left) + " " + string(l.Op) + " " + operand(l.Right)
}

// nested logical nodes are always parenthesised so that the tree survives a re-parse
func operand(p Predicate) string {
	if _, ok := p.(*Logical); ok {
		return "(" + p.String() + ")"
	}
	return p.String()
}

// OrderBy is one sort key of a query
type OrderBy struct {
	Path       PathExpr `json:"path"`
	Descending bool     `json:"descending"`
}

func (o OrderBy) String() string {
	if o.Descending {
		return o.Path.String() + " desc"
	}
	return o.Path.String() + " asc"
}

// ParsedQuery is a restricted XPath query after parsing
type ParsedQuery struct {
	Raw       string
	Location  LocationPath
	Predicate Predicate // nil when the query has no predicate block
	OrderBy   []OrderBy
	Limit     int // 0 means unlimited
	Offset    int
}

// String renders the query in canonical form
func (q *ParsedQuery) String() string {
	var sb strings.Builder
	sb.WriteString(q.Location.String())
	if q.Predicate != nil {
		sb.WriteString("[")
		sb.WriteString(q.Predicate.String())
		sb.WriteString("]")
	}
	for i, o := range q.OrderBy {
		if i == 0 {
			sb.WriteString(" order by ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(o.String())
	}
	if q.Limit > 0 {
		sb.WriteString(" limit ")
		sb.WriteString(strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		sb.WriteString(" offset ")
		sb.WriteString(strconv.Itoa(q.Offset))
	}
	return sb.String()
}
