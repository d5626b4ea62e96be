package xmltree

import (
	"github.com/antchfx/xmlquery"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

var (
	_ domain.XMLTree = (*tree)(nil)
	_ domain.XMLNode = (*node)(nil)
)

type tree struct {
	root   *xmlquery.Node
	parser *Parser
}

// EvalXPath evaluates expr from the document node
func (t *tree) EvalXPath(expr string) ([]domain.XMLNode, error) {
	return t.parser.eval(t.root, expr)
}

type node struct {
	n      *xmlquery.Node
	parser *Parser
}

// StrContent returns the concatenated text of the node, or the value of an attribute
func (n *node) StrContent() string {
	return n.n.InnerText()
}

// EvalXPath evaluates expr with this node as the context node
func (n *node) EvalXPath(expr string) ([]domain.XMLNode, error) {
	return n.parser.eval(n.n, expr)
}

func (p *Parser) eval(from *xmlquery.Node, expr string) ([]domain.XMLNode, error) {
	compiled, err := p.compile(expr)
	if err != nil {
		return nil, err
	}
	found := xmlquery.QuerySelectorAll(from, compiled)
	result := make([]domain.XMLNode, len(found))
	for i, n := range found {
		result[i] = &node{n: n, parser: p}
	}
	return result, nil
}
