// Package xmltree adapts antchfx/xmlquery trees to the XML tree abstraction
// consumed by the indexer.
package xmltree

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.XMLParser = (*Parser)(nil)

// Parser parses XML documents and caches compiled XPath expressions.
// It is safe for concurrent use.
type Parser struct {
	compiled sync.Map // expr -> *xpath.Expr
}

// NewParser creates a new Parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses data into a tree. Malformed XML and documents without a root
// element return ErrInvalidInput.
func (p *Parser) Parse(data []byte) (domain.XMLTree, error) {
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed xml: %v", domain.ErrInvalidInput, err)
	}
	if rootElement(root) == nil {
		return nil, fmt.Errorf("%w: document has no root element", domain.ErrInvalidInput)
	}
	return &tree{root: root, parser: p}, nil
}

// ValidateXPath checks that expr compiles
func (p *Parser) ValidateXPath(expr string) error {
	if _, err := p.compile(expr); err != nil {
		return err
	}
	return nil
}

func (p *Parser) compile(expr string) (*xpath.Expr, error) {
	if cached, ok := p.compiled.Load(expr); ok {
		return cached.(*xpath.Expr), nil
	}
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid xpath %q: %v", domain.ErrInvalidInput, expr, err)
	}
	p.compiled.Store(expr, compiled)
	return compiled, nil
}

// RootName returns the name of the root element of a parsed tree, prefix included
func RootName(t domain.XMLTree) string {
	tr, ok := t.(*tree)
	if !ok {
		return ""
	}
	el := rootElement(tr.root)
	if el == nil {
		return ""
	}
	if el.Prefix != "" {
		return el.Prefix + ":" + el.Data
	}
	return el.Data
}

func rootElement(doc *xmlquery.Node) *xmlquery.Node {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}
