// Package xpath parses the restricted XPath query language and index
// expressions.
//
// Query grammar:
//
//	query      ::= location [ "[" or "]" ] [ "order by" item { "," item } ] [ "limit" N [ "," M ] ] [ "offset" M ]
//	location   ::= "/" id "/" id [ "/" ( name | "*" ) ]
//	or         ::= and { "or" and }
//	and        ::= primary { "and" primary }
//	primary    ::= "not" "(" or ")" | "(" or ")" | path [ relop ( literal | path ) ]
//	path       ::= [ "/" ] node { "/" node }
//	node       ::= name | "@" name | "*" | "." | ".."
//	item       ::= path [ "asc" | "desc" ]
//
// A leading macro block "{alias=text, ...}" is expanded textually before parsing.
package xpath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

// ParseQuery expands macros in query and parses the result
func ParseQuery(query string) (*domain.ParsedQuery, error) {
	expanded, err := ApplyMacros(query)
	if err != nil {
		return nil, err
	}
	tokens, err := tokenize(expanded)
	if err != nil {
		return nil, err
	}

	p := &parser{input: expanded, tokens: tokens}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	q.Raw = query
	return q, nil
}

type parser struct {
	input  string
	tokens []token
	pos    int
	loc    domain.LocationPath
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *parser) read() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.read()
	if tok.kind != kind {
		return tok, p.unexpected(tok)
	}
	return tok, nil
}

func (p *parser) expectKeyword(keyword string) error {
	tok := p.read()
	if !tok.is(keyword) {
		return p.unexpected(tok)
	}
	return nil
}

func (p *parser) unexpected(tok token) error {
	if tok.kind == tokEOF {
		return syntaxError(p.input, tok.pos, "")
	}
	return syntaxError(p.input, tok.pos, p.input[tok.pos:p.end(tok)])
}

// end returns the input offset just after tok, including string quotes
func (p *parser) end(tok token) int {
	if tok.kind == tokString {
		return tok.pos + len(tok.text) + 2
	}
	return tok.pos + len(tok.text)
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: %s at offset %d in %q", domain.ErrInvalidInput, msg, tok.pos, p.input)
}

func (p *parser) parseQuery() (*domain.ParsedQuery, error) {
	if err := p.parseLocation(); err != nil {
		return nil, err
	}
	q := &domain.ParsedQuery{Location: p.loc}

	if p.peek().kind == tokLBracket {
		p.read()
		pred, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRBracket); err != nil {
			return nil, err
		}
		q.Predicate = pred
	}

	if p.peek().is("order") {
		p.read()
		if err := p.expectKeyword("by"); err != nil {
			return nil, err
		}
		for {
			item, err := p.parseOrderItem()
			if err != nil {
				return nil, err
			}
			q.OrderBy = append(q.OrderBy, item)
			if p.peek().kind != tokComma {
				break
			}
			p.read()
		}
	}

	offsetSet := false
	if p.peek().is("limit") {
		p.read()
		n, err := p.parseCount()
		if err != nil {
			return nil, err
		}
		q.Limit = n
		if p.peek().kind == tokComma {
			p.read()
			if q.Offset, err = p.parseCount(); err != nil {
				return nil, err
			}
			offsetSet = true
		}
	}

	if tok := p.peek(); tok.is("offset") {
		p.read()
		if offsetSet {
			return nil, p.errorf(tok, "offset given twice")
		}
		n, err := p.parseCount()
		if err != nil {
			return nil, err
		}
		q.Offset = n
	}

	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.unexpected(tok)
	}
	return q, nil
}

func (p *parser) parseLocation() error {
	var steps []string
	for p.peek().kind == tokSlash {
		slash := p.read()
		if len(steps) == 3 {
			return p.errorf(slash, "location path supports at most three steps")
		}
		tok := p.read()
		switch {
		case tok.kind == tokStar:
			steps = append(steps, domain.Wildcard)
		case len(steps) < 2 && (tok.kind == tokName || tok.kind == tokNumber):
			if err := domain.ValidateIdentifier("location step", tok.text); err != nil {
				return p.errorf(tok, "invalid location step %q", tok.text)
			}
			steps = append(steps, tok.text)
		case len(steps) == 2 && tok.kind == tokName && !strings.HasPrefix(tok.text, "@"):
			steps = append(steps, tok.text)
		default:
			return p.unexpected(tok)
		}
	}
	if len(steps) < 2 {
		return p.errorf(p.peek(), "location path needs a package and a resource type")
	}

	p.loc = domain.LocationPath{PackageID: steps[0], ResourceTypeID: steps[1]}
	if len(steps) == 3 {
		p.loc.RootNode = steps[2]
	}
	return nil
}

func (p *parser) parseOr() (domain.Predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().is("or") {
		p.read()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &domain.Logical{Op: domain.LogicalOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (domain.Predicate, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().is("and") {
		p.read()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &domain.Logical{Op: domain.LogicalAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parsePrimary() (domain.Predicate, error) {
	tok := p.peek()

	if tok.is("not") && p.peekAt(1).kind == tokLParen {
		p.read()
		inner, err := p.parseParenthesised()
		if err != nil {
			return nil, err
		}
		return &domain.Not{Operand: inner}, nil
	}
	if tok.kind == tokLParen {
		return p.parseParenthesised()
	}

	left, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokOp {
		return &domain.PathPredicate{Path: left}, nil
	}

	opTok := p.read()
	op, ok := domain.ParseOperator(opTok.text)
	if !ok {
		return nil, p.unexpected(opTok)
	}

	cmp := &domain.Comparison{Left: left, Op: op}
	switch rhs := p.peek(); rhs.kind {
	case tokString:
		p.read()
		cmp.Value = &domain.Literal{Value: rhs.text, Quoted: true}
	case tokNumber:
		p.read()
		cmp.Value = &domain.Literal{Value: rhs.text}
	default:
		right, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		cmp.Right = &right
	}
	return cmp, nil
}

func (p *parser) parseParenthesised() (domain.Predicate, error) {
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	inner, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return inner, nil
}

func (p *parser) parseOrderItem() (domain.OrderBy, error) {
	path, err := p.parsePath()
	if err != nil {
		return domain.OrderBy{}, err
	}
	item := domain.OrderBy{Path: path}
	switch tok := p.peek(); {
	case tok.is("asc"):
		p.read()
	case tok.is("desc"):
		p.read()
		item.Descending = true
	}
	return item, nil
}

func (p *parser) parseCount() (int, error) {
	tok, err := p.expect(tokNumber)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(tok.text)
	if err != nil || n < 0 {
		return 0, p.errorf(tok, "%q is not a non-negative integer", tok.text)
	}
	return n, nil
}

// parsePath reads a path expression and resolves it against the location:
// leading ".." steps climb from the end of the location, "." steps vanish,
// and an absolute path names package and resource type itself.
func (p *parser) parsePath() (domain.PathExpr, error) {
	start := p.peek()
	absolute := false
	if start.kind == tokSlash {
		absolute = true
		p.read()
	}

	var nodes []string
	climb := 0
	for {
		tok := p.read()
		switch tok.kind {
		case tokName:
			nodes = append(nodes, tok.text)
		case tokNumber:
			// numeric package or resource type ids
			if strings.ContainsAny(tok.text, "-.") {
				return domain.PathExpr{}, p.unexpected(tok)
			}
			nodes = append(nodes, tok.text)
		case tokStar:
			nodes = append(nodes, domain.Wildcard)
		case tokDot:
		case tokDotDot:
			if absolute || len(nodes) > 0 {
				return domain.PathExpr{}, p.errorf(tok, "'..' is only allowed at the start of a relative path")
			}
			climb++
		default:
			return domain.PathExpr{}, p.unexpected(tok)
		}
		if p.peek().kind != tokSlash {
			break
		}
		p.read()
	}

	var full []string
	if absolute {
		full = nodes
	} else {
		steps := p.loc.Steps()
		if climb > len(steps) {
			return domain.PathExpr{}, p.errorf(start, "path climbs above the package level")
		}
		full = append(append(full, steps[:len(steps)-climb]...), nodes...)
	}

	if len(full) < 3 {
		return domain.PathExpr{}, p.errorf(start, "path does not address a node below a resource type")
	}
	for _, id := range full[:2] {
		if id != domain.Wildcard && domain.ValidateIdentifier("path step", id) != nil {
			return domain.PathExpr{}, p.errorf(start, "invalid package or resource type %q in path", id)
		}
	}
	return domain.PathExpr{
		PackageID:      full[0],
		ResourceTypeID: full[1],
		XPath:          strings.Join(full[2:], "/"),
	}, nil
}
