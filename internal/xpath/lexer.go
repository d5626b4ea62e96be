package xpath

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokName
	tokNumber
	tokString
	tokSlash
	tokDot
	tokDotDot
	tokStar
	tokLBracket
	tokRBracket
	tokLParen
	tokRParen
	tokComma
	tokOp
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of query"
	case tokName:
		return "name"
	case tokNumber:
		return "number"
	case tokString:
		return "string"
	case tokOp:
		return "operator"
	}
	return "symbol"
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// is reports whether the token is the given keyword, case-insensitively
func (t token) is(keyword string) bool {
	return t.kind == tokName && strings.EqualFold(t.text, keyword)
}

func isNameStart(r rune) bool {
	return r == '_' || r == ':' || unicode.IsLetter(r)
}

func isNameChar(r rune) bool {
	return isNameStart(r) || r == '-' || r == '.' || r == 0xB7 || unicode.IsDigit(r) ||
		unicode.Is(unicode.Mn, r)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// tokenize splits a query into tokens: "lat<=50.2" => "lat" "<=" "50.2"
func tokenize(input string) ([]token, error) {
	var tokens []token
	emit := func(kind tokenKind, start, end int) {
		tokens = append(tokens, token{kind: kind, text: input[start:end], pos: start})
	}

	for pos := 0; pos < len(input); {
		c := input[pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			pos++
		case c == '/':
			emit(tokSlash, pos, pos+1)
			pos++
		case c == '*':
			emit(tokStar, pos, pos+1)
			pos++
		case c == '[':
			emit(tokLBracket, pos, pos+1)
			pos++
		case c == ']':
			emit(tokRBracket, pos, pos+1)
			pos++
		case c == '(':
			emit(tokLParen, pos, pos+1)
			pos++
		case c == ')':
			emit(tokRParen, pos, pos+1)
			pos++
		case c == ',':
			emit(tokComma, pos, pos+1)
			pos++
		case c == '.':
			if pos+1 < len(input) && input[pos+1] == '.' {
				emit(tokDotDot, pos, pos+2)
				pos += 2
			} else {
				emit(tokDot, pos, pos+1)
				pos++
			}
		case c == '=' || c == '<' || c == '>' || c == '!':
			end := pos + 1
			if end < len(input) && input[end] == '=' {
				end++
			}
			if input[pos:end] == "!" {
				return nil, syntaxError(input, pos, "!")
			}
			emit(tokOp, pos, end)
			pos = end
		case c == '"' || c == '\'':
			end := strings.IndexByte(input[pos+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated string literal at offset %d in %q", domain.ErrInvalidInput, pos, input)
			}
			// the token text excludes the quotes
			tokens = append(tokens, token{kind: tokString, text: input[pos+1 : pos+1+end], pos: pos})
			pos += end + 2
		case isDigit(c) || (c == '-' && pos+1 < len(input) && isDigit(input[pos+1])):
			end := scanNumber(input, pos)
			if r, _ := utf8.DecodeRuneInString(input[end:]); end < len(input) && isNameChar(r) && c != '-' {
				// identifiers such as package ids may start with digits
				end = scanName(input, pos)
				emit(tokName, pos, end)
			} else {
				emit(tokNumber, pos, end)
			}
			pos = end
		default:
			start := pos
			if c == '@' {
				pos++
			}
			r, _ := utf8.DecodeRuneInString(input[pos:])
			if pos >= len(input) || !isNameStart(r) {
				return nil, syntaxError(input, start, input[start:min(start+1, len(input))])
			}
			pos = scanName(input, pos)
			emit(tokName, start, pos)
		}
	}

	tokens = append(tokens, token{kind: tokEOF, pos: len(input)})
	return tokens, nil
}

func scanNumber(input string, pos int) int {
	end := pos
	if input[end] == '-' {
		end++
	}
	for end < len(input) && isDigit(input[end]) {
		end++
	}
	if end+1 < len(input) && input[end] == '.' && isDigit(input[end+1]) {
		end++
		for end < len(input) && isDigit(input[end]) {
			end++
		}
	}
	return end
}

func scanName(input string, pos int) int {
	for pos < len(input) {
		r, size := utf8.DecodeRuneInString(input[pos:])
		if !isNameChar(r) {
			break
		}
		pos += size
	}
	return pos
}

func syntaxError(input string, pos int, fragment string) error {
	if fragment == "" {
		return fmt.Errorf("%w: unexpected end of query in %q", domain.ErrInvalidInput, input)
	}
	return fmt.Errorf("%w: unexpected %q at offset %d in %q", domain.ErrInvalidInput, fragment, pos, input)
}
