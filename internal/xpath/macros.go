package xpath

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

// ApplyMacros expands a leading "{alias=text, ...}" block: every later
// "{alias}" is replaced by its text and runs of whitespace outside quoted
// literals collapse to a single space.
//
//	{test=world, blub=!} hello {test}{blub}  =>  hello world!
func ApplyMacros(query string) (string, error) {
	body := strings.TrimLeftFunc(query, unicode.IsSpace)
	macros := map[string]string{}

	if strings.HasPrefix(body, "{") {
		end := strings.IndexByte(body, '}')
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated macro block in %q", domain.ErrInvalidInput, query)
		}
		for _, def := range strings.Split(body[1:end], ",") {
			if strings.TrimSpace(def) == "" {
				continue
			}
			name, value, ok := strings.Cut(def, "=")
			name = strings.TrimSpace(name)
			if !ok || name == "" {
				return "", fmt.Errorf("%w: invalid macro definition %q", domain.ErrInvalidInput, strings.TrimSpace(def))
			}
			macros[name] = strings.TrimSpace(value)
		}
		body = body[end+1:]
	}

	var sb strings.Builder
	var quote byte
	space := false
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			sb.WriteByte(c)
			continue
		case c == '"' || c == '\'':
			quote = c
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			space = true
			continue
		case c == '{':
			end := strings.IndexByte(body[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unterminated macro reference at offset %d in %q", domain.ErrInvalidInput, i, body)
			}
			name := strings.TrimSpace(body[i+1 : i+end])
			value, ok := macros[name]
			if !ok {
				return "", fmt.Errorf("%w: undefined macro %q", domain.ErrInvalidInput, name)
			}
			if space && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			space = false
			sb.WriteString(value)
			i += end
			continue
		}
		if space && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		space = false
		sb.WriteByte(c)
	}
	return sb.String(), nil
}
