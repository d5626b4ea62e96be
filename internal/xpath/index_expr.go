package xpath

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

// IndexExpression is a parsed index-defining expression
type IndexExpression struct {
	PackageID      string
	ResourceTypeID string
	XPath          string
	GroupPath      string
}

// ParseIndexExpression parses "/package/resourcetype/rootnode/step/.../(node|@attr)".
// A single '#' in place of a '/' marks the group path:
// "/pkg/rt/station/XY#X" has xpath "/station/XY/X" grouped by "/station/XY".
func ParseIndexExpression(expr string) (IndexExpression, error) {
	expr = strings.TrimSpace(expr)
	if strings.ContainsAny(expr, "[]") {
		return IndexExpression{}, fmt.Errorf("%w: index expression %q must not contain predicates", domain.ErrInvalidInput, expr)
	}
	if !strings.HasPrefix(expr, "/") {
		return IndexExpression{}, fmt.Errorf("%w: index expression %q must be absolute", domain.ErrInvalidInput, expr)
	}

	parts := strings.SplitN(expr[1:], "/", 3)
	if len(parts) < 3 || parts[2] == "" {
		return IndexExpression{}, fmt.Errorf("%w: index expression %q needs package, resource type and root node", domain.ErrInvalidInput, expr)
	}
	for _, id := range parts[:2] {
		if id != domain.Wildcard && domain.ValidateIdentifier("index expression step", id) != nil {
			return IndexExpression{}, fmt.Errorf("%w: invalid package or resource type %q in %q", domain.ErrInvalidInput, id, expr)
		}
	}
	if parts[0] == domain.Wildcard {
		return IndexExpression{}, fmt.Errorf("%w: index expression %q must name a package", domain.ErrInvalidInput, expr)
	}

	xpath, group, err := SplitGroupMarker("/" + parts[2])
	if err != nil {
		return IndexExpression{}, err
	}
	return IndexExpression{
		PackageID:      parts[0],
		ResourceTypeID: parts[1],
		XPath:          xpath,
		GroupPath:      group,
	}, nil
}

// SplitGroupMarker normalises an index xpath and splits off an optional
// '#' group marker. It also rejects empty steps.
func SplitGroupMarker(raw string) (xpath, groupPath string, err error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	raw = strings.TrimSuffix(raw, "/")

	switch strings.Count(raw, "#") {
	case 0:
		xpath = raw
	case 1:
		i := strings.IndexByte(raw, '#')
		groupPath = raw[:i]
		xpath = groupPath + "/" + raw[i+1:]
		if groupPath == "" || i == len(raw)-1 || strings.HasSuffix(groupPath, "/") || raw[i+1] == '/' {
			return "", "", fmt.Errorf("%w: misplaced group marker in %q", domain.ErrInvalidInput, raw)
		}
	default:
		return "", "", fmt.Errorf("%w: more than one group marker in %q", domain.ErrInvalidInput, raw)
	}

	if xpath == "" {
		return "", "", fmt.Errorf("%w: xpath is required", domain.ErrInvalidInput)
	}
	steps := strings.Split(xpath[1:], "/")
	for i, step := range steps {
		if strings.TrimSpace(step) == "" {
			return "", "", fmt.Errorf("%w: empty step in %q", domain.ErrInvalidInput, raw)
		}
		if !validStep(step, i == len(steps)-1) {
			return "", "", fmt.Errorf("%w: invalid step %q in %q", domain.ErrInvalidInput, step, raw)
		}
	}
	return xpath, groupPath, nil
}

// validStep accepts "name", "prefix:name", "*" and "prefix:*", with a leading
// '@' allowed on the last step only
func validStep(step string, last bool) bool {
	if rest, ok := strings.CutPrefix(step, "@"); ok {
		if !last {
			return false
		}
		step = rest
	}
	if prefix, local, ok := strings.Cut(step, ":"); ok {
		return validName(prefix) && (local == "*" || validName(local))
	}
	return step == "*" || validName(step)
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == ':' {
			return false
		}
		if i == 0 && !isNameStart(r) || i > 0 && !isNameChar(r) {
			return false
		}
	}
	return true
}
