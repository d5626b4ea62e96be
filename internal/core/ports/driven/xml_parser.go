package driven

import "github.com/custodia-labs/xmlcat/internal/core/domain"

// XMLParser turns raw XML into trees supporting XPath evaluation
type XMLParser interface {
	// Parse parses a document; malformed XML returns ErrInvalidInput
	Parse(data []byte) (domain.XMLTree, error)

	// ValidateXPath checks that expr compiles as an XPath expression
	ValidateXPath(expr string) error
}
