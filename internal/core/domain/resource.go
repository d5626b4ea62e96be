package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// ValidateIdentifier checks a package or resource type id
func ValidateIdentifier(kind, id string) error {
	if id == Wildcard {
		return fmt.Errorf("%w: %s may not be %q", ErrInvalidInput, kind, Wildcard)
	}
	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("%w: invalid %s %q", ErrInvalidInput, kind, id)
	}
	return nil
}

// ValidateResourceName checks a resource name
func ValidateResourceName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: resource name is required", ErrInvalidInput)
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("%w: resource name %q must not contain '/'", ErrInvalidInput, name)
	}
	return nil
}

// Package groups resource types
type Package struct {
	ID          string    `json:"id"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ResourceType classifies the XML documents of a package
type ResourceType struct {
	PackageID         string    `json:"package_id"`
	ID                string    `json:"id"`
	VersionControlled bool      `json:"version_controlled"`
	Description       string    `json:"description,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Resource is a named XML document within a package and resource type.
// Version-controlled resources keep every revision; only the latest one is indexed.
type Resource struct {
	ID                int64     `json:"id"`
	PackageID         string    `json:"package_id"`
	ResourceTypeID    string    `json:"resourcetype_id"`
	Name              string    `json:"name"`
	VersionControlled bool      `json:"version_controlled"`
	Revision          int       `json:"revision"` // latest revision
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	Document          *Document `json:"document,omitempty"`
}

// Path returns /package/resourcetype/name
func (r *Resource) Path() string {
	return "/" + r.PackageID + "/" + r.ResourceTypeID + "/" + r.Name
}

// Document is one stored revision of a resource. The document owns its
// parsed tree; nothing holds a reference back to the document from the tree.
type Document struct {
	ID         int64     `json:"id"`
	ResourceID int64     `json:"resource_id"`
	Revision   int       `json:"revision"`
	Data       []byte    `json:"-"`
	Size       int       `json:"size"`
	CreatedAt  time.Time `json:"created_at"`

	Tree XMLTree `json:"-"`
}

// XMLTree is a parsed XML document supporting XPath evaluation
type XMLTree interface {
	// EvalXPath evaluates expr against the document and returns matches in document order
	EvalXPath(expr string) ([]XMLNode, error)
}

// XMLNode is a node of a parsed XML document
type XMLNode interface {
	// StrContent returns the node's string value
	StrContent() string

	// EvalXPath evaluates expr relative to this node
	EvalXPath(expr string) ([]XMLNode, error)
}
