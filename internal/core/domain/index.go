package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Wildcard matches any package, resource type or root node
const Wildcard = "*"

// MaxLabelLength is the longest accepted index label
const MaxLabelLength = 30

// IndexDefinition is a registered, typed extraction rule for one XPath
type IndexDefinition struct {
	ID             int64     `json:"id"`
	PackageID      string    `json:"package_id"`
	ResourceTypeID string    `json:"resourcetype_id"` // "*" applies to every resource type of the package
	XPath          string    `json:"xpath"`           // relative to the document, starting with the root element
	Type           IndexType `json:"type"`
	Label          string    `json:"label"`
	GroupPath      string    `json:"group_path,omitempty"`
	Options        string    `json:"options,omitempty"` // strftime format for datetime/date content
	CreatedAt      time.Time `json:"created_at"`
}

// Validate checks the definition's fields, not its uniqueness
func (d *IndexDefinition) Validate() error {
	if d.PackageID == "" {
		return fmt.Errorf("%w: package_id is required", ErrInvalidInput)
	}
	if d.ResourceTypeID == "" {
		return fmt.Errorf("%w: resourcetype_id is required", ErrInvalidInput)
	}
	if d.XPath == "" || d.XPath == "/" {
		return fmt.Errorf("%w: xpath is required", ErrInvalidInput)
	}
	if !strings.HasPrefix(d.XPath, "/") {
		return fmt.Errorf("%w: xpath %q must be absolute", ErrInvalidInput, d.XPath)
	}
	if strings.ContainsAny(d.XPath, "[]") {
		return fmt.Errorf("%w: xpath %q must not contain predicates", ErrInvalidInput, d.XPath)
	}
	if err := ValidateLabel(d.Label); err != nil {
		return err
	}
	if !d.Type.IsValid() {
		return fmt.Errorf("%w: unknown index type %q", ErrInvalidInput, d.Type)
	}
	if d.GroupPath != "" {
		if !IsStepPrefix(d.GroupPath, d.XPath) || d.GroupPath == d.XPath {
			return fmt.Errorf("%w: group_path %q is not a proper prefix of xpath %q", ErrInvalidInput, d.GroupPath, d.XPath)
		}
	}
	if d.Options != "" && (d.Type == IndexTypeDateTime || d.Type == IndexTypeDate || d.Type == IndexTypeTimestamp) {
		if err := ValidateDateFormat(d.Options); err != nil {
			return err
		}
	}
	return nil
}

// IsGrouped returns true if values are correlated by a shared ancestor
func (d *IndexDefinition) IsGrouped() bool {
	return d.GroupPath != ""
}

// RelativeXPath returns the xpath relative to a group anchor node
func (d *IndexDefinition) RelativeXPath() string {
	if d.GroupPath == "" {
		return d.XPath
	}
	return strings.TrimPrefix(d.XPath[len(d.GroupPath):], "/")
}

// Path returns the fully qualified /package/resourcetype/xpath form
func (d *IndexDefinition) Path() string {
	return "/" + d.PackageID + "/" + d.ResourceTypeID + d.XPath
}

// AppliesTo returns true if documents of the given resource type are indexed by this definition
func (d *IndexDefinition) AppliesTo(packageID, resourceTypeID string) bool {
	if d.PackageID != packageID {
		return false
	}
	return d.ResourceTypeID == Wildcard || d.ResourceTypeID == resourceTypeID
}

func (d *IndexDefinition) String() string {
	return d.Path() + " (" + string(d.Type) + ")"
}

// ValidateLabel checks a label: non-empty, at most MaxLabelLength characters, no '/'
func ValidateLabel(label string) error {
	if label == "" {
		return fmt.Errorf("%w: label is required", ErrInvalidInput)
	}
	if len([]rune(label)) > MaxLabelLength {
		return fmt.Errorf("%w: label %q exceeds %d characters", ErrInvalidInput, label, MaxLabelLength)
	}
	if strings.Contains(label, "/") {
		return fmt.Errorf("%w: label %q must not contain '/'", ErrInvalidInput, label)
	}
	return nil
}

// DefaultLabel derives a label from the last step of an xpath:
// "/station/XY/@id" becomes "id", "/a/ns:b" becomes "b".
func DefaultLabel(xpath string) string {
	steps := strings.Split(strings.Trim(xpath, "/"), "/")
	last := strings.TrimPrefix(steps[len(steps)-1], "@")
	if i := strings.LastIndexByte(last, ':'); i >= 0 {
		last = last[i+1:]
	}
	if r := []rune(last); len(r) > MaxLabelLength {
		last = string(r[:MaxLabelLength])
	}
	return last
}

// IsStepPrefix reports whether prefix equals path or ends at a step boundary of path
func IsStepPrefix(prefix, path string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// IndexElement is one materialised value of one index for one document
type IndexElement struct {
	IndexID    int64      `json:"index_id"`
	DocumentID int64      `json:"document_id"`
	Key        IndexValue `json:"key"`
	GroupPos   int        `json:"group_pos"`
}

// IndexFilter selects index definitions. Empty fields match anything.
type IndexFilter struct {
	PackageID      string    `json:"package_id,omitempty"`
	ResourceTypeID string    `json:"resourcetype_id,omitempty"`
	XPath          string    `json:"xpath,omitempty"`
	Label          string    `json:"label,omitempty"`
	Type           IndexType `json:"type,omitempty"`
	IndexID        int64     `json:"index_id,omitempty"`
}

// Matches returns true if the definition satisfies every non-empty field
func (f IndexFilter) Matches(d *IndexDefinition) bool {
	if f.IndexID != 0 && d.ID != f.IndexID {
		return false
	}
	if f.PackageID != "" && d.PackageID != f.PackageID {
		return false
	}
	if f.ResourceTypeID != "" && d.ResourceTypeID != f.ResourceTypeID {
		return false
	}
	if f.XPath != "" && d.XPath != f.XPath {
		return false
	}
	if f.Label != "" && d.Label != f.Label {
		return false
	}
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	return true
}

// Payload flattens the filter into task payload form
func (f IndexFilter) Payload() map[string]string {
	p := map[string]string{}
	if f.IndexID != 0 {
		p["index_id"] = strconv.FormatInt(f.IndexID, 10)
	}
	if f.PackageID != "" {
		p["package_id"] = f.PackageID
	}
	if f.ResourceTypeID != "" {
		p["resourcetype_id"] = f.ResourceTypeID
	}
	if f.XPath != "" {
		p["xpath"] = f.XPath
	}
	if f.Label != "" {
		p["label"] = f.Label
	}
	if f.Type != "" {
		p["type"] = string(f.Type)
	}
	return p
}

// IndexFilterFromPayload is the inverse of IndexFilter.Payload
func IndexFilterFromPayload(p map[string]string) IndexFilter {
	f := IndexFilter{
		PackageID:      p["package_id"],
		ResourceTypeID: p["resourcetype_id"],
		XPath:          p["xpath"],
		Label:          p["label"],
		Type:           IndexType(p["type"]),
	}
	if id, err := strconv.ParseInt(p["index_id"], 10, 64); err == nil {
		f.IndexID = id
	}
	return f
}

// ReindexResult summarises a reindex run
type ReindexResult struct {
	Indexes   int           `json:"indexes"`
	Documents int           `json:"documents"`
	Elements  int           `json:"elements"`
	Failures  []string      `json:"failures,omitempty"`
	Duration  time.Duration `json:"duration"`
}
