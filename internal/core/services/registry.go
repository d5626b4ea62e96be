package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driving"
	"github.com/custodia-labs/xmlcat/internal/xpath"
)

// IndexRegistry validates index definitions and resolves query paths to them.
// Definitions are never cached: every lookup reads the store.
type IndexRegistry struct {
	indexes   driven.IndexStore
	resources driven.ResourceStore
	parser    driven.XMLParser
}

// NewIndexRegistry creates a registry. parser may be nil to skip XPath syntax checks.
func NewIndexRegistry(indexes driven.IndexStore, resources driven.ResourceStore, parser driven.XMLParser) *IndexRegistry {
	return &IndexRegistry{
		indexes:   indexes,
		resources: resources,
		parser:    parser,
	}
}

// Register validates req and stores the resulting definition
func (r *IndexRegistry) Register(ctx context.Context, req driving.RegisterIndexRequest) (*domain.IndexDefinition, error) {
	def, err := r.definitionFrom(req)
	if err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if r.parser != nil {
		if err := r.parser.ValidateXPath(def.XPath); err != nil {
			return nil, err
		}
	}

	if _, err := r.resources.GetPackage(ctx, def.PackageID); err != nil {
		return nil, fmt.Errorf("package %s: %w", def.PackageID, err)
	}
	if def.ResourceTypeID != domain.Wildcard {
		if _, err := r.resources.GetResourceType(ctx, def.PackageID, def.ResourceTypeID); err != nil {
			return nil, fmt.Errorf("resource type /%s/%s: %w", def.PackageID, def.ResourceTypeID, err)
		}
	}

	if err := r.indexes.CreateIndex(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

func (r *IndexRegistry) definitionFrom(req driving.RegisterIndexRequest) (*domain.IndexDefinition, error) {
	def := &domain.IndexDefinition{
		PackageID:      req.PackageID,
		ResourceTypeID: req.ResourceTypeID,
		Label:          strings.TrimSpace(req.Label),
		Type:           domain.IndexTypeText,
		Options:        req.Options,
	}

	var groupPath string
	if req.Expression != "" {
		expr, err := xpath.ParseIndexExpression(req.Expression)
		if err != nil {
			return nil, err
		}
		def.PackageID, def.ResourceTypeID = expr.PackageID, expr.ResourceTypeID
		def.XPath, groupPath = expr.XPath, expr.GroupPath
	} else {
		x, group, err := xpath.SplitGroupMarker(req.XPath)
		if err != nil {
			return nil, err
		}
		def.XPath, groupPath = x, group
	}

	if req.GroupPath != "" {
		explicit := "/" + strings.Trim(strings.TrimSpace(req.GroupPath), "/")
		if groupPath != "" && groupPath != explicit {
			return nil, fmt.Errorf("%w: group_path %q conflicts with group marker %q", domain.ErrInvalidInput, explicit, groupPath)
		}
		groupPath = explicit
	}
	def.GroupPath = groupPath

	if req.Type != "" {
		t, err := domain.ParseIndexType(string(req.Type))
		if err != nil {
			return nil, err
		}
		def.Type = t
	}
	if def.Label == "" {
		def.Label = domain.DefaultLabel(def.XPath)
	}
	return def, nil
}

// Applicable returns the definitions that index documents of (packageID, resourceTypeID)
func (r *IndexRegistry) Applicable(ctx context.Context, packageID, resourceTypeID string) ([]*domain.IndexDefinition, error) {
	defs, err := r.indexes.ListIndexes(ctx, domain.IndexFilter{PackageID: packageID})
	if err != nil {
		return nil, err
	}
	result := defs[:0:0]
	for _, def := range defs {
		if def.AppliesTo(packageID, resourceTypeID) {
			result = append(result, def)
		}
	}
	return result, nil
}

// FindIndex resolves a query path to a definition. Resolution order:
//  1. label, when the path has a single step
//  2. step-wise wildcard match, when the path contains '*'
//  3. exact xpath
//
// Definitions registered for resource type '*' are candidates for every
// resource type of their package. Ties go to the oldest definition.
func (r *IndexRegistry) FindIndex(ctx context.Context, path domain.PathExpr) (*domain.IndexDefinition, error) {
	candidates, err := r.candidates(ctx, path.PackageID, path.ResourceTypeID)
	if err != nil {
		return nil, err
	}

	rel := strings.Trim(path.XPath, "/")
	if !strings.Contains(rel, "/") {
		for _, def := range candidates {
			if def.Label == rel {
				return def, nil
			}
		}
	}

	abs := "/" + rel
	if strings.Contains(abs, domain.Wildcard) {
		for _, def := range candidates {
			if stepsMatch(abs, def.XPath) {
				return def, nil
			}
		}
	}

	for _, def := range candidates {
		if def.XPath == abs {
			return def, nil
		}
	}

	return nil, fmt.Errorf("%w: no index found for %s", domain.ErrNotFound, path.String())
}

// FindRootIndex resolves the index registered exactly at "/rootNode"
func (r *IndexRegistry) FindRootIndex(ctx context.Context, loc domain.LocationPath) (*domain.IndexDefinition, error) {
	candidates, err := r.candidates(ctx, loc.PackageID, loc.ResourceTypeID)
	if err != nil {
		return nil, err
	}
	for _, def := range candidates {
		if def.XPath == "/"+loc.RootNode {
			return def, nil
		}
	}
	return nil, fmt.Errorf("%w: no index found for %s", domain.ErrNotFound, loc.String())
}

// candidates lists the definitions usable for paths under (packageID, resourceTypeID)
func (r *IndexRegistry) candidates(ctx context.Context, packageID, resourceTypeID string) ([]*domain.IndexDefinition, error) {
	filter := domain.IndexFilter{}
	if packageID != domain.Wildcard {
		filter.PackageID = packageID
	}
	defs, err := r.indexes.ListIndexes(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := defs[:0:0]
	for _, def := range defs {
		if resourceTypeID == domain.Wildcard || def.ResourceTypeID == domain.Wildcard || def.ResourceTypeID == resourceTypeID {
			result = append(result, def)
		}
	}
	return result, nil
}

// stepsMatch compares two absolute paths step by step; "*" in pattern matches any step
func stepsMatch(pattern, path string) bool {
	ps := strings.Split(pattern, "/")
	xs := strings.Split(path, "/")
	if len(ps) != len(xs) {
		return false
	}
	for i := range ps {
		if ps[i] != domain.Wildcard && ps[i] != xs[i] {
			return false
		}
	}
	return true
}
