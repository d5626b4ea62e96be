package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven"
)

// IndexStats counts the outcome of indexing one document
type IndexStats struct {
	Elements int
	Skipped  int
}

// Evaluate extracts the elements of one index from a parsed document.
// Ungrouped indexes yield one element per matching node at group position 0.
// Grouped indexes evaluate the group path first and then the xpath relative
// to each anchor; the anchor's position in document order is the group position.
// Node content that does not parse for the index type is skipped and counted.
func Evaluate(def *domain.IndexDefinition, doc *domain.Document) ([]domain.IndexElement, int, error) {
	if doc == nil || doc.Tree == nil {
		return nil, 0, fmt.Errorf("%w: document has no parsed tree", domain.ErrInvalidDocument)
	}

	var (
		elements []domain.IndexElement
		skipped  int
	)
	collect := func(nodes []domain.XMLNode, pos int) error {
		for _, n := range nodes {
			key, err := domain.ParseIndexValue(def.Type, n.StrContent(), def.Options)
			if errors.Is(err, domain.ErrValueSkipped) {
				skipped++
				continue
			}
			if err != nil {
				return err
			}
			elements = append(elements, domain.IndexElement{
				IndexID:    def.ID,
				DocumentID: doc.ID,
				Key:        key,
				GroupPos:   pos,
			})
		}
		return nil
	}

	if !def.IsGrouped() {
		nodes, err := doc.Tree.EvalXPath(def.XPath)
		if err != nil {
			return nil, 0, fmt.Errorf("evaluate %s: %w", def.XPath, err)
		}
		if err := collect(nodes, 0); err != nil {
			return nil, 0, err
		}
		return elements, skipped, nil
	}

	anchors, err := doc.Tree.EvalXPath(def.GroupPath)
	if err != nil {
		return nil, 0, fmt.Errorf("evaluate %s: %w", def.GroupPath, err)
	}
	rel := def.RelativeXPath()
	for pos, anchor := range anchors {
		nodes, err := anchor.EvalXPath(rel)
		if err != nil {
			return nil, 0, fmt.Errorf("evaluate %s: %w", rel, err)
		}
		if err := collect(nodes, pos); err != nil {
			return nil, 0, err
		}
	}
	return elements, skipped, nil
}

// Indexer materialises index elements for documents
type Indexer struct {
	registry *IndexRegistry
	indexes  driven.IndexStore
	parser   driven.XMLParser
	logger   *slog.Logger
}

// NewIndexer creates an Indexer
func NewIndexer(registry *IndexRegistry, indexes driven.IndexStore, parser driven.XMLParser, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		registry: registry,
		indexes:  indexes,
		parser:   parser,
		logger:   logger,
	}
}

// ensureTree parses doc.Data when the document has no tree yet
func (ix *Indexer) ensureTree(doc *domain.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", domain.ErrInvalidDocument)
	}
	if doc.Tree != nil {
		return nil
	}
	tree, err := ix.parser.Parse(doc.Data)
	if err != nil {
		return err
	}
	doc.Tree = tree
	return nil
}

// IndexDocument recomputes every applicable index for one document and
// replaces its stored elements in one write
func (ix *Indexer) IndexDocument(ctx context.Context, res *domain.Resource, doc *domain.Document) (IndexStats, error) {
	elements, stats, err := ix.Extract(ctx, res, doc)
	if err != nil {
		return IndexStats{}, err
	}
	return ix.Store(ctx, res, doc, elements, stats)
}

// Extract evaluates every applicable index over doc without writing anything
func (ix *Indexer) Extract(ctx context.Context, res *domain.Resource, doc *domain.Document) ([]domain.IndexElement, IndexStats, error) {
	if err := ix.ensureTree(doc); err != nil {
		return nil, IndexStats{}, err
	}
	defs, err := ix.registry.Applicable(ctx, res.PackageID, res.ResourceTypeID)
	if err != nil {
		return nil, IndexStats{}, err
	}

	var (
		all   []domain.IndexElement
		stats IndexStats
	)
	for _, def := range defs {
		elements, skipped, err := Evaluate(def, doc)
		if err != nil {
			return nil, IndexStats{}, fmt.Errorf("index %d: %w", def.ID, err)
		}
		all = append(all, elements...)
		stats.Skipped += skipped
	}
	stats.Elements = len(all)
	return all, stats, nil
}

// Store replaces the elements of doc with elements from Extract. Elements are
// bound to doc.ID here, so they may be extracted before the document is saved.
func (ix *Indexer) Store(ctx context.Context, res *domain.Resource, doc *domain.Document, elements []domain.IndexElement, stats IndexStats) (IndexStats, error) {
	for i := range elements {
		elements[i].DocumentID = doc.ID
	}
	if err := ix.indexes.ReplaceDocumentElements(ctx, doc.ID, elements); err != nil {
		return IndexStats{}, fmt.Errorf("store elements of document %d: %w", doc.ID, err)
	}

	if stats.Skipped > 0 {
		ix.logger.Debug("skipped unparseable values",
			"resource", res.Path(),
			"document_id", doc.ID,
			"skipped", stats.Skipped)
	}
	return stats, nil
}

// IndexDocumentFor computes one index for one document and appends its elements.
// The caller is expected to have flushed the index beforehand.
func (ix *Indexer) IndexDocumentFor(ctx context.Context, def *domain.IndexDefinition, doc *domain.Document) (IndexStats, error) {
	if err := ix.ensureTree(doc); err != nil {
		return IndexStats{}, err
	}
	elements, skipped, err := Evaluate(def, doc)
	if err != nil {
		return IndexStats{}, err
	}
	if len(elements) > 0 {
		if err := ix.indexes.AddElements(ctx, elements); err != nil {
			return IndexStats{}, fmt.Errorf("store elements of document %d: %w", doc.ID, err)
		}
	}
	return IndexStats{Elements: len(elements), Skipped: skipped}, nil
}
