package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

// fakeRow feeds fixed column values to a scan helper the way *sql.Row does
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("expected %d destination arguments in Scan, not %d", len(r.values), len(dest))
	}
	for i, d := range dest {
		if scanner, ok := d.(sql.Scanner); ok {
			if err := scanner.Scan(r.values[i]); err != nil {
				return err
			}
			continue
		}
		target := reflect.ValueOf(d).Elem()
		if r.values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		src := reflect.ValueOf(r.values[i])
		if !src.Type().ConvertibleTo(target.Type()) {
			return fmt.Errorf("column %d: cannot scan %T into %T", i, r.values[i], d)
		}
		target.Set(src.Convert(target.Type()))
	}
	return nil
}

type fakeResult struct {
	rows int64
	err  error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, r.err }

func TestScanDefinition(t *testing.T) {
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	def, err := scanDefinition(fakeRow{values: []any{
		int64(4), "pkg", "station", "/station/lat", "float", "lat", "", "", created,
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(4), def.ID)
	assert.Equal(t, "/pkg/station/station/lat", def.Path())
	assert.Equal(t, domain.IndexTypeFloat, def.Type)
	assert.Equal(t, "lat", def.Label)
	assert.Equal(t, created, def.CreatedAt)

	_, err = scanDefinition(fakeRow{err: sql.ErrNoRows})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestScanResource(t *testing.T) {
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)
	values := []any{int64(9), "pkg", "station", "bern", true, int64(3), created, updated}

	res, err := scanResource(fakeRow{values: values})
	require.NoError(t, err)
	assert.Equal(t, "/pkg/station/bern", res.Path())
	assert.True(t, res.VersionControlled)
	assert.Equal(t, 3, res.Revision)
	assert.Equal(t, updated, res.UpdatedAt)
	assert.Nil(t, res.Document)

	// extra destinations follow the resource columns
	var docID int64
	res, err = scanResource(fakeRow{values: append(values, int64(77))}, &docID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), res.ID)
	assert.Equal(t, int64(77), docID)

	_, err = scanResource(fakeRow{values: values}, &docID)
	assert.Error(t, err)
}

func TestScanDocument(t *testing.T) {
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	doc, err := scanDocument(fakeRow{values: []any{
		int64(12), int64(9), int64(2), "<station/>", int64(10), created,
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(12), doc.ID)
	assert.Equal(t, int64(9), doc.ResourceID)
	assert.Equal(t, 2, doc.Revision)
	assert.Equal(t, []byte("<station/>"), doc.Data)
	assert.Equal(t, 10, doc.Size)

	_, err = scanDocument(fakeRow{err: sql.ErrNoRows})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestExpectOneRow(t *testing.T) {
	assert.NoError(t, expectOneRow(fakeResult{rows: 1}, nil, "package pkg"))

	err := expectOneRow(fakeResult{rows: 0}, nil, "package pkg")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "package pkg")

	execErr := errors.New("connection reset")
	assert.ErrorIs(t, expectOneRow(nil, execErr, "package pkg"), execErr)

	countErr := errors.New("driver does not support RowsAffected")
	assert.ErrorIs(t, expectOneRow(fakeResult{err: countErr}, nil, "package pkg"), countErr)
}

// openTestDB connects to the database named by XMLCAT_TEST_POSTGRES_URL
// and applies the schema. Tests using it are skipped when the variable is unset.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("XMLCAT_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("XMLCAT_TEST_POSTGRES_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := Connect(ctx, DefaultConfig(url))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.InitSchema(ctx))
	return db
}

// createTestType stores a package with one resource type under a unique ID
// and removes both when the test ends
func createTestType(t *testing.T, store *ResourceStore, versioned bool) *domain.ResourceType {
	t.Helper()
	ctx := context.Background()
	pkg := &domain.Package{ID: fmt.Sprintf("it%d", time.Now().UnixNano())}
	require.NoError(t, store.CreatePackage(ctx, pkg))
	rt := &domain.ResourceType{PackageID: pkg.ID, ID: "station", VersionControlled: versioned}
	require.NoError(t, store.CreateResourceType(ctx, rt))

	t.Cleanup(func() {
		ctx := context.Background()
		resources, _ := store.ListResources(ctx, rt.PackageID, rt.ID)
		for _, res := range resources {
			_ = store.DeleteResource(ctx, res.ID)
		}
		_, _ = store.db.ExecContext(ctx, `DELETE FROM index_definitions WHERE package_id = $1`, pkg.ID)
		_ = store.DeleteResourceType(ctx, rt.PackageID, rt.ID)
		_ = store.DeletePackage(ctx, pkg.ID)
	})
	return rt
}

func TestResourceStore_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := NewResourceStore(db)
	ctx := context.Background()
	rt := createTestType(t, store, true)

	pkg, err := store.GetPackage(ctx, rt.PackageID)
	require.NoError(t, err)
	assert.Equal(t, rt.PackageID, pkg.ID)
	assert.ErrorIs(t, store.CreatePackage(ctx, &domain.Package{ID: rt.PackageID}), domain.ErrAlreadyExists)

	got, err := store.GetResourceType(ctx, rt.PackageID, rt.ID)
	require.NoError(t, err)
	assert.True(t, got.VersionControlled)
	assert.ErrorIs(t, store.DeletePackage(ctx, rt.PackageID), domain.ErrInUse)

	res := &domain.Resource{PackageID: rt.PackageID, ResourceTypeID: rt.ID, Name: "bern"}
	first := &domain.Document{Data: []byte("<station><lat>46.9</lat></station>")}
	require.NoError(t, store.CreateResource(ctx, res, first))
	assert.NotZero(t, res.ID)
	assert.Equal(t, 1, res.Revision)
	assert.Equal(t, res.ID, first.ResourceID)
	assert.ErrorIs(t, store.CreateResource(ctx,
		&domain.Resource{PackageID: rt.PackageID, ResourceTypeID: rt.ID, Name: "bern"},
		&domain.Document{Data: []byte("<station/>")}), domain.ErrAlreadyExists)

	second := &domain.Document{Data: []byte("<station><lat>47.0</lat></station>")}
	require.NoError(t, store.AddRevision(ctx, res, second))
	assert.Equal(t, 2, res.Revision)

	loaded, err := store.GetResource(ctx, rt.PackageID, rt.ID, "bern")
	require.NoError(t, err)
	assert.Equal(t, res.ID, loaded.ID)
	assert.Equal(t, 2, loaded.Revision)
	assert.True(t, loaded.VersionControlled)

	latest, err := store.GetDocument(ctx, res.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, second.Data, latest.Data)
	old, err := store.GetDocument(ctx, res.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, first.Data, old.Data)
	_, err = store.GetDocument(ctx, res.ID, 5)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	revisions, err := store.ListRevisions(ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, revisions, 2)
	assert.Equal(t, 1, revisions[0].Revision)

	old.Data = []byte("<station><lat>46.95</lat></station>")
	require.NoError(t, store.ReplaceDocument(ctx, old))
	old, err = store.GetDocument(ctx, res.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "<station><lat>46.95</lat></station>", string(old.Data))
	assert.Equal(t, len(old.Data), old.Size)

	require.NoError(t, store.RenameResource(ctx, res.ID, "bern-ost"))
	_, err = store.GetResource(ctx, rt.PackageID, rt.ID, "bern")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	latestDocs, err := store.ListLatestDocuments(ctx, rt.PackageID, rt.ID)
	require.NoError(t, err)
	require.Len(t, latestDocs, 1)
	require.NotNil(t, latestDocs[0].Document)
	assert.Equal(t, second.Data, latestDocs[0].Document.Data)

	require.NoError(t, store.DeleteResource(ctx, res.ID))
	_, err = store.GetResourceByID(ctx, res.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.DeleteResource(ctx, res.ID), domain.ErrNotFound)
}

func TestIndexStore_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	resources := NewResourceStore(db)
	indexes := NewIndexStore(db)
	ctx := context.Background()
	rt := createTestType(t, resources, false)

	lat := &domain.IndexDefinition{
		PackageID: rt.PackageID, ResourceTypeID: rt.ID,
		XPath: "/station/lat", Type: domain.IndexTypeFloat, Label: "lat",
	}
	day := &domain.IndexDefinition{
		PackageID: rt.PackageID, ResourceTypeID: rt.ID,
		XPath: "/station/day", Type: domain.IndexTypeDate, Label: "day",
	}
	require.NoError(t, indexes.CreateIndex(ctx, lat))
	require.NoError(t, indexes.CreateIndex(ctx, day))
	assert.ErrorIs(t, indexes.CreateIndex(ctx, &domain.IndexDefinition{
		PackageID: rt.PackageID, ResourceTypeID: rt.ID,
		XPath: "/station/lat", Type: domain.IndexTypeFloat, Label: "lat",
	}), domain.ErrAlreadyExists)

	got, err := indexes.GetIndex(ctx, lat.ID)
	require.NoError(t, err)
	assert.Equal(t, lat.Path(), got.Path())
	assert.Equal(t, domain.IndexTypeFloat, got.Type)

	defs, err := indexes.ListIndexes(ctx, domain.IndexFilter{PackageID: rt.PackageID, Label: "day"})
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, day.ID, defs[0].ID)

	res := &domain.Resource{PackageID: rt.PackageID, ResourceTypeID: rt.ID, Name: "bern"}
	doc := &domain.Document{Data: []byte("<station/>")}
	require.NoError(t, resources.CreateResource(ctx, res, doc))

	when := time.Date(2008, 10, 23, 0, 0, 0, 0, time.UTC)
	require.NoError(t, indexes.ReplaceDocumentElements(ctx, doc.ID, []domain.IndexElement{
		{IndexID: lat.ID, DocumentID: doc.ID, Key: domain.FloatValue(46.9)},
		{IndexID: day.ID, DocumentID: doc.ID, Key: domain.TimeValue(domain.IndexTypeDate, when)},
	}))
	elements, err := indexes.ListDocumentElements(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, elements, 2)
	assert.Equal(t, lat.ID, elements[0].IndexID)
	assert.InDelta(t, 46.9, elements[0].Key.Float(), 1e-9)
	assert.True(t, when.Equal(elements[1].Key.Time()))

	// replacing drops the previous elements
	require.NoError(t, indexes.ReplaceDocumentElements(ctx, doc.ID, []domain.IndexElement{
		{IndexID: lat.ID, DocumentID: doc.ID, Key: domain.FloatValue(47.1)},
	}))
	elements, err = indexes.ListDocumentElements(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, elements, 1)
	assert.InDelta(t, 47.1, elements[0].Key.Float(), 1e-9)

	err = indexes.AddElements(ctx, []domain.IndexElement{
		{IndexID: lat.ID, DocumentID: doc.ID + 1000000, Key: domain.FloatValue(1)},
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	flushed, err := indexes.FlushIndex(ctx, lat.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), flushed)
	_, err = indexes.GetIndex(ctx, lat.ID)
	assert.NoError(t, err)

	require.NoError(t, indexes.DeleteIndex(ctx, day.ID))
	_, err = indexes.GetIndex(ctx, day.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, indexes.DeleteIndex(ctx, day.ID), domain.ErrNotFound)
}
