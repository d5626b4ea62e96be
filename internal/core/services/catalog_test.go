package services

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/xmlcat/internal/adapters/driven/xmltree"
	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driving"
)

func TestCatalog_PackagesAndResourceTypes(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()

	_, err := f.catalog.CreatePackage(ctx, "*", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.catalog.CreatePackage(ctx, "bad/id", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	pkg, err := f.catalog.CreatePackage(ctx, "seismology", "station data")
	require.NoError(t, err)
	assert.Equal(t, "station data", pkg.Description)
	_, err = f.catalog.CreatePackage(ctx, "seismology", "")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = f.catalog.CreateResourceType(ctx, "nopkg", driving.CreateResourceTypeRequest{ID: "station"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	rt, err := f.catalog.CreateResourceType(ctx, "seismology", driving.CreateResourceTypeRequest{
		ID:                "station",
		VersionControlled: true,
	})
	require.NoError(t, err)
	assert.True(t, rt.VersionControlled)

	rts, err := f.catalog.ListResourceTypes(ctx, "seismology")
	require.NoError(t, err)
	require.Len(t, rts, 1)

	// dependents block deletion
	assert.ErrorIs(t, f.catalog.DeletePackage(ctx, "seismology"), domain.ErrInUse)
	f.add(t, "seismology", "station", "bern", stationBern)
	assert.ErrorIs(t, f.catalog.DeleteResourceType(ctx, "seismology", "station"), domain.ErrInUse)

	require.NoError(t, f.catalog.DeleteResource(ctx, "seismology", "station", "bern"))
	require.NoError(t, f.catalog.DeleteResourceType(ctx, "seismology", "station"))
	require.NoError(t, f.catalog.DeletePackage(ctx, "seismology"))

	pkgs, err := f.catalog.ListPackages(ctx)
	require.NoError(t, err)
	assert.Empty(t, pkgs)
}

func TestCatalog_DeleteResourceTypeDropsIndexesAndView(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	f.resourceType(t, "pkg", "station", false)
	f.register(t, "/pkg/station/station/lat", domain.IndexTypeFloat)
	require.NoError(t, f.catalog.CreateIndexView(ctx, "pkg", "station"))

	require.NoError(t, f.catalog.DeleteResourceType(ctx, "pkg", "station"))

	defs, err := f.catalog.ListIndexes(ctx, domain.IndexFilter{PackageID: "pkg"})
	require.NoError(t, err)
	assert.Empty(t, defs)
	_, ok := f.views.View("pkg", "station")
	assert.False(t, ok)
	assert.Len(t, f.events.EventsOfType(domain.EventIndexRemoved), 1)
}

func TestCatalog_AddResource(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	f.resourceType(t, "pkg", "station", false)
	f.register(t, "/pkg/station/station/lat", domain.IndexTypeFloat)

	res := f.add(t, "pkg", "station", "bern", stationBern)
	assert.NotZero(t, res.ID)
	assert.Equal(t, 1, res.Revision)
	require.NotNil(t, res.Document)

	events := f.events.EventsOfType(domain.EventResourceIndexed)
	require.Len(t, events, 1)
	assert.Equal(t, "bern", events[0].ResourceName)
	assert.Equal(t, res.Document.ID, events[0].DocumentID)
	assert.Equal(t, 1, events[0].Elements)
	assert.Equal(t, "/pkg/station", events[0].Key())

	// a missing name is generated
	unnamed, err := f.catalog.AddResource(ctx, "pkg", "station", "", []byte(stationGenf))
	require.NoError(t, err)
	assert.NotEmpty(t, unnamed.Name)

	_, err = f.catalog.AddResource(ctx, "pkg", "station", "bern", []byte(stationBern))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	_, err = f.catalog.AddResource(ctx, "pkg", "station", "broken", []byte("<station><lat></station>"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.catalog.AddResource(ctx, "pkg", "nort", "x", []byte(stationBern))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.catalog.AddResource(ctx, "pkg", "station", "a/b", []byte(stationBern))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCatalog_AddResourceRemovesResourceWhenIndexingFails(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	f.resourceType(t, "pkg", "station", false)
	f.register(t, "/pkg/station/station/lat", domain.IndexTypeFloat)

	storeErr := errors.New("connection reset")
	f.indexes.ReplaceElementsFn = func(int64, []domain.IndexElement) error { return storeErr }

	_, err := f.catalog.AddResource(ctx, "pkg", "station", "bern", []byte(stationBern))
	assert.ErrorIs(t, err, storeErr)

	_, err = f.resources.GetResource(ctx, "pkg", "station", "bern")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.events.EventsOfType(domain.EventResourceIndexed))
}

func TestCatalog_ModifyResource(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	f.resourceType(t, "pkg", "plain", false)
	f.resourceType(t, "pkg", "versioned", true)
	f.register(t, "/pkg/plain/station/lat", domain.IndexTypeFloat)
	f.register(t, "/pkg/versioned/station/lat", domain.IndexTypeFloat)

	t.Run("in place", func(t *testing.T) {
		res := f.add(t, "pkg", "plain", "bern", stationBern)
		updated, err := f.catalog.ModifyResource(ctx, "pkg", "plain", "bern", []byte(stationGenf))
		require.NoError(t, err)
		assert.Equal(t, res.Document.ID, updated.Document.ID)
		assert.Equal(t, 1, updated.Document.Revision)

		history, err := f.catalog.GetResourceHistory(ctx, "pkg", "plain", "bern")
		require.NoError(t, err)
		assert.Len(t, history, 1)

		data, err := f.catalog.GetIndexData(ctx, "pkg", "plain", "bern")
		require.NoError(t, err)
		require.Len(t, data["lat"], 1)
		assert.InDelta(t, 55.232, data["lat"][0].Float(), 1e-9)
	})

	t.Run("new revision", func(t *testing.T) {
		res := f.add(t, "pkg", "versioned", "bern", stationBern)
		first := res.Document.ID

		updated, err := f.catalog.ModifyResource(ctx, "pkg", "versioned", "bern", []byte(stationGenf))
		require.NoError(t, err)
		assert.NotEqual(t, first, updated.Document.ID)
		assert.Equal(t, 2, updated.Document.Revision)

		history, err := f.catalog.GetResourceHistory(ctx, "pkg", "versioned", "bern")
		require.NoError(t, err)
		assert.Len(t, history, 2)

		old, err := f.catalog.GetResource(ctx, "pkg", "versioned", "bern", 1)
		require.NoError(t, err)
		assert.Equal(t, stationBern, string(old.Document.Data))
		latest, err := f.catalog.GetResource(ctx, "pkg", "versioned", "bern", 0)
		require.NoError(t, err)
		assert.Equal(t, stationGenf, string(latest.Document.Data))
		_, err = f.catalog.GetResource(ctx, "pkg", "versioned", "bern", 5)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		// only the latest revision keeps index elements
		elements, err := f.indexes.ListDocumentElements(ctx, first)
		require.NoError(t, err)
		assert.Empty(t, elements)
	})

	_, err := f.catalog.ModifyResource(ctx, "pkg", "plain", "bern", []byte("not xml"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.catalog.ModifyResource(ctx, "pkg", "plain", "missing", []byte(stationBern))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCatalog_ModifyResourceRestoresContentWhenIndexingFails(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	f.resourceType(t, "pkg", "plain", false)
	f.register(t, "/pkg/plain/station/lat", domain.IndexTypeFloat)
	f.add(t, "pkg", "plain", "bern", stationBern)

	storeErr := errors.New("connection reset")
	f.indexes.ReplaceElementsFn = func(int64, []domain.IndexElement) error { return storeErr }
	_, err := f.catalog.ModifyResource(ctx, "pkg", "plain", "bern", []byte(stationGenf))
	require.ErrorIs(t, err, storeErr)
	f.indexes.ReplaceElementsFn = nil

	current, err := f.catalog.GetResource(ctx, "pkg", "plain", "bern", 0)
	require.NoError(t, err)
	assert.Equal(t, stationBern, string(current.Document.Data))

	data, err := f.catalog.GetIndexData(ctx, "pkg", "plain", "bern")
	require.NoError(t, err)
	require.Len(t, data["lat"], 1)
	assert.InDelta(t, 50.232, data["lat"][0].Float(), 1e-9)
	assert.Len(t, f.events.EventsOfType(domain.EventResourceIndexed), 1)
}

func TestCatalog_RenameAndDeleteResource(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	f.resourceType(t, "pkg", "station", false)
	lat := f.register(t, "/pkg/station/station/lat", domain.IndexTypeFloat)
	f.add(t, "pkg", "station", "bern", stationBern)
	f.add(t, "pkg", "station", "genf", stationGenf)

	assert.ErrorIs(t, f.catalog.RenameResource(ctx, "pkg", "station", "bern", "genf"), domain.ErrAlreadyExists)
	assert.ErrorIs(t, f.catalog.RenameResource(ctx, "pkg", "station", "bern", " "), domain.ErrInvalidInput)
	require.NoError(t, f.catalog.RenameResource(ctx, "pkg", "station", "bern", "bern-2"))

	list, err := f.catalog.ListResources(ctx, "pkg", "station")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bern-2", list[0].Name)

	require.NoError(t, f.catalog.DeleteResource(ctx, "pkg", "station", "bern-2"))
	assert.Len(t, f.indexes.Elements(lat.ID), 1)
	assert.ErrorIs(t, f.catalog.DeleteResource(ctx, "pkg", "station", "bern-2"), domain.ErrNotFound)

	events := f.events.EventsOfType(domain.EventResourceUnindexed)
	require.Len(t, events, 1)
	assert.Equal(t, "bern-2", events[0].ResourceName)
}

func TestCatalog_RegisterIndexDuplicateKeepsFirst(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	f.resourceType(t, "pkg", "station", false)
	f.add(t, "pkg", "station", "bern", stationBern)

	first := f.register(t, "/pkg/station/station/lat", domain.IndexTypeFloat)
	_, err := f.catalog.RegisterIndex(ctx, driving.RegisterIndexRequest{
		Expression: "/pkg/station/station/lat",
		Type:       domain.IndexTypeText,
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	got, err := f.catalog.GetIndex(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexTypeFloat, got.Type)
	assert.Len(t, f.events.EventsOfType(domain.EventIndexRegistered), 1)

	// registration does not index existing documents; reindex does
	assert.Empty(t, f.indexes.Elements(first.ID))
	result, err := f.catalog.Reindex(ctx, domain.IndexFilter{IndexID: first.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexes)
	assert.Equal(t, 1, result.Documents)
	assert.Equal(t, 1, result.Elements)
	assert.Len(t, f.indexes.Elements(first.ID), 1)
}

func TestCatalog_RemoveFlushAndDeleteAllIndexes(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	f.resourceType(t, "pkg", "station", false)
	lat := f.register(t, "/pkg/station/station/lat", domain.IndexTypeFloat)
	lon := f.register(t, "/pkg/station/station/lon", domain.IndexTypeFloat)
	f.add(t, "pkg", "station", "bern", stationBern)

	removed, err := f.catalog.FlushIndex(ctx, lat.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Empty(t, f.indexes.Elements(lat.ID))
	_, err = f.catalog.GetIndex(ctx, lat.ID)
	require.NoError(t, err, "flush keeps the definition")

	require.NoError(t, f.catalog.RemoveIndex(ctx, lon.ID))
	assert.ErrorIs(t, f.catalog.RemoveIndex(ctx, lon.ID), domain.ErrNotFound)
	assert.Empty(t, f.indexes.Elements(lon.ID))

	_, err = f.catalog.DeleteAllIndexes(ctx, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	n, err := f.catalog.DeleteAllIndexes(ctx, "pkg", "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Len(t, f.events.EventsOfType(domain.EventIndexFlushed), 1)
	assert.Len(t, f.events.EventsOfType(domain.EventIndexRemoved), 2)
}

func TestCatalog_IndexResource(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	f.resourceType(t, "pkg", "station", false)
	res := f.add(t, "pkg", "station", "genf", stationGenf)
	f.register(t, "/pkg/station/station/XY/paramXY", domain.IndexTypeFloat)

	n, err := f.catalog.IndexResource(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = f.catalog.IndexResource(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCatalog_AsyncTasks(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	f.resourceType(t, "pkg", "station", false)
	res := f.add(t, "pkg", "station", "bern", stationBern)

	task, err := f.catalog.ReindexAsync(ctx, domain.IndexFilter{PackageID: "pkg"})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskTypeReindex, task.Type)
	assert.Equal(t, "pkg", task.Filter().PackageID)

	task, err = f.catalog.IndexResourceAsync(ctx, "pkg", "station", "bern")
	require.NoError(t, err)
	assert.Equal(t, res.ID, task.ResourceID())

	got, err := f.catalog.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, got.Status)
	assert.Equal(t, 2, f.queue.Pending())

	_, err = f.catalog.IndexResourceAsync(ctx, "pkg", "station", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCatalog_OptionalBackendsNotConfigured(t *testing.T) {
	resources := mocks.NewMockResourceStore()
	indexes := mocks.NewMockIndexStore()
	catalog := NewCatalogService(CatalogConfig{
		Resources: resources,
		Indexes:   indexes,
		Executor:  mocks.NewMockQueryExecutor(resources, indexes),
		Parser:    xmltree.NewParser(),
		Logger:    quietLogger(),
	})
	ctx := context.Background()

	_, err := catalog.ReindexAsync(ctx, domain.IndexFilter{})
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	_, err = catalog.GetTask(ctx, "id")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	assert.ErrorIs(t, catalog.CreateIndexView(ctx, "pkg", "rt"), domain.ErrNotConfigured)
	assert.ErrorIs(t, catalog.DropIndexView(ctx, "pkg", "rt"), domain.ErrNotConfigured)

	// without metrics and events the catalog still works
	_, err = catalog.CreatePackage(ctx, "pkg", "")
	require.NoError(t, err)
	_, err = catalog.CreateResourceType(ctx, "pkg", driving.CreateResourceTypeRequest{ID: "rt"})
	require.NoError(t, err)
	_, err = catalog.AddResource(ctx, "pkg", "rt", "bern", []byte(stationBern))
	require.NoError(t, err)
	result, err := catalog.Query(ctx, "/pkg/rt", false)
	require.NoError(t, err)
	assert.Len(t, result.Ordered, 1)
}

func TestCatalog_IndexViews(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	f.resourceType(t, "pkg", "station", false)
	f.register(t, "/pkg/station/station/lat", domain.IndexTypeFloat)
	f.register(t, "/pkg/*/station/code", domain.IndexTypeText)

	require.NoError(t, f.catalog.CreateIndexView(ctx, "pkg", "station"))
	labels, ok := f.views.View("pkg", "station")
	require.True(t, ok)
	assert.Equal(t, []string{"lat", "code"}, labels)

	require.NoError(t, f.catalog.DropIndexView(ctx, "pkg", "station"))
	_, ok = f.views.View("pkg", "station")
	assert.False(t, ok)

	assert.ErrorIs(t, f.catalog.CreateIndexView(ctx, "pkg", "nort"), domain.ErrNotFound)
}

func TestCatalog_PublishFailureDoesNotFailOperation(t *testing.T) {
	f := newCatalogFixture(t)
	f.events.PublishFn = func(domain.IndexEvent) error { return errors.New("broker down") }
	f.resourceType(t, "pkg", "station", false)

	f.register(t, "/pkg/station/station/lat", domain.IndexTypeFloat)
	f.add(t, "pkg", "station", "bern", stationBern)
}

func TestCatalog_Metrics(t *testing.T) {
	f := newStationFixture(t)
	ctx := context.Background()

	f.query(t, "/testpackage/station/station[lat < 51]")
	_, _ = f.catalog.Query(ctx, "/testpackage/station/station[XY]", false)
	_, _ = f.catalog.Query(ctx, "/testpackage", false)

	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `xmlcat_queries_total{outcome="ok"} 1`)
	assert.Contains(t, text, `xmlcat_queries_total{outcome="not_found"} 1`)
	assert.Contains(t, text, `xmlcat_queries_total{outcome="invalid"} 1`)
	assert.Contains(t, text, `xmlcat_documents_indexed_total 3`)
	assert.Contains(t, text, `xmlcat_reindex_runs_total{status="completed"} 1`)
	assert.Contains(t, text, `xmlcat_registered_indexes 5`)
}

func TestQueryOutcome(t *testing.T) {
	assert.Equal(t, "ok", queryOutcome(&domain.QueryResult{Ordered: []int64{1}}, nil))
	assert.Equal(t, "empty", queryOutcome(&domain.QueryResult{}, nil))
	assert.Equal(t, "error", queryOutcome(nil, errors.New("boom")))
}
