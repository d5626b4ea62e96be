package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/xmlcat/internal/adapters/driven/xmltree"
	"github.com/custodia-labs/xmlcat/internal/core/domain"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/xmlcat/internal/core/ports/driving"
	"github.com/custodia-labs/xmlcat/internal/metrics"
)

const (
	stationBern = `<station rel_uri="bern">
    <station_code>BERN</station_code>
    <chan_code>1</chan_code>
    <stat_type>0</stat_type>
    <lon>12.51200</lon>
    <lat>50.23200</lat>
    <stat_elav>0.63500</stat_elav>
</station>`

	stationGenf = `<station rel_uri="genf">
    <station_code>GENF</station_code>
    <chan_code>1</chan_code>
    <stat_type>0</stat_type>
    <lon>22.51200</lon>
    <lat>55.23200</lat>
    <stat_elav>0.73500</stat_elav>
    <XY>
        <paramXY>2.5</paramXY>
        <paramXY>0</paramXY>
        <paramXY>99</paramXY>
    </XY>
    <test_date>20081212010102.123456789</test_date>
    <test_date2>20081212010102.050300000</test_date2>
</station>`

	testmlDoc = `<?xml version="1.0"?>
<testml>
<res_link>BERN</res_link>
<blah1 id="3"><blahblah1>blahblahblah</blahblah1></blah1>
</testml>
`
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// catalogFixture wires a catalog service to in-memory backends
type catalogFixture struct {
	resources *mocks.MockResourceStore
	indexes   *mocks.MockIndexStore
	views     *mocks.MockIndexViewStore
	executor  *mocks.MockQueryExecutor
	lock      *mocks.MockDistributedLock
	queue     *mocks.MockTaskQueue
	events    *mocks.MockEventPublisher
	metrics   *metrics.Metrics
	catalog   driving.CatalogService
}

func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()
	f := &catalogFixture{
		resources: mocks.NewMockResourceStore(),
		indexes:   mocks.NewMockIndexStore(),
		views:     mocks.NewMockIndexViewStore(),
		lock:      mocks.NewMockDistributedLock(),
		queue:     mocks.NewMockTaskQueue(),
		events:    mocks.NewMockEventPublisher(),
		metrics:   metrics.New(nil),
	}
	f.executor = mocks.NewMockQueryExecutor(f.resources, f.indexes)
	f.catalog = NewCatalogService(CatalogConfig{
		Resources: f.resources,
		Indexes:   f.indexes,
		Views:     f.views,
		Executor:  f.executor,
		Parser:    xmltree.NewParser(),
		Lock:      f.lock,
		Queue:     f.queue,
		Events:    f.events,
		Metrics:   f.metrics,
		Reindex:   DefaultReindexConfig(),
		Logger:    quietLogger(),
	})
	return f
}

func (f *catalogFixture) resourceType(t *testing.T, packageID, resourceTypeID string, versioned bool) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.resources.GetPackage(ctx, packageID); err != nil {
		_, err := f.catalog.CreatePackage(ctx, packageID, "")
		require.NoError(t, err)
	}
	_, err := f.catalog.CreateResourceType(ctx, packageID, driving.CreateResourceTypeRequest{
		ID:                resourceTypeID,
		VersionControlled: versioned,
	})
	require.NoError(t, err)
}

func (f *catalogFixture) add(t *testing.T, packageID, resourceTypeID, name, data string) *domain.Resource {
	t.Helper()
	res, err := f.catalog.AddResource(context.Background(), packageID, resourceTypeID, name, []byte(data))
	require.NoError(t, err)
	return res
}

func (f *catalogFixture) register(t *testing.T, expression string, typ domain.IndexType) *domain.IndexDefinition {
	t.Helper()
	def, err := f.catalog.RegisterIndex(context.Background(), driving.RegisterIndexRequest{
		Expression: expression,
		Type:       typ,
	})
	require.NoError(t, err)
	return def
}

func (f *catalogFixture) query(t *testing.T, q string) []int64 {
	t.Helper()
	result, err := f.catalog.Query(context.Background(), q, false)
	require.NoError(t, err, q)
	return result.Ordered
}

// stationFixture holds two station documents and one testml document with the
// station indexes registered after the documents were added and then reindexed
type stationFixture struct {
	*catalogFixture
	bern, genf, testml *domain.Resource
}

func newStationFixture(t *testing.T) *stationFixture {
	t.Helper()
	f := &stationFixture{catalogFixture: newCatalogFixture(t)}
	f.resourceType(t, "testpackage", "station", false)
	f.resourceType(t, "testpackage", "testml", false)

	f.bern = f.add(t, "testpackage", "station", "bern", stationBern)
	f.genf = f.add(t, "testpackage", "station", "genf", stationGenf)
	f.testml = f.add(t, "testpackage", "testml", "res1", testmlDoc)

	f.register(t, "/testpackage/station/station/lon", domain.IndexTypeText)
	f.register(t, "/testpackage/station/station/lat", domain.IndexTypeFloat)
	f.register(t, "/testpackage/testml/testml/blah1/@id", domain.IndexTypeText)
	f.register(t, "/testpackage/station/station/XY/paramXY", domain.IndexTypeText)
	f.register(t, "/testpackage/station/station", domain.IndexTypeBoolean)

	_, err := f.catalog.Reindex(context.Background(), domain.IndexFilter{PackageID: "testpackage"})
	require.NoError(t, err)
	return f
}

func docIDs(resources ...*domain.Resource) []int64 {
	ids := make([]int64, len(resources))
	for i, res := range resources {
		ids[i] = res.Document.ID
	}
	return ids
}
