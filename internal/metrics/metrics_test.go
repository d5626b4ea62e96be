package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Observe(t *testing.T) {
	m := New(nil)

	m.ObserveQuery("ok", 5*time.Millisecond, 3)
	m.ObserveQuery("invalid", time.Millisecond, 0)
	m.ObserveIndexed(4, 1)
	m.ObserveReindex("completed", time.Second)
	m.SetRegisteredIndexes(6)

	body := scrape(t, m)
	assert.Contains(t, body, `xmlcat_queries_total{outcome="ok"} 1`)
	assert.Contains(t, body, `xmlcat_queries_total{outcome="invalid"} 1`)
	assert.Contains(t, body, "xmlcat_documents_indexed_total 1")
	assert.Contains(t, body, "xmlcat_index_elements_written_total 4")
	assert.Contains(t, body, "xmlcat_index_values_skipped_total 1")
	assert.Contains(t, body, `xmlcat_reindex_runs_total{status="completed"} 1`)
	assert.Contains(t, body, "xmlcat_registered_indexes 6")
	assert.Contains(t, body, "xmlcat_query_results_count_count 1")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveQuery("ok", time.Millisecond, 1)
		m.ObserveIndexed(1, 0)
		m.ObserveReindex("failed", time.Millisecond)
		m.SetRegisteredIndexes(1)
		m.ObserveHTTP("GET", "/health", 200, time.Millisecond)
	})
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	a := New(nil)
	b := New(nil)
	a.ObserveIndexed(2, 0)

	assert.Contains(t, scrape(t, a), "xmlcat_documents_indexed_total 1")
	assert.Contains(t, scrape(t, b), "xmlcat_documents_indexed_total 0")
}
