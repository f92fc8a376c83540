package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.CacheHit()
	m.CacheHit()
	m.CacheMiss()
	m.ObserveResize(10*time.Millisecond, nil)
	m.ObserveResize(20*time.Millisecond, errors.New("boom"))
	m.ObserveRequest("/resize", http.StatusOK)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resizeFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/resize", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.resizeDuration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.CacheHit()
		m.CacheMiss()
		m.ObserveResize(time.Second, nil)
		m.ObserveRequest("/health", http.StatusOK)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler(t *testing.T) {
	m := New()
	m.CacheMiss()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "imgresize_cache_misses_total 1")
}
