package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveQuery("keyword", time.Now(), nil, false)
		m.ObserveAdd("keyword", "tools", 1, 1)
		m.CacheHit()
		m.CacheMiss()
		m.ObserveToolCall("fs", nil)
	})
	assert.NotNil(t, m.Handler())
}

func TestObserveQueryOutcomes(t *testing.T) {
	m := New(prometheus.NewRegistry())
	start := time.Now()

	m.ObserveQuery("keyword", start, nil, false)
	m.ObserveQuery("keyword", start, nil, true)
	m.ObserveQuery("keyword", start, errors.New("boom"), true)
	m.ObserveQuery("semantic", start, nil, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("keyword", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("keyword", "empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("keyword", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("semantic", "ok")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.QueryLatency))
}

func TestObserveAddAndCache(t *testing.T) {
	m := New(nil)

	m.ObserveAdd("bleve", "tools", 3, 3)
	m.ObserveAdd("bleve", "tools", 2, 5)
	m.CacheHit()
	m.CacheMiss()
	m.CacheMiss()
	m.ObserveToolCall("fs", nil)
	m.ObserveToolCall("fs", errors.New("x"))

	assert.Equal(t, 5.0, testutil.ToFloat64(m.RecordsIndexedTotal.WithLabelValues("bleve")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.CollectionSize.WithLabelValues("bleve", "tools")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingCacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmbeddingCacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("fs", "error")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveToolCall("fs", nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), `toolhub_tool_calls_total{server="fs",status="ok"} 1`))
}
