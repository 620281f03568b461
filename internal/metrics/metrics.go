// Package metrics defines the Prometheus collectors for the retrieval engine
// and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the retrieval collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	QueriesTotal         *prometheus.CounterVec
	QueryLatency         *prometheus.HistogramVec
	RecordsIndexedTotal  *prometheus.CounterVec
	CollectionSize       *prometheus.GaugeVec
	EmbeddingCacheHits   prometheus.Counter
	EmbeddingCacheMisses prometheus.Counter
	ToolCallsTotal       *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg. When reg is nil a
// fresh registry is used.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolhub_search_queries_total",
				Help: "Search queries by backend and outcome (ok, empty, error).",
			},
			[]string{"backend", "outcome"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolhub_search_latency_seconds",
				Help:    "Collection query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
			},
			[]string{"backend"},
		),
		RecordsIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolhub_records_indexed_total",
				Help: "Records added to collections.",
			},
			[]string{"backend"},
		),
		CollectionSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "toolhub_collection_records",
				Help: "Number of records per collection.",
			},
			[]string{"backend", "collection"},
		),
		EmbeddingCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "toolhub_embedding_cache_hits_total",
				Help: "Embedding lookups served from cache.",
			},
		),
		EmbeddingCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "toolhub_embedding_cache_misses_total",
				Help: "Embedding lookups that reached the embedder.",
			},
		),
		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolhub_tool_calls_total",
				Help: "Tool invocations by server and status.",
			},
			[]string{"server", "status"},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.QueriesTotal,
		m.QueryLatency,
		m.RecordsIndexedTotal,
		m.CollectionSize,
		m.EmbeddingCacheHits,
		m.EmbeddingCacheMisses,
		m.ToolCallsTotal,
	)
	return m
}

// ObserveQuery records one collection query.
func (m *Metrics) ObserveQuery(backend string, start time.Time, err error, empty bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case empty:
		outcome = "empty"
	}
	m.QueriesTotal.WithLabelValues(backend, outcome).Inc()
	m.QueryLatency.WithLabelValues(backend).Observe(time.Since(start).Seconds())
}

// ObserveAdd records a successful batch add and the resulting size.
func (m *Metrics) ObserveAdd(backend, collection string, added, size int) {
	if m == nil {
		return
	}
	m.RecordsIndexedTotal.WithLabelValues(backend).Add(float64(added))
	m.CollectionSize.WithLabelValues(backend, collection).Set(float64(size))
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.EmbeddingCacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.EmbeddingCacheMisses.Inc()
}

func (m *Metrics) ObserveToolCall(server string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ToolCallsTotal.WithLabelValues(server, status).Inc()
}

// Handler returns the scrape handler for the registry the metrics were
// registered on.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
