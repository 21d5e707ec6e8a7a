// Package metrics provides Prometheus collectors for feed curation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricCurationRequestsTotal = "feed_curation_requests_total"
	MetricCurationDuration      = "feed_curation_duration_seconds"
	MetricMalformedCursorsTotal = "feed_malformed_cursors_total"
	MetricCacheLookupsTotal     = "feed_batch_cache_lookups_total"
	MetricCacheEvictionsTotal   = "feed_batch_cache_evictions_total"
	MetricBatchesGeneratedTotal = "feed_batches_generated_total"
	MetricSearchRequestsTotal   = "feed_search_requests_total"
	MetricSearchDuration        = "feed_search_duration_seconds"
)

// Label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"

	LookupHit  = "hit"
	LookupMiss = "miss"
)

// Metrics holds the curation collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	curationRequests *prometheus.CounterVec
	curationDuration prometheus.Histogram
	malformedCursors prometheus.Counter
	cacheLookups     *prometheus.CounterVec
	cacheEvictions   prometheus.Counter
	batchesGenerated prometheus.Counter
	searchRequests   *prometheus.CounterVec
	searchDuration   prometheus.Histogram
}

// New creates unregistered collectors; call Register to expose them.
func New() *Metrics {
	return &Metrics{
		curationRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCurationRequestsTotal,
				Help: "Total number of feed curation calls by status",
			},
			[]string{"status"},
		),
		curationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricCurationDuration,
				Help:    "Histogram of feed curation call duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
		malformedCursors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricMalformedCursorsTotal,
				Help: "Total number of cursors that failed to decode and fell back to defaults",
			},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCacheLookupsTotal,
				Help: "Total number of batch cache lookups by result",
			},
			[]string{"result"},
		),
		cacheEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricCacheEvictionsTotal,
				Help: "Total number of batches evicted from the cache",
			},
		),
		batchesGenerated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricBatchesGeneratedTotal,
				Help: "Total number of query batches generated by the sampler",
			},
		),
		searchRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSearchRequestsTotal,
				Help: "Total number of search provider calls by status",
			},
			[]string{"status"},
		),
		searchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricSearchDuration,
				Help:    "Histogram of search provider call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// Collectors returns every collector.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.curationRequests,
		m.curationDuration,
		m.malformedCursors,
		m.cacheLookups,
		m.cacheEvictions,
		m.batchesGenerated,
		m.searchRequests,
		m.searchDuration,
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func status(ok bool) string {
	if ok {
		return StatusSuccess
	}
	return StatusFailure
}

// ObserveCuration records one curation call.
func (m *Metrics) ObserveCuration(ok bool, seconds float64) {
	if m == nil {
		return
	}
	m.curationRequests.WithLabelValues(status(ok)).Inc()
	m.curationDuration.Observe(seconds)
}

// IncMalformedCursor counts a cursor that fell back to defaults.
func (m *Metrics) IncMalformedCursor() {
	if m == nil {
		return
	}
	m.malformedCursors.Inc()
}

// IncCacheLookup counts a batch cache lookup (LookupHit or LookupMiss).
func (m *Metrics) IncCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// AddEvictions counts evicted batches.
func (m *Metrics) AddEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheEvictions.Add(float64(n))
}

// IncBatchGenerated counts a freshly sampled batch.
func (m *Metrics) IncBatchGenerated() {
	if m == nil {
		return
	}
	m.batchesGenerated.Inc()
}

// ObserveSearch records one search provider call.
func (m *Metrics) ObserveSearch(ok bool, seconds float64) {
	if m == nil {
		return
	}
	m.searchRequests.WithLabelValues(status(ok)).Inc()
	m.searchDuration.Observe(seconds)
}
