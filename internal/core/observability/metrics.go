// Package observability holds the run metrics recorded while facilities are
// processed.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK      = "ok"
	ResultRunaway = "runaway"
	ResultCycle   = "cycle"
	ResultNoHome  = "no_home"
	ResultFailed  = "failed"
)

// RunMetrics is safe to use as a nil pointer; every method is then a no-op.
type RunMetrics struct {
	facilities      *prometheus.CounterVec
	hops            prometheus.Histogram
	distanceKm      prometheus.Histogram
	polygons        prometheus.Histogram
	stageDuration   *prometheus.HistogramVec
	overlapCache    *prometheus.CounterVec
	dedupAbsorbed   *prometheus.CounterVec
	storeOpDuration *prometheus.HistogramVec
	storeOpErrors   *prometheus.CounterVec
	published       *prometheus.CounterVec
}

func NewRunMetrics(reg prometheus.Registerer) *RunMetrics {
	f := promauto.With(reg)
	return &RunMetrics{
		facilities: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ejquery_facilities_total",
			Help: "Facilities processed by result.",
		}, []string{"result"}),

		hops: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ejquery_traversal_hops",
			Help:    "Downstream steps taken per facility.",
			Buckets: prometheus.LinearBuckets(0, 1, 12),
		}),

		distanceKm: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ejquery_traversal_distance_km",
			Help:    "Accumulated downstream length per facility in km.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 1.6, 2, 3, 5, 10},
		}),

		polygons: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ejquery_ej_polygons_per_facility",
			Help:    "EJ polygons intersecting a facility's downstream catchments.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),

		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ejquery_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16), // 0.5ms to ~16s
		}, []string{"stage"}),

		overlapCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ejquery_overlap_cache_total",
			Help: "Per-catchment overlap lookups by cache outcome.",
		}, []string{"outcome"}),

		dedupAbsorbed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ejquery_dedup_absorbed_total",
			Help: "Identifiers handed to the dedup store by kind.",
		}, []string{"kind"}),

		storeOpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ejquery_redis_operation_duration_seconds",
			Help:    "Latency of redis operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),

		storeOpErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ejquery_redis_operation_errors_total",
			Help: "Failed redis operations.",
		}, []string{"op"}),

		published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ejquery_rows_published_total",
			Help: "Result rows published to kafka by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *RunMetrics) IncFacility(result string) {
	if m == nil {
		return
	}
	m.facilities.WithLabelValues(result).Inc()
}

func (m *RunMetrics) ObserveTraversal(hops int, distanceKm float64) {
	if m == nil {
		return
	}
	m.hops.Observe(float64(hops))
	m.distanceKm.Observe(distanceKm)
}

func (m *RunMetrics) ObservePolygons(n int) {
	if m == nil {
		return
	}
	m.polygons.Observe(float64(n))
}

func (m *RunMetrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

func (m *RunMetrics) OverlapCacheHit() {
	if m == nil {
		return
	}
	m.overlapCache.WithLabelValues("hit").Inc()
}

func (m *RunMetrics) OverlapCacheMiss() {
	if m == nil {
		return
	}
	m.overlapCache.WithLabelValues("miss").Inc()
}

func (m *RunMetrics) AddAbsorbed(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dedupAbsorbed.WithLabelValues(kind).Add(float64(n))
}

func (m *RunMetrics) ObserveStoreOp(op string, err error, seconds float64) {
	if m == nil {
		return
	}
	m.storeOpDuration.WithLabelValues(op).Observe(seconds)
	if err != nil {
		m.storeOpErrors.WithLabelValues(op).Inc()
	}
}

func (m *RunMetrics) IncPublished(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.published.WithLabelValues(outcome).Inc()
}
