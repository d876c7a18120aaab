package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRunMetrics_CountersAndHistograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRunMetrics(reg)

	m.IncFacility(ResultOK)
	m.IncFacility(ResultOK)
	m.IncFacility(ResultCycle)
	m.ObserveTraversal(3, 1.75)
	m.ObservePolygons(4)
	m.ObserveStage("traverse", 0.001)
	m.OverlapCacheHit()
	m.OverlapCacheMiss()
	m.OverlapCacheMiss()
	m.AddAbsorbed("catchment", 5)
	m.AddAbsorbed("ej", 0)
	m.ObserveStoreOp("sadd", errors.New("boom"), 0.002)
	m.IncPublished(true)

	if got := testutil.ToFloat64(m.facilities.WithLabelValues(ResultOK)); got != 2 {
		t.Fatalf("ok facilities=%v want 2", got)
	}
	if got := testutil.ToFloat64(m.facilities.WithLabelValues(ResultCycle)); got != 1 {
		t.Fatalf("cycle facilities=%v want 1", got)
	}
	if got := testutil.ToFloat64(m.overlapCache.WithLabelValues("miss")); got != 2 {
		t.Fatalf("cache misses=%v want 2", got)
	}
	if got := testutil.ToFloat64(m.dedupAbsorbed.WithLabelValues("catchment")); got != 5 {
		t.Fatalf("absorbed=%v want 5", got)
	}
	if got := testutil.ToFloat64(m.storeOpErrors.WithLabelValues("sadd")); got != 1 {
		t.Fatalf("store errors=%v want 1", got)
	}
	if n := testutil.CollectAndCount(m.hops); n != 1 {
		t.Fatalf("hops series=%d want 1", n)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"ejquery_facilities_total",
		"ejquery_traversal_hops",
		"ejquery_traversal_distance_km",
		"ejquery_ej_polygons_per_facility",
		"ejquery_stage_duration_seconds",
		"ejquery_overlap_cache_total",
		"ejquery_dedup_absorbed_total",
	} {
		if !names[want] {
			t.Fatalf("metric %s not registered; have %v", want, names)
		}
	}
}

func TestRunMetrics_NilIsNoop(t *testing.T) {
	var m *RunMetrics
	m.IncFacility(ResultOK)
	m.ObserveTraversal(1, 1)
	m.ObservePolygons(1)
	m.ObserveStage("x", 1)
	m.OverlapCacheHit()
	m.OverlapCacheMiss()
	m.AddAbsorbed("ej", 1)
	m.ObserveStoreOp("smembers", nil, 1)
	m.IncPublished(false)
}
