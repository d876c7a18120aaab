package spatial

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/observability"
)

const defaultCacheSize = 4096

// Cached memoizes per-catchment overlap answers. Facilities on the same
// stream share most of their downstream catchments.
//
// Cached slices are shared between callers and must not be modified.
type Cached struct {
	inner   CatchmentLookup
	lru     *lru.Cache[model.CatchmentID, []model.EJPolygon]
	metrics *observability.RunMetrics
}

var (
	_ OverlapProvider = (*Cached)(nil)
	_ CatchmentLookup = (*Cached)(nil)
)

func NewCached(inner CatchmentLookup, size int, m *observability.RunMetrics) *Cached {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, _ := lru.New[model.CatchmentID, []model.EJPolygon](size)
	return &Cached{inner: inner, lru: c, metrics: m}
}

func (c *Cached) Overlapping(ctx context.Context, id model.CatchmentID) ([]model.EJPolygon, error) {
	if polys, ok := c.lru.Get(id); ok {
		c.metrics.OverlapCacheHit()
		return polys, nil
	}
	c.metrics.OverlapCacheMiss()
	polys, err := c.inner.Overlapping(ctx, id)
	if err != nil {
		return nil, err
	}
	c.lru.Add(id, polys)
	return polys, nil
}

func (c *Cached) FindIntersecting(ctx context.Context, ids []model.CatchmentID) ([]model.EJPolygon, error) {
	return collect(ctx, c, ids)
}

func (c *Cached) Len() int { return c.lru.Len() }
