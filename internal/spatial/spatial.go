// Package spatial finds the EJ polygons that intersect a set of catchments
// and selects layer features for export.
package spatial

import (
	"context"
	"fmt"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/ogc"
)

// OverlapProvider returns every EJ polygon intersecting any of ids, once
// each, sorted by EJ id. Empty ids give an empty result.
type OverlapProvider interface {
	FindIntersecting(ctx context.Context, ids []model.CatchmentID) ([]model.EJPolygon, error)
}

// CatchmentLookup answers the overlap question for a single catchment.
type CatchmentLookup interface {
	Overlapping(ctx context.Context, id model.CatchmentID) ([]model.EJPolygon, error)
}

// Selector returns the features of a layer matching an IN predicate on the
// layer's key field.
type Selector interface {
	Select(ctx context.Context, kind model.LayerKind, pred ogc.InPredicate) (*geojson.FeatureCollection, error)
}

func collect(ctx context.Context, l CatchmentLookup, ids []model.CatchmentID) ([]model.EJPolygon, error) {
	if len(ids) == 0 {
		return []model.EJPolygon{}, nil
	}
	seen := make(map[string]struct{})
	out := []model.EJPolygon{}
	for _, id := range ids {
		polys, err := l.Overlapping(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("overlap for catchment %d: %w", id, err)
		}
		for _, p := range polys {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
	}
	sortPolygons(out)
	return out, nil
}

func parseCatchment(s string) (model.CatchmentID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("catchment id %q: %w", s, err)
	}
	return model.CatchmentID(n), nil
}
