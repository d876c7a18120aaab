// Package featuresource loads the catchment and EJ polygon layers, and
// optionally the facility layer, from GeoJSON files or a GeoServer WFS.
package featuresource

import (
	"context"
	"fmt"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/spatial"
)

type Source interface {
	Load(ctx context.Context, kind model.LayerKind) (*geojson.FeatureCollection, error)
}

// Facility layer attribute names.
const (
	FieldRegistryID = "FIRST_REGISTRY_ID"
	FieldFeatureID  = "FEATUREID"
)

// Facilities turns a facility point layer into the facility list, in layer
// order. Every feature needs a registry id; one without a home catchment is
// kept with Home set to the sink and skipped by the run.
func Facilities(fc *geojson.FeatureCollection) ([]model.Facility, error) {
	if fc == nil {
		return nil, nil
	}
	out := make([]model.Facility, 0, len(fc.Features))
	for i, f := range fc.Features {
		id, ok := spatial.PropertyKey(f, FieldRegistryID)
		if !ok {
			return nil, fmt.Errorf("facility feature %d: missing %s", i, FieldRegistryID)
		}
		home, ok := spatial.PropertyKey(f, FieldFeatureID)
		if !ok {
			out = append(out, model.Facility{ID: id, Home: model.Sink})
			continue
		}
		n, err := strconv.ParseInt(home, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("facility %s: %s %q: %w", id, FieldFeatureID, home, err)
		}
		out = append(out, model.Facility{ID: id, Home: model.CatchmentID(n)})
	}
	return out, nil
}
