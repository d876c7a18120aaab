package spatial

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	h3 "github.com/uber/h3-go/v4"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/ogc"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/mapper"
)

type IndexOptions struct {
	CatchmentIDField string
	EJIDField        string
	// Coverer enables the H3 candidate prefilter. Nil falls back to
	// comparing bounds against every EJ polygon.
	Coverer mapper.Coverer
	Logger  *slog.Logger
}

type shape struct {
	geom  orb.Geometry
	bound orb.Bound
	cells []h3.Cell
}

type catchmentEntry struct {
	features []*geojson.Feature
	shapes   []shape
}

type ejEntry struct {
	poly     model.EJPolygon
	features []*geojson.Feature
	shapes   []shape
}

// Index answers overlap queries from two in-memory layers. It is read-only
// after NewIndex returns and safe for concurrent use.
type Index struct {
	opts       IndexOptions
	catchments map[model.CatchmentID]*catchmentEntry
	ej         []*ejEntry
	ejByID     map[string]int
	byCell     map[h3.Cell][]int
	log        *slog.Logger
}

var (
	_ OverlapProvider = (*Index)(nil)
	_ CatchmentLookup = (*Index)(nil)
	_ Selector        = (*Index)(nil)
)

// NewIndex keys both layers and precomputes bounds and H3 covers.
//
// Several features with the same key are merged into one entry; for EJ
// polygons the demographics of the first feature are used.
func NewIndex(catchments, ej *geojson.FeatureCollection, opts IndexOptions) (*Index, error) {
	if opts.CatchmentIDField == "" {
		opts.CatchmentIDField = "FEATUREID"
	}
	if opts.EJIDField == "" {
		opts.EJIDField = "ID"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	x := &Index{
		opts:       opts,
		catchments: make(map[model.CatchmentID]*catchmentEntry),
		ejByID:     make(map[string]int),
		byCell:     make(map[h3.Cell][]int),
		log:        opts.Logger,
	}

	dupCatch := 0
	for i, f := range features(catchments) {
		id, err := catchmentKey(f, opts.CatchmentIDField)
		if err != nil {
			return nil, fmt.Errorf("catchment feature %d: %w", i, err)
		}
		sh, err := x.shapeOf(f)
		if err != nil {
			return nil, fmt.Errorf("catchment %d: %w", id, err)
		}
		e := x.catchments[id]
		if e == nil {
			e = &catchmentEntry{}
			x.catchments[id] = e
		} else {
			dupCatch++
		}
		e.features = append(e.features, f)
		e.shapes = append(e.shapes, sh)
	}

	dupEJ := 0
	for i, f := range features(ej) {
		id, ok := FeatureKey(f, opts.EJIDField)
		if !ok {
			return nil, fmt.Errorf("ej feature %d: missing %s", i, opts.EJIDField)
		}
		sh, err := x.shapeOf(f)
		if err != nil {
			return nil, fmt.Errorf("ej polygon %s: %w", id, err)
		}
		idx, seen := x.ejByID[id]
		if !seen {
			d, err := Demographics(f)
			if err != nil {
				return nil, fmt.Errorf("ej polygon %s: %w", id, err)
			}
			idx = len(x.ej)
			x.ej = append(x.ej, &ejEntry{poly: model.EJPolygon{ID: id, Demographics: d}})
			x.ejByID[id] = idx
		} else {
			dupEJ++
		}
		e := x.ej[idx]
		e.features = append(e.features, f)
		e.shapes = append(e.shapes, sh)
		for _, c := range sh.cells {
			if l := x.byCell[c]; len(l) == 0 || l[len(l)-1] != idx {
				x.byCell[c] = append(l, idx)
			}
		}
	}

	if dupCatch > 0 || dupEJ > 0 {
		x.log.Warn("layers carry repeated keys; features merged per key",
			"catchment_duplicates", dupCatch, "ej_duplicates", dupEJ)
	}
	x.log.Debug("overlap index built",
		"catchments", len(x.catchments), "ej_polygons", len(x.ej), "cells", len(x.byCell))
	return x, nil
}

func features(fc *geojson.FeatureCollection) []*geojson.Feature {
	if fc == nil {
		return nil
	}
	return fc.Features
}

func (x *Index) shapeOf(f *geojson.Feature) (shape, error) {
	if len(polygons(f.Geometry)) == 0 {
		return shape{}, fmt.Errorf("geometry must be Polygon or MultiPolygon, got %s", geometryType(f.Geometry))
	}
	sh := shape{geom: f.Geometry, bound: f.Geometry.Bound()}
	if x.opts.Coverer != nil {
		cells, err := x.opts.Coverer.Cover(f.Geometry)
		if err != nil {
			return shape{}, fmt.Errorf("h3 cover: %w", err)
		}
		sh.cells = cells
	}
	return sh, nil
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "null"
	}
	return g.GeoJSONType()
}

func (x *Index) CatchmentCount() int { return len(x.catchments) }

func (x *Index) EJCount() int { return len(x.ej) }

// Overlapping returns the EJ polygons intersecting catchment id, sorted by
// EJ id. A catchment missing from the layer yields nothing.
func (x *Index) Overlapping(ctx context.Context, id model.CatchmentID) ([]model.EJPolygon, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ce := x.catchments[id]
	if ce == nil {
		x.log.DebugContext(ctx, "catchment not in layer", "catchment", int64(id))
		return nil, nil
	}

	hit := make(map[int]struct{})
	for _, cs := range ce.shapes {
		for _, idx := range x.candidates(cs) {
			if _, done := hit[idx]; done {
				continue
			}
			if x.ej[idx].intersects(cs) {
				hit[idx] = struct{}{}
			}
		}
	}

	out := make([]model.EJPolygon, 0, len(hit))
	for idx := range hit {
		out = append(out, x.ej[idx].poly)
	}
	sortPolygons(out)
	return out, nil
}

func (x *Index) FindIntersecting(ctx context.Context, ids []model.CatchmentID) ([]model.EJPolygon, error) {
	return collect(ctx, x, ids)
}

// candidates returns the EJ entries worth an exact test against s.
func (x *Index) candidates(s shape) []int {
	if x.opts.Coverer == nil {
		out := make([]int, 0, len(x.ej))
		for i, e := range x.ej {
			for _, es := range e.shapes {
				if es.bound.Intersects(s.bound) {
					out = append(out, i)
					break
				}
			}
		}
		return out
	}

	seen := make(map[int]struct{})
	var out []int
	for _, c := range s.cells {
		for _, idx := range x.byCell[c] {
			if _, ok := seen[idx]; ok {
				continue
			}
			seen[idx] = struct{}{}
			out = append(out, idx)
		}
	}
	return out
}

func (e *ejEntry) intersects(s shape) bool {
	for _, es := range e.shapes {
		if es.bound.Intersects(s.bound) && Intersects(es.geom, s.geom) {
			return true
		}
	}
	return false
}

// Select returns the features of layer kind whose key is in pred, in the
// order of pred's values. Unknown keys are skipped.
func (x *Index) Select(ctx context.Context, kind model.LayerKind, pred ogc.InPredicate) (*geojson.FeatureCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	switch kind {
	case model.LayerCatchments:
		if !strings.EqualFold(pred.Field, x.opts.CatchmentIDField) {
			return nil, fmt.Errorf("select catchments: field %q is not the key field %q", pred.Field, x.opts.CatchmentIDField)
		}
		for _, v := range pred.Values {
			id, err := parseCatchment(v)
			if err != nil {
				return nil, fmt.Errorf("select catchments: %w", err)
			}
			if e := x.catchments[id]; e != nil {
				for _, f := range e.features {
					fc.Append(f)
				}
			}
		}
	case model.LayerEJ:
		if !strings.EqualFold(pred.Field, x.opts.EJIDField) {
			return nil, fmt.Errorf("select ej polygons: field %q is not the key field %q", pred.Field, x.opts.EJIDField)
		}
		for _, v := range pred.Values {
			if idx, ok := x.ejByID[v]; ok {
				for _, f := range x.ej[idx].features {
					fc.Append(f)
				}
			}
		}
	default:
		return nil, fmt.Errorf("unknown layer %q", kind)
	}
	return fc, nil
}

func sortPolygons(p []model.EJPolygon) {
	slices.SortFunc(p, func(a, b model.EJPolygon) int { return strings.Compare(a.ID, b.ID) })
}
