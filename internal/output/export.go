package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/paulmach/orb/geojson"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/ogc"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/spatial"
)

type ExportResult struct {
	Kind      model.LayerKind
	Path      string
	Predicate string
	// Requested is the number of distinct ids asked for; Written is the
	// number of features the selection returned.
	Requested int
	Written   int
}

// ExportCatchments writes the catchment union. Ids are numeric and go into
// the selection bare.
func (w *Writer) ExportCatchments(ctx context.Context, ids []model.CatchmentID) (ExportResult, error) {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = id.String()
	}
	return w.ExportUnion(ctx, model.LayerCatchments, s)
}

func (w *Writer) ExportEJPolygons(ctx context.Context, ids []string) (ExportResult, error) {
	return w.ExportUnion(ctx, model.LayerEJ, ids)
}

// ExportUnion selects the features of kind whose key is in ids with one IN
// selection and writes them as a FeatureCollection. Features are written in
// the order of ids; an empty id set writes an empty collection.
func (w *Writer) ExportUnion(ctx context.Context, kind model.LayerKind, ids []string) (ExportResult, error) {
	path, ok := w.cfg.Exports[kind]
	if !ok || path == "" {
		return ExportResult{}, fmt.Errorf("output: no export path for %q", kind)
	}
	field := w.cfg.KeyFields[kind]
	if field == "" {
		return ExportResult{}, fmt.Errorf("output: no key field for %q", kind)
	}

	ids = distinct(ids)
	pred := ogc.InPredicate{Field: field, Values: ids, Quoted: kind == model.LayerEJ}
	res := ExportResult{Kind: kind, Path: path, Predicate: pred.String(), Requested: len(ids)}
	w.log.InfoContext(ctx, "export selection", "kind", string(kind), "ids", len(ids), "predicate", res.Predicate)

	fc := geojson.NewFeatureCollection()
	if len(ids) > 0 {
		if w.sel == nil {
			return res, fmt.Errorf("output: export %s: no feature selector", kind)
		}
		got, err := w.sel.Select(ctx, kind, pred)
		if err != nil {
			return res, fmt.Errorf("output: select %s: %w", kind, err)
		}
		fc.Features = orderByIDs(got.Features, field, ids)
	}
	res.Written = len(fc.Features)
	if res.Written < res.Requested {
		w.log.WarnContext(ctx, "export selection incomplete", "kind", string(kind),
			"requested", res.Requested, "written", res.Written)
	}

	if err := writeCollection(path, fc); err != nil {
		return res, err
	}
	w.log.InfoContext(ctx, "export written", "kind", string(kind), "path", path, "features", res.Written)
	return res, nil
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// orderByIDs sorts features by the position of their key in ids and drops
// duplicates and features that were not asked for.
func orderByIDs(fs []*geojson.Feature, field string, ids []string) []*geojson.Feature {
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	type ranked struct {
		at int
		f  *geojson.Feature
	}
	seen := make(map[int]struct{}, len(fs))
	picked := make([]ranked, 0, len(fs))
	for _, f := range fs {
		key, ok := spatial.FeatureKey(f, field)
		if !ok {
			continue
		}
		at, ok := pos[key]
		if !ok {
			continue
		}
		if _, dup := seen[at]; dup {
			continue
		}
		seen[at] = struct{}{}
		picked = append(picked, ranked{at: at, f: f})
	}
	slices.SortFunc(picked, func(a, b ranked) int { return a.at - b.at })
	out := make([]*geojson.Feature, len(picked))
	for i, r := range picked {
		out[i] = r.f
	}
	return out
}

// writeCollection replaces path atomically.
func writeCollection(path string, fc *geojson.FeatureCollection) error {
	b, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("output: create temp for %s: %w", path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("output: sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("output: close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("output: replace %s: %w", path, err)
	}
	return nil
}
