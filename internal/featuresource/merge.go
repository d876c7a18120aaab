package featuresource

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb/geojson"
)

// Diagnostics describes one Merge.
type Diagnostics struct {
	TotalIn   int
	TotalOut  int
	DedupByID int
	DedupByGH int
}

// Merge concatenates pages in order, dropping features already seen. A
// feature is identified by its id, or by a hash of its geometry when it has
// none. WFS paging without a stable sort can repeat features across pages.
func Merge(pages ...*geojson.FeatureCollection) (*geojson.FeatureCollection, Diagnostics, error) {
	out := geojson.NewFeatureCollection()
	var diag Diagnostics
	seenID := map[string]struct{}{}
	seenGH := map[uint64]struct{}{}

	for pi, page := range pages {
		if page == nil {
			continue
		}
		for fi, f := range page.Features {
			diag.TotalIn++
			key, err := canonicalIDKey(f.ID)
			if err != nil {
				return nil, diag, fmt.Errorf("page %d feature %d: %w", pi, fi, err)
			}
			if key != "" {
				if _, ok := seenID[key]; ok {
					diag.DedupByID++
					continue
				}
				seenID[key] = struct{}{}
			} else {
				gh, err := geometryHash(f)
				if err != nil {
					return nil, diag, fmt.Errorf("page %d feature %d: %w", pi, fi, err)
				}
				if _, ok := seenGH[gh]; ok {
					diag.DedupByGH++
					continue
				}
				seenGH[gh] = struct{}{}
			}
			out.Append(f)
		}
	}
	diag.TotalOut = len(out.Features)
	return out, diag, nil
}

// canonicalIDKey keeps string "1" and number 1 apart.
func canonicalIDKey(id any) (string, error) {
	switch t := id.(type) {
	case nil:
		return "", nil
	case string:
		if t == "" {
			return "", nil
		}
		return "s:" + t, nil
	case float64:
		return "n:" + strconv.FormatFloat(t, 'g', -1, 64), nil
	case int:
		return "n:" + strconv.Itoa(t), nil
	case int64:
		return "n:" + strconv.FormatInt(t, 10), nil
	case json.Number:
		return "n:" + t.String(), nil
	default:
		return "", fmt.Errorf("id must be string or number (got %T)", id)
	}
}

func geometryHash(f *geojson.Feature) (uint64, error) {
	if f.Geometry == nil {
		return 0, nil
	}
	buf, err := json.Marshal(geojson.NewGeometry(f.Geometry))
	if err != nil {
		return 0, fmt.Errorf("marshal geometry: %w", err)
	}
	return xxhash.Sum64(buf), nil
}
