package h3mapper

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	h3 "github.com/uber/h3-go/v4"
)

// avgEdgeKm is the average hexagon edge length per resolution.
var avgEdgeKm = [16]float64{
	1281.256011, 483.0568391, 182.5129565, 68.97922179,
	26.07175968, 9.854090990, 3.724532667, 1.406475763,
	0.531414010, 0.200786148, 0.075863783, 0.028663897,
	0.010830188, 0.004092010, 0.001546100, 0.000584169,
}

// Mapper covers lon/lat geometries (EPSG:4326) with H3 cells at a fixed
// resolution.
//
// A cover is conservative: every point of the geometry lies in a cell of
// the cover, so two geometries that share a point share a cell.
type Mapper struct {
	res   int
	stepM float64
}

func New(res int) (*Mapper, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	// boundary samples closer than a quarter edge never skip a cell
	return &Mapper{res: res, stepM: avgEdgeKm[res] * 1000 / 4}, nil
}

func (m *Mapper) Res() int { return m.res }

// Cover returns the sorted unique cells of g. Polygons are covered by their
// polyfill plus the first ring of neighbours around every cell their
// boundary passes through.
func (m *Mapper) Cover(g orb.Geometry) ([]h3.Cell, error) {
	set := make(map[h3.Cell]struct{})
	var err error
	switch v := g.(type) {
	case orb.Point:
		err = m.addPoint(set, v)
	case orb.MultiPoint:
		for _, p := range v {
			if err = m.addPoint(set, p); err != nil {
				break
			}
		}
	case orb.Polygon:
		err = m.addPolygon(set, v)
	case orb.MultiPolygon:
		for i, p := range v {
			if err = m.addPolygon(set, p); err != nil {
				err = fmt.Errorf("polygon %d: %w", i, err)
				break
			}
		}
	case orb.Bound:
		err = m.addPolygon(set, v.ToPolygon())
	case nil:
		return nil, errors.New("nil geometry")
	default:
		return nil, fmt.Errorf("unsupported geometry type: %s", g.GeoJSONType())
	}
	if err != nil {
		return nil, err
	}

	out := make([]h3.Cell, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	slices.Sort(out)
	return out, nil
}

// CellOf returns the cell containing p.
func (m *Mapper) CellOf(p orb.Point) (h3.Cell, error) {
	c, err := h3.LatLngToCell(h3.LatLng{Lat: p.Lat(), Lng: p.Lon()}, m.res)
	if err != nil {
		return 0, fmt.Errorf("h3 cell of %v: %w", p, err)
	}
	return c, nil
}

func (m *Mapper) addPoint(set map[h3.Cell]struct{}, p orb.Point) error {
	c, err := m.CellOf(p)
	if err != nil {
		return err
	}
	set[c] = struct{}{}
	return nil
}

func (m *Mapper) addPolygon(set map[h3.Cell]struct{}, p orb.Polygon) error {
	if len(p) == 0 {
		return errors.New("empty polygon")
	}
	outer := toLoop(p[0])
	if len(outer) < 3 {
		return errors.New("outer ring has < 3 distinct vertices")
	}
	var holes []h3.GeoLoop
	for i := 1; i < len(p); i++ {
		h := toLoop(p[i])
		if len(h) < 3 {
			return fmt.Errorf("hole %d has < 3 distinct vertices", i-1)
		}
		holes = append(holes, h)
	}

	interior, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer, Holes: holes}, m.res)
	if err != nil {
		return fmt.Errorf("h3 polyfill: %w", err)
	}
	for _, c := range interior {
		set[c] = struct{}{}
	}

	boundary := make(map[h3.Cell]struct{})
	for _, ring := range p {
		for _, pt := range m.densify(ring) {
			c, err := m.CellOf(pt)
			if err != nil {
				return err
			}
			boundary[c] = struct{}{}
		}
	}
	for c := range boundary {
		disk, err := h3.GridDisk(c, 1)
		if err != nil {
			return fmt.Errorf("h3 grid disk: %w", err)
		}
		for _, d := range disk {
			set[d] = struct{}{}
		}
	}
	return nil
}

// densify returns the ring's vertices plus intermediate points so that no
// two consecutive points are further apart than the sampling step.
func (m *Mapper) densify(r orb.Ring) []orb.Point {
	if len(r) == 0 {
		return nil
	}
	out := make([]orb.Point, 0, len(r))
	out = append(out, r[0])
	for i := 1; i < len(r); i++ {
		a, b := r[i-1], r[i]
		d := geo.Distance(a, b)
		if n := int(math.Ceil(d / m.stepM)); n > 1 {
			for k := 1; k < n; k++ {
				f := float64(k) / float64(n)
				out = append(out, orb.Point{a[0] + f*(b[0]-a[0]), a[1] + f*(b[1]-a[1])})
			}
		}
		out = append(out, b)
	}
	return out
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// toLoop converts an orb ring (lon,lat) to an h3.GeoLoop (lat,lng degrees),
// dropping the duplicated closing vertex.
func toLoop(r orb.Ring) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(r))
	for _, p := range r {
		loop = append(loop, h3.LatLng{Lat: p.Lat(), Lng: p.Lon()})
	}
	if len(loop) >= 2 {
		last, first := loop[len(loop)-1], loop[0]
		if last.Lat == first.Lat && last.Lng == first.Lng {
			loop = loop[:len(loop)-1]
		}
	}
	return loop
}
