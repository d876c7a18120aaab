package spatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Intersects reports whether two areal geometries share at least one point.
// Touching boundaries count as intersecting. Geometries other than Polygon,
// MultiPolygon and Bound never intersect anything.
func Intersects(a, b orb.Geometry) bool {
	pa, pb := polygons(a), polygons(b)
	for _, p := range pa {
		for _, q := range pb {
			if polygonsIntersect(p, q) {
				return true
			}
		}
	}
	return false
}

func polygons(g orb.Geometry) []orb.Polygon {
	switch v := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{v}
	case orb.MultiPolygon:
		return v
	case orb.Bound:
		return []orb.Polygon{v.ToPolygon()}
	}
	return nil
}

// polygonsIntersect: either some boundary segments meet, or one polygon
// holds a vertex of the other. Holes are honoured by PolygonContains.
func polygonsIntersect(p, q orb.Polygon) bool {
	if !validPolygon(p) || !validPolygon(q) {
		return false
	}
	if !p.Bound().Intersects(q.Bound()) {
		return false
	}
	if planar.PolygonContains(p, q[0][0]) || planar.PolygonContains(q, p[0][0]) {
		return true
	}
	for _, rp := range p {
		for _, rq := range q {
			if ringsCross(rp, rq) {
				return true
			}
		}
	}
	return false
}

func validPolygon(p orb.Polygon) bool {
	return len(p) > 0 && len(p[0]) > 0
}

func ringsCross(a, b orb.Ring) bool {
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	for i := 0; i+1 < len(a); i++ {
		segBound := orb.Bound{Min: a[i], Max: a[i]}.Extend(a[i+1])
		for j := 0; j+1 < len(b); j++ {
			if !segBound.Intersects(orb.Bound{Min: b[j], Max: b[j]}.Extend(b[j+1])) {
				continue
			}
			if segmentsIntersect(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

// segmentsIntersect includes touching endpoints and collinear overlap.
func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	switch {
	case d1 == 0 && onSegment(q1, q2, p1):
		return true
	case d2 == 0 && onSegment(q1, q2, p2):
		return true
	case d3 == 0 && onSegment(p1, p2, q1):
		return true
	case d4 == 0 && onSegment(p1, p2, q2):
		return true
	}
	return false
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// onSegment assumes c is collinear with a-b.
func onSegment(a, b, c orb.Point) bool {
	return min(a[0], b[0]) <= c[0] && c[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= c[1] && c[1] <= max(a[1], b[1])
}
