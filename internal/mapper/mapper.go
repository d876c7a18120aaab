// Package mapper converts geometries to H3 cells.
package mapper

import (
	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"
)

// Coverer returns a sorted set of cells covering a geometry.
type Coverer interface {
	Cover(g orb.Geometry) ([]h3.Cell, error)
}
