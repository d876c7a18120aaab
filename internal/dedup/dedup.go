// Package dedup keeps the run-wide unions of visited catchments and found EJ
// polygons. Sets only grow; absorbing an identifier twice is a no-op.
package dedup

import (
	"context"
	"fmt"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
)

type Store interface {
	AbsorbCatchments(ctx context.Context, ids []model.CatchmentID) error
	AbsorbEJPolygons(ctx context.Context, ids []string) error

	// Snapshots are sorted ascending.
	SnapshotCatchments(ctx context.Context) ([]model.CatchmentID, error)
	SnapshotEJPolygons(ctx context.Context) ([]string, error)

	Counts(ctx context.Context) (Counts, error)
	Reset(ctx context.Context) error
	Close() error
}

type Counts struct {
	Catchments int `json:"catchments"`
	EJPolygons int `json:"ej_polygons"`
}

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

func (c Counts) String() string {
	return fmt.Sprintf("catchments=%d ej_polygons=%d", c.Catchments, c.EJPolygons)
}
