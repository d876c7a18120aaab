// Package network holds the read-only stream network indexes and the
// downstream traversal that walks them.
package network

import (
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
)

// FlowIndex maps a catchment to the next catchment downstream.
//
// When the edge table holds several rows for the same origin the first row
// in input order wins. Later rows are counted in Duplicates and otherwise
// ignored.
type FlowIndex struct {
	next       map[model.CatchmentID]model.CatchmentID
	duplicates int
}

func NewFlowIndex(edges []model.FlowEdge) *FlowIndex {
	idx := &FlowIndex{next: make(map[model.CatchmentID]model.CatchmentID, len(edges))}
	for _, e := range edges {
		if _, ok := idx.next[e.From]; ok {
			idx.duplicates++
			continue
		}
		idx.next[e.From] = e.To
	}
	return idx
}

// Next returns the downstream catchment of id. ok is false when the table
// has no row for id.
func (x *FlowIndex) Next(id model.CatchmentID) (model.CatchmentID, bool) {
	to, ok := x.next[id]
	return to, ok
}

// Len is the number of distinct origins.
func (x *FlowIndex) Len() int { return len(x.next) }

func (x *FlowIndex) Duplicates() int { return x.duplicates }

// LengthIndex maps a catchment to its stream segment length in km. The
// first row per catchment wins, like FlowIndex.
type LengthIndex struct {
	km         map[model.CatchmentID]float64
	duplicates int
}

func NewLengthIndex(rows []model.CatchmentLength) *LengthIndex {
	idx := &LengthIndex{km: make(map[model.CatchmentID]float64, len(rows))}
	for _, r := range rows {
		if _, ok := idx.km[r.ID]; ok {
			idx.duplicates++
			continue
		}
		idx.km[r.ID] = r.LengthKm
	}
	return idx
}

func (x *LengthIndex) Length(id model.CatchmentID) (float64, bool) {
	km, ok := x.km[id]
	return km, ok
}

func (x *LengthIndex) Len() int { return len(x.km) }

func (x *LengthIndex) Duplicates() int { return x.duplicates }
