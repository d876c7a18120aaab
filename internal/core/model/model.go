// Package model defines core domain types shared across the batch.
package model

import (
	"strconv"
)

// CatchmentID identifies a drainage catchment (NHDPlus COMID / FEATUREID).
type CatchmentID int64

// Sink is the reserved downstream id meaning "no further catchment".
const Sink CatchmentID = 0

func (c CatchmentID) String() string {
	return strconv.FormatInt(int64(c), 10)
}

type Facility struct {
	ID   string
	Home CatchmentID
}

type FlowEdge struct {
	From CatchmentID `csv:"FROMCOMID"`
	To   CatchmentID `csv:"TOCOMID"`
}

type CatchmentLength struct {
	ID       CatchmentID `csv:"COMID"`
	LengthKm float64     `csv:"LENGTHKM"`
}

// Demographics holds the EJScreen population counts summed per facility.
type Demographics struct {
	TotalPop     int64
	MinorityPop  int64
	LowIncome    int64
	LingIsolated int64
	Under5       int64
	Over64       int64
}

// Add returns the field-wise sum of d and o.
func (d Demographics) Add(o Demographics) Demographics {
	return Demographics{
		TotalPop:     d.TotalPop + o.TotalPop,
		MinorityPop:  d.MinorityPop + o.MinorityPop,
		LowIncome:    d.LowIncome + o.LowIncome,
		LingIsolated: d.LingIsolated + o.LingIsolated,
		Under5:       d.Under5 + o.Under5,
		Over64:       d.Over64 + o.Over64,
	}
}

type EJPolygon struct {
	ID string
	Demographics
}

type TraversalResult struct {
	Facility    Facility
	Visited     []CatchmentID
	DistanceKm  float64
	Hops        int
	ReachedSink bool
}

// AggregatedRow is one line of the result table. Count is the number of EJ
// polygons that contributed to the sums.
type AggregatedRow struct {
	FacilityID string `csv:"FACILITY_ID"`
	Count      int    `csv:"FREQUENCY"`

	TotalPop     int64 `csv:"SUM_ACSTOTPOP"`
	MinorityPop  int64 `csv:"SUM_MINORPOP"`
	LowIncome    int64 `csv:"SUM_LOWINCOME"`
	LingIsolated int64 `csv:"SUM_LINGISO"`
	Under5       int64 `csv:"SUM_UNDER5"`
	Over64       int64 `csv:"SUM_OVER64"`
}

// Sums returns the demographic columns of the row.
func (r AggregatedRow) Sums() Demographics {
	return Demographics{
		TotalPop:     r.TotalPop,
		MinorityPop:  r.MinorityPop,
		LowIncome:    r.LowIncome,
		LingIsolated: r.LingIsolated,
		Under5:       r.Under5,
		Over64:       r.Over64,
	}
}

// LayerKind names the two exported feature layers.
type LayerKind string

const (
	LayerCatchments LayerKind = "catchments"
	LayerEJ         LayerKind = "ej"
)
