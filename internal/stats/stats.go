// Package stats sums the EJ demographics of one facility.
package stats

import (
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
)

// Aggregate sums the six demographic fields over polys. No polygons still
// yields a row: all sums and the count are zero.
func Aggregate(polys []model.EJPolygon, facilityID string) model.AggregatedRow {
	if len(polys) == 0 {
		return model.AggregatedRow{FacilityID: facilityID}
	}

	var sum model.Demographics
	for _, p := range polys {
		sum = sum.Add(p.Demographics)
	}
	return model.AggregatedRow{
		FacilityID:   facilityID,
		Count:        len(polys),
		TotalPop:     sum.TotalPop,
		MinorityPop:  sum.MinorityPop,
		LowIncome:    sum.LowIncome,
		LingIsolated: sum.LingIsolated,
		Under5:       sum.Under5,
		Over64:       sum.Over64,
	}
}
