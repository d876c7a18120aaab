package spatial

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
)

// EJScreen attribute names of the six summed demographics.
const (
	FieldTotalPop     = "ACSTOTPOP"
	FieldMinorityPop  = "MINORPOP"
	FieldLowIncome    = "LOWINCOME"
	FieldLingIsolated = "LINGISO"
	FieldUnder5       = "UNDER5"
	FieldOver64       = "OVER64"
)

// FeatureKey returns the value of field on f as a string, falling back to
// the feature id when the property is absent. Integral numbers are printed
// without a fraction so 1.0e9 and "1000000000" key the same feature.
func FeatureKey(f *geojson.Feature, field string) (string, bool) {
	if _, ok := f.Properties[field]; ok {
		return PropertyKey(f, field)
	}
	if f.ID != nil {
		return formatKey(f.ID)
	}
	return "", false
}

// PropertyKey is FeatureKey without the feature id fallback.
func PropertyKey(f *geojson.Feature, field string) (string, bool) {
	v, ok := f.Properties[field]
	if !ok || v == nil {
		return "", false
	}
	return formatKey(v)
}

func formatKey(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case fmt.Stringer:
		return t.String(), true
	}
	return "", false
}

func catchmentKey(f *geojson.Feature, field string) (model.CatchmentID, error) {
	s, ok := FeatureKey(f, field)
	if !ok {
		return 0, fmt.Errorf("missing %s", field)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not an integer id", field, s)
	}
	return model.CatchmentID(n), nil
}

// Demographics reads the six EJScreen counts of f. Missing or null values
// count as 0; fractional values are rounded to the nearest person.
func Demographics(f *geojson.Feature) (model.Demographics, error) {
	var d model.Demographics
	for _, fld := range []struct {
		name string
		dst  *int64
	}{
		{FieldTotalPop, &d.TotalPop},
		{FieldMinorityPop, &d.MinorityPop},
		{FieldLowIncome, &d.LowIncome},
		{FieldLingIsolated, &d.LingIsolated},
		{FieldUnder5, &d.Under5},
		{FieldOver64, &d.Over64},
	} {
		n, err := count(f.Properties[fld.name])
		if err != nil {
			return model.Demographics{}, fmt.Errorf("%s: %w", fld.name, err)
		}
		*fld.dst = n
	}
	return d, nil
}

func count(v any) (int64, error) {
	var x float64
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		x = t
	case int:
		x = float64(t)
	case int64:
		x = float64(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", t)
		}
		x = f
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, fmt.Errorf("not a finite number: %v", x)
	}
	if x < 0 {
		return 0, fmt.Errorf("negative count %v", x)
	}
	return int64(math.Round(x)), nil
}
