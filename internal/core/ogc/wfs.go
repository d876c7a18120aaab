// Package ogc builds WFS GetFeature requests and the attribute selections
// sent with them.
package ogc

import (
	"net/url"
	"strconv"
	"strings"
)

func OWSEndpoint(geoServerBase string) string {
	return strings.TrimRight(geoServerBase, "/") + "/ows"
}

// InPredicate selects the features whose Field is one of Values. Quoted
// values are rendered as string literals, the rest bare.
type InPredicate struct {
	Field  string
	Values []string
	Quoted bool
}

// String renders the predicate as CQL, e.g. "FEATUREID IN (101, 102)" or
// "ID IN ('a', 'b')". An empty value list renders as "".
func (p InPredicate) String() string {
	if len(p.Values) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(p.Field)
	b.WriteString(" IN (")
	for i, v := range p.Values {
		if i > 0 {
			b.WriteString(", ")
		}
		if p.Quoted {
			b.WriteByte('\'')
			b.WriteString(strings.ReplaceAll(v, "'", "''"))
			b.WriteByte('\'')
		} else {
			b.WriteString(v)
		}
	}
	b.WriteByte(')')
	return b.String()
}

// Chunks splits p into predicates of at most n values each, so long
// selections fit in a request URL.
func (p InPredicate) Chunks(n int) []InPredicate {
	if n <= 0 || len(p.Values) <= n {
		return []InPredicate{p}
	}
	var out []InPredicate
	for lo := 0; lo < len(p.Values); lo += n {
		hi := min(lo+n, len(p.Values))
		out = append(out, InPredicate{Field: p.Field, Values: p.Values[lo:hi], Quoted: p.Quoted})
	}
	return out
}

// GetFeature describes one WFS 2.0 GetFeature page.
type GetFeature struct {
	Layer      string
	Filter     string
	SortBy     string
	Count      int
	StartIndex int
}

func (q GetFeature) Params() url.Values {
	params := url.Values{}
	params.Set("service", "WFS")
	params.Set("version", "2.0.0")
	params.Set("request", "GetFeature")
	params.Set("typeNames", q.Layer)
	if q.Filter != "" {
		params.Set("cql_filter", q.Filter)
	}
	if q.SortBy != "" {
		params.Set("sortBy", q.SortBy)
	}
	if q.Count > 0 {
		params.Set("count", strconv.Itoa(q.Count))
		params.Set("startIndex", strconv.Itoa(q.StartIndex))
	}
	params.Set("outputFormat", "application/json")
	return params
}
