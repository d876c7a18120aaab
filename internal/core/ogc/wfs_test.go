package ogc

import (
	"net/url"
	"testing"
)

func TestInPredicate_NumericBareStringQuoted(t *testing.T) {
	cases := []struct {
		name string
		p    InPredicate
		want string
	}{
		{"numeric", InPredicate{Field: "FEATUREID", Values: []string{"101", "102", "103"}}, "FEATUREID IN (101, 102, 103)"},
		{"quoted", InPredicate{Field: "ID", Values: []string{"010010201001", "010010201002"}, Quoted: true}, "ID IN ('010010201001', '010010201002')"},
		{"escape", InPredicate{Field: "ID", Values: []string{"o'neil"}, Quoted: true}, "ID IN ('o''neil')"},
		{"single", InPredicate{Field: "FEATUREID", Values: []string{"7"}}, "FEATUREID IN (7)"},
		{"empty", InPredicate{Field: "ID", Quoted: true}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.p.String(); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestInPredicate_Chunks(t *testing.T) {
	p := InPredicate{Field: "FEATUREID", Values: []string{"1", "2", "3", "4", "5"}}
	chunks := p.Chunks(2)
	if len(chunks) != 3 {
		t.Fatalf("chunks=%d want 3", len(chunks))
	}
	if got := chunks[2].String(); got != "FEATUREID IN (5)" {
		t.Fatalf("last chunk=%q", got)
	}
	if len(p.Chunks(0)) != 1 || len(p.Chunks(10)) != 1 {
		t.Fatalf("expected a single chunk when n<=0 or n>=len")
	}
}

func TestGetFeature_Params(t *testing.T) {
	v := GetFeature{Layer: "ejscreen:ej_polygons", Filter: "ID IN ('a')", SortBy: "ID", Count: 500, StartIndex: 1000}.Params()
	assertHas := func(k, want string) {
		t.Helper()
		if got := v.Get(k); got != want {
			t.Fatalf("param %q got %q want %q", k, got, want)
		}
	}
	assertHas("service", "WFS")
	assertHas("request", "GetFeature")
	assertHas("typeNames", "ejscreen:ej_polygons")
	assertHas("cql_filter", "ID IN ('a')")
	assertHas("sortBy", "ID")
	assertHas("count", "500")
	assertHas("startIndex", "1000")
	assertHas("outputFormat", "application/json")

	unpaged := GetFeature{Layer: "l"}.Params()
	if unpaged.Has("count") || unpaged.Has("cql_filter") {
		t.Fatalf("unexpected params: %v", unpaged)
	}
}

func TestOWSEndpoint(t *testing.T) {
	base := "http://localhost:8080/geoserver/"
	want := "http://localhost:8080/geoserver/ows"
	if got := OWSEndpoint(base); got != want {
		t.Fatalf("OWSEndpoint got %q want %q", got, want)
	}
	if _, err := url.Parse(OWSEndpoint(base)); err != nil {
		t.Fatalf("invalid URL from OWSEndpoint: %v", err)
	}
}
