package tables

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
)

func TestDecodeFlowEdges_IgnoresExtraColumnsAndKeepsOrder(t *testing.T) {
	in := "OBJECTID,FROMCOMID,TOCOMID,GAPDISTKM\n" +
		"1,100,200,0\n" +
		"2,200,0,0\n" +
		"3,100,300,0\n"

	edges, err := DecodeFlowEdges(strings.NewReader(in))
	if err != nil {
		t.Fatalf("DecodeFlowEdges: %v", err)
	}
	want := []model.FlowEdge{{From: 100, To: 200}, {From: 200, To: 0}, {From: 100, To: 300}}
	if len(edges) != len(want) {
		t.Fatalf("edges=%v want %v", edges, want)
	}
	for i := range want {
		if edges[i] != want[i] {
			t.Fatalf("edge %d=%v want %v", i, edges[i], want[i])
		}
	}
}

func TestDecodeFlowEdges_MissingColumnIsError(t *testing.T) {
	_, err := DecodeFlowEdges(strings.NewReader("FROMCOMID,NEXT\n1,2\n"))
	if err == nil {
		t.Fatalf("expected error for missing TOCOMID column")
	}
}

func TestDecodeLengths_StripsBOMAndParsesFloats(t *testing.T) {
	in := "\ufeffCOMID,LENGTHKM\n100,2.0\n200,0.355\n"
	rows, err := DecodeLengths(strings.NewReader(in))
	if err != nil {
		t.Fatalf("DecodeLengths: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != 100 || rows[1].LengthKm != 0.355 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestDecodeLengths_RejectsNegative(t *testing.T) {
	if _, err := DecodeLengths(strings.NewReader("COMID,LENGTHKM\n1,-0.5\n")); err == nil {
		t.Fatalf("expected error for negative length")
	}
}

func TestDecodeFacilities_TrimsAndValidatesIDs(t *testing.T) {
	in := "FIRST_REGISTRY_ID,FEATUREID,NAME\n110000123 ,100,Plant A\n110000456,200,Plant B\n"
	got, err := DecodeFacilities(strings.NewReader(in))
	if err != nil {
		t.Fatalf("DecodeFacilities: %v", err)
	}
	want := []model.Facility{{ID: "110000123", Home: 100}, {ID: "110000456", Home: 200}}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("facilities=%+v want %+v", got, want)
	}

	if _, err := DecodeFacilities(strings.NewReader("FIRST_REGISTRY_ID,FEATUREID\n,100\n")); err == nil {
		t.Fatalf("expected error for empty registry id")
	}
}

func TestDecode_EmptyInput(t *testing.T) {
	if _, err := DecodeFlowEdges(strings.NewReader("")); err == nil {
		t.Fatalf("expected error for empty table")
	}
	edges, err := DecodeFlowEdges(strings.NewReader("FROMCOMID,TOCOMID\n"))
	if err != nil {
		t.Fatalf("header-only table: %v", err)
	}
	if len(edges) != 0 {
		t.Fatalf("edges=%v want none", edges)
	}
}

func TestReadFacilities_FromFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "facilities.csv")
	if err := os.WriteFile(p, []byte("FIRST_REGISTRY_ID,FEATUREID\nA,1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadFacilities(p)
	if err != nil {
		t.Fatalf("ReadFacilities: %v", err)
	}
	if len(got) != 1 || got[0].ID != "A" {
		t.Fatalf("got %+v", got)
	}
	if _, err := ReadFacilities(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDecodeFacilities_EmptyFeatureIDLeavesFacilityWithoutHome(t *testing.T) {
	in := "FIRST_REGISTRY_ID,FEATUREID\n110000123,100\n110000456,\n110000789, \n"
	got, err := DecodeFacilities(strings.NewReader(in))
	if err != nil {
		t.Fatalf("DecodeFacilities: %v", err)
	}
	want := []model.Facility{
		{ID: "110000123", Home: 100},
		{ID: "110000456", Home: model.Sink},
		{ID: "110000789", Home: model.Sink},
	}
	if len(got) != len(want) {
		t.Fatalf("facilities=%+v want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("facility %d=%+v want %+v", i, got[i], want[i])
		}
	}
}

func TestDecodeFacilities_MalformedFeatureIDNamesTheRow(t *testing.T) {
	_, err := DecodeFacilities(strings.NewReader("FIRST_REGISTRY_ID,FEATUREID\n110000123,100\n110000456,12x\n"))
	if err == nil {
		t.Fatalf("expected error for malformed FEATUREID")
	}
	if msg := err.Error(); !strings.Contains(msg, "row 3") || !strings.Contains(msg, "110000456") {
		t.Fatalf("error does not name the row: %v", err)
	}
}
