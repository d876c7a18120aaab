package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/config"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/featuresource"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/health"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/output"
)

func square(x1, y1, x2, y2 float64) orb.Polygon {
	return orb.Polygon{{{x1, y1}, {x2, y1}, {x2, y2}, {x1, y2}, {x1, y1}}}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeLayer(t *testing.T, path string, fs ...*geojson.Feature) {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	for _, f := range fs {
		fc.Append(f)
	}
	b, err := fc.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	writeFile(t, path, string(b))
}

func catchment(id int, p orb.Polygon) *geojson.Feature {
	f := geojson.NewFeature(p)
	f.Properties["FEATUREID"] = id
	return f
}

func ejPolygon(id string, pop int, p orb.Polygon) *geojson.Feature {
	f := geojson.NewFeature(p)
	f.Properties["ID"] = id
	f.Properties["ACSTOTPOP"] = pop
	f.Properties["MINORPOP"] = pop / 2
	f.Properties["LOWINCOME"] = 1
	f.Properties["LINGISO"] = 0
	f.Properties["UNDER5"] = 2
	f.Properties["OVER64"] = 3
	return f
}

// fixture lays out c1 -> c2 -> sink side by side, c5 far away with no flow
// record, and c3 <-> c4 as a cycle. EJ "A" lies in c1, "B" straddles c1/c2
// and "Z" touches nothing.
func fixture(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "flow.csv"), "FROMCOMID,TOCOMID,EXTRA\n1,2,x\n2,0,x\n3,4,x\n4,3,x\n")
	writeFile(t, filepath.Join(dir, "localFlowlines.csv"), "COMID,LENGTHKM\n1,2.0\n2,1.0\n3,0.1\n4,0.1\n")
	writeFile(t, filepath.Join(dir, "facilities.csv"), "FIRST_REGISTRY_ID,FEATUREID\n110001,1\n110002,3\n110003,5\n")

	writeLayer(t, filepath.Join(dir, "catchments.geojson"),
		catchment(1, square(-90.30, 38.60, -90.20, 38.70)),
		catchment(2, square(-90.20, 38.60, -90.10, 38.70)),
		catchment(3, square(-85.30, 36.60, -85.20, 36.70)),
		catchment(4, square(-85.20, 36.60, -85.10, 36.70)),
		catchment(5, square(-80.00, 30.00, -79.90, 30.10)),
	)
	writeLayer(t, filepath.Join(dir, "ej.geojson"),
		ejPolygon("A", 100, square(-90.28, 38.62, -90.22, 38.68)),
		ejPolygon("B", 40, square(-90.22, 38.61, -90.18, 38.69)),
		ejPolygon("Z", 999, square(-70.00, 40.00, -69.90, 40.10)),
	)

	return config.Config{
		WorkDir:          dir,
		ThresholdKm:      1.6,
		Workers:          1,
		Overwrite:        true,
		FlowCSV:          "flow.csv",
		FlowlineCSV:      "localFlowlines.csv",
		FacilityCSV:      "facilities.csv",
		CatchmentIDField: "FEATUREID",
		EJIDField:        "ID",
		Features: config.FeatureSourceCfg{
			Driver:        "file",
			CatchmentFile: "catchments.geojson",
			EJFile:        "ej.geojson",
		},
		H3Res:            7,
		OverlapCacheSize: 16,
		Dedup:            config.DedupCfg{Driver: "memory"},
		OutputCSV:        "output.csv",
		OutputTemplate:   "blankOutput.csv",
		EJOut:            "foundEJPolygons.geojson",
		CatchOut:         "foundCatchPolygons.geojson",
	}
}

func TestBatch_EndToEndFromFiles(t *testing.T) {
	cfg := fixture(t)
	ctx := context.Background()

	b, err := Build(ctx, cfg, "run-1", quiet(), nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer func() { _ = b.Close() }()

	sum, err := b.Execute(ctx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sum.Rows != 2 || len(sum.Skipped) != 1 || sum.Skipped[0] != "110002" {
		t.Fatalf("summary=%+v", sum)
	}
	if p := b.Progress(); p.Phase != health.PhaseDone {
		t.Fatalf("phase=%q", p.Phase)
	}

	table, err := os.ReadFile(cfg.Path(cfg.OutputCSV))
	if err != nil {
		t.Fatalf("read table: %v", err)
	}
	want := "FACILITY_ID,FREQUENCY,SUM_ACSTOTPOP,SUM_MINORPOP,SUM_LOWINCOME,SUM_LINGISO,SUM_UNDER5,SUM_OVER64\n" +
		"110001,2,140,70,2,0,4,6\n" +
		"110003,0,0,0,0,0,0,0\n"
	if string(table) != want {
		t.Fatalf("table=\n%s\nwant\n%s", table, want)
	}

	catch, err := featuresource.ReadCollection(cfg.Path(cfg.CatchOut))
	if err != nil {
		t.Fatalf("read catchment export: %v", err)
	}
	var catchIDs []int
	for _, f := range catch.Features {
		catchIDs = append(catchIDs, f.Properties.MustInt("FEATUREID"))
	}
	if len(catchIDs) != 3 || catchIDs[0] != 1 || catchIDs[1] != 2 || catchIDs[2] != 5 {
		t.Fatalf("catchment export=%v", catchIDs)
	}

	ej, err := featuresource.ReadCollection(cfg.Path(cfg.EJOut))
	if err != nil {
		t.Fatalf("read ej export: %v", err)
	}
	if len(ej.Features) != 2 || ej.Features[0].Properties.MustString("ID") != "A" || ej.Features[1].Properties.MustString("ID") != "B" {
		t.Fatalf("ej export has %d features", len(ej.Features))
	}
}

func TestBatch_NoFacilitiesStillWritesHeaderAndEmptyExports(t *testing.T) {
	cfg := fixture(t)
	writeFile(t, cfg.Path(cfg.FacilityCSV), "FIRST_REGISTRY_ID,FEATUREID\n")
	ctx := context.Background()

	b, err := Build(ctx, cfg, "run-2", quiet(), nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer func() { _ = b.Close() }()
	if _, err := b.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	header, _ := output.RowHeader()
	table, err := os.ReadFile(cfg.Path(cfg.OutputCSV))
	if err != nil {
		t.Fatalf("read table: %v", err)
	}
	if got := string(table); got != strings.Join(header, ",")+"\n" {
		t.Fatalf("table=%q", got)
	}
	ej, err := featuresource.ReadCollection(cfg.Path(cfg.EJOut))
	if err != nil || len(ej.Features) != 0 {
		t.Fatalf("ej export=%v err=%v", ej, err)
	}
}

func TestBuild_RefusesExistingOutputWithoutOverwrite(t *testing.T) {
	cfg := fixture(t)
	cfg.Overwrite = false
	writeFile(t, cfg.Path(cfg.OutputCSV), "keep me\n")

	_, err := Build(context.Background(), cfg, "run-3", quiet(), nil, nil)
	if !errors.Is(err, output.ErrOutputExists) {
		t.Fatalf("err=%v want ErrOutputExists", err)
	}
}

func TestBuild_MissingInputIsError(t *testing.T) {
	cfg := fixture(t)
	cfg.FlowCSV = "nope.csv"
	if _, err := Build(context.Background(), cfg, "run-4", quiet(), nil, nil); err == nil {
		t.Fatalf("expected error for missing flow table")
	}
}
