package main

import (
	"testing"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/health"
)

func TestParseFlags(t *testing.T) {
	f, err := parseFlags([]string{"-workdir", "/data/run", "-threshold", "2.5", "-workers", "4"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if f.workDir != "/data/run" || f.threshold != 2.5 || f.workers != 4 {
		t.Fatalf("flags=%+v", f)
	}
	if _, err := parseFlags([]string{"extra"}); err == nil {
		t.Fatalf("expected error for positional argument")
	}
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WORK_DIR", "")
	t.Setenv("THRESHOLD_KM", "1.6")
	t.Setenv("WORKERS", "1")

	cfg, err := loadConfig(flags{workDir: dir, threshold: 3, workers: 2})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.WorkDir != dir || cfg.ThresholdKm != 3 || cfg.Workers != 2 {
		t.Fatalf("cfg workdir=%s threshold=%v workers=%d", cfg.WorkDir, cfg.ThresholdKm, cfg.Workers)
	}

	if _, err := loadConfig(flags{workDir: dir, threshold: -1}); err == nil {
		t.Fatalf("expected validation error for negative threshold")
	}
}

func TestStatusReporter_BeforeBatch(t *testing.T) {
	s := &statusReporter{runID: "r1"}
	if p := s.Progress(); p.Phase != health.PhaseLoading || p.RunID != "r1" {
		t.Fatalf("progress=%+v", p)
	}
	s.failed.Store(true)
	if p := s.Progress(); p.Phase != health.PhaseFailed {
		t.Fatalf("phase=%q", p.Phase)
	}
}
