package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	appstatus "github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/app/status"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/config"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/observability"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/health"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/logger"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/metrics"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/output"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/pipeline"
)

var Version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

type flags struct {
	workDir   string
	threshold float64
	workers   int
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("ejquery", flag.ContinueOnError)
	fs.StringVar(&f.workDir, "workdir", "", "working directory (overrides WORK_DIR)")
	fs.Float64Var(&f.threshold, "threshold", 0, "downstream distance of interest in km (overrides THRESHOLD_KM)")
	fs.IntVar(&f.workers, "workers", 0, "facility workers (overrides WORKERS)")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if fs.NArg() > 0 {
		return f, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return f, nil
}

// loadConfig reads the environment, after pointing WORK_DIR at the flag so
// the .env of that directory is the one loaded.
func loadConfig(f flags) (config.Config, error) {
	if f.workDir != "" {
		if err := os.Setenv("WORK_DIR", f.workDir); err != nil {
			return config.Config{}, err
		}
	}
	cfg := config.FromEnv()
	if f.threshold != 0 {
		cfg.ThresholdKm = f.threshold
	}
	if f.workers != 0 {
		cfg.Workers = f.workers
	}
	return cfg, cfg.Validate()
}

func run(args []string) int {
	f, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}

	runID := logger.NewID()
	runLog, err := logger.OpenRunLog(cfg.Path(cfg.LogFile))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = runLog.Close() }()

	zl := logger.Build(logger.Config{
		Level:   cfg.LogLevel,
		Console: cfg.LogConsole,
		RunID:   runID,
		Service: "ejquery",
	}, os.Stdout, runLog)
	appLog := logger.NewSlog(&zl)

	start := time.Now()
	appLog.Info("starting ejquery",
		"version", Version,
		"work_dir", cfg.WorkDir,
		"threshold_km", cfg.ThresholdKm,
		"workers", cfg.Workers,
		"feature_source", cfg.Features.Driver,
		"dedup_driver", cfg.Dedup.Driver,
		"h3_res", cfg.H3Res,
	)

	mp := metrics.Init(metrics.Config{
		Textfile: cfg.Path(cfg.MetricsTextfile),
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	rm := observability.NewRunMetrics(mp.Registerer())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := &statusReporter{runID: runID}
	if cfg.StatusAddr != "" {
		go func() {
			h := appstatus.NewRouter(appLog, st, mp.Handler())
			if err := appstatus.Run(ctx, cfg.StatusAddr, appLog, h); err != nil {
				appLog.Error("status server exited", "err", err)
			}
		}()
	}

	code := execute(ctx, cfg, runID, appLog, rm, st, runLog)

	if err := mp.WriteTextfile(); err != nil {
		appLog.Warn("metrics textfile not written", "err", err)
	}
	appLog.Info("run finished", "exit_code", code, "elapsed_seconds", time.Since(start).Seconds())
	_ = runLog.Sync()
	backup(cfg, runLog.Path(), appLog, time.Now())
	return code
}

func execute(ctx context.Context, cfg config.Config, runID string, log *slog.Logger, m *observability.RunMetrics, st *statusReporter, audit pipeline.AuditLog) int {
	b, err := pipeline.Build(ctx, cfg, runID, log, m, audit)
	if err != nil {
		st.failed.Store(true)
		log.Error("startup failed", "err", err)
		return 1
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("close failed", "err", err)
		}
	}()
	st.batch.Store(b)

	sum, err := b.Execute(ctx)
	if err != nil {
		log.Error("run aborted", "err", err, "rows", sum.Rows)
		return 1
	}
	if len(sum.Skipped) > 0 {
		log.Warn("facilities skipped", "count", len(sum.Skipped), "facility_ids", sum.Skipped)
	}
	return 0
}

// backup copies the table and the run log next to them with a timestamp.
func backup(cfg config.Config, logPath string, log *slog.Logger, now time.Time) {
	if out := cfg.Path(cfg.OutputCSV); fileExists(out) {
		if p, err := output.Backup(out, cfg.WorkDir, "output", now); err != nil {
			log.Warn("output backup failed", "err", err)
		} else {
			log.Info("output backed up", "path", p)
		}
	}
	if p, err := output.Backup(logPath, cfg.WorkDir, "log", now); err != nil {
		log.Warn("log backup failed", "err", err)
	} else {
		log.Info("log backed up", "path", p)
	}
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// statusReporter serves progress before the batch exists.
type statusReporter struct {
	runID  string
	batch  atomic.Pointer[pipeline.Batch]
	failed atomic.Bool
}

func (s *statusReporter) Progress() health.Progress {
	if b := s.batch.Load(); b != nil {
		return b.Progress()
	}
	p := health.Progress{RunID: s.runID, Phase: health.PhaseLoading}
	if s.failed.Load() {
		p.Phase = health.PhaseFailed
	}
	return p
}
