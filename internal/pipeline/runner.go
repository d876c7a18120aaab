// Package pipeline runs the facility batch: traverse downstream, find the
// overlapping EJ polygons, aggregate, append the row and absorb the ids into
// the run-wide unions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/observability"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/ogc"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/dedup"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/health"
	mylog "github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/logger"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/network"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/output"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/spatial"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/stats"
)

type Traverser interface {
	Traverse(ctx context.Context, f model.Facility) (model.TraversalResult, error)
}

type RowSink interface {
	AppendRow(ctx context.Context, row model.AggregatedRow) error
}

// AuditLog reports the first failed write of the run log.
type AuditLog interface {
	Err() error
}

type Exporter interface {
	ExportCatchments(ctx context.Context, ids []model.CatchmentID) (output.ExportResult, error)
	ExportEJPolygons(ctx context.Context, ids []string) (output.ExportResult, error)
}

type Options struct {
	// Workers above 1 process facilities concurrently; rows then land in
	// completion order.
	Workers int
	RunID   string
	// CatchmentIDField names the catchment key in the logged selection.
	CatchmentIDField string
	Logger           *slog.Logger
	Metrics          *observability.RunMetrics
	// Audit, when set, is checked after every row; a failed run log stops
	// the run.
	Audit AuditLog
}

// Summary describes a finished facility loop.
type Summary struct {
	Facilities int
	Rows       int
	// Skipped lists the facilities whose traversal ran away or that have no
	// home catchment, in the order they were skipped.
	Skipped []string
	Unions  dedup.Counts
	Elapsed time.Duration
}

type Runner struct {
	facilities []model.Facility
	trav       Traverser
	overlap    spatial.OverlapProvider
	store      dedup.Store
	out        RowSink
	opts       Options
	log        *slog.Logger
	metrics    *observability.RunMetrics

	// mu serializes absorption and row appends
	mu       sync.Mutex
	progress health.Progress
	skipped  []string
}

func NewRunner(facilities []model.Facility, trav Traverser, overlap spatial.OverlapProvider, store dedup.Store, out RowSink, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.CatchmentIDField == "" {
		opts.CatchmentIDField = "FEATUREID"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		facilities: facilities,
		trav:       trav,
		overlap:    overlap,
		store:      store,
		out:        out,
		opts:       opts,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		progress: health.Progress{
			RunID:      opts.RunID,
			Phase:      health.PhaseLoading,
			Facilities: len(facilities),
		},
	}
}

// Progress is safe to call while Run is in flight.
func (r *Runner) Progress() health.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.progress
	if !p.StartedAt.IsZero() {
		p.ElapsedSec = time.Since(p.StartedAt).Seconds()
	}
	return p
}

func (r *Runner) SetPhase(phase string) {
	r.mu.Lock()
	r.progress.Phase = phase
	r.mu.Unlock()
}

// Run processes every facility once. A runaway traversal or a missing home
// catchment skips its facility; any other failure, including a run log that
// can no longer be written, stops the run and is returned. Rows already
// appended stay in the table.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	r.mu.Lock()
	r.progress.Phase = health.PhaseProcessing
	r.progress.StartedAt = start
	r.mu.Unlock()

	ctx = mylog.WithComponent(ctx, "pipeline")
	var err error
	if r.opts.Workers == 1 {
		err = r.runSequential(ctx)
	} else {
		err = r.runParallel(ctx)
	}

	sum := r.summary(ctx, time.Since(start))
	if err != nil {
		r.SetPhase(health.PhaseFailed)
		return sum, err
	}
	r.log.InfoContext(ctx, "facilities processed",
		"facilities", sum.Facilities,
		"rows", sum.Rows,
		"skipped", len(sum.Skipped),
		"catchments", sum.Unions.Catchments,
		"ej_polygons", sum.Unions.EJPolygons,
		"elapsed_seconds", sum.Elapsed.Seconds(),
	)
	return sum, nil
}

func (r *Runner) runSequential(ctx context.Context) error {
	for _, f := range r.facilities {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run canceled: %w", err)
		}
		if err := r.handle(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runParallel(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for _, f := range r.facilities {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error { return r.handle(gctx, f) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run canceled: %w", err)
	}
	return nil
}

type facilityResult struct {
	trav model.TraversalResult
	ej   []string
	row  model.AggregatedRow
}

func (r *Runner) handle(ctx context.Context, f model.Facility) error {
	ctx = mylog.WithFacility(ctx, f.ID)
	res, err := r.process(ctx, f)
	switch {
	case errors.Is(err, network.ErrRunaway), errors.Is(err, network.ErrNoHome):
		r.skip(ctx, f, err)
		return r.checkAudit(f)
	case err != nil:
		r.metrics.IncFacility(observability.ResultFailed)
		return fmt.Errorf("facility %s: %w", f.ID, err)
	}
	if err := r.collect(ctx, f, res); err != nil {
		return err
	}
	return r.checkAudit(f)
}

func (r *Runner) checkAudit(f model.Facility) error {
	if r.opts.Audit == nil {
		return nil
	}
	if err := r.opts.Audit.Err(); err != nil {
		return fmt.Errorf("after facility %s: %w", f.ID, err)
	}
	return nil
}

func (r *Runner) process(ctx context.Context, f model.Facility) (facilityResult, error) {
	r.log.InfoContext(ctx, "working on facility", "home", f.Home.String())

	tctx := mylog.WithStage(ctx, "traverse")
	t0 := time.Now()
	tr, err := r.trav.Traverse(tctx, f)
	r.metrics.ObserveStage("traverse", time.Since(t0).Seconds())
	if err != nil {
		return facilityResult{}, err
	}
	r.metrics.ObserveTraversal(tr.Hops, tr.DistanceKm)

	sel := ogc.InPredicate{Field: r.opts.CatchmentIDField, Values: catchmentStrings(tr.Visited)}
	r.log.InfoContext(tctx, "catches identified",
		"catchments", len(tr.Visited),
		"distance_km", tr.DistanceKm,
		"reached_sink", tr.ReachedSink,
	)
	r.log.InfoContext(tctx, "catchment selection", "predicate", sel.String())

	octx := mylog.WithStage(ctx, "overlap")
	t0 = time.Now()
	polys, err := r.overlap.FindIntersecting(octx, tr.Visited)
	r.metrics.ObserveStage("overlap", time.Since(t0).Seconds())
	if err != nil {
		return facilityResult{}, fmt.Errorf("find overlapping ej polygons: %w", err)
	}
	r.metrics.ObservePolygons(len(polys))

	row := stats.Aggregate(polys, f.ID)
	r.log.InfoContext(mylog.WithStage(ctx, "aggregate"), "stats calculated", "ej_polygons", row.Count, "total_pop", row.TotalPop)

	ej := make([]string, len(polys))
	for i, p := range polys {
		ej[i] = p.ID
	}
	return facilityResult{trav: tr, ej: ej, row: row}, nil
}

func (r *Runner) collect(ctx context.Context, f model.Facility, res facilityResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t0 := time.Now()
	if err := r.store.AbsorbCatchments(ctx, res.trav.Visited); err != nil {
		r.metrics.IncFacility(observability.ResultFailed)
		return fmt.Errorf("facility %s: %w", f.ID, err)
	}
	if err := r.store.AbsorbEJPolygons(ctx, res.ej); err != nil {
		r.metrics.IncFacility(observability.ResultFailed)
		return fmt.Errorf("facility %s: %w", f.ID, err)
	}
	r.metrics.ObserveStage("absorb", time.Since(t0).Seconds())
	r.metrics.AddAbsorbed(string(model.LayerCatchments), len(res.trav.Visited))
	r.metrics.AddAbsorbed(string(model.LayerEJ), len(res.ej))

	t0 = time.Now()
	if err := r.out.AppendRow(ctx, res.row); err != nil {
		r.metrics.IncFacility(observability.ResultFailed)
		return fmt.Errorf("facility %s: %w", f.ID, err)
	}
	r.metrics.ObserveStage("append", time.Since(t0).Seconds())
	r.metrics.IncFacility(observability.ResultOK)

	r.progress.Done++
	r.progress.Rows++
	r.log.InfoContext(ctx, "output written for facility", "done", r.progress.Done, "of", r.progress.Facilities)
	return nil
}

func (r *Runner) skip(ctx context.Context, f model.Facility, err error) {
	result := observability.ResultRunaway
	switch {
	case errors.Is(err, network.ErrCycle):
		result = observability.ResultCycle
	case errors.Is(err, network.ErrNoHome):
		result = observability.ResultNoHome
	}
	r.metrics.IncFacility(result)
	r.log.ErrorContext(ctx, "facility failed", "reason", result, "err", err)

	r.mu.Lock()
	r.progress.Done++
	r.progress.Skipped++
	r.skipped = append(r.skipped, f.ID)
	r.mu.Unlock()
}

func (r *Runner) summary(ctx context.Context, elapsed time.Duration) Summary {
	r.mu.Lock()
	sum := Summary{
		Facilities: len(r.facilities),
		Rows:       r.progress.Rows,
		Skipped:    slices.Clone(r.skipped),
		Elapsed:    elapsed,
	}
	r.mu.Unlock()

	// counts are best effort here
	if c, err := r.store.Counts(context.WithoutCancel(ctx)); err == nil {
		sum.Unions = c
		r.mu.Lock()
		r.progress.Catchments = c.Catchments
		r.progress.EJPolygons = c.EJPolygons
		r.mu.Unlock()
	} else {
		r.log.WarnContext(ctx, "dedup counts unavailable", "err", err)
	}
	return sum
}

// Export writes both deduplicated unions, catchments first.
func (r *Runner) Export(ctx context.Context, exp Exporter) ([]output.ExportResult, error) {
	r.SetPhase(health.PhaseExporting)
	ctx = mylog.WithComponent(ctx, "export")

	catch, err := r.store.SnapshotCatchments(ctx)
	if err != nil {
		return nil, err
	}
	ej, err := r.store.SnapshotEJPolygons(ctx)
	if err != nil {
		return nil, err
	}

	t0 := time.Now()
	cr, err := exp.ExportCatchments(ctx, catch)
	if err != nil {
		return nil, fmt.Errorf("export catchments: %w", err)
	}
	er, err := exp.ExportEJPolygons(ctx, ej)
	if err != nil {
		return []output.ExportResult{cr}, fmt.Errorf("export ej polygons: %w", err)
	}
	r.metrics.ObserveStage("export", time.Since(t0).Seconds())
	return []output.ExportResult{cr, er}, nil
}

func catchmentStrings(ids []model.CatchmentID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
