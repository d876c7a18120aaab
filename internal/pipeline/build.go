package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/cache/redisstore"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/config"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/httpclient"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/observability"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/dedup"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/featuresource"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/health"
	mylog "github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/logger"
	h3mapper "github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/mapper/h3"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/network"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/output"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/spatial"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/tables"
)

// Batch is a fully wired run: inputs loaded, indexes built, outputs open.
type Batch struct {
	Runner *Runner
	Writer *output.Writer

	store dedup.Store
	log   *slog.Logger
}

// Build loads the tables and layers named by cfg and wires every component.
// Any error leaves nothing open. audit may be nil.
func Build(ctx context.Context, cfg config.Config, runID string, log *slog.Logger, m *observability.RunMetrics, audit AuditLog) (b *Batch, err error) {
	if log == nil {
		log = slog.Default()
	}
	ctx = mylog.WithComponent(ctx, "load")
	t0 := time.Now()

	edges, err := tables.ReadFlowEdges(cfg.Path(cfg.FlowCSV))
	if err != nil {
		return nil, err
	}
	lengths, err := tables.ReadLengths(cfg.Path(cfg.FlowlineCSV))
	if err != nil {
		return nil, err
	}
	flow := network.NewFlowIndex(edges)
	lens := network.NewLengthIndex(lengths)
	if n := flow.Duplicates(); n > 0 {
		log.WarnContext(ctx, "duplicate flow edges ignored, first row wins", "count", n)
	}
	if n := lens.Duplicates(); n > 0 {
		log.WarnContext(ctx, "duplicate catchment lengths ignored, first row wins", "count", n)
	}

	maxHops := cfg.MaxHops
	if maxHops == 0 {
		maxHops = network.DefaultMaxHops(flow.Len())
	}
	trav, err := network.NewTraverser(flow, lens, network.Options{
		ThresholdKm: cfg.ThresholdKm,
		MaxHops:     maxHops,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	keyFields := map[model.LayerKind]string{
		model.LayerCatchments: cfg.CatchmentIDField,
		model.LayerEJ:         cfg.EJIDField,
	}

	var (
		src featuresource.Source
		wfs *featuresource.WFS
	)
	switch cfg.Features.Driver {
	case "wfs":
		wfs, err = featuresource.NewWFS(featuresource.WFSConfig{
			GeoServerURL: cfg.Features.GeoServerURL,
			Layers: map[model.LayerKind]string{
				model.LayerCatchments: cfg.Features.CatchmentLayer,
				model.LayerEJ:         cfg.Features.EJLayer,
			},
			KeyFields: keyFields,
			PageSize:  cfg.Features.PageSize,
		}, httpclient.NewOutbound(cfg.Features.Timeout), log)
		if err != nil {
			return nil, err
		}
		src = wfs
	default:
		src = featuresource.NewFile(cfg.Path(cfg.Features.CatchmentFile), cfg.Path(cfg.Features.EJFile))
	}

	facilities, err := loadFacilities(ctx, cfg, wfs)
	if err != nil {
		return nil, err
	}

	catch, err := src.Load(ctx, model.LayerCatchments)
	if err != nil {
		return nil, fmt.Errorf("load catchment layer: %w", err)
	}
	ej, err := src.Load(ctx, model.LayerEJ)
	if err != nil {
		return nil, fmt.Errorf("load ej layer: %w", err)
	}
	cover, err := h3mapper.New(cfg.H3Res)
	if err != nil {
		return nil, err
	}
	idx, err := spatial.NewIndex(catch, ej, spatial.IndexOptions{
		CatchmentIDField: cfg.CatchmentIDField,
		EJIDField:        cfg.EJIDField,
		Coverer:          cover,
		Logger:           log,
	})
	if err != nil {
		return nil, err
	}
	overlap := spatial.NewCached(idx, cfg.OverlapCacheSize, m)

	// GeoServer evaluates export selections itself when it is the source
	var sel spatial.Selector = idx
	if wfs != nil {
		sel = wfs
	}

	log.InfoContext(ctx, "data loaded",
		"flow_edges", flow.Len(),
		"lengths", lens.Len(),
		"facilities", len(facilities),
		"catchments", idx.CatchmentCount(),
		"ej_polygons", idx.EJCount(),
		"max_hops", maxHops,
		"h3_res", cover.Res(),
		"elapsed_seconds", time.Since(t0).Seconds(),
	)
	m.ObserveStage("load", time.Since(t0).Seconds())

	store, err := openStore(ctx, cfg, m)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = store.Close()
		}
	}()
	if cfg.Dedup.Reset {
		if err = store.Reset(ctx); err != nil {
			return nil, err
		}
		log.InfoContext(ctx, "dedup sets reset", "driver", cfg.Dedup.Driver, "prefix", cfg.Dedup.Prefix)
	}

	var pub output.Publisher
	if cfg.Kafka.Enabled {
		kp, kerr := output.NewKafkaPublisher(output.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			RunID:   runID,
		}, m)
		if kerr != nil {
			return nil, kerr
		}
		pub = kp
	}

	w, err := output.NewWriter(output.Config{
		Path:      cfg.Path(cfg.OutputCSV),
		Template:  cfg.Path(cfg.OutputTemplate),
		Overwrite: cfg.Overwrite,
		Exports: map[model.LayerKind]string{
			model.LayerCatchments: cfg.Path(cfg.CatchOut),
			model.LayerEJ:         cfg.Path(cfg.EJOut),
		},
		KeyFields: keyFields,
	}, sel, pub, log)
	if err != nil {
		if pub != nil {
			_ = pub.Close()
		}
		return nil, err
	}

	r := NewRunner(facilities, trav, overlap, store, w, Options{
		Workers:          cfg.Workers,
		RunID:            runID,
		CatchmentIDField: cfg.CatchmentIDField,
		Logger:           log,
		Metrics:          m,
		Audit:            audit,
	})
	return &Batch{Runner: r, Writer: w, store: store, log: log}, nil
}

func loadFacilities(ctx context.Context, cfg config.Config, wfs *featuresource.WFS) ([]model.Facility, error) {
	if wfs != nil && cfg.Features.FacilityLayer != "" {
		fc, err := wfs.LoadLayer(ctx, cfg.Features.FacilityLayer, featuresource.FieldRegistryID)
		if err != nil {
			return nil, fmt.Errorf("load facility layer: %w", err)
		}
		return featuresource.Facilities(fc)
	}
	return tables.ReadFacilities(cfg.Path(cfg.FacilityCSV))
}

func openStore(ctx context.Context, cfg config.Config, m *observability.RunMetrics) (dedup.Store, error) {
	switch cfg.Dedup.Driver {
	case dedup.DriverRedis:
		rc, err := redisstore.New(ctx, cfg.Dedup.RedisAddr,
			redisstore.WithTimeout(cfg.Dedup.OpTimeout),
			redisstore.WithMetrics(m),
		)
		if err != nil {
			return nil, fmt.Errorf("open redis dedup store: %w", err)
		}
		return dedup.NewRedis(rc, cfg.Dedup.Prefix), nil
	case dedup.DriverMemory, "":
		return dedup.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown dedup driver %q", cfg.Dedup.Driver)
}

// Progress reports the runner's progress for the status server.
func (b *Batch) Progress() health.Progress { return b.Runner.Progress() }

// Execute processes every facility, then writes the table header if no row
// was written and exports both unions.
func (b *Batch) Execute(ctx context.Context) (Summary, error) {
	sum, err := b.Runner.Run(ctx)
	if err != nil {
		return sum, err
	}
	if err := b.Writer.Ensure(); err != nil {
		b.Runner.SetPhase(health.PhaseFailed)
		return sum, err
	}
	exports, err := b.Runner.Export(ctx, b.Writer)
	if err != nil {
		b.Runner.SetPhase(health.PhaseFailed)
		return sum, err
	}
	for _, e := range exports {
		b.log.InfoContext(ctx, "union exported", "kind", string(e.Kind), "path", e.Path,
			"requested", e.Requested, "written", e.Written)
	}
	b.Runner.SetPhase(health.PhaseDone)
	return sum, nil
}

func (b *Batch) Close() error {
	return errors.Join(b.Writer.Close(), b.store.Close())
}
