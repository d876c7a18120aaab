package featuresource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/ogc"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/spatial"
)

const (
	defaultPageSize  = 5000
	defaultMaxSelect = 200
	maxErrorBody     = 512
)

type WFSConfig struct {
	GeoServerURL string
	// Layers maps each layer kind to its WFS type name.
	Layers map[model.LayerKind]string
	// KeyFields maps each layer kind to its key attribute. Pages are sorted
	// by it so paging is stable.
	KeyFields map[model.LayerKind]string
	PageSize  int
	// MaxSelect bounds the values of one IN filter.
	MaxSelect int
}

// WFS loads layers through paged GetFeature requests and answers export
// selections with CQL IN filters evaluated by GeoServer.
type WFS struct {
	cfg      WFSConfig
	endpoint string
	client   *http.Client
	log      *slog.Logger
}

var (
	_ Source           = (*WFS)(nil)
	_ spatial.Selector = (*WFS)(nil)
)

func NewWFS(cfg WFSConfig, client *http.Client, log *slog.Logger) (*WFS, error) {
	if strings.TrimSpace(cfg.GeoServerURL) == "" {
		return nil, errors.New("wfs: geoserver url is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.MaxSelect <= 0 {
		cfg.MaxSelect = defaultMaxSelect
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &WFS{cfg: cfg, endpoint: ogc.OWSEndpoint(cfg.GeoServerURL), client: client, log: log}, nil
}

func (w *WFS) Load(ctx context.Context, kind model.LayerKind) (*geojson.FeatureCollection, error) {
	layer, ok := w.cfg.Layers[kind]
	if !ok || layer == "" {
		return nil, fmt.Errorf("wfs: no layer configured for %q", kind)
	}
	return w.fetchAll(ctx, layer, "", w.cfg.KeyFields[kind])
}

// LoadLayer fetches every feature of the WFS type name layer.
func (w *WFS) LoadLayer(ctx context.Context, layer, sortBy string) (*geojson.FeatureCollection, error) {
	return w.fetchAll(ctx, layer, "", sortBy)
}

func (w *WFS) Select(ctx context.Context, kind model.LayerKind, pred ogc.InPredicate) (*geojson.FeatureCollection, error) {
	layer, ok := w.cfg.Layers[kind]
	if !ok || layer == "" {
		return nil, fmt.Errorf("wfs: no layer configured for %q", kind)
	}
	if len(pred.Values) == 0 {
		return geojson.NewFeatureCollection(), nil
	}
	var parts []*geojson.FeatureCollection
	for _, chunk := range pred.Chunks(w.cfg.MaxSelect) {
		fc, err := w.fetchAll(ctx, layer, chunk.String(), pred.Field)
		if err != nil {
			return nil, err
		}
		parts = append(parts, fc)
	}
	out, diag, err := Merge(parts...)
	if err != nil {
		return nil, fmt.Errorf("wfs: merge selection of %s: %w", layer, err)
	}
	w.log.DebugContext(ctx, "wfs selection merged", "layer", layer, "chunks", len(parts), "features", diag.TotalOut)
	return out, nil
}

func (w *WFS) fetchAll(ctx context.Context, layer, filter, sortBy string) (*geojson.FeatureCollection, error) {
	var pages []*geojson.FeatureCollection
	start := 0
	for {
		q := ogc.GetFeature{Layer: layer, Filter: filter, SortBy: sortBy, Count: w.cfg.PageSize, StartIndex: start}
		page, err := w.fetchPage(ctx, q)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
		n := len(page.Features)
		start += n
		if n < w.cfg.PageSize || n == 0 {
			break
		}
	}

	out, diag, err := Merge(pages...)
	if err != nil {
		return nil, fmt.Errorf("wfs: merge pages of %s: %w", layer, err)
	}
	w.log.DebugContext(ctx, "wfs layer fetched",
		"layer", layer, "pages", len(pages), "features_in", diag.TotalIn, "features_out", diag.TotalOut,
		"dedup_by_id", diag.DedupByID, "dedup_by_geom", diag.DedupByGH)
	return out, nil
}

func (w *WFS) fetchPage(ctx context.Context, q ogc.GetFeature) (*geojson.FeatureCollection, error) {
	u := w.endpoint + "?" + q.Params().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("wfs: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wfs: GetFeature %s: %w", q.Layer, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("wfs: read %s page at %d: %w", q.Layer, q.StartIndex, err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := body
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, fmt.Errorf("wfs: GetFeature %s: status %d: %s", q.Layer, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("wfs: decode %s page at %d: %w", q.Layer, q.StartIndex, err)
	}
	return fc, nil
}
