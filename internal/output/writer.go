// Package output writes the per-facility result table, the GeoJSON exports of
// the deduplicated unions and the timestamped backups of a run.
package output

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jszwec/csvutil"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/spatial"
)

// ErrOutputExists is returned at startup when an output file is present and
// overwriting is disabled.
var ErrOutputExists = errors.New("output exists and overwrite is disabled")

// Publisher receives every row after it has been written to the table.
type Publisher interface {
	Publish(ctx context.Context, row model.AggregatedRow) error
	Close() error
}

type Config struct {
	Path      string
	Template  string
	Overwrite bool
	// Exports maps each layer kind to its GeoJSON export path.
	Exports map[model.LayerKind]string
	// KeyFields maps each layer kind to the attribute its ids are matched on.
	KeyFields map[model.LayerKind]string
}

// Writer owns the result table of one run. AppendRow is safe for concurrent
// use; rows land in the order the calls are serialized.
type Writer struct {
	cfg Config
	sel spatial.Selector
	pub Publisher
	log *slog.Logger

	mu   sync.Mutex
	f    *os.File
	rows int
}

// NewWriter creates the output directories and enforces Overwrite. The table
// itself is created on the first AppendRow.
func NewWriter(cfg Config, sel spatial.Selector, pub Publisher, log *slog.Logger) (*Writer, error) {
	if cfg.Path == "" {
		return nil, errors.New("output: table path is required")
	}
	if log == nil {
		log = slog.Default()
	}
	paths := []string{cfg.Path}
	for _, p := range cfg.Exports {
		paths = append(paths, p)
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if dir := filepath.Dir(p); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("output: create dir %s: %w", dir, err)
			}
		}
		if cfg.Overwrite {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return nil, fmt.Errorf("%s: %w", p, ErrOutputExists)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("output: stat %s: %w", p, err)
		}
	}
	return &Writer{cfg: cfg, sel: sel, pub: pub, log: log}, nil
}

func (w *Writer) Path() string { return w.cfg.Path }

// Rows returns the number of rows appended so far.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// AppendRow writes one row and syncs the file. The first call of a run
// replaces the table with the blank template.
func (w *Writer) AppendRow(ctx context.Context, row model.AggregatedRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.startLocked(); err != nil {
		return err
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	enc := csvutil.NewEncoder(cw)
	enc.AutoHeader = false
	if err := enc.Encode(row); err != nil {
		return fmt.Errorf("output: encode row %s: %w", row.FacilityID, err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("output: encode row %s: %w", row.FacilityID, err)
	}
	if _, err := w.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("output: write row %s: %w", row.FacilityID, err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("output: sync %s: %w", w.cfg.Path, err)
	}
	w.rows++

	if w.pub != nil {
		if err := w.pub.Publish(ctx, row); err != nil {
			w.log.WarnContext(ctx, "row publish failed", "facility_id", row.FacilityID, "err", err)
		}
	}
	return nil
}

// Ensure creates the table from the template if no row has been written,
// so a run without facilities still leaves a header-only table.
func (w *Writer) Ensure() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.startLocked()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	if w.f != nil {
		if err := w.f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("output: close %s: %w", w.cfg.Path, err))
		}
		w.f = nil
	}
	if w.pub != nil {
		if err := w.pub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("output: close publisher: %w", err))
		}
		w.pub = nil
	}
	return errors.Join(errs...)
}

func (w *Writer) startLocked() error {
	if w.f != nil {
		return nil
	}
	head, err := w.header()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(w.cfg.Path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", w.cfg.Path, err)
	}
	if _, err := f.Write(head); err != nil {
		_ = f.Close()
		return fmt.Errorf("output: write header %s: %w", w.cfg.Path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("output: sync %s: %w", w.cfg.Path, err)
	}
	w.f = f
	return nil
}

// header returns the template bytes verbatim, or a header generated from
// the row schema when there is no template.
func (w *Writer) header() ([]byte, error) {
	want, err := RowHeader()
	if err != nil {
		return nil, err
	}
	generated := []byte(strings.Join(want, ",") + "\n")
	if w.cfg.Template == "" {
		return generated, nil
	}

	b, err := os.ReadFile(w.cfg.Template)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		w.log.Warn("output template missing, generating header", "template", w.cfg.Template)
		return generated, nil
	case err != nil:
		return nil, fmt.Errorf("output: read template %s: %w", w.cfg.Template, err)
	case len(bytes.TrimSpace(b)) == 0:
		w.log.Warn("output template empty, generating header", "template", w.cfg.Template)
		return generated, nil
	}

	first, _, _ := strings.Cut(string(b), "\n")
	first = strings.TrimSuffix(strings.TrimPrefix(first, "\ufeff"), "\r")
	if first != strings.Join(want, ",") {
		w.log.Warn("output template header differs from row columns",
			"template", w.cfg.Template, "template_header", first, "row_header", strings.Join(want, ","))
	}
	if b[len(b)-1] != '\n' {
		b = append(b, '\n')
	}
	return b, nil
}

// RowHeader returns the column names of the result table.
func RowHeader() ([]string, error) {
	h, err := csvutil.Header(model.AggregatedRow{}, "csv")
	if err != nil {
		return nil, fmt.Errorf("output: row header: %w", err)
	}
	return h, nil
}
