// Package tables decodes the tabular inputs of a run: the flow edge table,
// the flowline length table and the facility table.
package tables

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
)

type facilityRecord struct {
	RegistryID string `csv:"FIRST_REGISTRY_ID"`
	FeatureID  string `csv:"FEATUREID"`
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeAll decodes every record of r into out, which must be a pointer to
// a slice of csv-tagged structs. Columns not mapped by the struct are
// ignored; missing mapped columns are an error.
func decodeAll(r io.Reader, out any, what string) error {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("%s: empty table (no header)", what)
		}
		return fmt.Errorf("%s: read header: %w", what, err)
	}
	dec.DisallowMissingColumns = true

	if err := dec.Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("%s: decode: %w", what, err)
	}
	return nil
}

func DecodeFlowEdges(r io.Reader) ([]model.FlowEdge, error) {
	var edges []model.FlowEdge
	if err := decodeAll(r, &edges, "flow table"); err != nil {
		return nil, err
	}
	return edges, nil
}

func DecodeLengths(r io.Reader) ([]model.CatchmentLength, error) {
	var rows []model.CatchmentLength
	if err := decodeAll(r, &rows, "flowline table"); err != nil {
		return nil, err
	}
	for i, row := range rows {
		if row.LengthKm < 0 {
			return nil, fmt.Errorf("flowline table: row %d: negative length %v for COMID %d", i+2, row.LengthKm, row.ID)
		}
	}
	return rows, nil
}

func DecodeFacilities(r io.Reader) ([]model.Facility, error) {
	var recs []facilityRecord
	if err := decodeAll(r, &recs, "facility table"); err != nil {
		return nil, err
	}
	out := make([]model.Facility, 0, len(recs))
	for i, rec := range recs {
		id := strings.TrimSpace(rec.RegistryID)
		if id == "" {
			return nil, fmt.Errorf("facility table: row %d: empty FIRST_REGISTRY_ID", i+2)
		}
		// an empty FEATUREID leaves the facility without a home catchment
		home := model.Sink
		if v := strings.TrimSpace(rec.FeatureID); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("facility table: row %d: facility %s: invalid FEATUREID %q", i+2, id, v)
			}
			home = model.CatchmentID(n)
		}
		out = append(out, model.Facility{ID: id, Home: home})
	}
	return out, nil
}

func ReadFlowEdges(path string) ([]model.FlowEdge, error) {
	return readFile(path, DecodeFlowEdges)
}

func ReadLengths(path string) ([]model.CatchmentLength, error) {
	return readFile(path, DecodeLengths)
}

func ReadFacilities(path string) ([]model.Facility, error) {
	return readFile(path, DecodeFacilities)
}

func readFile[T any](path string, decode func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	rows, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}
