package featuresource

import (
	"context"
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
)

// File reads each layer from a GeoJSON FeatureCollection on disk.
type File struct {
	Paths map[model.LayerKind]string
}

var _ Source = (*File)(nil)

func NewFile(catchments, ej string) *File {
	return &File{Paths: map[model.LayerKind]string{
		model.LayerCatchments: catchments,
		model.LayerEJ:         ej,
	}}
}

func (s *File) Load(ctx context.Context, kind model.LayerKind) (*geojson.FeatureCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, ok := s.Paths[kind]
	if !ok || path == "" {
		return nil, fmt.Errorf("no file configured for layer %q", kind)
	}
	return ReadCollection(path)
}

func ReadCollection(path string) (*geojson.FeatureCollection, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}
