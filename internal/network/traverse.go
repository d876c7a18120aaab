package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
)

var (
	// ErrRunaway marks a traversal that exceeded its hop bound. The facility
	// is skipped; the run continues.
	ErrRunaway = errors.New("runaway traversal")

	ErrCycle = fmt.Errorf("%w: cycle in flow table", ErrRunaway)

	// ErrNoHome marks a facility without a home catchment. The facility is
	// skipped; the run continues.
	ErrNoHome = errors.New("facility has no home catchment")
)

type FlowLookup interface {
	Next(id model.CatchmentID) (model.CatchmentID, bool)
}

type LengthLookup interface {
	Length(id model.CatchmentID) (float64, bool)
}

type Options struct {
	ThresholdKm float64
	MaxHops     int
	Logger      *slog.Logger
}

type Traverser struct {
	flow      FlowLookup
	lengths   LengthLookup
	threshold float64
	maxHops   int
	log       *slog.Logger
}

// DefaultMaxHops bounds a walk over a network with networkSize origins. A
// walk without revisits cannot take more steps than that.
func DefaultMaxHops(networkSize int) int {
	return networkSize + 1
}

func NewTraverser(flow FlowLookup, lengths LengthLookup, opts Options) (*Traverser, error) {
	if opts.ThresholdKm <= 0 {
		return nil, fmt.Errorf("threshold must be > 0 (got %v)", opts.ThresholdKm)
	}
	if opts.MaxHops <= 0 {
		return nil, fmt.Errorf("max hops must be > 0 (got %d)", opts.MaxHops)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Traverser{
		flow:      flow,
		lengths:   lengths,
		threshold: opts.ThresholdKm,
		maxHops:   opts.MaxHops,
		log:       opts.Logger,
	}, nil
}

// Traverse walks downstream from the facility's home catchment until the
// accumulated length reaches the threshold or the network ends.
//
// The facility may sit anywhere inside its home catchment, so the walk
// starts with half of the home segment length. Every following catchment
// contributes its full length. The sink is never part of Visited.
func (t *Traverser) Traverse(ctx context.Context, f model.Facility) (model.TraversalResult, error) {
	res := model.TraversalResult{Facility: f}
	if f.Home == model.Sink {
		return res, fmt.Errorf("facility %s: %w", f.ID, ErrNoHome)
	}

	current := f.Home
	visited := []model.CatchmentID{current}
	seen := map[model.CatchmentID]struct{}{current: {}}
	accumulated := t.length(ctx, current) / 2

	hops := 0
	for accumulated < t.threshold {
		next, ok := t.flow.Next(current)
		if !ok {
			t.log.WarnContext(ctx, "no flow record, treating as sink",
				"catchment", int64(current))
			next = model.Sink
		}
		if next == model.Sink {
			res.ReachedSink = true
			break
		}
		if _, dup := seen[next]; dup {
			return res, fmt.Errorf("facility %s: catchment %d revisited after %d hops: %w",
				f.ID, next, hops, ErrCycle)
		}
		hops++
		if hops > t.maxHops {
			return res, fmt.Errorf("facility %s: more than %d hops: %w", f.ID, t.maxHops, ErrRunaway)
		}

		visited = append(visited, next)
		seen[next] = struct{}{}
		accumulated += t.length(ctx, next)
		current = next
	}

	res.Visited = visited
	res.DistanceKm = accumulated
	res.Hops = hops
	return res, nil
}

func (t *Traverser) length(ctx context.Context, id model.CatchmentID) float64 {
	km, ok := t.lengths.Length(id)
	if !ok {
		t.log.WarnContext(ctx, "no flowline length, using 0", "catchment", int64(id))
		return 0
	}
	return km
}
