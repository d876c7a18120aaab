package dedup

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/cache/keys"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
)

// SetClient is the subset of redisstore.Client the Redis store needs.
type SetClient interface {
	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)
	Del(ctx context.Context, keys ...string) error
	Close() error
}

// Redis keeps both unions in redis sets under a shared prefix, so several
// processes working on slices of the facility table build one union.
type Redis struct {
	c             SetClient
	catchmentsKey string
	ejKey         string
}

var _ Store = (*Redis)(nil)

func NewRedis(c SetClient, prefix string) *Redis {
	return &Redis{
		c:             c,
		catchmentsKey: keys.SetKey(prefix, string(model.LayerCatchments)),
		ejKey:         keys.SetKey(prefix, string(model.LayerEJ)),
	}
}

func (r *Redis) AbsorbCatchments(ctx context.Context, ids []model.CatchmentID) error {
	members := make([]string, len(ids))
	for i, id := range ids {
		members[i] = id.String()
	}
	if _, err := r.c.SAdd(ctx, r.catchmentsKey, members...); err != nil {
		return fmt.Errorf("absorb catchments: %w", err)
	}
	return nil
}

func (r *Redis) AbsorbEJPolygons(ctx context.Context, ids []string) error {
	if _, err := r.c.SAdd(ctx, r.ejKey, ids...); err != nil {
		return fmt.Errorf("absorb ej polygons: %w", err)
	}
	return nil
}

func (r *Redis) SnapshotCatchments(ctx context.Context) ([]model.CatchmentID, error) {
	members, err := r.c.SMembers(ctx, r.catchmentsKey)
	if err != nil {
		return nil, fmt.Errorf("snapshot catchments: %w", err)
	}
	out := make([]model.CatchmentID, 0, len(members))
	for _, m := range members {
		n, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("snapshot catchments: member %q in %s: %w", m, r.catchmentsKey, err)
		}
		out = append(out, model.CatchmentID(n))
	}
	slices.Sort(out)
	return out, nil
}

func (r *Redis) SnapshotEJPolygons(ctx context.Context) ([]string, error) {
	members, err := r.c.SMembers(ctx, r.ejKey)
	if err != nil {
		return nil, fmt.Errorf("snapshot ej polygons: %w", err)
	}
	slices.Sort(members)
	return members, nil
}

func (r *Redis) Counts(ctx context.Context) (Counts, error) {
	nc, err := r.c.SCard(ctx, r.catchmentsKey)
	if err != nil {
		return Counts{}, fmt.Errorf("count catchments: %w", err)
	}
	ne, err := r.c.SCard(ctx, r.ejKey)
	if err != nil {
		return Counts{}, fmt.Errorf("count ej polygons: %w", err)
	}
	return Counts{Catchments: int(nc), EJPolygons: int(ne)}, nil
}

// Reset drops both sets. Only the process that starts a shared run should
// call it.
func (r *Redis) Reset(ctx context.Context) error {
	if err := r.c.Del(ctx, r.catchmentsKey, r.ejKey); err != nil {
		return fmt.Errorf("reset dedup sets: %w", err)
	}
	return nil
}

func (r *Redis) Close() error { return r.c.Close() }
