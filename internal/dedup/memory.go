package dedup

import (
	"cmp"
	"context"
	"encoding/binary"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/model"
)

const numShards = 64

// Memory is an in-process Store. Both sets are split into numShards
// independently locked shards picked by xxhash, so concurrent workers rarely
// contend.
type Memory struct {
	catchments *shardedSet[model.CatchmentID]
	ej         *shardedSet[string]
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		catchments: newShardedSet(hashCatchment),
		ej:         newShardedSet(xxhash.Sum64String),
	}
}

func (m *Memory) AbsorbCatchments(_ context.Context, ids []model.CatchmentID) error {
	m.catchments.add(ids)
	return nil
}

func (m *Memory) AbsorbEJPolygons(_ context.Context, ids []string) error {
	m.ej.add(ids)
	return nil
}

func (m *Memory) SnapshotCatchments(context.Context) ([]model.CatchmentID, error) {
	return m.catchments.sorted(), nil
}

func (m *Memory) SnapshotEJPolygons(context.Context) ([]string, error) {
	return m.ej.sorted(), nil
}

func (m *Memory) Counts(context.Context) (Counts, error) {
	return Counts{Catchments: m.catchments.size(), EJPolygons: m.ej.size()}, nil
}

func (m *Memory) Reset(context.Context) error {
	m.catchments.reset()
	m.ej.reset()
	return nil
}

func (m *Memory) Close() error { return nil }

func hashCatchment(id model.CatchmentID) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	return xxhash.Sum64(b[:])
}

type shardedSet[K cmp.Ordered] struct {
	hash   func(K) uint64
	shards [numShards]setShard[K]
}

type setShard[K comparable] struct {
	mu sync.RWMutex
	m  map[K]struct{}
}

func newShardedSet[K cmp.Ordered](hash func(K) uint64) *shardedSet[K] {
	s := &shardedSet[K]{hash: hash}
	for i := range s.shards {
		s.shards[i].m = make(map[K]struct{})
	}
	return s
}

func (s *shardedSet[K]) pick(k K) *setShard[K] {
	idx := s.hash(k) & (uint64(numShards) - 1)
	return &s.shards[idx]
}

func (s *shardedSet[K]) add(keys []K) {
	for _, k := range keys {
		sh := s.pick(k)
		sh.mu.Lock()
		sh.m[k] = struct{}{}
		sh.mu.Unlock()
	}
}

func (s *shardedSet[K]) size() int {
	total := 0
	for i := range s.shards {
		s.shards[i].mu.RLock()
		total += len(s.shards[i].m)
		s.shards[i].mu.RUnlock()
	}
	return total
}

func (s *shardedSet[K]) sorted() []K {
	out := make([]K, 0, s.size())
	for i := range s.shards {
		s.shards[i].mu.RLock()
		for k := range s.shards[i].m {
			out = append(out, k)
		}
		s.shards[i].mu.RUnlock()
	}
	slices.Sort(out)
	return out
}

func (s *shardedSet[K]) reset() {
	for i := range s.shards {
		s.shards[i].mu.Lock()
		clear(s.shards[i].m)
		s.shards[i].mu.Unlock()
	}
}
