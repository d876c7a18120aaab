package redisstore

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/observability"
)

// creates new client connected to miniredis for testing
func newMini(t *testing.T, opts ...Option) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestSAddSMembers_CountsOnlyNewMembers(t *testing.T) {
	rc, _ := newMini(t)
	ctx := context.Background()

	added, err := rc.SAdd(ctx, "s", "a", "b", "a")
	if err != nil {
		t.Fatalf("SAdd: %v", err)
	}
	if added != 2 {
		t.Fatalf("added=%d want 2", added)
	}
	added, err = rc.SAdd(ctx, "s", "b", "c")
	if err != nil {
		t.Fatalf("SAdd: %v", err)
	}
	if added != 1 {
		t.Fatalf("added=%d want 1", added)
	}

	got, err := rc.SMembers(ctx, "s")
	if err != nil {
		t.Fatalf("SMembers: %v", err)
	}
	slices.Sort(got)
	if !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("members=%v", got)
	}
	if n, err := rc.SCard(ctx, "s"); err != nil || n != 3 {
		t.Fatalf("SCard=%d err=%v", n, err)
	}

	if err := rc.Del(ctx, "s"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if n, _ := rc.SCard(ctx, "s"); n != 0 {
		t.Fatalf("SCard after Del=%d", n)
	}
}

func TestSAdd_ChunksLargeBatches(t *testing.T) {
	rc, _ := newMini(t)
	ctx := context.Background()

	members := make([]string, 2*saddChunk+7)
	for i := range members {
		members[i] = fmt.Sprintf("m%d", i)
	}
	added, err := rc.SAdd(ctx, "big", members...)
	if err != nil {
		t.Fatalf("SAdd: %v", err)
	}
	if added != int64(len(members)) {
		t.Fatalf("added=%d want %d", added, len(members))
	}
}

func TestSAdd_EmptyIsNoop(t *testing.T) {
	rc, mr := newMini(t)
	if n, err := rc.SAdd(context.Background(), "s"); err != nil || n != 0 {
		t.Fatalf("SAdd empty: n=%d err=%v", n, err)
	}
	if mr.Exists("s") {
		t.Fatalf("empty SAdd must not create the key")
	}
}

func TestContextCanceled_IsRespected(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := rc.SAdd(ctx, "k", "v"); err == nil {
		t.Fatalf("expected error on SAdd with canceled context")
	}
	if _, err := rc.SMembers(ctx, "k"); err == nil {
		t.Fatalf("expected error on SMembers with canceled context")
	}
}

func TestNew_RequiresAddressAndReachableServer(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty address")
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := New(ctx, addr, WithTimeout(200*time.Millisecond)); err == nil {
		t.Fatalf("expected ping error for closed server")
	}
}

func TestMetrics_ObservedPerOp(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewRunMetrics(reg)
	rc, _ := newMini(t, WithMetrics(m), WithPoolSize(4))

	ctx := context.Background()
	_, _ = rc.SAdd(ctx, "s", "a")
	_, _ = rc.SMembers(ctx, "s")

	n, err := testutil.GatherAndCount(reg, "ejquery_redis_operation_duration_seconds")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	// ping, sadd, smembers
	if n != 3 {
		t.Fatalf("op series=%d want 3", n)
	}
}
