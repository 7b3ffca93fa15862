package retrieve

import (
	"fmt"
	"testing"
	"time"

	"finintel/pkg/domain"
)

func TestQueryCacheReturnsCachedValueWithinTTL(t *testing.T) {
	cache := NewQueryCache(time.Minute)
	calls := 0
	compute := func() ([]ScoredCandidate, error) {
		calls++
		return []ScoredCandidate{{Chunk: domain.Chunk{ChunkID: "c1"}}}, nil
	}

	if _, err := cache.GetOrCompute("tenant-a", "ricavi", compute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cache.GetOrCompute("tenant-a", "ricavi", compute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected compute to run once, ran %d times", calls)
	}
}

func TestQueryCacheExpiresAfterTTL(t *testing.T) {
	cache := NewQueryCache(time.Millisecond)
	calls := 0
	compute := func() ([]ScoredCandidate, error) {
		calls++
		return nil, nil
	}

	if _, err := cache.GetOrCompute("t", "q", compute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := cache.GetOrCompute("t", "q", compute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected compute to run twice after expiry, ran %d times", calls)
	}
}

func TestQueryCacheDoesNotCacheErrors(t *testing.T) {
	cache := NewQueryCache(time.Minute)
	calls := 0
	compute := func() ([]ScoredCandidate, error) {
		calls++
		return nil, fmt.Errorf("boom")
	}

	if _, err := cache.GetOrCompute("t", "q", compute); err == nil {
		t.Fatal("expected error from first call")
	}
	if _, err := cache.GetOrCompute("t", "q", compute); err == nil {
		t.Fatal("expected error from second call")
	}
	if calls != 2 {
		t.Fatalf("expected a failed compute to not be cached, ran %d times", calls)
	}
}

func TestQueryCacheInvalidateClearsOnlyThatTenant(t *testing.T) {
	cache := NewQueryCache(time.Minute)
	compute := func() ([]ScoredCandidate, error) { return nil, nil }

	cache.GetOrCompute("tenant-a", "q", compute)
	cache.GetOrCompute("tenant-b", "q", compute)
	cache.Invalidate("tenant-a")

	calls := 0
	recompute := func() ([]ScoredCandidate, error) {
		calls++
		return nil, nil
	}
	cache.GetOrCompute("tenant-a", "q", recompute)
	cache.GetOrCompute("tenant-b", "q", recompute)

	if calls != 1 {
		t.Fatalf("expected only tenant-a's entry to be invalidated, recompute ran %d times", calls)
	}
}
