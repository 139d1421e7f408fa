package lookup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"kestrel/internal/domain"
)

type fakeCache struct {
	mu   sync.Mutex
	ips  []string
	held bool
	err  error

	gets int
	sets int
}

func (f *fakeCache) Get(context.Context) ([]string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	return f.ips, f.held, f.err
}

func (f *fakeCache) Set(_ context.Context, ips []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.ips = ips
	f.held = true
	return nil
}

func newTestService(cache CacheView, active []string) (*Service, *atomic.Int64) {
	var storeReads atomic.Int64
	s := NewService(cache, 4)
	s.listActive = func(context.Context) ([]string, error) {
		storeReads.Add(1)
		return active, nil
	}
	return s, &storeReads
}

func TestCheckBatchUsesCachedView(t *testing.T) {
	cache := &fakeCache{ips: []string{"8.8.8.8"}, held: true}
	s, storeReads := newTestService(cache, nil)

	results, err := s.CheckBatch(context.Background(), []string{"8.8.8.8", "1.1.1.1", "not-an-ip"})
	if err != nil {
		t.Fatalf("CheckBatch failed: %v", err)
	}

	if !results["8.8.8.8"] || results["1.1.1.1"] {
		t.Fatalf("unexpected results: %v", results)
	}
	if _, ok := results["not-an-ip"]; ok {
		t.Fatal("unparseable input must be dropped, not reported")
	}
	if storeReads.Load() != 0 {
		t.Fatal("cache hit must not touch the store")
	}
}

func TestCheckBatchRepopulatesCacheOnMiss(t *testing.T) {
	cache := &fakeCache{}
	s, storeReads := newTestService(cache, []string{"8.8.8.8", "9.9.9.9"})

	results, err := s.CheckBatch(context.Background(), []string{"9.9.9.9"})
	if err != nil {
		t.Fatalf("CheckBatch failed: %v", err)
	}
	if !results["9.9.9.9"] {
		t.Fatalf("unexpected results: %v", results)
	}
	if storeReads.Load() != 1 {
		t.Fatalf("store reads = %d, want 1", storeReads.Load())
	}
	if cache.sets != 1 {
		t.Fatalf("cache repopulated %d times, want 1", cache.sets)
	}

	// The second batch must be served from the repopulated cache.
	if _, err := s.CheckBatch(context.Background(), []string{"8.8.8.8"}); err != nil {
		t.Fatalf("CheckBatch failed: %v", err)
	}
	if storeReads.Load() != 1 {
		t.Fatal("repopulated cache was bypassed")
	}
}

func TestCheckBatchCacheErrorFallsBackToStore(t *testing.T) {
	cache := &fakeCache{err: errors.New("redis unavailable")}
	s, storeReads := newTestService(cache, []string{"8.8.8.8"})

	results, err := s.CheckBatch(context.Background(), []string{"8.8.8.8"})
	if err != nil {
		t.Fatalf("CheckBatch failed: %v", err)
	}
	if !results["8.8.8.8"] {
		t.Fatalf("unexpected results: %v", results)
	}
	if storeReads.Load() != 1 {
		t.Fatal("cache error must fall back to the store")
	}
}

func TestEntriesForIPsBoundedFanOut(t *testing.T) {
	s := NewService(nil, 2)

	var inFlight, peak atomic.Int64
	var mu sync.Mutex
	s.listByIP = func(_ context.Context, ip string) ([]domain.BlacklistEntry, error) {
		current := inFlight.Add(1)
		mu.Lock()
		if current > peak.Load() {
			peak.Store(current)
		}
		mu.Unlock()
		defer inFlight.Add(-1)
		return []domain.BlacklistEntry{{IPAddress: ip, Source: "feed"}}, nil
	}

	ips := []string{"8.8.8.8", "1.1.1.1", "9.9.9.9", "208.67.222.222"}
	results, err := s.EntriesForIPs(context.Background(), ips)
	if err != nil {
		t.Fatalf("EntriesForIPs failed: %v", err)
	}

	if len(results) != len(ips) {
		t.Fatalf("results for %d IPs, want %d", len(results), len(ips))
	}
	for _, ip := range ips {
		entries := results[ip]
		if len(entries) != 1 || entries[0].IPAddress != ip {
			t.Fatalf("unexpected entries for %s: %v", ip, entries)
		}
	}
	if peak.Load() > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestEntriesForIPsPropagatesStoreError(t *testing.T) {
	s := NewService(nil, 2)
	s.listByIP = func(context.Context, string) ([]domain.BlacklistEntry, error) {
		return nil, errors.New("store offline")
	}

	if _, err := s.EntriesForIPs(context.Background(), []string{"8.8.8.8"}); err == nil {
		t.Fatal("store error must propagate")
	}
}
