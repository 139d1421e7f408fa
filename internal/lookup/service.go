package lookup

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"kestrel/internal/database"
	"kestrel/internal/domain"
	"kestrel/internal/parse"
)

const defaultWorkers = 8

// CacheView is the read side of the active IP cache. A nil view is valid and
// sends every query straight to the store.
type CacheView interface {
	Get(ctx context.Context) ([]string, bool, error)
	Set(ctx context.Context, ips []string) error
}

// Service answers read-only blacklist queries. It never writes entries; its
// only side effect is repopulating the cache after a miss.
type Service struct {
	Cache   CacheView
	Workers int

	// Swappable in tests.
	listActive func(ctx context.Context) ([]string, error)
	listByIP   func(ctx context.Context, ip string) ([]domain.BlacklistEntry, error)
}

func NewService(cache CacheView, workers int) *Service {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Service{
		Cache:      cache,
		Workers:    workers,
		listActive: database.ListActiveIPs,
		listByIP:   database.ListByIP,
	}
}

// IsBlacklisted reports whether the IP appears in the active blacklist.
func (s *Service) IsBlacklisted(ctx context.Context, ip string) (bool, error) {
	results, err := s.CheckBatch(ctx, []string{ip})
	if err != nil {
		return false, err
	}
	return results[parse.NormalizeIPv4(ip)], nil
}

// CheckBatch resolves active-blacklist membership for a batch of IPs in one
// pass over the cached view. Keys in the result are normalized dotted quads;
// unparseable inputs are dropped.
func (s *Service) CheckBatch(ctx context.Context, ips []string) (map[string]bool, error) {
	active, err := s.activeSet(ctx)
	if err != nil {
		return nil, err
	}

	results := make(map[string]bool, len(ips))
	for _, raw := range ips {
		ip := parse.NormalizeIPv4(raw)
		if ip == "" {
			continue
		}
		_, found := active[ip]
		results[ip] = found
	}
	return results, nil
}

// EntriesForIPs fetches the full entry history for a batch of IPs, querying
// the store with a bounded worker pool.
func (s *Service) EntriesForIPs(ctx context.Context, ips []string) (map[string][]domain.BlacklistEntry, error) {
	results := make(map[string][]domain.BlacklistEntry, len(ips))
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.Workers)

	for _, raw := range ips {
		ip := parse.NormalizeIPv4(raw)
		if ip == "" {
			continue
		}
		group.Go(func() error {
			entries, err := s.listByIP(groupCtx, ip)
			if err != nil {
				return err
			}
			mu.Lock()
			results[ip] = entries
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) activeSet(ctx context.Context) (map[string]struct{}, error) {
	if s.Cache != nil {
		ips, hit, err := s.Cache.Get(ctx)
		if err != nil {
			log.Warn("Active IP cache read failed, falling back to store", "error", err)
		} else if hit {
			return toSet(ips), nil
		}
	}

	ips, err := s.listActive(ctx)
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, ips); err != nil {
			log.Warn("Failed to repopulate active IP cache", "error", err)
		}
	}
	return toSet(ips), nil
}

func toSet(ips []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		set[ip] = struct{}{}
	}
	return set
}
