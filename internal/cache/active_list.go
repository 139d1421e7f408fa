package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	activeListKey = "kestrel:blacklist:active"
	activeListTTL = 6 * time.Hour
)

// ActiveList is the Redis-backed view of the currently active blacklist IPs.
// The collection pipeline only ever invalidates it; the lookup path populates
// it lazily from the store on a miss.
type ActiveList struct {
	client *redis.Client
}

func NewActiveList(client *redis.Client) *ActiveList {
	return &ActiveList{client: client}
}

// Get returns the cached IP list and whether the cache held one.
func (a *ActiveList) Get(ctx context.Context) ([]string, bool, error) {
	if a == nil || a.client == nil {
		return nil, false, nil
	}

	data, err := a.client.Get(ctx, activeListKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: read active list: %w", err)
	}

	var ips []string
	if err := json.Unmarshal(data, &ips); err != nil {
		// A corrupt entry behaves like a miss so the store repopulates it.
		return nil, false, nil
	}
	return ips, true, nil
}

func (a *ActiveList) Set(ctx context.Context, ips []string) error {
	if a == nil || a.client == nil {
		return nil
	}

	data, err := json.Marshal(ips)
	if err != nil {
		return fmt.Errorf("cache: encode active list: %w", err)
	}
	if err := a.client.Set(ctx, activeListKey, data, activeListTTL).Err(); err != nil {
		return fmt.Errorf("cache: write active list: %w", err)
	}
	return nil
}

// Invalidate drops the cached view. Called by the ingestion path after any
// batch that changed rows.
func (a *ActiveList) Invalidate(ctx context.Context) error {
	if a == nil || a.client == nil {
		return nil
	}
	if err := a.client.Del(ctx, activeListKey).Err(); err != nil {
		return fmt.Errorf("cache: invalidate active list: %w", err)
	}
	return nil
}
