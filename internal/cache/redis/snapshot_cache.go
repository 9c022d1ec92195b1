package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantfold/polyscout/internal/domain"
)

// staleRetention bounds how long a lapsed snapshot stays usable as a
// degraded fallback.
const staleRetention = 24 * time.Hour

// SnapshotCache implements domain.SnapshotCache. Each batch is written
// twice: a fresh copy under the caller's TTL and a long-lived stale copy.
// A Get that only finds the stale copy returns the data together with
// domain.ErrStaleCache so the engine can degrade instead of halting.
//
// Key schema:
//
//	snapshot:markets:{venue}        - JSON batch, fresh TTL
//	snapshot:markets:{venue}:stale  - same batch, 24h retention
//	snapshot:events:{venue}[,:stale]
type SnapshotCache struct {
	rdb *redis.Client
}

func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

func marketsKey(venue string) string { return "snapshot:markets:" + venue }
func eventsKey(venue string) string  { return "snapshot:events:" + venue }

func (sc *SnapshotCache) set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: marshal %s: %w", key, err)
	}

	pipe := sc.rdb.TxPipeline()
	pipe.Set(ctx, key, data, ttl)
	pipe.Set(ctx, key+":stale", data, staleRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

func (sc *SnapshotCache) get(ctx context.Context, key string, v any) error {
	data, err := sc.rdb.Get(ctx, key).Bytes()
	if err == nil {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("redis: unmarshal %s: %w", key, err)
		}
		return nil
	}
	if !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: get %s: %w", key, err)
	}

	data, err = sc.rdb.Get(ctx, key+":stale").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("redis: get %s: %w", key+":stale", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("redis: unmarshal %s: %w", key+":stale", err)
	}
	return domain.ErrStaleCache
}

func (sc *SnapshotCache) SetMarkets(ctx context.Context, venue string, markets []domain.Market, ttl time.Duration) error {
	return sc.set(ctx, marketsKey(venue), markets, ttl)
}

func (sc *SnapshotCache) GetMarkets(ctx context.Context, venue string) ([]domain.Market, error) {
	var markets []domain.Market
	err := sc.get(ctx, marketsKey(venue), &markets)
	if err != nil && !errors.Is(err, domain.ErrStaleCache) {
		return nil, err
	}
	return markets, err
}

func (sc *SnapshotCache) SetEvents(ctx context.Context, venue string, events []domain.Event, ttl time.Duration) error {
	return sc.set(ctx, eventsKey(venue), events, ttl)
}

func (sc *SnapshotCache) GetEvents(ctx context.Context, venue string) ([]domain.Event, error) {
	var events []domain.Event
	err := sc.get(ctx, eventsKey(venue), &events)
	if err != nil && !errors.Is(err, domain.ErrStaleCache) {
		return nil, err
	}
	return events, err
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)
