package domain

import (
	"context"
	"time"
)

// SnapshotCache stores the last good market batch per venue. Get returns
// ErrStaleCache (with data) when the fresh TTL has lapsed but a stale copy is
// still available; a timed-out fetch degrades to that stale copy rather than
// halting the cycle.
type SnapshotCache interface {
	SetMarkets(ctx context.Context, venue string, markets []Market, ttl time.Duration) error
	GetMarkets(ctx context.Context, venue string) ([]Market, error)
	SetEvents(ctx context.Context, venue string, events []Event, ttl time.Duration) error
	GetEvents(ctx context.Context, venue string) ([]Event, error)
}

// RateLimiter provides distributed rate limiting, used to throttle alerts.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
