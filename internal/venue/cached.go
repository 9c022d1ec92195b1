// Package venue decorates external market-data clients. The engine never
// talks to a venue directly; it sees a VenueClient that caches the last good
// batch and degrades to it when the upstream fails.
package venue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfold/polyscout/internal/domain"
)

// Cached wraps a VenueClient with write-through snapshot caching. A failed
// upstream fetch falls back to the cached batch; a lapsed cache entry is
// returned together with domain.ErrStaleCache so the caller knows the data
// aged out.
type Cached struct {
	inner  domain.VenueClient
	cache  domain.SnapshotCache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCached(inner domain.VenueClient, cache domain.SnapshotCache, ttl time.Duration, logger *slog.Logger) *Cached {
	return &Cached{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "venue"), slog.String("venue", inner.Name())),
	}
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) FetchMarkets(ctx context.Context, limit int) ([]domain.Market, error) {
	markets, err := c.inner.FetchMarkets(ctx, limit)
	if err == nil {
		if cacheErr := c.cache.SetMarkets(ctx, c.Name(), markets, c.ttl); cacheErr != nil {
			c.logger.Warn("market cache write failed", slog.String("error", cacheErr.Error()))
		}
		return markets, nil
	}

	c.logger.Warn("market fetch failed, trying cache", slog.String("error", err.Error()))
	cached, cacheErr := c.cache.GetMarkets(ctx, c.Name())
	switch {
	case cacheErr == nil:
		return cached, nil
	case errors.Is(cacheErr, domain.ErrStaleCache):
		return cached, cacheErr
	case errors.Is(cacheErr, domain.ErrNotFound):
		return nil, fmt.Errorf("venue %s: fetch markets: %w", c.Name(), err)
	default:
		return nil, fmt.Errorf("venue %s: fetch markets: %w", c.Name(), errors.Join(err, cacheErr))
	}
}

func (c *Cached) FetchEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	events, err := c.inner.FetchEvents(ctx, limit)
	if err == nil {
		if cacheErr := c.cache.SetEvents(ctx, c.Name(), events, c.ttl); cacheErr != nil {
			c.logger.Warn("event cache write failed", slog.String("error", cacheErr.Error()))
		}
		return events, nil
	}

	c.logger.Warn("event fetch failed, trying cache", slog.String("error", err.Error()))
	cached, cacheErr := c.cache.GetEvents(ctx, c.Name())
	switch {
	case cacheErr == nil:
		return cached, nil
	case errors.Is(cacheErr, domain.ErrStaleCache):
		return cached, cacheErr
	case errors.Is(cacheErr, domain.ErrNotFound):
		return nil, fmt.Errorf("venue %s: fetch events: %w", c.Name(), err)
	default:
		return nil, fmt.Errorf("venue %s: fetch events: %w", c.Name(), errors.Join(err, cacheErr))
	}
}

var _ domain.VenueClient = (*Cached)(nil)
