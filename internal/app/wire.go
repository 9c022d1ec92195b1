package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/quantfold/polyscout/internal/blob/s3"
	"github.com/quantfold/polyscout/internal/cache/redis"
	"github.com/quantfold/polyscout/internal/config"
	"github.com/quantfold/polyscout/internal/domain"
	"github.com/quantfold/polyscout/internal/engine"
	"github.com/quantfold/polyscout/internal/metrics"
	"github.com/quantfold/polyscout/internal/notify"
	"github.com/quantfold/polyscout/internal/server/ws"
	"github.com/quantfold/polyscout/internal/store/postgres"
	"github.com/quantfold/polyscout/internal/venue"
)

// Dependencies bundles the infrastructure the engine and API need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Positions domain.PositionStore
	RiskStore domain.RiskStateStore
	Stats     domain.DetectorStatsStore

	Snapshots   domain.SnapshotCache
	RateLimiter domain.RateLimiter

	Venues       []domain.VenueClient
	StatusClient domain.MarketStatusClient

	Alerter *notify.Alerter
	Hub     *ws.Hub
	Sinks   []engine.Sink
	Metrics *metrics.Metrics
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// releases resources in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if err := pgClient.RunMigrations(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
	}

	pool := pgClient.Pool()
	deps.Positions = postgres.NewPositionStore(pool)
	deps.RiskStore = postgres.NewRiskStateStore(pool)
	deps.Stats = postgres.NewDetectorStatsStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Snapshots = redis.NewSnapshotCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- Venues ---
	home := venue.NewReplay(cfg.Venues.Home.Name, cfg.Venues.Home.Dir)
	deps.StatusClient = home
	deps.Venues = append(deps.Venues,
		venue.NewCached(home, deps.Snapshots, cfg.Engine.SnapshotTTL.Duration, logger))
	for _, src := range cfg.Venues.Cross {
		cross := venue.NewReplay(src.Name, src.Dir)
		deps.Venues = append(deps.Venues,
			venue.NewCached(cross, deps.Snapshots, cfg.Engine.SnapshotTTL.Duration, logger))
	}

	// --- Alerting ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Alerter = notify.NewAlerter(senders, deps.RateLimiter, cfg.Notify.MinInterval.Duration, logger)

	// --- Snapshot sinks ---
	deps.Hub = ws.NewHub(logger)
	deps.Sinks = append(deps.Sinks, deps.Hub)

	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, cfg.S3)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Sinks = append(deps.Sinks, s3blob.NewArchiver(s3Client))
	}

	deps.Metrics = metrics.New()

	return deps, cleanup, nil
}
