// Package app wires the engine together: infrastructure clients, the
// detector/rank/risk/lifecycle components, the orchestrator, and the optional
// status API. It owns startup and graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantfold/polyscout/internal/config"
	"github.com/quantfold/polyscout/internal/detector"
	"github.com/quantfold/polyscout/internal/domain"
	"github.com/quantfold/polyscout/internal/engine"
	"github.com/quantfold/polyscout/internal/lifecycle"
	"github.com/quantfold/polyscout/internal/rank"
	"github.com/quantfold/polyscout/internal/risk"
	"github.com/quantfold/polyscout/internal/server"
	"github.com/quantfold/polyscout/internal/server/handler"
)

// App is the root application object.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Run wires all dependencies, starts the engine and the status API, and
// blocks until the context is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	log := a.logger.With(slog.String("component", "app"))
	log.InfoContext(ctx, "starting",
		slog.String("home_venue", a.cfg.Venues.Home.Name),
		slog.Bool("dry_run", a.cfg.Engine.DryRun),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// Risk state survives restarts; a missing row means a fresh start.
	state, err := deps.RiskStore.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("app: load risk state: %w", err)
		}
		state = domain.RiskState{IsTradingAllowed: true}
	}

	registry := detector.DefaultRegistry()
	runner := detector.NewRunner(
		registry.CreateAll(a.cfg.Detectors, a.logger),
		a.cfg.Engine.DetectorPoolSize,
		a.logger,
	)

	orch, err := engine.New(engine.Deps{
		Engine:       a.cfg.Engine,
		Trading:      a.cfg.Trading,
		Venues:       deps.Venues,
		StatusClient: deps.StatusClient,
		Runner:       runner,
		Ranker:       rank.New(a.cfg.Ranker, a.logger),
		Risk:         risk.NewManager(a.cfg.Risk, a.cfg.Trading, state, a.logger),
		Resolver:     lifecycle.NewResolver(a.cfg.Trading, a.logger),
		Positions:    deps.Positions,
		RiskStore:    deps.RiskStore,
		Stats:        deps.Stats,
		Alerter:      deps.Alerter,
		Sinks:        deps.Sinks,
		Metrics:      deps.Metrics,
		Logger:       a.logger,
	})
	if err != nil {
		return fmt.Errorf("app: build engine: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Hub.Run(ctx)
	})
	g.Go(func() error {
		return orch.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		srv := server.NewServer(
			a.cfg.Server,
			server.Handlers{
				Health:    handler.NewHealthHandler(time.Now().UTC()),
				Status:    handler.NewStatusHandler(orch),
				Positions: handler.NewPositionHandler(orch, deps.Positions),
			},
			deps.Metrics.Handler(),
			deps.Hub,
			a.logger,
		)
		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
