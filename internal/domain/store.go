package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore persists positions. Open/close/resolve transitions must be
// written through the store before the engine treats them as complete, so a
// crash mid-cycle re-derives state from the last successful write.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	ListOpen(ctx context.Context) ([]Position, error)
	ListHistory(ctx context.Context, opts ListOpts) ([]Position, error)
	CountOpenByMarket(ctx context.Context, marketID string) (int, error)
}

// RiskStateStore persists the single process-wide risk snapshot in a
// versioned schema.
type RiskStateStore interface {
	Save(ctx context.Context, state RiskState) error
	Load(ctx context.Context) (RiskState, error)
}

// DetectorStatsStore persists per-detector counters.
type DetectorStatsStore interface {
	Upsert(ctx context.Context, stats DetectorStats) error
	List(ctx context.Context) ([]DetectorStats, error)
}
