package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/polyscout/internal/domain"
)

// RiskStateStore implements domain.RiskStateStore as a single versioned row.
// The version bumps on every save so an operator can see whether the
// persisted snapshot moved.
type RiskStateStore struct {
	pool *pgxpool.Pool
}

func NewRiskStateStore(pool *pgxpool.Pool) *RiskStateStore {
	return &RiskStateStore{pool: pool}
}

// Save upserts the snapshot.
func (s *RiskStateStore) Save(ctx context.Context, state domain.RiskState) error {
	history, err := json.Marshal(state.DailyPnlHistory)
	if err != nil {
		return fmt.Errorf("postgres: encode daily pnl history: %w", err)
	}

	const query = `
		INSERT INTO risk_state (
			id, version, is_trading_allowed, pause_kind, pause_until,
			pause_reason, peak_balance, current_drawdown_pct,
			daily_pnl_history, updated_at
		) VALUES (1, 1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			version              = risk_state.version + 1,
			is_trading_allowed   = EXCLUDED.is_trading_allowed,
			pause_kind           = EXCLUDED.pause_kind,
			pause_until          = EXCLUDED.pause_until,
			pause_reason         = EXCLUDED.pause_reason,
			peak_balance         = EXCLUDED.peak_balance,
			current_drawdown_pct = EXCLUDED.current_drawdown_pct,
			daily_pnl_history    = EXCLUDED.daily_pnl_history,
			updated_at           = EXCLUDED.updated_at`

	_, err = s.pool.Exec(ctx, query,
		state.IsTradingAllowed, string(state.PauseKind), state.PauseUntil,
		state.PauseReason, state.PeakBalance, state.CurrentDrawdownPct,
		history, state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save risk state: %w", err)
	}
	return nil
}

// Load returns the persisted snapshot, ErrNotFound when none was saved yet.
func (s *RiskStateStore) Load(ctx context.Context) (domain.RiskState, error) {
	var (
		state     domain.RiskState
		pauseKind string
		history   []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT is_trading_allowed, pause_kind, pause_until, pause_reason,
		       peak_balance, current_drawdown_pct, daily_pnl_history, updated_at
		FROM risk_state WHERE id = 1`,
	).Scan(
		&state.IsTradingAllowed, &pauseKind, &state.PauseUntil, &state.PauseReason,
		&state.PeakBalance, &state.CurrentDrawdownPct, &history, &state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RiskState{}, domain.ErrNotFound
		}
		return domain.RiskState{}, fmt.Errorf("postgres: load risk state: %w", err)
	}
	state.PauseKind = domain.PauseKind(pauseKind)
	if err := json.Unmarshal(history, &state.DailyPnlHistory); err != nil {
		return domain.RiskState{}, fmt.Errorf("postgres: decode daily pnl history: %w", err)
	}
	return state, nil
}
