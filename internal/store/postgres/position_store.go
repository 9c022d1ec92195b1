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

// PositionStore implements domain.PositionStore using PostgreSQL. Legs are
// stored as a JSONB document; everything the engine filters or sorts on is
// a proper column.
type PositionStore struct {
	pool *pgxpool.Pool
}

func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, market_id, market_question, opportunity_type,
	side, entry_price, amount_usd, shares, current_price,
	status, exit_price, exit_reason, realized_pnl, legs, opened_at, closed_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p        domain.Position
		oppType  string
		side     string
		status   string
		legsJSON []byte
	)
	err := row.Scan(
		&p.ID, &p.MarketID, &p.MarketQuestion, &oppType,
		&side, &p.EntryPrice, &p.AmountUSD, &p.Shares, &p.CurrentPrice,
		&status, &p.ExitPrice, &p.ExitReason, &p.RealizedPnl,
		&legsJSON, &p.OpenedAt, &p.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.OpportunityType = domain.OpportunityType(oppType)
	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	if len(legsJSON) > 0 {
		if err := json.Unmarshal(legsJSON, &p.Legs); err != nil {
			return domain.Position{}, fmt.Errorf("decode legs for %s: %w", p.ID, err)
		}
	}
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func encodeLegs(legs []domain.PositionLeg) (any, error) {
	if len(legs) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(legs)
	if err != nil {
		return nil, fmt.Errorf("encode legs: %w", err)
	}
	return data, nil
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	legs, err := encodeLegs(p.Legs)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}

	const query = `
		INSERT INTO positions (
			id, market_id, market_question, opportunity_type,
			side, entry_price, amount_usd, shares, current_price,
			status, exit_price, exit_reason, realized_pnl, legs,
			opened_at, closed_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16, NOW()
		)`

	_, err = s.pool.Exec(ctx, query,
		p.ID, p.MarketID, p.MarketQuestion, string(p.OpportunityType),
		string(p.Side), p.EntryPrice, p.AmountUSD, p.Shares, p.CurrentPrice,
		string(p.Status), p.ExitPrice, p.ExitReason, p.RealizedPnl, legs,
		p.OpenedAt, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update replaces all mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	legs, err := encodeLegs(p.Legs)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}

	const query = `
		UPDATE positions SET
			current_price = $2,
			status        = $3,
			exit_price    = $4,
			exit_reason   = $5,
			realized_pnl  = $6,
			legs          = $7,
			closed_at     = $8,
			updated_at    = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.CurrentPrice, string(p.Status),
		p.ExitPrice, p.ExitReason, p.RealizedPnl, legs, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpen returns every open position, oldest first so the lifecycle
// evaluates long-held positions before fresh ones.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'open'
		 ORDER BY opened_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// ListHistory returns closed and resolved positions with pagination and
// optional close-time filtering.
func (s *PositionStore) ListHistory(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE status <> 'open'`
	var args []any
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND closed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND closed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY closed_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan position history: %w", err)
	}
	return positions, nil
}

// CountOpenByMarket counts open positions in one market.
func (s *PositionStore) CountOpenByMarket(ctx context.Context, marketID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM positions WHERE status = 'open' AND market_id = $1`,
		marketID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count open positions for %s: %w", marketID, err)
	}
	return n, nil
}
