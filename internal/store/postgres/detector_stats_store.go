package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/polyscout/internal/domain"
)

// DetectorStatsStore implements domain.DetectorStatsStore, one row per
// detector name.
type DetectorStatsStore struct {
	pool *pgxpool.Pool
}

func NewDetectorStatsStore(pool *pgxpool.Pool) *DetectorStatsStore {
	return &DetectorStatsStore{pool: pool}
}

// Upsert replaces the counters for one detector.
func (s *DetectorStatsStore) Upsert(ctx context.Context, stats domain.DetectorStats) error {
	const query = `
		INSERT INTO detector_stats (name, total_scans, opportunities_found, errors, last_scan)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			total_scans         = EXCLUDED.total_scans,
			opportunities_found = EXCLUDED.opportunities_found,
			errors              = EXCLUDED.errors,
			last_scan           = EXCLUDED.last_scan`

	_, err := s.pool.Exec(ctx, query,
		stats.Name, stats.TotalScans, stats.OpportunitiesFound, stats.Errors, stats.LastScan,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert detector stats %s: %w", stats.Name, err)
	}
	return nil
}

// List returns all persisted counters ordered by name.
func (s *DetectorStatsStore) List(ctx context.Context) ([]domain.DetectorStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, total_scans, opportunities_found, errors, last_scan
		FROM detector_stats ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list detector stats: %w", err)
	}
	defer rows.Close()

	var out []domain.DetectorStats
	for rows.Next() {
		var st domain.DetectorStats
		if err := rows.Scan(&st.Name, &st.TotalScans, &st.OpportunitiesFound, &st.Errors, &st.LastScan); err != nil {
			return nil, fmt.Errorf("postgres: scan detector stats: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list detector stats: %w", err)
	}
	return out, nil
}
