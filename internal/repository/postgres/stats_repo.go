package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/paywall/internal/model"
)

// StatsRepo implements StatsRepository over the single-row protocol_stats table.
type StatsRepo struct{ db *DB }

// NewStatsRepo constructs a stats repository.
func NewStatsRepo(db *DB) *StatsRepo { return &StatsRepo{db: db} }

// Save upserts the single stats row.
func (r *StatsRepo) Save(ctx context.Context, s model.ProtocolStats) error {
	const q = `
INSERT INTO protocol_stats (id, total_payments, total_volume, active_agents, total_articles, updated_at)
VALUES (1, $1, $2::numeric, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
  total_payments = EXCLUDED.total_payments,
  total_volume   = EXCLUDED.total_volume,
  active_agents  = EXCLUDED.active_agents,
  total_articles = EXCLUDED.total_articles,
  updated_at     = EXCLUDED.updated_at`
	_, err := r.db.Pool.Exec(ctx, q, s.TotalPayments, s.TotalVolume.String(), s.ActiveAgents, s.TotalArticles, s.UpdatedAt)
	return err
}

// Get returns the stored stats, or zero stats when nothing was saved yet.
func (r *StatsRepo) Get(ctx context.Context) (model.ProtocolStats, error) {
	const q = `
SELECT total_payments, total_volume::text, active_agents, total_articles, updated_at
FROM protocol_stats WHERE id=1`
	var (
		s      model.ProtocolStats
		volume string
	)
	err := r.db.Pool.QueryRow(ctx, q).Scan(&s.TotalPayments, &volume, &s.ActiveAgents, &s.TotalArticles, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ProtocolStats{}, nil
	}
	if err != nil {
		return model.ProtocolStats{}, err
	}
	if s.TotalVolume, err = parseAmount("total_volume", volume); err != nil {
		return model.ProtocolStats{}, err
	}
	return s, nil
}
