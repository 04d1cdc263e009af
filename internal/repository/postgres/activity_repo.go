package postgres

import (
	"context"

	"github.com/and161185/paywall/internal/model"
)

// ActivityRepo implements ActivityRepository using PostgreSQL.
type ActivityRepo struct {
	db  *DB
	cap int
}

// NewActivityRepo constructs an activity log keeping at most cap rows.
func NewActivityRepo(db *DB, cap int) *ActivityRepo {
	if cap <= 0 {
		cap = 50
	}
	return &ActivityRepo{db: db, cap: cap}
}

// Append inserts an entry and trims rows beyond the cap.
func (r *ActivityRepo) Append(ctx context.Context, a model.AgentActivity) (*model.AgentActivity, error) {
	const ins = `
INSERT INTO agent_activity (agent_id, action, article_id, amount, status)
VALUES ($1, $2, $3, $4::numeric, $5)
RETURNING id, created_at`
	const trim = `
DELETE FROM agent_activity
WHERE id IN (SELECT id FROM agent_activity ORDER BY id DESC OFFSET $1)`

	var amount *string
	if a.Amount != nil {
		s := a.Amount.String()
		amount = &s
	}
	if err := r.db.Pool.QueryRow(ctx, ins, a.AgentID, a.Action, a.ArticleID, amount, a.Status).
		Scan(&a.ID, &a.CreatedAt); err != nil {
		return nil, err
	}
	if _, err := r.db.Pool.Exec(ctx, trim, r.cap); err != nil {
		return nil, err
	}
	return &a, nil
}

// Recent returns up to limit entries, newest first.
func (r *ActivityRepo) Recent(ctx context.Context, limit int) ([]model.AgentActivity, error) {
	const q = `
SELECT id, agent_id, action, COALESCE(article_id, 0), COALESCE(amount::text, ''), status, created_at
FROM agent_activity
ORDER BY id DESC
LIMIT $1`
	if limit <= 0 {
		limit = r.cap
	}
	rows, err := r.db.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.AgentActivity{}
	for rows.Next() {
		var (
			a         model.AgentActivity
			articleID int64
			amount    string
		)
		if err := rows.Scan(&a.ID, &a.AgentID, &a.Action, &articleID, &amount, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		if articleID != 0 {
			a.ArticleID = &articleID
		}
		if amount != "" {
			d, err := parseAmount("amount", amount)
			if err != nil {
				return nil, err
			}
			a.Amount = &d
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
