package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/paywall/internal/errs"
	"github.com/and161185/paywall/internal/model"
)

// PaymentRepo implements PaymentRepository using PostgreSQL.
type PaymentRepo struct{ db *DB }

// NewPaymentRepo constructs a payment repository.
func NewPaymentRepo(db *DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentCols = `id, article_id, wallet_address, amount::text, status, payment_type, agent_id, tx_hash, created_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p             model.Payment
		amount        string
		status, ptype string
	)
	if err := row.Scan(&p.ID, &p.ArticleID, &p.WalletAddress, &amount, &status, &ptype,
		&p.AgentID, &p.TxHash, &p.CreatedAt); err != nil {
		return nil, err
	}
	a, err := parseAmount("amount", amount)
	if err != nil {
		return nil, err
	}
	p.Amount = a
	p.Status = model.PaymentStatus(status)
	p.Type = model.PaymentType(ptype)
	return &p, nil
}

func (r *PaymentRepo) list(ctx context.Context, q string, args ...any) ([]model.Payment, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Create inserts a payment row.
func (r *PaymentRepo) Create(ctx context.Context, p model.Payment) (*model.Payment, error) {
	const q = `
INSERT INTO payments (article_id, wallet_address, amount, status, payment_type, agent_id, tx_hash)
VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
RETURNING id, created_at`
	if p.Status == "" {
		p.Status = model.StatusPending
	}
	err := r.db.Pool.QueryRow(ctx, q, p.ArticleID, p.WalletAddress, p.Amount.String(), string(p.Status),
		string(p.Type), p.AgentID, p.TxHash).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Get selects a payment by id.
func (r *PaymentRepo) Get(ctx context.Context, id int64) (*model.Payment, error) {
	const q = `SELECT ` + paymentCols + ` FROM payments WHERE id=$1`
	p, err := scanPayment(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListByWallet returns the wallet's payments ordered by id.
func (r *PaymentRepo) ListByWallet(ctx context.Context, wallet string) ([]model.Payment, error) {
	const q = `SELECT ` + paymentCols + ` FROM payments WHERE wallet_address=$1 ORDER BY id ASC`
	return r.list(ctx, q, wallet)
}

// FindCompleted returns completed payments for (article, wallet).
func (r *PaymentRepo) FindCompleted(ctx context.Context, articleID int64, wallet string) ([]model.Payment, error) {
	const q = `SELECT ` + paymentCols + ` FROM payments WHERE article_id=$1 AND wallet_address=$2 AND status='completed' ORDER BY id ASC`
	return r.list(ctx, q, articleID, wallet)
}

// FindOpen returns the newest non-failed payment for (article, wallet), completed first.
func (r *PaymentRepo) FindOpen(ctx context.Context, articleID int64, wallet string) (*model.Payment, error) {
	const q = `
SELECT ` + paymentCols + `
FROM payments
WHERE article_id=$1 AND wallet_address=$2 AND status<>'failed'
ORDER BY (status='completed') DESC, id DESC
LIMIT 1`
	p, err := scanPayment(r.db.Pool.QueryRow(ctx, q, articleID, wallet))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// UpdateStatus moves a pending payment to status, keeping the old tx hash when txHash is empty.
func (r *PaymentRepo) UpdateStatus(ctx context.Context, id int64, status model.PaymentStatus, txHash string) error {
	const upd = `
UPDATE payments
SET status=$2, tx_hash=COALESCE(NULLIF($3, ''), tx_hash)
WHERE id=$1 AND status='pending'`
	tag, err := r.db.Pool.Exec(ctx, upd, id, string(status), txHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	const sel = `SELECT status FROM payments WHERE id=$1`
	var cur string
	if err := r.db.Pool.QueryRow(ctx, sel, id).Scan(&cur); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	}
	return errs.ErrInvalidTransition
}

// ListCompleted returns all completed payments.
func (r *PaymentRepo) ListCompleted(ctx context.Context) ([]model.Payment, error) {
	const q = `SELECT ` + paymentCols + ` FROM payments WHERE status='completed' ORDER BY id ASC`
	return r.list(ctx, q)
}

// MarkStalePending fails pending payments created before cutoff.
func (r *PaymentRepo) MarkStalePending(ctx context.Context, cutoff time.Time) ([]int64, error) {
	const q = `UPDATE payments SET status='failed' WHERE status='pending' AND created_at<$1 RETURNING id`
	rows, err := r.db.Pool.Query(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
