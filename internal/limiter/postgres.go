package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed limiter with a fail window and lockout.
// Timestamps come from the injected clock, not the database.
type PG struct {
	db       pgxQuerier
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter over a pool or any compatible querier.
func NewPG(db pgxQuerier, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{db: db, window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now}
}

// Allow reports whether sign-in is currently allowed and a retry-after duration.
func (l *PG) Allow(ctx context.Context, wallet string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM signin_limiter WHERE wallet_address=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.db.QueryRow(ctx, q, wallet, ipHash).Scan(&blockedUntil)
	switch {
	case err == nil:
		if d := blockedUntil.Sub(l.now()); d > 0 {
			return false, d, nil
		}
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success resets counters for (wallet, ip).
func (l *PG) Success(ctx context.Context, wallet string, ipHash []byte) error {
	const q = `
INSERT INTO signin_limiter (wallet_address, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1,$2,0,'epoch',$3)
ON CONFLICT (wallet_address, ip_hash)
DO UPDATE SET fail_count=0, blocked_until='epoch', updated_at=$3`
	_, err := l.db.Exec(ctx, q, wallet, ipHash, l.now())
	return err
}

// Failure records a rejected attempt; blocks once maxFails is reached inside the window.
func (l *PG) Failure(ctx context.Context, wallet string, ipHash []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO signin_limiter (wallet_address, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1,$2,1,'epoch',$3)
ON CONFLICT (wallet_address, ip_hash) DO UPDATE
SET
  fail_count = CASE WHEN signin_limiter.updated_at < $4 THEN 1 ELSE signin_limiter.fail_count + 1 END,
  updated_at = $3
RETURNING fail_count`
	now := l.now()
	var fails int
	if err := l.db.QueryRow(ctx, q, wallet, ipHash, now, now.Add(-l.window)).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.maxFails {
		return false, 0, nil
	}
	const upd = `UPDATE signin_limiter SET blocked_until=$3 WHERE wallet_address=$1 AND ip_hash=$2`
	if _, err := l.db.Exec(ctx, upd, wallet, ipHash, now.Add(l.blockFor)); err != nil {
		return false, 0, err
	}
	return true, l.blockFor, nil
}
