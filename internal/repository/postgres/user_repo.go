package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/and161185/paywall/internal/errs"
	"github.com/and161185/paywall/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u       model.User
		balance string
	)
	if err := row.Scan(&u.ID, &u.WalletAddress, &balance, &u.CreatedAt); err != nil {
		return nil, err
	}
	b, err := parseAmount("usdc_balance", balance)
	if err != nil {
		return nil, err
	}
	u.USDCBalance = b
	return &u, nil
}

// UpsertWallet inserts the wallet's user or refreshes its balance when one is given.
func (r *UserRepo) UpsertWallet(ctx context.Context, wallet string, balance *decimal.Decimal) (*model.User, error) {
	const q = `
INSERT INTO users (wallet_address, usdc_balance)
VALUES ($1, COALESCE($2::numeric, 0))
ON CONFLICT (wallet_address)
DO UPDATE SET usdc_balance = COALESCE($2::numeric, users.usdc_balance)
RETURNING id, wallet_address, usdc_balance::text, created_at`
	var bal *string
	if balance != nil {
		s := balance.String()
		bal = &s
	}
	return scanUser(r.db.Pool.QueryRow(ctx, q, wallet, bal))
}

// GetByWallet selects a user by wallet.
func (r *UserRepo) GetByWallet(ctx context.Context, wallet string) (*model.User, error) {
	const q = `SELECT id, wallet_address, usdc_balance::text, created_at FROM users WHERE wallet_address=$1`
	u, err := scanUser(r.db.Pool.QueryRow(ctx, q, wallet))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}
