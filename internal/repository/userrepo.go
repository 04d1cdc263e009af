// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/paywall/internal/model"
	"github.com/shopspring/decimal"
)

// UserRepository stores wallets that connected to the platform.
type UserRepository interface {
	// UpsertWallet creates the user for a wallet or updates its balance when balance is non-nil.
	UpsertWallet(ctx context.Context, wallet string, balance *decimal.Decimal) (*model.User, error)
	// GetByWallet loads a user by lowercase wallet address.
	GetByWallet(ctx context.Context, wallet string) (*model.User, error)
}
