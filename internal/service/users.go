package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/and161185/paywall/internal/errs"
	"github.com/and161185/paywall/internal/model"
	"github.com/and161185/paywall/internal/repository"
	"github.com/and161185/paywall/internal/wallet"
)

// UserService records wallet connections.
type UserService interface {
	// Connect creates or refreshes the user of a wallet. An empty balance keeps the stored one.
	Connect(ctx context.Context, addr, balance string) (*model.User, error)
}

type UserServiceImpl struct {
	users repository.UserRepository
}

// NewUserService constructs UserService.
func NewUserService(users repository.UserRepository) *UserServiceImpl {
	return &UserServiceImpl{users: users}
}

// Connect validates the address and optional balance and upserts the user.
func (s *UserServiceImpl) Connect(ctx context.Context, addr, balance string) (*model.User, error) {
	norm, ok := wallet.Normalize(addr)
	if !ok {
		return nil, errs.Invalid("walletAddress", "must be a 0x-prefixed 20-byte hex address")
	}
	var bal *decimal.Decimal
	if b := strings.TrimSpace(balance); b != "" {
		d, err := decimal.NewFromString(b)
		if err != nil || d.Sign() < 0 {
			return nil, errs.Invalid("balance", "must be a non-negative decimal")
		}
		bal = &d
	}
	return s.users.UpsertWallet(ctx, norm, bal)
}
