package service

import (
	"context"
	"errors"
	"testing"

	"github.com/and161185/paywall/internal/errs"
)

func TestUsers_Connect(t *testing.T) {
	t.Parallel()
	l := newLedger()
	s := NewUserService(l.Users)
	ctx := context.Background()

	if _, err := s.Connect(ctx, "0x1", ""); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	if _, err := s.Connect(ctx, readerAddr, "-1"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("negative balance: %v", err)
	}

	u, err := s.Connect(ctx, "0x0000000000000000000000000000000000000ABC", "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if u.WalletAddress != readerAddr || !u.USDCBalance.IsZero() {
		t.Fatalf("bad user: %+v", u)
	}

	u2, err := s.Connect(ctx, readerAddr, "12.5")
	if err != nil || u2.ID != u.ID || u2.USDCBalance.String() != "12.5" {
		t.Fatalf("reconnect must update the same user: %+v err=%v", u2, err)
	}
	u3, _ := s.Connect(ctx, readerAddr, "")
	if u3.USDCBalance.String() != "12.5" {
		t.Fatalf("empty balance keeps the stored one, got %s", u3.USDCBalance)
	}
}
