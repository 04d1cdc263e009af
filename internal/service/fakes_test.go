package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/and161185/paywall/internal/limiter"
	"github.com/and161185/paywall/internal/model"
	"github.com/and161185/paywall/internal/repository"
	"github.com/and161185/paywall/internal/repository/memory"
)

const (
	creatorAddr = "0x36f322fc85b24ab13263cfe9217b28f8e2b38381"
	readerAddr  = "0x0000000000000000000000000000000000000abc"
	agentAddr   = "0x0000000000000000000000000000000000000def"
)

type fakeChain struct {
	mu       sync.Mutex
	transfer *model.Transfer // nil: nothing qualifies
	calls    int
	lastMin  decimal.Decimal
	lastTo   string
}

var _ ChainChecker = (*fakeChain)(nil)

func (f *fakeChain) FindQualifyingTransfer(_ context.Context, payer, recipient string, minimum decimal.Decimal) (*model.Transfer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastMin, f.lastTo = minimum, recipient
	if f.transfer == nil || f.transfer.From != payer {
		return nil, false
	}
	need := minimum.Shift(6).Ceil().BigInt()
	if f.transfer.Value.Cmp(need) < 0 {
		return nil, false
	}
	t := *f.transfer
	return &t, true
}

func (f *fakeChain) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStats struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeStats) Recompute(context.Context) (model.ProtocolStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return model.ProtocolStats{}, f.err
}

func (f *fakeStats) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// brokenPayments fails every call; used to check error propagation.
type brokenPayments struct{ repository.PaymentRepository }

var errStorage = errors.New("storage down")

func (brokenPayments) FindCompleted(context.Context, int64, string) ([]model.Payment, error) {
	return nil, errStorage
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

func newLedger() repository.Ledger { return memory.NewLedger(memory.DefaultActivityCap) }

func addArticle(t interface{ Fatalf(string, ...any) }, l repository.Ledger, price string) *model.Article {
	a, err := l.Articles.Create(context.Background(), model.NewArticle{
		Title:    "Premium " + price,
		Excerpt:  "teaser",
		Content:  "the locked body",
		Price:    decimal.RequireFromString(price),
		Category: "AI",
		Author:   "tester",
		IsLocked: true,
	})
	if err != nil {
		t.Fatalf("create article: %v", err)
	}
	return a
}

func accessConfig() AccessConfig {
	return AccessConfig{
		Creator:            creatorAddr,
		Currency:           "USDC",
		Network:            "base-sepolia",
		ChainID:            84532,
		PersistChainGrants: true,
	}
}
