package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/paywall/internal/crypto"
	"github.com/and161185/paywall/internal/errs"
	"github.com/and161185/paywall/internal/model"
	"github.com/and161185/paywall/internal/repository"
	"github.com/and161185/paywall/internal/wallet"
)

// maxAmountScale is the stablecoin precision accepted for amounts.
const maxAmountScale = 6

// ActionPurchase is the activity action recorded by the one-shot agent purchase.
const ActionPurchase = "purchase_content"

// PaymentClaim is a request to record a payment for an article.
type PaymentClaim struct {
	ArticleID int64
	Wallet    string
	Amount    string
	Type      string
	AgentID   string // ai_agent only
	TxHash    string // optional, human_wallet only
	Action    string // activity text override, ai_agent only
}

// SubmitResult is the recorded payment. Existing is set when an earlier payment
// for the same (article, wallet) was returned instead of creating a new one.
type SubmitResult struct {
	Payment  model.Payment
	Existing bool
}

// AgentPurchase is the one-round-trip purchase of an agent.
type AgentPurchase struct {
	ArticleID   int64
	AgentID     string
	AgentWallet string
	Metadata    map[string]any
}

// PurchaseResult carries the payment and the access decision taken right after it.
type PurchaseResult struct {
	Payment          model.Payment
	AlreadyPurchased bool
	Decision         Decision
	PurchasedAt      time.Time
}

// PaymentConfig holds the intake timings.
type PaymentConfig struct {
	ConfirmDelay time.Duration
	PendingTTL   time.Duration
	Currency     string
}

// PaymentService records payment claims and drives them to completion.
type PaymentService interface {
	// Submit validates and records a claim; the returned payment may still be pending.
	Submit(ctx context.Context, claim PaymentClaim) (SubmitResult, error)
	// Purchase records an agent payment and re-runs the access decision.
	Purchase(ctx context.Context, req AgentPurchase) (PurchaseResult, error)
	// Get loads a payment by id.
	Get(ctx context.Context, id int64) (*model.Payment, error)
	// ListByWallet returns every payment of a wallet.
	ListByWallet(ctx context.Context, addr string) ([]model.Payment, error)
	// SweepStale fails pending payments older than the pending TTL.
	SweepStale(ctx context.Context) ([]int64, error)
}

type PaymentServiceImpl struct {
	articles   repository.ArticleRepository
	payments   repository.PaymentRepository
	activities repository.ActivityRepository
	stats      StatsRecomputer
	access     AccessService
	sched      *Scheduler
	cfg        PaymentConfig
	log        *zap.Logger
	now        func() time.Time
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(ledger repository.Ledger, stats StatsRecomputer, access AccessService, sched *Scheduler, cfg PaymentConfig, log *zap.Logger) *PaymentServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = "USDC"
	}
	return &PaymentServiceImpl{
		articles:   ledger.Articles,
		payments:   ledger.Payments,
		activities: ledger.Activities,
		stats:      stats,
		access:     access,
		sched:      sched,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// Submit validates the claim, short-circuits on an existing payment and records a new one.
// Rules:
// - article exists
// - wallet is a hex address
// - amount is a decimal with at most 6 fractional digits, not below the price
// - type is human_wallet (alias "wallet") or ai_agent
func (s *PaymentServiceImpl) Submit(ctx context.Context, claim PaymentClaim) (SubmitResult, error) {
	addr, ok := wallet.Normalize(claim.Wallet)
	if !ok {
		return SubmitResult{}, errs.Invalid("walletAddress", "must be a 0x-prefixed 20-byte hex address")
	}
	typ, ok := model.ParsePaymentType(claim.Type)
	if !ok {
		return SubmitResult{}, errs.Invalid("paymentType", "must be human_wallet or ai_agent")
	}
	amount, err := parseAmount(claim.Amount)
	if err != nil {
		return SubmitResult{}, err
	}
	art, err := s.articles.Get(ctx, claim.ArticleID)
	if err != nil {
		return SubmitResult{}, err
	}
	if amount.LessThan(art.Price) {
		return SubmitResult{}, errs.Invalid("amount", "below article price "+art.Price.String())
	}

	existing, err := s.payments.FindOpen(ctx, art.ID, addr)
	switch {
	case err == nil && (existing.Status == model.StatusCompleted || typ == model.PaymentHumanWallet):
		return SubmitResult{Payment: *existing, Existing: true}, nil
	case err == nil:
		// An agent claim settles the pending one instead of adding a second charge.
		s.sched.Cancel(existing.ID)
		done, err := s.settleNow(ctx, *existing, claim.Action)
		if err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Payment: *done, Existing: true}, nil
	case !errors.Is(err, errs.ErrNotFound):
		return SubmitResult{}, fmt.Errorf("find open payment: %w", err)
	}

	p := model.Payment{
		ArticleID:     art.ID,
		WalletAddress: addr,
		Amount:        amount,
		Status:        model.StatusPending,
		Type:          typ,
	}
	if typ == model.PaymentAIAgent {
		p.AgentID = strings.TrimSpace(claim.AgentID)
		if p.AgentID == "" {
			p.AgentID = generatedAgentID()
		}
	}
	created, err := s.payments.Create(ctx, p)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("create payment: %w", err)
	}

	if typ == model.PaymentAIAgent {
		done, err := s.settleNow(ctx, *created, claim.Action)
		if err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Payment: *done}, nil
	}

	txHash := strings.ToLower(strings.TrimSpace(claim.TxHash))
	pending := *created
	s.sched.Schedule(pending.ID, s.cfg.ConfirmDelay, func(ctx context.Context) {
		hash := txHash
		if hash == "" {
			var err error
			if hash, err = pkgcrypto.SyntheticTxHash(); err != nil {
				s.log.Error("synthetic tx hash", zap.Error(err))
				return
			}
		}
		if err := s.complete(ctx, pending, hash, ""); err != nil {
			s.log.Error("complete payment", zap.Int64("payment", pending.ID), zap.Error(err))
		}
	})
	return SubmitResult{Payment: *created}, nil
}

// settleNow completes p with a generated agent transaction id and reloads it.
func (s *PaymentServiceImpl) settleNow(ctx context.Context, p model.Payment, action string) (*model.Payment, error) {
	txID, err := pkgcrypto.AgentTxID(s.now())
	if err != nil {
		return nil, err
	}
	if err := s.complete(ctx, p, txID, action); err != nil {
		return nil, err
	}
	return s.payments.Get(ctx, p.ID)
}

// complete moves p to completed, refreshes stats and logs agent activity.
func (s *PaymentServiceImpl) complete(ctx context.Context, p model.Payment, txHash, action string) error {
	err := s.payments.UpdateStatus(ctx, p.ID, model.StatusCompleted, txHash)
	if errors.Is(err, errs.ErrInvalidTransition) {
		s.log.Info("payment no longer pending", zap.Int64("payment", p.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("complete payment %d: %w", p.ID, err)
	}
	s.log.Info("payment completed",
		zap.Int64("payment", p.ID),
		zap.Int64("article", p.ArticleID),
		zap.String("type", string(p.Type)),
	)

	if _, err := s.stats.Recompute(ctx); err != nil {
		s.log.Warn("stats recompute", zap.Error(err))
	}
	if p.Type != model.PaymentAIAgent {
		return nil
	}
	if action == "" {
		action = fmt.Sprintf("Payment %s %s -> Article #%d", p.Amount.String(), s.cfg.Currency, p.ArticleID)
	}
	articleID, amount := p.ArticleID, p.Amount
	if _, err := s.activities.Append(ctx, model.AgentActivity{
		AgentID:   p.AgentID,
		Action:    action,
		ArticleID: &articleID,
		Amount:    &amount,
		Status:    string(model.StatusCompleted),
	}); err != nil {
		s.log.Warn("append agent activity", zap.Error(err))
	}
	return nil
}

// Purchase submits an ai_agent payment at the article price and decides access in one call.
func (s *PaymentServiceImpl) Purchase(ctx context.Context, req AgentPurchase) (PurchaseResult, error) {
	if req.ArticleID <= 0 {
		return PurchaseResult{}, errs.Invalid("articleId", "required")
	}
	if strings.TrimSpace(req.AgentID) == "" {
		return PurchaseResult{}, errs.Invalid("agentId", "required")
	}
	if strings.TrimSpace(req.AgentWallet) == "" {
		return PurchaseResult{}, errs.Invalid("agentWallet", "required")
	}
	art, err := s.articles.Get(ctx, req.ArticleID)
	if err != nil {
		return PurchaseResult{}, err
	}
	res, err := s.Submit(ctx, PaymentClaim{
		ArticleID: art.ID,
		Wallet:    req.AgentWallet,
		Amount:    art.Price.String(),
		Type:      string(model.PaymentAIAgent),
		AgentID:   req.AgentID,
		Action:    ActionPurchase,
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	d, err := s.access.Decide(ctx, AccessRequest{ArticleID: art.ID, Wallet: req.AgentWallet, Agent: true})
	if err != nil {
		return PurchaseResult{}, err
	}
	return PurchaseResult{
		Payment:          res.Payment,
		AlreadyPurchased: res.Existing,
		Decision:         d,
		PurchasedAt:      s.now(),
	}, nil
}

// Get loads a payment by id.
func (s *PaymentServiceImpl) Get(ctx context.Context, id int64) (*model.Payment, error) {
	return s.payments.Get(ctx, id)
}

// ListByWallet returns every payment of a wallet, oldest first.
func (s *PaymentServiceImpl) ListByWallet(ctx context.Context, addr string) ([]model.Payment, error) {
	norm, ok := wallet.Normalize(addr)
	if !ok {
		return nil, errs.Invalid("address", "must be a 0x-prefixed 20-byte hex address")
	}
	return s.payments.ListByWallet(ctx, norm)
}

// SweepStale fails pending payments older than PendingTTL and cancels their completion tasks.
func (s *PaymentServiceImpl) SweepStale(ctx context.Context) ([]int64, error) {
	if s.cfg.PendingTTL <= 0 {
		return nil, nil
	}
	ids, err := s.payments.MarkStalePending(ctx, s.now().Add(-s.cfg.PendingTTL))
	if err != nil {
		return nil, fmt.Errorf("mark stale pending: %w", err)
	}
	for _, id := range ids {
		s.sched.Cancel(id)
	}
	if len(ids) > 0 {
		s.log.Info("failed stale payments", zap.Int64s("payments", ids))
	}
	return ids, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errs.Invalid("amount", "required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errs.Invalid("amount", "must be a decimal string")
	}
	if d.Sign() <= 0 {
		return decimal.Zero, errs.Invalid("amount", "must be positive")
	}
	if !d.Equal(d.Round(maxAmountScale)) {
		return decimal.Zero, errs.Invalid("amount", "at most 6 fractional digits")
	}
	return d, nil
}

func generatedAgentID() string {
	n, err := pkgcrypto.NewNonce(8)
	if err != nil {
		return "Agent_anon"
	}
	return "Agent_" + n[:6]
}
