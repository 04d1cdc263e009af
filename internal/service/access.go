// Package service contains the paywall application services: access decisions,
// payment intake, stats, sign-in and the agent activity log.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/and161185/paywall/internal/errs"
	"github.com/and161185/paywall/internal/model"
	"github.com/and161185/paywall/internal/repository"
	"github.com/and161185/paywall/internal/wallet"
)

// Outcome is the result class of an access decision.
type Outcome string

// Decision outcomes.
const (
	OutcomeAllow           Outcome = "ALLOW"
	OutcomeDeny            Outcome = "DENY"
	OutcomePaymentRequired Outcome = "PAYMENT_REQUIRED"
)

// State is a step of the per-request access state machine.
type State string

// Access states, visited in order. A decision ends in GRANTED or CHALLENGED.
const (
	StateCheckingIdentity State = "CHECKING_IDENTITY"
	StateCheckingLedger   State = "CHECKING_LEDGER"
	StateCheckingChain    State = "CHECKING_CHAIN"
	StateGranted          State = "GRANTED"
	StateChallenged       State = "CHALLENGED"
)

// GrantSource tells which check released the content.
type GrantSource string

// Grant sources.
const (
	SourceCreator GrantSource = "creator"
	SourceLedger  GrantSource = "ledger"
	SourceChain   GrantSource = "chain"
)

// DenyNotFound is the deny reason for unknown articles.
const DenyNotFound = "not_found"

// Endpoint paths announced in challenges.
const (
	PaymentEndpoint  = "/api/payments"
	PurchaseEndpoint = "/api/ai/purchase"
)

// UnlockEndpoint returns the re-request path for an article.
func UnlockEndpoint(articleID int64) string {
	return fmt.Sprintf("/api/articles/%d/unlock", articleID)
}

// AccessEndpoint returns the read path of an article.
func AccessEndpoint(articleID int64) string {
	return fmt.Sprintf("/api/articles/%d", articleID)
}

// AccessRequest is one read attempt.
type AccessRequest struct {
	ArticleID int64
	Wallet    string // optional claimed identity
	Agent     bool   // response shaping only
}

// Challenge is the payment-required payload.
type Challenge struct {
	Amount           decimal.Decimal
	Currency         string
	Recipient        string
	Network          string
	ChainID          int64
	PaymentEndpoint  string
	UnlockEndpoint   string
	PurchaseEndpoint string
}

// Decision is the outcome of Decide. Article is set for ALLOW and PAYMENT_REQUIRED.
type Decision struct {
	Outcome   Outcome
	Reason    string // DENY only
	Article   *model.Article
	Source    GrantSource // ALLOW only
	Challenge *Challenge  // PAYMENT_REQUIRED only
	Wallet    string      // normalised identity, empty if none
	Agent     bool
	Path      []State
}

// Allowed reports whether content may be released.
func (d Decision) Allowed() bool { return d.Outcome == OutcomeAllow }

// AccessCheck is the boolean form used by the payments check endpoint.
type AccessCheck struct {
	HasAccess bool
	Source    GrantSource
}

// ChainChecker is the part of the chain verifier the engine needs.
type ChainChecker interface {
	FindQualifyingTransfer(ctx context.Context, payer, recipient string, minimum decimal.Decimal) (*model.Transfer, bool)
}

// StatsRecomputer refreshes the aggregate stats.
type StatsRecomputer interface {
	Recompute(ctx context.Context) (model.ProtocolStats, error)
}

// AccessConfig is the static payment metadata and policy of the engine.
type AccessConfig struct {
	Creator            string
	Recipient          string
	Currency           string
	Network            string
	ChainID            int64
	PersistChainGrants bool
}

// AccessService decides whether article content may be released.
type AccessService interface {
	// Decide runs identity, ledger and chain checks for one request.
	Decide(ctx context.Context, req AccessRequest) (Decision, error)
	// CheckAccess reports whether wallet may read the article, requiring at least minimum paid.
	CheckAccess(ctx context.Context, articleID int64, wallet string, minimum decimal.Decimal) (AccessCheck, error)
	// IsCreator reports whether addr is the configured creator identity.
	IsCreator(addr string) bool
}

type AccessServiceImpl struct {
	articles repository.ArticleRepository
	payments repository.PaymentRepository
	chain    ChainChecker
	stats    StatsRecomputer
	cfg      AccessConfig
	log      *zap.Logger
}

// NewAccessService constructs the engine. stats may be nil.
func NewAccessService(articles repository.ArticleRepository, payments repository.PaymentRepository, chain ChainChecker, stats StatsRecomputer, cfg AccessConfig, log *zap.Logger) *AccessServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	cfg.Creator = wallet.Lower(cfg.Creator)
	cfg.Recipient = wallet.Lower(cfg.Recipient)
	if cfg.Recipient == "" {
		cfg.Recipient = cfg.Creator
	}
	return &AccessServiceImpl{articles: articles, payments: payments, chain: chain, stats: stats, cfg: cfg, log: log}
}

// IsCreator reports whether addr is the configured creator identity.
func (s *AccessServiceImpl) IsCreator(addr string) bool {
	return wallet.Equal(addr, s.cfg.Creator)
}

// Decide runs the access state machine:
// CHECKING_IDENTITY -> CHECKING_LEDGER -> CHECKING_CHAIN -> GRANTED | CHALLENGED.
// Only storage failures are returned as errors.
func (s *AccessServiceImpl) Decide(ctx context.Context, req AccessRequest) (Decision, error) {
	d := Decision{Agent: req.Agent, Path: []State{StateCheckingIdentity}}

	art, err := s.articles.Get(ctx, req.ArticleID)
	if errors.Is(err, errs.ErrNotFound) {
		d.Outcome, d.Reason = OutcomeDeny, DenyNotFound
		return d, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("load article %d: %w", req.ArticleID, err)
	}
	d.Article = art

	if addr, ok := wallet.Normalize(req.Wallet); ok {
		d.Wallet = addr
	}
	if d.Wallet != "" && s.IsCreator(d.Wallet) {
		return s.grant(d, SourceCreator), nil
	}
	if d.Wallet == "" {
		return s.challenge(d), nil
	}

	d.Path = append(d.Path, StateCheckingLedger)
	ok, err := s.ledgerGrant(ctx, art.ID, d.Wallet, art.Price)
	if err != nil {
		return Decision{}, err
	}
	if ok {
		return s.grant(d, SourceLedger), nil
	}

	d.Path = append(d.Path, StateCheckingChain)
	if t, ok := s.chain.FindQualifyingTransfer(ctx, d.Wallet, s.cfg.Recipient, art.Price); ok {
		s.persistChainGrant(ctx, art, d.Wallet, t)
		return s.grant(d, SourceChain), nil
	}
	return s.challenge(d), nil
}

// CheckAccess reports whether wallet may read the article. minimum never goes below the price.
func (s *AccessServiceImpl) CheckAccess(ctx context.Context, articleID int64, addr string, minimum decimal.Decimal) (AccessCheck, error) {
	norm, ok := wallet.Normalize(addr)
	if !ok {
		return AccessCheck{}, errs.Invalid("walletAddress", "must be a 0x-prefixed 20-byte hex address")
	}
	art, err := s.articles.Get(ctx, articleID)
	if err != nil {
		return AccessCheck{}, err
	}
	if minimum.LessThan(art.Price) {
		minimum = art.Price
	}
	if s.IsCreator(norm) {
		return AccessCheck{HasAccess: true, Source: SourceCreator}, nil
	}
	granted, err := s.ledgerGrant(ctx, articleID, norm, minimum)
	if err != nil {
		return AccessCheck{}, err
	}
	if granted {
		return AccessCheck{HasAccess: true, Source: SourceLedger}, nil
	}
	if t, ok := s.chain.FindQualifyingTransfer(ctx, norm, s.cfg.Recipient, minimum); ok {
		s.persistChainGrant(ctx, art, norm, t)
		return AccessCheck{HasAccess: true, Source: SourceChain}, nil
	}
	return AccessCheck{HasAccess: false}, nil
}

func (s *AccessServiceImpl) ledgerGrant(ctx context.Context, articleID int64, addr string, minimum decimal.Decimal) (bool, error) {
	done, err := s.payments.FindCompleted(ctx, articleID, addr)
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	for _, p := range done {
		if p.Amount.GreaterThanOrEqual(minimum) {
			return true, nil
		}
	}
	return false, nil
}

// persistChainGrant records a chain-verified transfer so later reads stop at the ledger.
// Failures are logged; the grant stands regardless.
func (s *AccessServiceImpl) persistChainGrant(ctx context.Context, art *model.Article, addr string, t *model.Transfer) {
	if !s.cfg.PersistChainGrants || t == nil {
		return
	}
	p := model.Payment{
		ArticleID:     art.ID,
		WalletAddress: addr,
		Amount:        art.Price,
		Status:        model.StatusCompleted,
		Type:          model.PaymentHumanWallet,
		TxHash:        t.TxHash,
	}
	if _, err := s.payments.Create(ctx, p); err != nil {
		s.log.Warn("persist chain grant", zap.Int64("article", art.ID), zap.String("wallet", addr), zap.Error(err))
		return
	}
	if s.stats != nil {
		if _, err := s.stats.Recompute(ctx); err != nil {
			s.log.Warn("stats recompute", zap.Error(err))
		}
	}
}

func (s *AccessServiceImpl) grant(d Decision, src GrantSource) Decision {
	d.Outcome = OutcomeAllow
	d.Source = src
	d.Path = append(d.Path, StateGranted)
	return d
}

func (s *AccessServiceImpl) challenge(d Decision) Decision {
	d.Outcome = OutcomePaymentRequired
	d.Challenge = &Challenge{
		Amount:           d.Article.Price,
		Currency:         s.cfg.Currency,
		Recipient:        s.cfg.Recipient,
		Network:          s.cfg.Network,
		ChainID:          s.cfg.ChainID,
		PaymentEndpoint:  PaymentEndpoint,
		UnlockEndpoint:   UnlockEndpoint(d.Article.ID),
		PurchaseEndpoint: PurchaseEndpoint,
	}
	d.Path = append(d.Path, StateChallenged)
	return d
}
