package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/paywall/internal/crypto"
	"github.com/and161185/paywall/internal/errs"
	"github.com/and161185/paywall/internal/limiter"
	"github.com/and161185/paywall/internal/siwe"
	"github.com/and161185/paywall/internal/wallet"
)

const signInStatement = "Sign in to unlock premium content and publish articles."

// AuthConfig holds the sign-in parameters.
type AuthConfig struct {
	Domain     string // expected message domain
	URI        string // URI written into issued messages
	ChainID    int64
	SignKey    []byte
	SessionTTL time.Duration
}

// SignInChallenge is an issued, not yet signed, sign-in message.
type SignInChallenge struct {
	Message   string
	Nonce     string
	ExpiresAt time.Time
}

// Session is an established wallet session.
type Session struct {
	Address   string
	Token     string
	ExpiresAt time.Time
}

// AuthService implements sign-in-with-wallet and session tokens.
type AuthService interface {
	// IssueChallenge returns a fresh message for address to sign.
	IssueChallenge(ctx context.Context, address string) (SignInChallenge, error)
	// VerifyWithIP checks a signed message, applying rate limiting per (address, ip).
	VerifyWithIP(ctx context.Context, message, signature, ip string) (Session, error)
	// ParseSession validates a session token and returns its address.
	ParseSession(token string) (string, error)
}

type AuthServiceImpl struct {
	cfg    AuthConfig
	nonces *NonceStore
	lim    limiter.Limiter
	log    *zap.Logger
	now    func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(cfg AuthConfig, nonces *NonceStore, lim limiter.Limiter, log *zap.Logger) *AuthServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.URI == "" {
		cfg.URI = "http://" + cfg.Domain
	}
	return &AuthServiceImpl{cfg: cfg, nonces: nonces, lim: lim, log: log, now: time.Now}
}

// IssueChallenge builds an EIP-4361 message bound to a fresh single-use nonce.
func (s *AuthServiceImpl) IssueChallenge(_ context.Context, address string) (SignInChallenge, error) {
	if !wallet.IsAddress(address) {
		return SignInChallenge{}, errs.Invalid("address", "must be a 0x-prefixed 20-byte hex address")
	}
	nonce, err := pkgcrypto.NewNonce(16)
	if err != nil {
		return SignInChallenge{}, err
	}
	now := s.now().UTC().Truncate(time.Second)
	exp := s.nonces.Put(nonce, wallet.Lower(address))
	msg := siwe.Message{
		Domain:         s.cfg.Domain,
		Address:        address,
		Statement:      signInStatement,
		URI:            s.cfg.URI,
		Version:        "1",
		ChainID:        s.cfg.ChainID,
		Nonce:          nonce,
		IssuedAt:       now,
		ExpirationTime: exp.UTC().Truncate(time.Second),
	}
	text, err := msg.Encode()
	if err != nil {
		return SignInChallenge{}, fmt.Errorf("encode sign-in message: %w", err)
	}
	return SignInChallenge{Message: text, Nonce: nonce, ExpiresAt: exp}, nil
}

// VerifyWithIP authenticates a signed message with rate limiting by (address, ip).
func (s *AuthServiceImpl) VerifyWithIP(ctx context.Context, message, signature, ip string) (Session, error) {
	m, err := siwe.Parse(message)
	if err != nil {
		return Session{}, errs.Invalid("message", err.Error())
	}
	addr := wallet.Lower(m.Address)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, addr, ipHash)
	if err != nil {
		return Session{}, err
	}
	if !allowed {
		return Session{}, errs.ErrRateLimited
	}

	if reason := s.check(m, message, signature); reason != nil {
		s.log.Info("sign-in rejected", zap.String("address", addr), zap.Error(reason))
		if blocked, _, ferr := s.lim.Failure(ctx, addr, ipHash); ferr == nil && blocked {
			return Session{}, errs.ErrRateLimited
		}
		return Session{}, fmt.Errorf("%w: %v", errs.ErrInvalidSignature, reason)
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, addr, ipHash)
	return s.issueSession(addr)
}

// check returns why a parsed message must be rejected, or nil.
func (s *AuthServiceImpl) check(m *siwe.Message, raw, signature string) error {
	if err := m.Validate(s.cfg.Domain, s.now()); err != nil {
		return err
	}
	if s.cfg.ChainID != 0 && m.ChainID != s.cfg.ChainID {
		return fmt.Errorf("chain id %d", m.ChainID)
	}
	if _, err := siwe.Verify(raw, signature); err != nil {
		return err
	}
	if !s.nonces.Consume(m.Nonce, wallet.Lower(m.Address)) {
		return errors.New("unknown or used nonce")
	}
	return nil
}

// issueSession creates a signed HS256 JWT whose subject is the wallet address.
func (s *AuthServiceImpl) issueSession(addr string) (Session, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return Session{}, err
	}
	now := s.now()
	exp := now.Add(s.cfg.SessionTTL)
	claims := jwt.RegisteredClaims{
		ID:        jti.String(),
		Subject:   addr,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.cfg.SignKey)
	if err != nil {
		return Session{}, err
	}
	return Session{Address: addr, Token: signed, ExpiresAt: exp}, nil
}

// ParseSession validates an HS256 session token and returns the wallet address.
func (s *AuthServiceImpl) ParseSession(token string) (string, error) {
	if token == "" {
		return "", errs.ErrUnauthorized
	}
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.cfg.SignKey, nil
	}, jwt.WithLeeway(30*time.Second), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return "", errs.ErrUnauthorized
	}
	addr, ok := wallet.Normalize(claims.Subject)
	if !ok {
		return "", errs.ErrUnauthorized
	}
	return addr, nil
}
