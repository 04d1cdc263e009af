package service

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/paywall/internal/errs"
	"github.com/and161185/paywall/internal/siwe"
)

type signer struct {
	key  *ecdsa.PrivateKey
	addr string // checksummed
}

func newSigner(t *testing.T) signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	return signer{key: key, addr: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (s signer) sign(t *testing.T, msg string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), s.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return "0x" + hex.EncodeToString(sig)
}

func newAuth(lim *fakeLimiter) *AuthServiceImpl {
	cfg := AuthConfig{Domain: "localhost:5000", ChainID: 84532, SignKey: []byte("0123456789abcdef0123456789abcdef"), SessionTTL: time.Hour}
	return NewAuthService(cfg, NewNonceStore(5*time.Minute), lim, nil)
}

func TestAuth_IssueChallenge(t *testing.T) {
	t.Parallel()
	s := newAuth(&fakeLimiter{allowOK: true})
	w := newSigner(t)

	if _, err := s.IssueChallenge(context.Background(), "nope"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	ch, err := s.IssueChallenge(context.Background(), w.addr)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	m, err := siwe.Parse(ch.Message)
	if err != nil {
		t.Fatalf("issued message must parse: %v", err)
	}
	if m.Domain != "localhost:5000" || m.Address != w.addr || m.Nonce != ch.Nonce || m.ChainID != 84532 || m.URI != "http://localhost:5000" {
		t.Fatalf("bad message: %+v", m)
	}
	if len(ch.Nonce) < 8 || !ch.ExpiresAt.After(time.Now()) {
		t.Fatalf("bad nonce or expiry: %+v", ch)
	}
}

func TestAuth_VerifyWithIP_Success(t *testing.T) {
	t.Parallel()
	lim := &fakeLimiter{allowOK: true}
	s := newAuth(lim)
	w := newSigner(t)

	ch, _ := s.IssueChallenge(context.Background(), w.addr)
	sess, err := s.VerifyWithIP(context.Background(), ch.Message, w.sign(t, ch.Message), "10.0.0.1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sess.Address != strings.ToLower(w.addr) || sess.Token == "" {
		t.Fatalf("bad session: %+v", sess)
	}
	if lim.successCalls != 1 || lim.failureCalls != 0 {
		t.Fatalf("limiter calls: success=%d failure=%d", lim.successCalls, lim.failureCalls)
	}

	addr, err := s.ParseSession(sess.Token)
	if err != nil || addr != sess.Address {
		t.Fatalf("parse session: %q %v", addr, err)
	}
}

func TestAuth_VerifyWithIP_NonceSingleUse(t *testing.T) {
	t.Parallel()
	lim := &fakeLimiter{allowOK: true}
	s := newAuth(lim)
	w := newSigner(t)

	ch, _ := s.IssueChallenge(context.Background(), w.addr)
	sig := w.sign(t, ch.Message)
	if _, err := s.VerifyWithIP(context.Background(), ch.Message, sig, "ip"); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if _, err := s.VerifyWithIP(context.Background(), ch.Message, sig, "ip"); !errors.Is(err, errs.ErrInvalidSignature) {
		t.Fatalf("replay must be rejected, got %v", err)
	}
	if lim.failureCalls != 1 {
		t.Fatalf("replay must count as a failure")
	}
}

func TestAuth_VerifyWithIP_Rejections(t *testing.T) {
	t.Parallel()
	w := newSigner(t)
	other := newSigner(t)

	t.Run("malformed message", func(t *testing.T) {
		lim := &fakeLimiter{allowOK: true}
		s := newAuth(lim)
		if _, err := s.VerifyWithIP(context.Background(), "hello", "0x00", "ip"); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("want validation error, got %v", err)
		}
		if lim.allowCalls != 0 {
			t.Fatalf("unparseable input must not touch the limiter")
		}
	})

	t.Run("wrong signer", func(t *testing.T) {
		lim := &fakeLimiter{allowOK: true}
		s := newAuth(lim)
		ch, _ := s.IssueChallenge(context.Background(), w.addr)
		if _, err := s.VerifyWithIP(context.Background(), ch.Message, other.sign(t, ch.Message), "ip"); !errors.Is(err, errs.ErrInvalidSignature) {
			t.Fatalf("want ErrInvalidSignature, got %v", err)
		}
		if lim.failureCalls != 1 || lim.successCalls != 0 {
			t.Fatalf("limiter calls: failure=%d success=%d", lim.failureCalls, lim.successCalls)
		}
	})

	t.Run("unknown nonce", func(t *testing.T) {
		s := newAuth(&fakeLimiter{allowOK: true})
		m := siwe.Message{
			Domain: "localhost:5000", Address: w.addr, URI: "http://localhost:5000", Version: "1",
			ChainID: 84532, Nonce: "neverissued1", IssuedAt: time.Now().UTC().Truncate(time.Second),
		}
		raw := m.String()
		if _, err := s.VerifyWithIP(context.Background(), raw, w.sign(t, raw), "ip"); !errors.Is(err, errs.ErrInvalidSignature) {
			t.Fatalf("want ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("foreign domain", func(t *testing.T) {
		s := newAuth(&fakeLimiter{allowOK: true})
		ch, _ := s.IssueChallenge(context.Background(), w.addr)
		raw := strings.Replace(ch.Message, "localhost:5000 wants", "evil.example wants", 1)
		if _, err := s.VerifyWithIP(context.Background(), raw, w.sign(t, raw), "ip"); !errors.Is(err, errs.ErrInvalidSignature) {
			t.Fatalf("want ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("wrong chain", func(t *testing.T) {
		s := newAuth(&fakeLimiter{allowOK: true})
		ch, _ := s.IssueChallenge(context.Background(), w.addr)
		raw := strings.Replace(ch.Message, "Chain ID: 84532", "Chain ID: 1", 1)
		if _, err := s.VerifyWithIP(context.Background(), raw, w.sign(t, raw), "ip"); !errors.Is(err, errs.ErrInvalidSignature) {
			t.Fatalf("want ErrInvalidSignature, got %v", err)
		}
	})
}

func TestAuth_VerifyWithIP_RateLimiter(t *testing.T) {
	t.Parallel()
	w := newSigner(t)

	// limiter error propagates
	s := newAuth(&fakeLimiter{allowErr: errors.New("db down")})
	ch, _ := s.IssueChallenge(context.Background(), w.addr)
	if _, err := s.VerifyWithIP(context.Background(), ch.Message, w.sign(t, ch.Message), "ip"); err == nil || errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want limiter error propagated, got %v", err)
	}

	// blocked before checking credentials
	lim := &fakeLimiter{allowOK: false}
	s = newAuth(lim)
	ch, _ = s.IssueChallenge(context.Background(), w.addr)
	if _, err := s.VerifyWithIP(context.Background(), ch.Message, w.sign(t, ch.Message), "ip"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	if lim.failureCalls != 0 || lim.successCalls != 0 {
		t.Fatalf("blocked request must not be evaluated")
	}

	// failure tips the block
	s = newAuth(&fakeLimiter{allowOK: true, failBlocked: true})
	ch, _ = s.IssueChallenge(context.Background(), w.addr)
	if _, err := s.VerifyWithIP(context.Background(), ch.Message, "0x"+strings.Repeat("00", 65), "ip"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited after blocking failure, got %v", err)
	}

	// reset errors are ignored
	s = newAuth(&fakeLimiter{allowOK: true, successErr: errors.New("ignored")})
	ch, _ = s.IssueChallenge(context.Background(), w.addr)
	if _, err := s.VerifyWithIP(context.Background(), ch.Message, w.sign(t, ch.Message), "ip"); err != nil {
		t.Fatalf("success reset errors are best-effort, got %v", err)
	}
}

func TestAuth_ParseSession(t *testing.T) {
	t.Parallel()
	s := newAuth(&fakeLimiter{allowOK: true})

	if _, err := s.ParseSession(""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("empty token: %v", err)
	}
	if _, err := s.ParseSession("not.a.jwt"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("garbage token: %v", err)
	}

	sess, err := s.issueSession(readerAddr)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := newAuth(&fakeLimiter{})
	other.cfg.SignKey = []byte("another-key-another-key-another!!")
	if _, err := other.ParseSession(sess.Token); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("foreign key must be rejected, got %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.ParseSession(sess.Token); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expired token must be rejected, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: readerAddr})
	raw, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := newAuth(&fakeLimiter{}).ParseSession(raw); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("alg none must be rejected, got %v", err)
	}
}
