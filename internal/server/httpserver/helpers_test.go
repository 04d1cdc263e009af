package httpserver

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/paywall/internal/chain"
	"github.com/and161185/paywall/internal/limiter"
	"github.com/and161185/paywall/internal/model"
	"github.com/and161185/paywall/internal/repository"
	"github.com/and161185/paywall/internal/repository/memory"
	"github.com/and161185/paywall/internal/service"
)

const (
	agentWallet  = "0x000000000000000000000000000000000000DEF1"
	readerWallet = "0x0000000000000000000000000000000000000abc"
)

// stubSource serves a fixed list of transfers.
type stubSource struct {
	mu        sync.Mutex
	transfers []model.Transfer
}

func (s *stubSource) TransfersTo(_ context.Context, q chain.Query) ([]model.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Transfer
	for _, t := range s.transfers {
		if t.To == q.Recipient && (q.From == "" || t.From == q.From) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stubSource) add(t model.Transfer) {
	s.mu.Lock()
	s.transfers = append(s.transfers, t)
	s.mu.Unlock()
}

type testEnv struct {
	t           *testing.T
	router      *gin.Engine
	ledger      repository.Ledger
	src         *stubSource
	article     *model.Article
	creator     *ecdsa.PrivateKey
	creatorAddr string // lowercase
}

func newEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	creator := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())

	l := memory.NewLedger(memory.DefaultActivityCap)
	art, err := l.Articles.Create(context.Background(), model.NewArticle{
		Title:    "Autonomous AI Agents in Web3 Payments",
		Excerpt:  "How intelligent agents pay",
		Content:  "the locked body",
		Price:    decimal.RequireFromString("1.50"),
		Category: "AI",
		Author:   "Alex",
		IsLocked: true,
	})
	require.NoError(t, err)

	src := &stubSource{}
	verifier := chain.NewVerifier(src, 6, time.Second, log)
	stats := service.NewStatsService(l.Articles, l.Payments, l.Stats)
	access := service.NewAccessService(l.Articles, l.Payments, verifier, stats, service.AccessConfig{
		Creator: creator, Currency: "USDC", Network: "base-sepolia", ChainID: 84532, PersistChainGrants: true,
	}, log)
	sched := service.NewScheduler()
	t.Cleanup(sched.Stop)
	payments := service.NewPaymentService(l, stats, access, sched, service.PaymentConfig{ConfirmDelay: time.Hour, PendingTTL: 2 * time.Hour}, log)
	auth := service.NewAuthService(service.AuthConfig{
		Domain: "localhost:5000", ChainID: 84532, SignKey: []byte("test-session-key-test-session-key"), SessionTTL: time.Hour,
	}, service.NewNonceStore(time.Minute), limiter.NewMemory(limiter.DefaultWindow, limiter.DefaultMaxFails, limiter.DefaultBlockFor), log)

	cfg := Config{Creator: creator, Currency: "USDC", Network: "base-sepolia", SessionTTL: time.Hour}
	for _, m := range mutate {
		m(&cfg)
	}
	srv := New(Services{
		Access:   access,
		Payments: payments,
		Articles: service.NewArticleService(l.Articles, stats, log),
		Auth:     auth,
		Stats:    stats,
		Activity: service.NewActivityService(l.Activities),
		Users:    service.NewUserService(l.Users),
		Chain:    verifier,
	}, cfg, log)

	return &testEnv{t: t, router: srv.Router(), ledger: l, src: src, article: art, creator: key, creatorAddr: creator}
}

func (e *testEnv) do(method, path string, body any, hdr ...string) *httptest.ResponseRecorder {
	e.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatalf("no session cookie set")
	return nil
}

// signIn runs nonce -> sign -> verify for key and returns the session cookie header.
func (e *testEnv) signIn(key *ecdsa.PrivateKey) string {
	e.t.Helper()
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	w := e.do(http.MethodGet, "/api/auth/nonce?address="+addr, nil)
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	msg := decode(e.t, w)["message"].(string)

	sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), key)
	require.NoError(e.t, err)
	sig[crypto.RecoveryIDOffset] += 27

	w = e.do(http.MethodPost, "/api/auth/verify", map[string]string{"message": msg, "signature": "0x" + hex.EncodeToString(sig)})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	c := sessionCookie(e.t, w)
	require.True(e.t, c.HttpOnly)
	return c.Name + "=" + c.Value
}

func transfer(from, to string, base int64, hash string) model.Transfer {
	return model.Transfer{From: strings.ToLower(from), To: strings.ToLower(to), Value: big.NewInt(base), TxHash: hash}
}
