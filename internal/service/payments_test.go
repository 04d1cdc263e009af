package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/and161185/paywall/internal/errs"
	"github.com/and161185/paywall/internal/model"
	"github.com/and161185/paywall/internal/repository"
)

type paymentFixture struct {
	svc    *PaymentServiceImpl
	art    *model.Article
	ledger repository.Ledger
	stats  *fakeStats
	sched  *Scheduler
}

func newPayments(t *testing.T, cfg PaymentConfig) paymentFixture {
	t.Helper()
	l := newLedger()
	art := addArticle(t, l, "1.50")
	stats := &fakeStats{}
	sched := NewScheduler()
	t.Cleanup(sched.Stop)
	access := NewAccessService(l.Articles, l.Payments, &fakeChain{}, stats, accessConfig(), nil)
	return paymentFixture{
		svc:    NewPaymentService(l, stats, access, sched, cfg, nil),
		art:    art,
		ledger: l,
		stats:  stats,
		sched:  sched,
	}
}

func waitStatus(t *testing.T, svc PaymentService, id int64, want model.PaymentStatus) *model.Payment {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		p, err := svc.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get payment: %v", err)
		}
		if p.Status == want {
			return p
		}
		if time.Now().After(deadline) {
			t.Fatalf("payment %d: want %s, still %s", id, want, p.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmit_Validation(t *testing.T) {
	t.Parallel()
	f := newPayments(t, PaymentConfig{ConfirmDelay: time.Hour})

	valid := PaymentClaim{ArticleID: f.art.ID, Wallet: readerAddr, Amount: "1.50", Type: "human_wallet"}
	tests := []struct {
		name  string
		edit  func(c *PaymentClaim)
		field string
	}{
		{"bad wallet", func(c *PaymentClaim) { c.Wallet = "0x123" }, "walletAddress"},
		{"empty wallet", func(c *PaymentClaim) { c.Wallet = "" }, "walletAddress"},
		{"bad type", func(c *PaymentClaim) { c.Type = "card" }, "paymentType"},
		{"empty amount", func(c *PaymentClaim) { c.Amount = "" }, "amount"},
		{"not a number", func(c *PaymentClaim) { c.Amount = "abc" }, "amount"},
		{"negative", func(c *PaymentClaim) { c.Amount = "-1.50" }, "amount"},
		{"zero", func(c *PaymentClaim) { c.Amount = "0" }, "amount"},
		{"too precise", func(c *PaymentClaim) { c.Amount = "1.5000001" }, "amount"},
		{"below price", func(c *PaymentClaim) { c.Amount = "1.499999" }, "amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.edit(&c)
			_, err := f.svc.Submit(context.Background(), c)
			var ve *errs.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("want validation error on %s, got %v", tt.field, err)
			}
		})
	}

	c := valid
	c.ArticleID = 404
	if _, err := f.svc.Submit(context.Background(), c); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("unknown article: want ErrNotFound, got %v", err)
	}

	rows, _ := f.ledger.Payments.ListByWallet(context.Background(), readerAddr)
	if len(rows) != 0 {
		t.Fatalf("rejected claims must not be recorded, got %d", len(rows))
	}
}

func TestSubmit_HumanCompletesAfterDelay(t *testing.T) {
	t.Parallel()
	f := newPayments(t, PaymentConfig{ConfirmDelay: 10 * time.Millisecond})

	res, err := f.svc.Submit(context.Background(), PaymentClaim{ArticleID: f.art.ID, Wallet: readerAddr, Amount: "1.50", Type: "human_wallet"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Existing || res.Payment.Status != model.StatusPending {
		t.Fatalf("want new pending payment, got %+v", res)
	}

	done := waitStatus(t, f.svc, res.Payment.ID, model.StatusCompleted)
	if !strings.HasPrefix(done.TxHash, "0x") || len(done.TxHash) != 66 {
		t.Fatalf("want synthetic tx hash, got %q", done.TxHash)
	}
	if f.stats.Calls() == 0 {
		t.Fatalf("stats must be recomputed on completion")
	}
	acts, _ := f.ledger.Activities.Recent(context.Background(), 10)
	if len(acts) != 0 {
		t.Fatalf("human payments must not be logged as agent activity")
	}
}

func TestSubmit_HumanKeepsClaimedHash(t *testing.T) {
	t.Parallel()
	f := newPayments(t, PaymentConfig{ConfirmDelay: time.Millisecond})

	res, err := f.svc.Submit(context.Background(), PaymentClaim{
		ArticleID: f.art.ID, Wallet: readerAddr, Amount: "2", Type: "wallet", TxHash: "0xABCDEF",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Payment.Type != model.PaymentHumanWallet {
		t.Fatalf("wallet alias must map to human_wallet")
	}
	done := waitStatus(t, f.svc, res.Payment.ID, model.StatusCompleted)
	if done.TxHash != "0xabcdef" {
		t.Fatalf("want claimed hash, got %q", done.TxHash)
	}
}

func TestSubmit_IdempotentPerArticleAndWallet(t *testing.T) {
	t.Parallel()
	f := newPayments(t, PaymentConfig{ConfirmDelay: time.Hour})
	ctx := context.Background()
	claim := PaymentClaim{ArticleID: f.art.ID, Wallet: readerAddr, Amount: "1.50", Type: "human_wallet"}

	first, err := f.svc.Submit(ctx, claim)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	claim.Wallet = "0x" + strings.ToUpper(readerAddr[2:])
	second, err := f.svc.Submit(ctx, claim)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if !second.Existing || second.Payment.ID != first.Payment.ID {
		t.Fatalf("want the existing payment back, got %+v", second)
	}
	rows, _ := f.ledger.Payments.ListByWallet(ctx, readerAddr)
	if len(rows) != 1 {
		t.Fatalf("want one row, got %d", len(rows))
	}
	if f.sched.Pending() != 1 {
		t.Fatalf("want one scheduled completion, got %d", f.sched.Pending())
	}
}

func TestSubmit_AgentCompletesImmediately(t *testing.T) {
	t.Parallel()
	f := newPayments(t, PaymentConfig{ConfirmDelay: time.Hour})
	ctx := context.Background()

	res, err := f.svc.Submit(ctx, PaymentClaim{ArticleID: f.art.ID, Wallet: agentAddr, Amount: "1.50", Type: "ai_agent", AgentID: "Agent_Test"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	p := res.Payment
	if p.Status != model.StatusCompleted || p.AgentID != "Agent_Test" || !strings.HasPrefix(p.TxHash, "ai_") {
		t.Fatalf("want completed agent payment, got %+v", p)
	}
	if f.sched.Pending() != 0 {
		t.Fatalf("agent payments are not scheduled")
	}

	acts, _ := f.ledger.Activities.Recent(ctx, 10)
	if len(acts) != 1 || acts[0].AgentID != "Agent_Test" || acts[0].Status != "completed" {
		t.Fatalf("want one activity entry, got %+v", acts)
	}
	if acts[0].ArticleID == nil || *acts[0].ArticleID != f.art.ID || !acts[0].Amount.Equal(p.Amount) {
		t.Fatalf("activity must reference the payment: %+v", acts[0])
	}

	again, err := f.svc.Submit(ctx, PaymentClaim{ArticleID: f.art.ID, Wallet: agentAddr, Amount: "1.50", Type: "ai_agent"})
	if err != nil || !again.Existing || again.Payment.ID != p.ID {
		t.Fatalf("completed agent payment must be returned, got %+v err=%v", again, err)
	}
}

func TestSubmit_AgentSettlesPendingHumanClaim(t *testing.T) {
	t.Parallel()
	f := newPayments(t, PaymentConfig{ConfirmDelay: 30 * time.Millisecond})
	ctx := context.Background()

	human, err := f.svc.Submit(ctx, PaymentClaim{ArticleID: f.art.ID, Wallet: readerAddr, Amount: "1.50", Type: "human_wallet"})
	if err != nil {
		t.Fatalf("human submit: %v", err)
	}
	agent, err := f.svc.Submit(ctx, PaymentClaim{ArticleID: f.art.ID, Wallet: readerAddr, Amount: "1.50", Type: "ai_agent", AgentID: "Agent_Test"})
	if err != nil {
		t.Fatalf("agent submit: %v", err)
	}
	if !agent.Existing || agent.Payment.ID != human.Payment.ID || agent.Payment.Status != model.StatusCompleted {
		t.Fatalf("want the pending claim settled, got %+v", agent)
	}
	if !strings.HasPrefix(agent.Payment.TxHash, "ai_") {
		t.Fatalf("want agent tx id, got %q", agent.Payment.TxHash)
	}
	if f.sched.Pending() != 0 {
		t.Fatalf("pending completion must be cancelled, %d left", f.sched.Pending())
	}

	time.Sleep(100 * time.Millisecond)
	done, err := f.ledger.Payments.FindCompleted(ctx, f.art.ID, readerAddr)
	if err != nil {
		t.Fatalf("find completed: %v", err)
	}
	if len(done) != 1 {
		t.Fatalf("want one completed row, got %d", len(done))
	}
}

func TestSubmit_AgentWithoutIDGetsGenerated(t *testing.T) {
	t.Parallel()
	f := newPayments(t, PaymentConfig{})

	res, err := f.svc.Submit(context.Background(), PaymentClaim{ArticleID: f.art.ID, Wallet: agentAddr, Amount: "1.50", Type: "ai_agent"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.HasPrefix(res.Payment.AgentID, "Agent_") || len(res.Payment.AgentID) != len("Agent_")+6 {
		t.Fatalf("want generated agent id, got %q", res.Payment.AgentID)
	}
}

func TestPurchase(t *testing.T) {
	t.Parallel()
	f := newPayments(t, PaymentConfig{})
	ctx := context.Background()

	for _, bad := range []AgentPurchase{
		{AgentID: "a", AgentWallet: agentAddr},
		{ArticleID: f.art.ID, AgentWallet: agentAddr},
		{ArticleID: f.art.ID, AgentID: "a"},
	} {
		if _, err := f.svc.Purchase(ctx, bad); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("%+v: want validation error, got %v", bad, err)
		}
	}
	if _, err := f.svc.Purchase(ctx, AgentPurchase{ArticleID: 77, AgentID: "a", AgentWallet: agentAddr}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	res, err := f.svc.Purchase(ctx, AgentPurchase{ArticleID: f.art.ID, AgentID: "Agent_Buyer", AgentWallet: agentAddr})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if res.AlreadyPurchased || !res.Decision.Allowed() || res.Decision.Source != SourceLedger || !res.Decision.Agent {
		t.Fatalf("want fresh ledger ALLOW, got %+v", res)
	}
	if !res.Payment.Amount.Equal(f.art.Price) || res.Payment.Type != model.PaymentAIAgent {
		t.Fatalf("purchase pays the price as ai_agent: %+v", res.Payment)
	}
	acts, _ := f.ledger.Activities.Recent(ctx, 1)
	if len(acts) != 1 || acts[0].Action != ActionPurchase {
		t.Fatalf("want purchase activity, got %+v", acts)
	}

	again, err := f.svc.Purchase(ctx, AgentPurchase{ArticleID: f.art.ID, AgentID: "Agent_Buyer", AgentWallet: agentAddr})
	if err != nil {
		t.Fatalf("second purchase: %v", err)
	}
	if !again.AlreadyPurchased || again.Payment.ID != res.Payment.ID {
		t.Fatalf("want already purchased, got %+v", again)
	}
}

func TestListByWallet(t *testing.T) {
	t.Parallel()
	f := newPayments(t, PaymentConfig{ConfirmDelay: time.Hour})
	ctx := context.Background()

	if _, err := f.svc.ListByWallet(ctx, "bogus"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	if _, err := f.svc.Submit(ctx, PaymentClaim{ArticleID: f.art.ID, Wallet: readerAddr, Amount: "1.50", Type: "human_wallet"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	rows, err := f.svc.ListByWallet(ctx, "0x0000000000000000000000000000000000000ABC")
	if err != nil || len(rows) != 1 {
		t.Fatalf("want one row, got %d err=%v", len(rows), err)
	}
}

func TestSweepStale(t *testing.T) {
	t.Parallel()
	f := newPayments(t, PaymentConfig{ConfirmDelay: time.Hour, PendingTTL: time.Minute})
	ctx := context.Background()

	res, err := f.svc.Submit(ctx, PaymentClaim{ArticleID: f.art.ID, Wallet: readerAddr, Amount: "1.50", Type: "human_wallet"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ids, err := f.svc.SweepStale(ctx)
	if err != nil || len(ids) != 0 {
		t.Fatalf("fresh payment must survive, got %v err=%v", ids, err)
	}

	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	ids, err = f.svc.SweepStale(ctx)
	if err != nil || len(ids) != 1 || ids[0] != res.Payment.ID {
		t.Fatalf("want stale payment failed, got %v err=%v", ids, err)
	}
	if f.sched.Pending() != 0 {
		t.Fatalf("completion task must be cancelled")
	}
	p, _ := f.svc.Get(ctx, res.Payment.ID)
	if p.Status != model.StatusFailed {
		t.Fatalf("want failed, got %s", p.Status)
	}

	// a failed payment no longer blocks a new claim
	retry, err := f.svc.Submit(ctx, PaymentClaim{ArticleID: f.art.ID, Wallet: readerAddr, Amount: "1.50", Type: "human_wallet"})
	if err != nil || retry.Existing {
		t.Fatalf("want a new payment after failure, got %+v err=%v", retry, err)
	}
}

func TestComplete_IgnoresNonPending(t *testing.T) {
	t.Parallel()
	f := newPayments(t, PaymentConfig{ConfirmDelay: time.Hour})
	ctx := context.Background()

	p, _ := f.ledger.Payments.Create(ctx, model.Payment{ArticleID: f.art.ID, WalletAddress: readerAddr, Status: model.StatusFailed})
	if err := f.svc.complete(ctx, *p, "0x1", ""); err != nil {
		t.Fatalf("late completion must be a no-op, got %v", err)
	}
	got, _ := f.svc.Get(ctx, p.ID)
	if got.Status != model.StatusFailed {
		t.Fatalf("failed must stay failed, got %s", got.Status)
	}
}
