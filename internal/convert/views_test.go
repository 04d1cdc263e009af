package convert

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/and161185/paywall/internal/chain"
	"github.com/and161185/paywall/internal/model"
	"github.com/and161185/paywall/internal/service"
)

func sampleArticle() model.Article {
	return model.Article{
		ID:        1,
		Title:     "Rollups",
		Excerpt:   "teaser",
		Content:   "the locked body",
		Price:     decimal.RequireFromString("1.50"),
		Category:  "AI",
		Author:    "Riley",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		IsLocked:  true,
	}
}

func TestAmount(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"1.5":      "1.50",
		"1.500000": "1.50",
		"3":        "3.00",
		"0.333333": "0.333333",
		"2.125":    "2.125",
	}
	for in, want := range cases {
		if got := Amount(decimal.RequireFromString(in)); got != want {
			t.Fatalf("Amount(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestPreview_HasNoContent(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(Preview(sampleArticle()))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	if _, ok := m["content"]; ok {
		t.Fatalf("preview must not carry content: %s", raw)
	}
	if m["hasAccess"] != false || m["price"] != "1.50" || m["excerpt"] != "teaser" {
		t.Fatalf("bad preview: %s", raw)
	}
}

func TestFull_CarriesContent(t *testing.T) {
	t.Parallel()

	raw, _ := json.Marshal(Full(sampleArticle()))
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	if m["content"] != "the locked body" || m["hasAccess"] != true || m["id"] != float64(1) {
		t.Fatalf("bad full view: %s", raw)
	}
}

func TestToPaymentRequired(t *testing.T) {
	t.Parallel()

	art := sampleArticle()
	if _, ok := ToPaymentRequired(service.Decision{Outcome: service.OutcomeAllow, Article: &art}); ok {
		t.Fatalf("no challenge, no 402 body")
	}
	d := service.Decision{
		Outcome: service.OutcomePaymentRequired,
		Article: &art,
		Challenge: &service.Challenge{
			Amount:          art.Price,
			Currency:        "USDC",
			Recipient:       "0xabc",
			Network:         "base-sepolia",
			PaymentEndpoint: service.PaymentEndpoint,
			UnlockEndpoint:  service.UnlockEndpoint(art.ID),
		},
	}
	body, ok := ToPaymentRequired(d)
	if !ok {
		t.Fatalf("want 402 body")
	}
	raw, _ := json.Marshal(body)
	if strings.Contains(string(raw), "the locked body") {
		t.Fatalf("402 body leaked content: %s", raw)
	}
	if body.Code != 402 || body.Payment.Amount != "1.50" || body.Payment.UnlockEndpoint != "/api/articles/1/unlock" {
		t.Fatalf("bad body: %+v", body)
	}
}

func TestToCatalog(t *testing.T) {
	t.Parallel()

	c := ToCatalog([]model.Article{sampleArticle()}, "USDC", "base-sepolia")
	if c.Platform != "blocktrend-ai" || c.TotalItems != 1 || len(c.Items) != 1 {
		t.Fatalf("bad catalog: %+v", c)
	}
	it := c.Items[0]
	if !it.PaymentRequired || it.AccessEndpoint != "/api/articles/1" || it.PaymentEndpoint != "/api/ai/purchase" {
		t.Fatalf("bad item: %+v", it)
	}
	raw, _ := json.Marshal(c)
	if strings.Contains(string(raw), "the locked body") {
		t.Fatalf("catalog leaked content")
	}
}

func TestToPurchase(t *testing.T) {
	t.Parallel()

	art := sampleArticle()
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	r := service.PurchaseResult{
		Payment:     model.Payment{ID: 9, ArticleID: 1, Amount: art.Price, Status: model.StatusCompleted, Type: model.PaymentAIAgent},
		Decision:    service.Decision{Outcome: service.OutcomeAllow, Article: &art},
		PurchasedAt: at,
	}
	v := ToPurchase(r, "0xdef", map[string]any{"model": "x"})
	if !v.Success || v.Content == nil || v.Content.Title != "Rollups" || v.Content.Content != "the locked body" {
		t.Fatalf("bad purchase: %+v", v)
	}
	if v.AccessEndpoint != "/api/articles/1?wallet=0xdef" || v.Message != "Content purchased successfully" {
		t.Fatalf("bad purchase: %+v", v)
	}
	if !v.Content.Metadata.PurchaseTimestamp.Equal(at) || v.Content.Metadata.AgentMetadata["model"] != "x" {
		t.Fatalf("bad metadata: %+v", v.Content.Metadata)
	}

	r.AlreadyPurchased = true
	if v := ToPurchase(r, "0xdef", nil); v.Message != "Content already purchased" {
		t.Fatalf("message: %s", v.Message)
	}

	r.Decision = service.Decision{Outcome: service.OutcomePaymentRequired, Article: &art}
	if v := ToPurchase(r, "0xdef", nil); v.Success || v.Content != nil {
		t.Fatalf("denied purchase must not carry content")
	}
}

func TestToActivityAndStats(t *testing.T) {
	t.Parallel()

	id := int64(3)
	amt := decimal.RequireFromString("1.5")
	a := ToActivity(model.AgentActivity{ID: 1, AgentID: "A", Action: "x", ArticleID: &id, Amount: &amt, Status: "completed"})
	if a.Amount == nil || *a.Amount != "1.50" || *a.ArticleID != 3 {
		t.Fatalf("bad activity: %+v", a)
	}
	if b := ToActivity(model.AgentActivity{AgentID: "B"}); b.Amount != nil || b.ArticleID != nil {
		t.Fatalf("missing fields must stay null")
	}

	s := ToStats(model.ProtocolStats{TotalPayments: 2, TotalVolume: decimal.RequireFromString("3.25")})
	if s.TotalUSDC != "3.250000" || s.UpdatedAt != nil {
		t.Fatalf("bad stats: %+v", s)
	}

	cs := ToChainSummary("0xabc", chain.Summary{Transfers: 3, Qualifying: 2, UniquePayers: 1, Volume: chain.FromBaseUnits(big.NewInt(3000000), 6)})
	if cs.TotalUSDC != "3.000000" || cs.ValidPayments != 2 {
		t.Fatalf("bad summary: %+v", cs)
	}
}
