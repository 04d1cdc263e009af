// Package convert maps domain entities to the JSON views of the HTTP surface.
// Article content only leaves through Full.
package convert

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/and161185/paywall/internal/chain"
	"github.com/and161185/paywall/internal/model"
	"github.com/and161185/paywall/internal/service"
)

// --- helpers ---

// Amount renders a stablecoin amount with at least two fractional digits ("1.50", "0.333333").
func Amount(d decimal.Decimal) string {
	s := d.String()
	places := int32(0)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		places = int32(len(s) - i - 1)
	}
	if places < 2 {
		places = 2
	}
	return d.StringFixed(places)
}

func ts(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

// --- articles ---

// ArticlePreview is an article without its body. Used for listings and challenges.
type ArticlePreview struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Excerpt      string     `json:"excerpt"`
	Price        string     `json:"price"`
	Category     string     `json:"category"`
	Author       string     `json:"author"`
	AuthorAvatar string     `json:"authorAvatar,omitempty"`
	ImageURL     string     `json:"imageUrl,omitempty"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
	IsLocked     bool       `json:"isLocked"`
	HasAccess    bool       `json:"hasAccess"`
}

// ArticleView is the unlocked article.
type ArticleView struct {
	ArticlePreview
	Content string `json:"content"`
}

// Preview converts an article to its body-less form.
func Preview(a model.Article) ArticlePreview {
	return ArticlePreview{
		ID:           a.ID,
		Title:        a.Title,
		Excerpt:      a.Excerpt,
		Price:        Amount(a.Price),
		Category:     a.Category,
		Author:       a.Author,
		AuthorAvatar: a.AuthorAvatar,
		ImageURL:     a.ImageURL,
		CreatedAt:    ts(a.CreatedAt),
		IsLocked:     a.IsLocked,
	}
}

// Previews converts a listing.
func Previews(in []model.Article) []ArticlePreview {
	out := make([]ArticlePreview, 0, len(in))
	for _, a := range in {
		out = append(out, Preview(a))
	}
	return out
}

// Full converts an article the caller was granted.
func Full(a model.Article) ArticleView {
	p := Preview(a)
	p.HasAccess = true
	return ArticleView{ArticlePreview: p, Content: a.Content}
}

// --- challenges ---

// ChallengeView is the payment block of a 402 body.
type ChallengeView struct {
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	Recipient        string `json:"recipient"`
	Network          string `json:"network"`
	ChainID          int64  `json:"chainId,omitempty"`
	PaymentEndpoint  string `json:"paymentEndpoint"`
	UnlockEndpoint   string `json:"unlockEndpoint"`
	PurchaseEndpoint string `json:"purchaseEndpoint,omitempty"`
}

// PaymentRequired is the 402 body.
type PaymentRequired struct {
	Error   string         `json:"error"`
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Payment ChallengeView  `json:"payment"`
	Preview ArticlePreview `json:"preview"`
}

// ToChallenge converts the engine challenge.
func ToChallenge(c service.Challenge) ChallengeView {
	return ChallengeView{
		Amount:           Amount(c.Amount),
		Currency:         c.Currency,
		Recipient:        c.Recipient,
		Network:          c.Network,
		ChainID:          c.ChainID,
		PaymentEndpoint:  c.PaymentEndpoint,
		UnlockEndpoint:   c.UnlockEndpoint,
		PurchaseEndpoint: c.PurchaseEndpoint,
	}
}

// ToPaymentRequired builds the 402 body of a challenged decision.
// It returns false when d carries no challenge.
func ToPaymentRequired(d service.Decision) (PaymentRequired, bool) {
	if d.Challenge == nil || d.Article == nil {
		return PaymentRequired{}, false
	}
	return PaymentRequired{
		Error:   "Payment Required",
		Code:    402,
		Message: "This content requires payment to access",
		Payment: ToChallenge(*d.Challenge),
		Preview: Preview(*d.Article),
	}, true
}

// --- discovery ---

// DiscoverItem is one catalogue entry for agents.
type DiscoverItem struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Excerpt         string     `json:"excerpt"`
	Category        string     `json:"category"`
	Price           string     `json:"price"`
	Author          string     `json:"author"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
	PaymentRequired bool       `json:"paymentRequired"`
	AccessEndpoint  string     `json:"accessEndpoint"`
	PaymentEndpoint string     `json:"paymentEndpoint"`
}

// Catalog is the discover body.
type Catalog struct {
	Platform    string         `json:"platform"`
	ContentType string         `json:"contentType"`
	TotalItems  int            `json:"totalItems"`
	Currency    string         `json:"currency"`
	Network     string         `json:"network"`
	Items       []DiscoverItem `json:"items"`
}

// ToCatalog builds the machine-readable catalogue.
func ToCatalog(in []model.Article, currency, network string) Catalog {
	items := make([]DiscoverItem, 0, len(in))
	for _, a := range in {
		items = append(items, DiscoverItem{
			ID:              a.ID,
			Title:           a.Title,
			Excerpt:         a.Excerpt,
			Category:        a.Category,
			Price:           Amount(a.Price),
			Author:          a.Author,
			CreatedAt:       ts(a.CreatedAt),
			PaymentRequired: true,
			AccessEndpoint:  service.AccessEndpoint(a.ID),
			PaymentEndpoint: service.PurchaseEndpoint,
		})
	}
	return Catalog{
		Platform:    "blocktrend-ai",
		ContentType: "premium-articles",
		TotalItems:  len(items),
		Currency:    currency,
		Network:     network,
		Items:       items,
	}
}

// --- payments ---

// PaymentView is a recorded payment.
type PaymentView struct {
	ID            int64      `json:"id"`
	ArticleID     int64      `json:"articleId"`
	WalletAddress string     `json:"walletAddress,omitempty"`
	Amount        string     `json:"amount"`
	Status        string     `json:"status"`
	PaymentType   string     `json:"paymentType"`
	AgentID       string     `json:"agentId,omitempty"`
	TxHash        string     `json:"txHash,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
}

// ToPayment converts a payment.
func ToPayment(p model.Payment) PaymentView {
	return PaymentView{
		ID:            p.ID,
		ArticleID:     p.ArticleID,
		WalletAddress: p.WalletAddress,
		Amount:        Amount(p.Amount),
		Status:        string(p.Status),
		PaymentType:   string(p.Type),
		AgentID:       p.AgentID,
		TxHash:        p.TxHash,
		CreatedAt:     ts(p.CreatedAt),
	}
}

// ToPayments converts a list of payments.
func ToPayments(in []model.Payment) []PaymentView {
	out := make([]PaymentView, 0, len(in))
	for _, p := range in {
		out = append(out, ToPayment(p))
	}
	return out
}

// PurchasedContent is the content block returned by an agent purchase.
type PurchasedContent struct {
	ID       int64            `json:"id"`
	Title    string           `json:"title"`
	Content  string           `json:"content"`
	Metadata PurchaseMetadata `json:"metadata"`
}

// PurchaseMetadata describes the purchased article and the purchase itself.
type PurchaseMetadata struct {
	Category          string         `json:"category"`
	Author            string         `json:"author"`
	CreatedAt         *time.Time     `json:"createdAt,omitempty"`
	PurchaseTimestamp time.Time      `json:"purchaseTimestamp"`
	AgentMetadata     map[string]any `json:"agentMetadata,omitempty"`
}

// PurchaseView is the /ai/purchase body.
type PurchaseView struct {
	Success        bool              `json:"success"`
	Message        string            `json:"message"`
	Payment        PaymentView       `json:"payment"`
	AccessEndpoint string            `json:"accessEndpoint"`
	Content        *PurchasedContent `json:"content,omitempty"`
}

// ToPurchase converts a purchase result. Content is set only for an allowed decision.
func ToPurchase(r service.PurchaseResult, wallet string, agentMeta map[string]any) PurchaseView {
	v := PurchaseView{
		Success:        r.Decision.Allowed(),
		Message:        "Content purchased successfully",
		Payment:        ToPayment(r.Payment),
		AccessEndpoint: service.AccessEndpoint(r.Payment.ArticleID) + "?wallet=" + wallet,
	}
	if r.AlreadyPurchased {
		v.Message = "Content already purchased"
	}
	if a := r.Decision.Article; a != nil && r.Decision.Allowed() {
		v.Content = &PurchasedContent{
			ID:      a.ID,
			Title:   a.Title,
			Content: a.Content,
			Metadata: PurchaseMetadata{
				Category:          a.Category,
				Author:            a.Author,
				CreatedAt:         ts(a.CreatedAt),
				PurchaseTimestamp: r.PurchasedAt.UTC(),
				AgentMetadata:     agentMeta,
			},
		}
	}
	return v
}

// --- users, activity, stats ---

// UserView is a connected wallet.
type UserView struct {
	ID            int64      `json:"id"`
	WalletAddress string     `json:"walletAddress"`
	USDCBalance   string     `json:"usdcBalance"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
}

// ToUser converts a user.
func ToUser(u model.User) UserView {
	return UserView{ID: u.ID, WalletAddress: u.WalletAddress, USDCBalance: Amount(u.USDCBalance), CreatedAt: ts(u.CreatedAt)}
}

// ActivityView is an agent activity entry.
type ActivityView struct {
	ID        int64      `json:"id"`
	AgentID   string     `json:"agentId"`
	Action    string     `json:"action"`
	ArticleID *int64     `json:"articleId"`
	Amount    *string    `json:"amount"`
	Status    string     `json:"status"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// ToActivity converts an activity entry.
func ToActivity(a model.AgentActivity) ActivityView {
	v := ActivityView{ID: a.ID, AgentID: a.AgentID, Action: a.Action, ArticleID: a.ArticleID, Status: a.Status, CreatedAt: ts(a.CreatedAt)}
	if a.Amount != nil {
		s := Amount(*a.Amount)
		v.Amount = &s
	}
	return v
}

// ToActivities converts a list of entries.
func ToActivities(in []model.AgentActivity) []ActivityView {
	out := make([]ActivityView, 0, len(in))
	for _, a := range in {
		out = append(out, ToActivity(a))
	}
	return out
}

// StatsView is the protocol stats snapshot.
type StatsView struct {
	TotalPayments int64      `json:"totalPayments"`
	TotalUSDC     string     `json:"totalUSDC"`
	ActiveAgents  int64      `json:"activeAgents"`
	TotalArticles int64      `json:"totalArticles"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

// ToStats converts a stats snapshot. The volume always has six fractional digits.
func ToStats(s model.ProtocolStats) StatsView {
	return StatsView{
		TotalPayments: s.TotalPayments,
		TotalUSDC:     s.TotalVolume.StringFixed(6),
		ActiveAgents:  s.ActiveAgents,
		TotalArticles: s.TotalArticles,
		UpdatedAt:     ts(s.UpdatedAt),
	}
}

// ChainSummaryView reports what the chain source sees for the recipient.
type ChainSummaryView struct {
	Recipient         string     `json:"recipient"`
	TotalTransactions int        `json:"totalTransactions"`
	ValidPayments     int        `json:"validPayments"`
	UniquePayingUsers int        `json:"uniquePayingUsers"`
	TotalUSDC         string     `json:"totalUSDC"`
	Stats             *StatsView `json:"stats,omitempty"`
}

// ToChainSummary converts a verifier summary.
func ToChainSummary(recipient string, s chain.Summary) ChainSummaryView {
	return ChainSummaryView{
		Recipient:         recipient,
		TotalTransactions: s.Transfers,
		ValidPayments:     s.Qualifying,
		UniquePayingUsers: s.UniquePayers,
		TotalUSDC:         s.Volume.StringFixed(6),
	}
}
