// Package model defines domain entities used by services and repositories.
package model

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a Payment.
type PaymentStatus string

// Payment lifecycle: pending -> completed | failed. Nothing leaves completed.
const (
	StatusPending   PaymentStatus = "pending"
	StatusCompleted PaymentStatus = "completed"
	StatusFailed    PaymentStatus = "failed"
)

// PaymentType tells who made a payment claim.
type PaymentType string

// Supported payment types.
const (
	PaymentHumanWallet PaymentType = "human_wallet"
	PaymentAIAgent     PaymentType = "ai_agent"
)

// ParsePaymentType accepts the canonical names and the legacy "wallet" alias.
func ParsePaymentType(s string) (PaymentType, bool) {
	switch s {
	case string(PaymentHumanWallet), "wallet":
		return PaymentHumanWallet, true
	case string(PaymentAIAgent):
		return PaymentAIAgent, true
	default:
		return "", false
	}
}

// Article is a piece of premium content. Content is released only after an ALLOW decision.
type Article struct {
	ID           int64
	Title        string
	Excerpt      string
	Content      string
	Price        decimal.Decimal // stablecoin units, at most 6 fractional digits
	Category     string
	Author       string
	AuthorAvatar string // optional
	ImageURL     string // optional
	CreatedAt    time.Time
	IsLocked     bool
}

// NewArticle is the creation intent for an Article (no id/timestamp yet).
type NewArticle struct {
	Title        string
	Excerpt      string
	Content      string
	Price        decimal.Decimal
	Category     string
	Author       string
	AuthorAvatar string
	ImageURL     string
	IsLocked     bool
}

// Payment is a recorded payment claim for one article.
type Payment struct {
	ID            int64
	ArticleID     int64
	WalletAddress string // lowercase; empty for legacy agent paths
	Amount        decimal.Decimal
	Status        PaymentStatus
	Type          PaymentType
	AgentID       string // ai_agent only
	TxHash        string // set on completion
	CreatedAt     time.Time
}

// User is a wallet that connected to the platform.
type User struct {
	ID            int64
	WalletAddress string // lowercase, unique
	USDCBalance   decimal.Decimal
	CreatedAt     time.Time
}

// AgentActivity is an append-only log entry about agent behaviour.
type AgentActivity struct {
	ID        int64
	AgentID   string
	Action    string
	ArticleID *int64
	Amount    *decimal.Decimal
	Status    string
	CreatedAt time.Time
}

// ProtocolStats is the aggregate derived from payments and articles.
type ProtocolStats struct {
	TotalPayments int64
	TotalVolume   decimal.Decimal
	ActiveAgents  int64 // distinct paying wallets
	TotalArticles int64
	UpdatedAt     time.Time
}

// Transfer is a token-transfer event reported by a chain indexer. Read-only.
type Transfer struct {
	BlockNumber   uint64
	Timestamp     time.Time
	TxHash        string
	From          string   // lowercase
	To            string   // lowercase
	Value         *big.Int // smallest token unit
	TokenName     string
	TokenSymbol   string
	TokenDecimals int
}
