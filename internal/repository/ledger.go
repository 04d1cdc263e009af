package repository

import (
	"context"
	"time"

	"github.com/and161185/paywall/internal/model"
)

// ArticleRepository stores premium articles.
type ArticleRepository interface {
	// List returns all articles, newest first.
	List(ctx context.Context) ([]model.Article, error)
	// Get loads one article by id.
	Get(ctx context.Context, id int64) (*model.Article, error)
	// Create inserts an article and returns it with id and timestamp assigned.
	Create(ctx context.Context, a model.NewArticle) (*model.Article, error)
	// Count returns the number of articles.
	Count(ctx context.Context) (int64, error)
}

// PaymentRepository stores payment claims. Payment Intake is its only writer.
type PaymentRepository interface {
	// Create inserts a payment and returns it with id and timestamp assigned.
	Create(ctx context.Context, p model.Payment) (*model.Payment, error)
	// Get loads one payment by id.
	Get(ctx context.Context, id int64) (*model.Payment, error)
	// ListByWallet returns all payments of a wallet, oldest first.
	ListByWallet(ctx context.Context, wallet string) ([]model.Payment, error)
	// FindCompleted returns completed payments for (article, wallet).
	FindCompleted(ctx context.Context, articleID int64, wallet string) ([]model.Payment, error)
	// FindOpen returns the newest pending or completed payment for (article, wallet), or ErrNotFound.
	FindOpen(ctx context.Context, articleID int64, wallet string) (*model.Payment, error)
	// UpdateStatus moves a pending payment to status; other source states yield ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id int64, status model.PaymentStatus, txHash string) error
	// ListCompleted returns every completed payment.
	ListCompleted(ctx context.Context) ([]model.Payment, error)
	// MarkStalePending fails pending payments created before cutoff and returns their ids.
	MarkStalePending(ctx context.Context, cutoff time.Time) ([]int64, error)
}

// ActivityRepository is the bounded agent activity log.
type ActivityRepository interface {
	// Append stores an entry, evicting the oldest ones above the retention cap.
	Append(ctx context.Context, a model.AgentActivity) (*model.AgentActivity, error)
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]model.AgentActivity, error)
}

// StatsRepository keeps the last computed ProtocolStats.
type StatsRepository interface {
	// Save replaces the stored snapshot.
	Save(ctx context.Context, s model.ProtocolStats) error
	// Get returns the stored snapshot (zero value if none was saved).
	Get(ctx context.Context) (model.ProtocolStats, error)
}

// Ledger bundles every collection of the Ledger Store.
type Ledger struct {
	Articles   ArticleRepository
	Payments   PaymentRepository
	Users      UserRepository
	Activities ActivityRepository
	Stats      StatsRepository
}
