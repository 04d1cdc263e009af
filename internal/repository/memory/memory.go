// Package memory contains in-memory implementations of repository interfaces.
// Used by tests and by the demo mode of the server.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/and161185/paywall/internal/errs"
	"github.com/and161185/paywall/internal/model"
	"github.com/and161185/paywall/internal/repository"
	"github.com/shopspring/decimal"
)

// DefaultActivityCap is the retention cap of the agent activity log.
const DefaultActivityCap = 50

// NewLedger returns a full in-memory Ledger Store.
func NewLedger(activityCap int) repository.Ledger {
	return repository.Ledger{
		Articles:   NewArticleRepo(),
		Payments:   NewPaymentRepo(),
		Users:      NewUserRepo(),
		Activities: NewActivityRepo(activityCap),
		Stats:      NewStatsRepo(),
	}
}

// ArticleRepo implements ArticleRepository in memory.
type ArticleRepo struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]model.Article
	now    func() time.Time
}

// NewArticleRepo constructs an empty article repository.
func NewArticleRepo() *ArticleRepo {
	return &ArticleRepo{nextID: 1, byID: map[int64]model.Article{}, now: time.Now}
}

// List returns all articles, newest first (ties by id desc).
func (r *ArticleRepo) List(_ context.Context) ([]model.Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Article, 0, len(r.byID))
	for _, a := range r.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Get loads an article by id.
func (r *ArticleRepo) Get(_ context.Context, id int64) (*model.Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &a, nil
}

// Create assigns the next id and stores the article.
func (r *ArticleRepo) Create(_ context.Context, in model.NewArticle) (*model.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := model.Article{
		ID:           r.nextID,
		Title:        in.Title,
		Excerpt:      in.Excerpt,
		Content:      in.Content,
		Price:        in.Price,
		Category:     in.Category,
		Author:       in.Author,
		AuthorAvatar: in.AuthorAvatar,
		ImageURL:     in.ImageURL,
		IsLocked:     in.IsLocked,
		CreatedAt:    r.now(),
	}
	r.nextID++
	r.byID[a.ID] = a
	return &a, nil
}

// Count returns the number of stored articles.
func (r *ArticleRepo) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.byID)), nil
}

// PaymentRepo implements PaymentRepository in memory.
type PaymentRepo struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]model.Payment
	now    func() time.Time
}

// NewPaymentRepo constructs an empty payment repository.
func NewPaymentRepo() *PaymentRepo {
	return &PaymentRepo{nextID: 1, byID: map[int64]model.Payment{}, now: time.Now}
}

// Create assigns the next id and stores the payment.
func (r *PaymentRepo) Create(_ context.Context, p model.Payment) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.nextID
	r.nextID++
	if p.Status == "" {
		p.Status = model.StatusPending
	}
	p.CreatedAt = r.now()
	r.byID[p.ID] = p
	return &p, nil
}

// Get loads a payment by id.
func (r *PaymentRepo) Get(_ context.Context, id int64) (*model.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &p, nil
}

func (r *PaymentRepo) filter(keep func(p model.Payment) bool) []model.Payment {
	out := []model.Payment{}
	for _, p := range r.byID {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListByWallet returns the wallet's payments ordered by id.
func (r *PaymentRepo) ListByWallet(_ context.Context, wallet string) ([]model.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter(func(p model.Payment) bool { return p.WalletAddress == wallet }), nil
}

// FindCompleted returns completed payments for (article, wallet).
func (r *PaymentRepo) FindCompleted(_ context.Context, articleID int64, wallet string) ([]model.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter(func(p model.Payment) bool {
		return p.ArticleID == articleID && p.WalletAddress == wallet && p.Status == model.StatusCompleted
	}), nil
}

// FindOpen returns the newest pending or completed payment for (article, wallet).
// Completed payments win over pending ones.
func (r *PaymentRepo) FindOpen(_ context.Context, articleID int64, wallet string) (*model.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	open := r.filter(func(p model.Payment) bool {
		return p.ArticleID == articleID && p.WalletAddress == wallet && p.Status != model.StatusFailed
	})
	var best *model.Payment
	for i := range open {
		p := open[i]
		if best == nil || (p.Status == model.StatusCompleted && best.Status != model.StatusCompleted) ||
			(p.Status == best.Status && p.ID > best.ID) {
			best = &p
		}
	}
	if best == nil {
		return nil, errs.ErrNotFound
	}
	return best, nil
}

// UpdateStatus moves a pending payment to status.
func (r *PaymentRepo) UpdateStatus(_ context.Context, id int64, status model.PaymentStatus, txHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	if p.Status != model.StatusPending {
		return errs.ErrInvalidTransition
	}
	p.Status = status
	if txHash != "" {
		p.TxHash = txHash
	}
	r.byID[id] = p
	return nil
}

// ListCompleted returns all completed payments.
func (r *PaymentRepo) ListCompleted(_ context.Context) ([]model.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter(func(p model.Payment) bool { return p.Status == model.StatusCompleted }), nil
}

// MarkStalePending fails every pending payment created before cutoff.
func (r *PaymentRepo) MarkStalePending(_ context.Context, cutoff time.Time) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, p := range r.byID {
		if p.Status == model.StatusPending && p.CreatedAt.Before(cutoff) {
			p.Status = model.StatusFailed
			r.byID[id] = p
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// UserRepo implements UserRepository in memory.
type UserRepo struct {
	mu       sync.Mutex
	nextID   int64
	byWallet map[string]model.User
}

// NewUserRepo constructs an empty user repository.
func NewUserRepo() *UserRepo {
	return &UserRepo{nextID: 1, byWallet: map[string]model.User{}}
}

// UpsertWallet creates or updates the user of a wallet.
func (r *UserRepo) UpsertWallet(_ context.Context, wallet string, balance *decimal.Decimal) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byWallet[wallet]
	if !ok {
		u = model.User{ID: r.nextID, WalletAddress: wallet, CreatedAt: time.Now()}
		r.nextID++
	}
	if balance != nil {
		u.USDCBalance = *balance
	}
	r.byWallet[wallet] = u
	return &u, nil
}

// GetByWallet loads the user of a wallet.
func (r *UserRepo) GetByWallet(_ context.Context, wallet string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byWallet[wallet]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

// ActivityRepo is a ring-buffer-like activity log.
type ActivityRepo struct {
	mu      sync.Mutex
	nextID  int64
	cap     int
	entries []model.AgentActivity // oldest first
	now     func() time.Time
}

// NewActivityRepo constructs an activity log keeping at most cap entries.
func NewActivityRepo(cap int) *ActivityRepo {
	if cap <= 0 {
		cap = DefaultActivityCap
	}
	return &ActivityRepo{nextID: 1, cap: cap, now: time.Now}
}

// Append stores an entry and evicts the oldest ones past the cap.
func (r *ActivityRepo) Append(_ context.Context, a model.AgentActivity) (*model.AgentActivity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = r.nextID
	r.nextID++
	a.CreatedAt = r.now()
	r.entries = append(r.entries, a)
	if over := len(r.entries) - r.cap; over > 0 {
		r.entries = append([]model.AgentActivity(nil), r.entries[over:]...)
	}
	return &a, nil
}

// Recent returns up to limit entries, newest first.
func (r *ActivityRepo) Recent(_ context.Context, limit int) ([]model.AgentActivity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}
	out := make([]model.AgentActivity, 0, limit)
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

// StatsRepo holds the last stats snapshot.
type StatsRepo struct {
	mu    sync.RWMutex
	stats model.ProtocolStats
}

// NewStatsRepo constructs an empty stats holder.
func NewStatsRepo() *StatsRepo { return &StatsRepo{} }

// Save replaces the snapshot.
func (r *StatsRepo) Save(_ context.Context, s model.ProtocolStats) error {
	r.mu.Lock()
	r.stats = s
	r.mu.Unlock()
	return nil
}

// Get returns the snapshot.
func (r *StatsRepo) Get(_ context.Context) (model.ProtocolStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats, nil
}
