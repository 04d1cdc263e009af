package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/and161185/paywall/internal/model"
	"github.com/and161185/paywall/internal/repository"
)

// volumeScale is the fixed number of fractional digits of the stats volume.
const volumeScale = 6

// StatsService derives ProtocolStats from the ledger.
type StatsService interface {
	// Recompute scans payments and articles and saves a fresh snapshot.
	Recompute(ctx context.Context) (model.ProtocolStats, error)
	// Snapshot returns the last saved snapshot.
	Snapshot(ctx context.Context) (model.ProtocolStats, error)
}

type StatsServiceImpl struct {
	mu       sync.Mutex // serialises recomputations so saves land in order
	articles repository.ArticleRepository
	payments repository.PaymentRepository
	stats    repository.StatsRepository
	now      func() time.Time
}

// NewStatsService constructs StatsService.
func NewStatsService(articles repository.ArticleRepository, payments repository.PaymentRepository, stats repository.StatsRepository) *StatsServiceImpl {
	return &StatsServiceImpl{articles: articles, payments: payments, stats: stats, now: time.Now}
}

// Recompute is a full scan; it is safe to call concurrently with reads.
func (s *StatsServiceImpl) Recompute(ctx context.Context) (model.ProtocolStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	done, err := s.payments.ListCompleted(ctx)
	if err != nil {
		return model.ProtocolStats{}, fmt.Errorf("list completed payments: %w", err)
	}
	count, err := s.articles.Count(ctx)
	if err != nil {
		return model.ProtocolStats{}, fmt.Errorf("count articles: %w", err)
	}

	volume := decimal.Zero
	wallets := map[string]struct{}{}
	for _, p := range done {
		volume = volume.Add(p.Amount)
		if p.WalletAddress != "" {
			wallets[p.WalletAddress] = struct{}{}
		}
	}
	out := model.ProtocolStats{
		TotalPayments: int64(len(done)),
		TotalVolume:   volume.Round(volumeScale),
		ActiveAgents:  int64(len(wallets)),
		TotalArticles: count,
		UpdatedAt:     s.now(),
	}
	if err := s.stats.Save(ctx, out); err != nil {
		return model.ProtocolStats{}, fmt.Errorf("save stats: %w", err)
	}
	return out, nil
}

// Snapshot returns the last saved snapshot.
func (s *StatsServiceImpl) Snapshot(ctx context.Context) (model.ProtocolStats, error) {
	return s.stats.Get(ctx)
}
