package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StaleSweeper is what the sweeper drives on every tick.
type StaleSweeper interface {
	SweepStale(ctx context.Context) ([]int64, error)
}

// Sweeper periodically fails payments stuck in pending.
type Sweeper struct {
	cron    *cron.Cron
	target  StaleSweeper
	timeout time.Duration
	log     *zap.Logger
}

// NewSweeper registers the sweep job on a standard cron spec ("@every 1m", "*/5 * * * *").
func NewSweeper(spec string, target StaleSweeper, log *zap.Logger) (*Sweeper, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sweeper{cron: cron.New(), target: target, timeout: 30 * time.Second, log: log}
	if _, err := s.cron.AddFunc(spec, s.Run); err != nil {
		return nil, err
	}
	return s, nil
}

// Run performs one sweep.
func (s *Sweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.target.SweepStale(ctx); err != nil {
		s.log.Error("sweep stale payments", zap.Error(err))
	}
}

// Start begins the schedule in its own goroutine.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sweep.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
