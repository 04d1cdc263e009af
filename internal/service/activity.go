package service

import (
	"context"
	"math/rand/v2"

	"github.com/and161185/paywall/internal/model"
	"github.com/and161185/paywall/internal/repository"
)

// Activity log read defaults.
const (
	DefaultActivityLimit = 10
	MaxActivityLimit     = 50
)

var simulatedAgents = []string{"Agent_Alpha_7x9", "Agent_Beta_3k1", "Agent_Gamma_9m2", "Agent_Delta_5n7", "Agent_Epsilon_2k8"}

var simulatedActions = []string{
	"Scanning content library...",
	"Evaluating content relevance...",
	"Analyzing payment history...",
	"Content preference updated",
}

// ActivityService reads and synthesises agent activity.
type ActivityService interface {
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]model.AgentActivity, error)
	// Simulate appends a synthetic non-payment entry.
	Simulate(ctx context.Context) (*model.AgentActivity, error)
}

type ActivityServiceImpl struct {
	repo repository.ActivityRepository
	pick func(n int) int
}

// NewActivityService constructs ActivityService.
func NewActivityService(repo repository.ActivityRepository) *ActivityServiceImpl {
	return &ActivityServiceImpl{repo: repo, pick: rand.IntN}
}

// Recent clamps limit to [1, MaxActivityLimit]; non-positive means DefaultActivityLimit.
func (s *ActivityServiceImpl) Recent(ctx context.Context, limit int) ([]model.AgentActivity, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	if limit > MaxActivityLimit {
		limit = MaxActivityLimit
	}
	return s.repo.Recent(ctx, limit)
}

// Simulate appends a random agent action with status "active".
func (s *ActivityServiceImpl) Simulate(ctx context.Context) (*model.AgentActivity, error) {
	return s.repo.Append(ctx, model.AgentActivity{
		AgentID: simulatedAgents[s.pick(len(simulatedAgents))],
		Action:  simulatedActions[s.pick(len(simulatedActions))],
		Status:  "active",
	})
}
