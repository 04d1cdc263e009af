package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/and161185/paywall/internal/model"
	"github.com/and161185/paywall/internal/repository"
)

// SampleArticles is the demo catalogue loaded into an empty store.
var SampleArticles = []model.NewArticle{
	{
		Title:        "The Future of Decentralized Content Creation",
		Excerpt:      "Exploring how blockchain technology is revolutionizing content monetization and creator economies...",
		Content:      "Full article content about decentralized content creation...",
		Price:        decimal.RequireFromString("2.50"),
		Category:     "Blockchain",
		Author:       "Sarah Chen",
		AuthorAvatar: "https://images.unsplash.com/photo-1494790108377-be9c29b29330?auto=format&fit=crop&w=100&h=100",
		ImageURL:     "https://images.unsplash.com/photo-1507003211169-0a1dd7228f2d?ixlib=rb-4.0.3&auto=format&fit=crop&w=800&h=400",
		IsLocked:     true,
	},
	{
		Title:        "Autonomous AI Agents in Web3 Payments",
		Excerpt:      "How intelligent agents are transforming digital transactions and content consumption patterns...",
		Content:      "Full article content about AI agents in Web3...",
		Price:        decimal.RequireFromString("1.75"),
		Category:     "AI",
		Author:       "Alex Rodriguez",
		AuthorAvatar: "https://images.unsplash.com/photo-1472099645785-5658abf4ff4e?ixlib=rb-4.0.3&auto=format&fit=crop&w=100&h=100",
		ImageURL:     "https://images.unsplash.com/photo-1677442136019-21780ecad995?ixlib=rb-4.0.3&auto=format&fit=crop&w=800&h=400",
		IsLocked:     true,
	},
	{
		Title:        "USDC Payment Rails for Content Platforms",
		Excerpt:      "Building scalable micropayment infrastructure using stablecoins and smart contracts...",
		Content:      "Full article content about USDC payment rails...",
		Price:        decimal.RequireFromString("3.00"),
		Category:     "DeFi",
		Author:       "Emma Thompson",
		AuthorAvatar: "https://images.unsplash.com/photo-1438761681033-6461ffad8d80?ixlib=rb-4.0.3&auto=format&fit=crop&w=100&h=100",
		ImageURL:     "https://images.unsplash.com/photo-1642543492481-44e81e3914a7?ixlib=rb-4.0.3&auto=format&fit=crop&w=800&h=400",
		IsLocked:     true,
	},
}

// Seed inserts SampleArticles when the store has no articles. It returns how many were added.
func Seed(ctx context.Context, articles repository.ArticleRepository, stats StatsRecomputer) (int, error) {
	n, err := articles.Count(ctx)
	if err != nil || n > 0 {
		return 0, err
	}
	for _, a := range SampleArticles {
		if _, err := articles.Create(ctx, a); err != nil {
			return 0, err
		}
	}
	if stats != nil {
		if _, err := stats.Recompute(ctx); err != nil {
			return len(SampleArticles), err
		}
	}
	return len(SampleArticles), nil
}
