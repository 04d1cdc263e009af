package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/paywall/internal/errs"
	"github.com/and161185/paywall/internal/model"
	"github.com/and161185/paywall/internal/repository"
)

// ArticleInput is an authoring request. Price is a decimal string.
type ArticleInput struct {
	Title        string
	Excerpt      string
	Content      string
	Price        string
	Category     string
	Author       string
	AuthorAvatar string
	ImageURL     string
	IsLocked     *bool // defaults to true
}

// ArticleService lists and authors articles.
type ArticleService interface {
	// List returns all articles, newest first.
	List(ctx context.Context) ([]model.Article, error)
	// Create stores an article on behalf of a signed-in wallet.
	Create(ctx context.Context, sessionAddr string, in ArticleInput) (*model.Article, error)
}

type ArticleServiceImpl struct {
	articles repository.ArticleRepository
	stats    StatsRecomputer
	log      *zap.Logger
}

// NewArticleService constructs ArticleService.
func NewArticleService(articles repository.ArticleRepository, stats StatsRecomputer, log *zap.Logger) *ArticleServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &ArticleServiceImpl{articles: articles, stats: stats, log: log}
}

// List returns all articles, newest first.
func (s *ArticleServiceImpl) List(ctx context.Context) ([]model.Article, error) {
	return s.articles.List(ctx)
}

// Create validates the input and stores the article. An empty sessionAddr is ErrUnauthorized.
func (s *ArticleServiceImpl) Create(ctx context.Context, sessionAddr string, in ArticleInput) (*model.Article, error) {
	if sessionAddr == "" {
		return nil, errs.ErrUnauthorized
	}
	required := []struct{ field, value string }{
		{"title", in.Title},
		{"excerpt", in.Excerpt},
		{"content", in.Content},
		{"category", in.Category},
		{"author", in.Author},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, errs.Invalid(r.field, "required")
		}
	}
	price, err := parseAmount(in.Price)
	if err != nil {
		var ve *errs.ValidationError
		if errors.As(err, &ve) {
			return nil, errs.Invalid("price", ve.Msg)
		}
		return nil, err
	}
	locked := true
	if in.IsLocked != nil {
		locked = *in.IsLocked
	}

	art, err := s.articles.Create(ctx, model.NewArticle{
		Title:        strings.TrimSpace(in.Title),
		Excerpt:      in.Excerpt,
		Content:      in.Content,
		Price:        price,
		Category:     strings.TrimSpace(in.Category),
		Author:       strings.TrimSpace(in.Author),
		AuthorAvatar: in.AuthorAvatar,
		ImageURL:     in.ImageURL,
		IsLocked:     locked,
	})
	if err != nil {
		return nil, fmt.Errorf("create article: %w", err)
	}
	s.log.Info("article created", zap.Int64("article", art.ID), zap.String("by", sessionAddr))
	if s.stats != nil {
		if _, err := s.stats.Recompute(ctx); err != nil {
			s.log.Warn("stats recompute", zap.Error(err))
		}
	}
	return art, nil
}
