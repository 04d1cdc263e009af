package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/paywall/internal/errs"
	"github.com/and161185/paywall/internal/model"
)

// ArticleRepo implements ArticleRepository using PostgreSQL.
type ArticleRepo struct{ db *DB }

// NewArticleRepo constructs an article repository.
func NewArticleRepo(db *DB) *ArticleRepo { return &ArticleRepo{db: db} }

const articleCols = `id, title, excerpt, content, price::text, category, author, author_avatar, image_url, is_locked, created_at`

func scanArticle(row pgx.Row) (*model.Article, error) {
	var (
		a     model.Article
		price string
	)
	if err := row.Scan(&a.ID, &a.Title, &a.Excerpt, &a.Content, &price, &a.Category, &a.Author,
		&a.AuthorAvatar, &a.ImageURL, &a.IsLocked, &a.CreatedAt); err != nil {
		return nil, err
	}
	p, err := parseAmount("price", price)
	if err != nil {
		return nil, err
	}
	a.Price = p
	return &a, nil
}

// List returns all articles, newest first.
func (r *ArticleRepo) List(ctx context.Context) ([]model.Article, error) {
	const q = `SELECT ` + articleCols + ` FROM articles ORDER BY created_at DESC, id DESC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Get selects an article by id.
func (r *ArticleRepo) Get(ctx context.Context, id int64) (*model.Article, error) {
	const q = `SELECT ` + articleCols + ` FROM articles WHERE id=$1`
	a, err := scanArticle(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// Create inserts an article row.
func (r *ArticleRepo) Create(ctx context.Context, in model.NewArticle) (*model.Article, error) {
	const q = `
INSERT INTO articles (title, excerpt, content, price, category, author, author_avatar, image_url, is_locked)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)
RETURNING id, created_at`
	a := model.Article{
		Title: in.Title, Excerpt: in.Excerpt, Content: in.Content, Price: in.Price,
		Category: in.Category, Author: in.Author, AuthorAvatar: in.AuthorAvatar,
		ImageURL: in.ImageURL, IsLocked: in.IsLocked,
	}
	err := r.db.Pool.QueryRow(ctx, q, in.Title, in.Excerpt, in.Content, in.Price.String(), in.Category,
		in.Author, in.AuthorAvatar, in.ImageURL, in.IsLocked).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Count returns the number of articles.
func (r *ArticleRepo) Count(ctx context.Context) (int64, error) {
	const q = `SELECT COUNT(*) FROM articles`
	var n int64
	if err := r.db.Pool.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
