package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/likefeed/backend/internal/models"
)

type ContentRepo struct {
	pool *pgxpool.Pool
}

func NewContentRepo(pool *pgxpool.Pool) *ContentRepo {
	return &ContentRepo{pool: pool}
}

func (r *ContentRepo) CreatePost(ctx context.Context, p *models.Post) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO posts (author_address, body, content_hash)
		VALUES ($1, $2, $3)
		RETURNING id, like_count, created_at
	`, p.AuthorAddress, p.Body, p.ContentHash).Scan(&p.ID, &p.LikeCount, &p.CreatedAt)
}

// CreateComment inserts c only if its parent post exists, in one statement.
// A missing parent yields ErrNotFound.
func (r *ContentRepo) CreateComment(ctx context.Context, c *models.Comment) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO comments (post_id, author_address, body, content_hash)
		SELECT p.id, $2, $3, $4 FROM posts p WHERE p.id = $1
		RETURNING id, like_count, created_at
	`, c.PostID, c.AuthorAddress, c.Body, c.ContentHash).Scan(&c.ID, &c.LikeCount, &c.CreatedAt)
	return notFound(err)
}

func (r *ContentRepo) Get(ctx context.Context, ref models.ContentRef) (*models.Content, error) {
	table, err := contentTable(ref.Type)
	if err != nil {
		return nil, err
	}
	c := models.Content{Ref: ref}
	err = r.pool.QueryRow(ctx,
		`SELECT author_address, like_count FROM `+table+` WHERE id = $1`, ref.ID,
	).Scan(&c.AuthorAddress, &c.LikeCount)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// incrementLike adds exactly one to the like counter and returns the new
// value. The increment happens in SQL so concurrent callers never lose one.
// Only RewardRepo.Settle calls it, inside the settling transaction.
func incrementLike(ctx context.Context, db dbtx, ref models.ContentRef) (int64, error) {
	table, err := contentTable(ref.Type)
	if err != nil {
		return 0, err
	}
	var n int64
	err = db.QueryRow(ctx,
		`UPDATE `+table+` SET like_count = like_count + 1 WHERE id = $1 RETURNING like_count`, ref.ID,
	).Scan(&n)
	if err != nil {
		return 0, notFound(err)
	}
	return n, nil
}

func (r *ContentRepo) ListPosts(ctx context.Context, limit, offset int) ([]models.Post, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, author_address, body, content_hash, like_count, created_at
		FROM posts ORDER BY id DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.ID, &p.AuthorAddress, &p.Body, &p.ContentHash, &p.LikeCount, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// ListComments lists comments newest first, optionally restricted to postID.
func (r *ContentRepo) ListComments(ctx context.Context, postID *int64, limit, offset int) ([]models.Comment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, post_id, author_address, body, content_hash, like_count, created_at
		FROM comments
		WHERE ($1::bigint IS NULL OR post_id = $1)
		ORDER BY id DESC LIMIT $2 OFFSET $3
	`, postID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorAddress, &c.Body, &c.ContentHash, &c.LikeCount, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func contentTable(t models.ContentType) (string, error) {
	switch t {
	case models.ContentPost:
		return "posts", nil
	case models.ContentComment:
		return "comments", nil
	default:
		return "", fmt.Errorf("unknown content type %q", t)
	}
}
