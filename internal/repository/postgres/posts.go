package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/splax/athlink/internal/domain"
)

// CreatePost inserts a post.
func (r *Repository) CreatePost(ctx context.Context, post *domain.Post) error {
	if post == nil {
		return fmt.Errorf("post required")
	}
	const query = `INSERT INTO posts (id, user_id, content, media_url, media_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, post.ID, post.UserID, post.Content, emptyToNil(post.MediaURL), emptyToNil(post.MediaType), post.CreatedAt)
	return mapError(err)
}

// GetPost loads a post with likes and comments.
func (r *Repository) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	const query = `SELECT id, user_id, content, media_url, media_type, created_at FROM posts WHERE id = $1`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, mapError(err)
	}
	post, err := pgx.CollectExactlyOneRow(rows, scanPost)
	if err != nil {
		return nil, mapError(err)
	}
	if err := r.loadPostRelations(ctx, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// ListPosts returns posts newest first. An empty authorID lists the whole feed.
func (r *Repository) ListPosts(ctx context.Context, authorID string, limit, offset int) ([]domain.Post, error) {
	const query = `SELECT id, user_id, content, media_url, media_type, created_at FROM posts
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, authorID, limit, offset)
	if err != nil {
		return nil, mapError(err)
	}
	posts, err := pgx.CollectRows(rows, scanPost)
	if err != nil {
		return nil, mapError(err)
	}
	for i := range posts {
		if err := r.loadPostRelations(ctx, &posts[i]); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

// CountPosts counts posts, optionally by author.
func (r *Repository) CountPosts(ctx context.Context, authorID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM posts WHERE ($1 = '' OR user_id = $1)`, authorID).Scan(&count)
	return count, mapError(err)
}

// AddLike records a like and returns the new like count.
func (r *Repository) AddLike(ctx context.Context, postID, userID string) (int, error) {
	const query = `INSERT INTO post_likes (post_id, user_id, created_at) VALUES ($1, $2, NOW())
		ON CONFLICT (post_id, user_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, query, postID, userID); err != nil {
		return 0, mapError(err)
	}
	return r.countLikes(ctx, postID)
}

// RemoveLike deletes a like and returns the new like count.
func (r *Repository) RemoveLike(ctx context.Context, postID, userID string) (int, error) {
	if _, err := r.pool.Exec(ctx, `DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`, postID, userID); err != nil {
		return 0, mapError(err)
	}
	return r.countLikes(ctx, postID)
}

// CountRecentLikesBy counts likes issued by userID since the given instant.
func (r *Repository) CountRecentLikesBy(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM post_likes WHERE user_id = $1 AND created_at >= $2`, userID, since).Scan(&count)
	return count, mapError(err)
}

// AddComment appends a comment to a post.
func (r *Repository) AddComment(ctx context.Context, comment *domain.Comment) error {
	if comment == nil {
		return fmt.Errorf("comment required")
	}
	const query = `INSERT INTO post_comments (id, post_id, user_id, content, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, comment.ID, comment.PostID, comment.UserID, comment.Content, comment.CreatedAt)
	return mapError(err)
}

// DeletePost removes a post with its likes and comments.
func (r *Repository) DeletePost(ctx context.Context, id string) error {
	return expectAffected(r.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id))
}

func (r *Repository) countLikes(ctx context.Context, postID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM post_likes WHERE post_id = $1`, postID).Scan(&count)
	return count, mapError(err)
}

func (r *Repository) loadPostRelations(ctx context.Context, post *domain.Post) error {
	likes, err := r.listIDs(ctx, `SELECT user_id FROM post_likes WHERE post_id = $1 ORDER BY created_at`, post.ID)
	if err != nil {
		return err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, post_id, user_id, content, created_at FROM post_comments WHERE post_id = $1 ORDER BY created_at`, post.ID)
	if err != nil {
		return mapError(err)
	}
	comments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Comment, error) {
		var c domain.Comment
		err := row.Scan(&c.ID, &c.PostID, &c.UserID, &c.Content, &c.CreatedAt)
		return c, err
	})
	if err != nil {
		return mapError(err)
	}
	post.Likes = likes
	post.Comments = comments
	return nil
}

func scanPost(row pgx.CollectableRow) (domain.Post, error) {
	var (
		p         domain.Post
		mediaURL  sql.NullString
		mediaType sql.NullString
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Content, &mediaURL, &mediaType, &p.CreatedAt)
	p.MediaURL = mediaURL.String
	p.MediaType = mediaType.String
	return p, err
}
