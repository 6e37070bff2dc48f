package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/athlink/internal/domain"
	"github.com/splax/athlink/internal/repository"
)

var (
	ErrInvalidPost     = errors.New("post: invalid post")
	ErrAlreadyLiked    = errors.New("post: already liked")
	ErrNotLiked        = errors.New("post: not liked yet")
	ErrForbidden       = errors.New("post: not authorized")
	ErrLikeRateLimited = errors.New("post: like rate limit exceeded")
)

const (
	// LikeBurstLimit is the number of likes an identity may issue per
	// LikeBurstWindow before further likes are refused.
	LikeBurstLimit  = 10
	LikeBurstWindow = time.Minute

	defaultPageLimit = 10
	maxPageLimit     = 50
	maxContentLength = 5000
)

// Notifier is the detached event path.
type Notifier interface {
	Notify(userID, event string, payload any)
	NotifySubscribers(userID, event string, payload any)
}

// Service manages posts, likes and comments.
type Service struct {
	posts    repository.PostRepository
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// New constructs a Service.
func New(posts repository.PostRepository, notifier Notifier, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{posts: posts, notifier: notifier, logger: logger.With("component", "post"), now: time.Now}
}

// CreateInput describes a new post. Media is referenced by URL only.
type CreateInput struct {
	Content   string `json:"content"`
	MediaURL  string `json:"mediaUrl"`
	MediaType string `json:"mediaType"`
}

// Feed is a page of posts, newest first.
type Feed struct {
	Posts      []domain.Post `json:"posts"`
	Pagination domain.Page   `json:"pagination"`
}

// LikeResult reports the like count after a like or unlike.
type LikeResult struct {
	PostID     string `json:"postId"`
	TotalLikes int    `json:"totalLikes"`
}

// Create stores a post and announces it to the author's followers.
func (s Service) Create(ctx context.Context, userID string, in CreateInput) (domain.Post, error) {
	content := strings.TrimSpace(in.Content)
	mediaURL := strings.TrimSpace(in.MediaURL)
	if content == "" && mediaURL == "" {
		return domain.Post{}, fmt.Errorf("%w: content or media required", ErrInvalidPost)
	}
	if len(content) > maxContentLength {
		return domain.Post{}, fmt.Errorf("%w: content longer than %d characters", ErrInvalidPost, maxContentLength)
	}
	p := domain.Post{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		MediaURL:  mediaURL,
		MediaType: mediaType(mediaURL, in.MediaType),
		Likes:     []string{},
		Comments:  []domain.Comment{},
		CreatedAt: s.now().UTC(),
	}
	if err := s.posts.CreatePost(ctx, &p); err != nil {
		return domain.Post{}, err
	}
	s.notifier.NotifySubscribers(userID, domain.EventNewPost, p)
	s.logger.Info("post created", "post_id", p.ID, "user_id", userID)
	return p, nil
}

// mediaType keeps only the top-level type ("image/png" becomes "image").
func mediaType(url, declared string) string {
	if url == "" {
		return ""
	}
	declared = strings.TrimSpace(declared)
	if idx := strings.IndexByte(declared, '/'); idx > 0 {
		return declared[:idx]
	}
	return declared
}

// List returns the global feed.
func (s Service) List(ctx context.Context, page, limit int) (Feed, error) {
	return s.list(ctx, "", page, limit)
}

// ListByUser returns posts written by authorID.
func (s Service) ListByUser(ctx context.Context, authorID string, page, limit int) (Feed, error) {
	return s.list(ctx, authorID, page, limit)
}

func (s Service) list(ctx context.Context, authorID string, page, limit int) (Feed, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	posts, err := s.posts.ListPosts(ctx, authorID, limit, (page-1)*limit)
	if err != nil {
		return Feed{}, err
	}
	total, err := s.posts.CountPosts(ctx, authorID)
	if err != nil {
		return Feed{}, err
	}
	if posts == nil {
		posts = []domain.Post{}
	}
	return Feed{Posts: posts, Pagination: domain.NewPage(total, page, limit)}, nil
}

// Like records userID liking postID and notifies the author.
func (s Service) Like(ctx context.Context, postID, userID string) (LikeResult, error) {
	recent, err := s.posts.CountRecentLikesBy(ctx, userID, s.now().Add(-LikeBurstWindow))
	if err != nil {
		return LikeResult{}, err
	}
	if recent > LikeBurstLimit {
		return LikeResult{}, ErrLikeRateLimited
	}
	p, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return LikeResult{}, err
	}
	if p.LikedBy(userID) {
		return LikeResult{}, ErrAlreadyLiked
	}
	total, err := s.posts.AddLike(ctx, postID, userID)
	if err != nil {
		return LikeResult{}, err
	}
	s.notifier.Notify(p.UserID, domain.EventPostLiked, map[string]any{
		"postId":     postID,
		"userId":     userID,
		"totalLikes": total,
	})
	return LikeResult{PostID: postID, TotalLikes: total}, nil
}

// Unlike removes userID's like from postID.
func (s Service) Unlike(ctx context.Context, postID, userID string) (LikeResult, error) {
	p, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return LikeResult{}, err
	}
	if !p.LikedBy(userID) {
		return LikeResult{}, ErrNotLiked
	}
	total, err := s.posts.RemoveLike(ctx, postID, userID)
	if err != nil {
		return LikeResult{}, err
	}
	return LikeResult{PostID: postID, TotalLikes: total}, nil
}

// Comment attaches a comment to postID and notifies the author.
func (s Service) Comment(ctx context.Context, postID, userID, content string) (domain.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Comment{}, fmt.Errorf("%w: comment content required", ErrInvalidPost)
	}
	if len(content) > maxContentLength {
		return domain.Comment{}, fmt.Errorf("%w: comment longer than %d characters", ErrInvalidPost, maxContentLength)
	}
	p, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return domain.Comment{}, err
	}
	c := domain.Comment{
		ID:        uuid.NewString(),
		PostID:    postID,
		UserID:    userID,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	if err := s.posts.AddComment(ctx, &c); err != nil {
		return domain.Comment{}, err
	}
	s.notifier.Notify(p.UserID, domain.EventPostCommented, map[string]any{
		"postId":  postID,
		"comment": c,
	})
	return c, nil
}

// Delete removes postID when userID wrote it.
func (s Service) Delete(ctx context.Context, postID, userID string) error {
	p, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if p.UserID != userID {
		return ErrForbidden
	}
	if err := s.posts.DeletePost(ctx, postID); err != nil {
		return err
	}
	s.logger.Info("post deleted", "post_id", postID, "user_id", userID)
	return nil
}
