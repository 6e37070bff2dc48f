package repository

import (
	"context"
	"time"

	"github.com/splax/athlink/internal/domain"
)

// IdentityRepository persists athlete accounts and the follow graph.
type IdentityRepository interface {
	CreateIdentity(ctx context.Context, identity *domain.Identity) error
	GetIdentity(ctx context.Context, id string) (*domain.Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*domain.Identity, error)
	UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.Identity, error)
	DeleteIdentity(ctx context.Context, id string) error
	ListFollowers(ctx context.Context, id string) ([]string, error)
	Follow(ctx context.Context, followerID, targetID string) error
	Unfollow(ctx context.Context, followerID, targetID string) error
}

// HealthRepository stores append-only health samples.
type HealthRepository interface {
	AppendSample(ctx context.Context, sample *domain.HealthSample) error
	LatestSample(ctx context.Context, userID string) (*domain.HealthSample, error)
	ListSamples(ctx context.Context, filter domain.HealthFilter) ([]domain.HealthSample, error)
	CountSamples(ctx context.Context, filter domain.HealthFilter) (int, error)
	SamplesBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.HealthSample, error)
}

// AlertRepository stores alerts produced by threshold evaluation.
type AlertRepository interface {
	AppendAlert(ctx context.Context, alert *domain.Alert) error
	ListAlerts(ctx context.Context, userID string, limit int) ([]domain.Alert, error)
}

// PostRepository persists posts, likes and comments.
type PostRepository interface {
	CreatePost(ctx context.Context, post *domain.Post) error
	GetPost(ctx context.Context, id string) (*domain.Post, error)
	ListPosts(ctx context.Context, authorID string, limit, offset int) ([]domain.Post, error)
	CountPosts(ctx context.Context, authorID string) (int, error)
	AddLike(ctx context.Context, postID, userID string) (int, error)
	RemoveLike(ctx context.Context, postID, userID string) (int, error)
	CountRecentLikesBy(ctx context.Context, userID string, since time.Time) (int, error)
	AddComment(ctx context.Context, comment *domain.Comment) error
	DeletePost(ctx context.Context, id string) error
}
