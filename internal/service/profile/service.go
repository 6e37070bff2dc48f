package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/splax/athlink/internal/cache"
	"github.com/splax/athlink/internal/domain"
	"github.com/splax/athlink/internal/repository"
)

var (
	// ErrSelfFollow is returned when an identity tries to follow itself.
	ErrSelfFollow = errors.New("profile: cannot follow yourself")
	// ErrInvalidUpdate reports an empty or malformed profile update.
	ErrInvalidUpdate = errors.New("profile: invalid update")
)

// Notifier is the detached event path.
type Notifier interface {
	Notify(userID, event string, payload any)
	NotifySubscribers(userID, event string, payload any)
}

// Service reads and mutates athlete profiles.
type Service struct {
	users    repository.IdentityRepository
	profiles *cache.Store[domain.Profile]
	notifier Notifier
	logger   *slog.Logger
	ttl      time.Duration
}

// New constructs a Service.
func New(users repository.IdentityRepository, profiles *cache.Store[domain.Profile], notifier Notifier, logger *slog.Logger, ttl time.Duration) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{users: users, profiles: profiles, notifier: notifier, logger: logger.With("component", "profile"), ttl: ttl}
}

// Get returns the cached profile snapshot, loading it on a miss.
func (s Service) Get(ctx context.Context, userID string) (domain.Profile, error) {
	return s.profiles.ReadThrough(ctx, cache.Key(cache.KindUser, userID), func(ctx context.Context) (domain.Profile, error) {
		identity, err := s.users.GetIdentity(ctx, userID)
		if err != nil {
			return domain.Profile{}, err
		}
		return identity.Profile(), nil
	}, s.ttl)
}

// Update applies changes, refreshes the cached snapshot and tells
// subscribers about it.
func (s Service) Update(ctx context.Context, userID string, update domain.ProfileUpdate) (domain.Profile, error) {
	if update.Empty() {
		return domain.Profile{}, fmt.Errorf("%w: nothing to change", ErrInvalidUpdate)
	}
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return domain.Profile{}, fmt.Errorf("%w: name cannot be blank", ErrInvalidUpdate)
	}
	if update.Age != nil && *update.Age < 0 {
		return domain.Profile{}, fmt.Errorf("%w: age must be positive", ErrInvalidUpdate)
	}
	identity, err := s.users.UpdateProfile(ctx, userID, update)
	if err != nil {
		return domain.Profile{}, err
	}
	snapshot := identity.Profile()
	s.profiles.WriteInvalidate(ctx, cache.Key(cache.KindUser, userID), snapshot, s.ttl)
	s.notifier.NotifySubscribers(userID, domain.EventProfileUpdated, snapshot)
	s.logger.Info("profile updated", "user_id", userID)
	return snapshot, nil
}

// Delete removes the identity and its cached snapshot.
func (s Service) Delete(ctx context.Context, userID string) error {
	if err := s.users.DeleteIdentity(ctx, userID); err != nil {
		return err
	}
	s.profiles.Delete(ctx, cache.Key(cache.KindUser, userID))
	s.profiles.Delete(ctx, cache.Key(cache.KindHealth, userID))
	s.logger.Info("profile deleted", "user_id", userID)
	return nil
}

// Follow subscribes followerID to targetID's events.
func (s Service) Follow(ctx context.Context, followerID, targetID string) error {
	if followerID == targetID {
		return ErrSelfFollow
	}
	target, err := s.users.GetIdentity(ctx, targetID)
	if err != nil {
		return err
	}
	follower, err := s.users.GetIdentity(ctx, followerID)
	if err != nil {
		return err
	}
	if err := s.users.Follow(ctx, followerID, targetID); err != nil {
		return err
	}
	s.evictGraph(ctx, followerID, targetID)
	s.notifier.Notify(target.ID, domain.EventNewFollower, map[string]any{
		"followerId":   follower.ID,
		"name":         follower.Name,
		"profileImage": follower.ProfileImage,
	})
	return nil
}

// Unfollow removes the subscription.
func (s Service) Unfollow(ctx context.Context, followerID, targetID string) error {
	if followerID == targetID {
		return ErrSelfFollow
	}
	if _, err := s.users.GetIdentity(ctx, targetID); err != nil {
		return err
	}
	if err := s.users.Unfollow(ctx, followerID, targetID); err != nil {
		return err
	}
	s.evictGraph(ctx, followerID, targetID)
	return nil
}

// Follower counts live in the snapshot, so both sides are reloaded.
func (s Service) evictGraph(ctx context.Context, ids ...string) {
	for _, id := range ids {
		s.profiles.Delete(ctx, cache.Key(cache.KindUser, id))
	}
}
