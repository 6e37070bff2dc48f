package profile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/splax/athlink/internal/cache"
	"github.com/splax/athlink/internal/domain"
	"github.com/splax/athlink/internal/repository"
)

type fakeIdentityRepo struct {
	byID      map[string]*domain.Identity
	gets      int
	follows   [][2]string
	deleteErr error
}

func (f *fakeIdentityRepo) CreateIdentity(_ context.Context, identity *domain.Identity) error {
	f.byID[identity.ID] = identity
	return nil
}

func (f *fakeIdentityRepo) GetIdentity(_ context.Context, id string) (*domain.Identity, error) {
	f.gets++
	if u, ok := f.byID[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeIdentityRepo) GetIdentityByEmail(context.Context, string) (*domain.Identity, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeIdentityRepo) UpdateProfile(_ context.Context, id string, update domain.ProfileUpdate) (*domain.Identity, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Bio != nil {
		u.Bio = *update.Bio
	}
	clone := *u
	return &clone, nil
}

func (f *fakeIdentityRepo) DeleteIdentity(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeIdentityRepo) ListFollowers(context.Context, string) ([]string, error) { return nil, nil }

func (f *fakeIdentityRepo) Follow(_ context.Context, followerID, targetID string) error {
	f.follows = append(f.follows, [2]string{followerID, targetID})
	return nil
}

func (f *fakeIdentityRepo) Unfollow(context.Context, string, string) error { return nil }

type notification struct {
	userID  string
	event   string
	fanOut  bool
	payload any
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (r *recordingNotifier) Notify(userID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, notification{userID: userID, event: event, payload: payload})
}

func (r *recordingNotifier) NotifySubscribers(userID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, notification{userID: userID, event: event, fanOut: true, payload: payload})
}

func newTestService() (Service, *fakeIdentityRepo, *recordingNotifier) {
	repo := &fakeIdentityRepo{byID: map[string]*domain.Identity{
		"u1": {ID: "u1", Name: "Ana", Email: "ana@example.com"},
		"u2": {ID: "u2", Name: "Ben", Email: "ben@example.com"},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := cache.NewStore[domain.Profile](cache.NewMemoryBackend(), logger)
	notifier := &recordingNotifier{}
	return New(repo, store, notifier, logger, time.Hour), repo, notifier
}

func strPtr(s string) *string { return &s }

func TestGetReadsThroughCache(t *testing.T) {
	svc, repo, _ := newTestService()
	for i := 0; i < 3; i++ {
		p, err := svc.Get(context.Background(), "u1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if p.Name != "Ana" {
			t.Fatalf("unexpected profile %+v", p)
		}
	}
	if repo.gets != 1 {
		t.Fatalf("expected one durable read, got %d", repo.gets)
	}
}

func TestGetUnknownIsNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.Get(context.Background(), "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateRefreshesCacheAndNotifiesSubscribers(t *testing.T) {
	svc, repo, notifier := newTestService()
	ctx := context.Background()
	if _, err := svc.Get(ctx, "u1"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	updated, err := svc.Update(ctx, "u1", domain.ProfileUpdate{Name: strPtr("Ana Lopez")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Ana Lopez" {
		t.Fatalf("unexpected profile %+v", updated)
	}

	gets := repo.gets
	got, err := svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Ana Lopez" {
		t.Fatalf("cache served stale snapshot %+v", got)
	}
	if repo.gets != gets {
		t.Fatal("expected refreshed snapshot to be served from cache")
	}

	if len(notifier.calls) != 1 {
		t.Fatalf("expected one notification, got %+v", notifier.calls)
	}
	call := notifier.calls[0]
	if !call.fanOut || call.userID != "u1" || call.event != domain.EventProfileUpdated {
		t.Fatalf("unexpected notification %+v", call)
	}
}

func TestUpdateValidation(t *testing.T) {
	svc, _, notifier := newTestService()
	if _, err := svc.Update(context.Background(), "u1", domain.ProfileUpdate{}); !errors.Is(err, ErrInvalidUpdate) {
		t.Fatalf("expected ErrInvalidUpdate, got %v", err)
	}
	if _, err := svc.Update(context.Background(), "u1", domain.ProfileUpdate{Name: strPtr("  ")}); !errors.Is(err, ErrInvalidUpdate) {
		t.Fatalf("expected ErrInvalidUpdate for blank name, got %v", err)
	}
	if len(notifier.calls) != 0 {
		t.Fatal("rejected updates must not notify")
	}
}

func TestDeleteEvictsSnapshot(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	if _, err := svc.Get(ctx, "u1"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if err := svc.Delete(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, "u1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected deleted profile to be gone, got %v", err)
	}
}

func TestFollowNotifiesTarget(t *testing.T) {
	svc, repo, notifier := newTestService()
	if err := svc.Follow(context.Background(), "u2", "u1"); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if len(repo.follows) != 1 || repo.follows[0] != [2]string{"u2", "u1"} {
		t.Fatalf("unexpected follows %+v", repo.follows)
	}
	if len(notifier.calls) != 1 || notifier.calls[0].event != domain.EventNewFollower || notifier.calls[0].userID != "u1" {
		t.Fatalf("unexpected notifications %+v", notifier.calls)
	}
}

func TestFollowRejectsSelfAndUnknown(t *testing.T) {
	svc, _, _ := newTestService()
	if err := svc.Follow(context.Background(), "u1", "u1"); !errors.Is(err, ErrSelfFollow) {
		t.Fatalf("expected ErrSelfFollow, got %v", err)
	}
	if err := svc.Follow(context.Background(), "u1", "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
