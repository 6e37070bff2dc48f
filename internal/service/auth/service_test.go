package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/splax/athlink/internal/cache"
	"github.com/splax/athlink/internal/domain"
	"github.com/splax/athlink/internal/repository"
	"github.com/splax/athlink/pkg/config"
	jwtpkg "github.com/splax/athlink/pkg/jwt"
)

type fakeIdentityRepo struct {
	byID      map[string]*domain.Identity
	createErr error
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{byID: make(map[string]*domain.Identity)}
}

func (f *fakeIdentityRepo) CreateIdentity(_ context.Context, identity *domain.Identity) error {
	if f.createErr != nil {
		return f.createErr
	}
	clone := *identity
	f.byID[identity.ID] = &clone
	return nil
}

func (f *fakeIdentityRepo) GetIdentity(_ context.Context, id string) (*domain.Identity, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeIdentityRepo) GetIdentityByEmail(_ context.Context, email string) (*domain.Identity, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeIdentityRepo) UpdateProfile(context.Context, string, domain.ProfileUpdate) (*domain.Identity, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeIdentityRepo) DeleteIdentity(context.Context, string) error { return nil }
func (f *fakeIdentityRepo) ListFollowers(context.Context, string) ([]string, error) {
	return nil, nil
}
func (f *fakeIdentityRepo) Follow(context.Context, string, string) error   { return nil }
func (f *fakeIdentityRepo) Unfollow(context.Context, string, string) error { return nil }

func newTestService(repo *fakeIdentityRepo) (Service, *cache.MemoryBackend) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := cache.NewMemoryBackend()
	store := cache.NewStore[domain.Profile](backend, logger)
	cfg := config.APIConfig{JWTSecret: "secret", AccessTokenTTL: time.Hour, CacheTTL: time.Hour}
	return New(repo, store, logger, cfg), backend
}

func TestSignupIssuesVerifiableToken(t *testing.T) {
	repo := newFakeIdentityRepo()
	svc, _ := newTestService(repo)

	session, err := svc.Signup(context.Background(), SignupInput{Name: "Ana", Email: " Ana@Example.com ", Password: "hunter22"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if session.User.Email != "ana@example.com" {
		t.Fatalf("expected normalized email, got %q", session.User.Email)
	}
	claims, err := jwtpkg.Parse(session.Token, "secret")
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != session.User.ID {
		t.Fatalf("token names %q, want %q", claims.UserID, session.User.ID)
	}
	stored := repo.byID[session.User.ID]
	if stored == nil || len(stored.PasswordHash) == 0 || string(stored.PasswordHash) == "hunter22" {
		t.Fatal("expected hashed password to be stored")
	}
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	repo := newFakeIdentityRepo()
	svc, _ := newTestService(repo)
	in := SignupInput{Name: "Ana", Email: "ana@example.com", Password: "hunter22"}
	if _, err := svc.Signup(context.Background(), in); err != nil {
		t.Fatalf("first signup: %v", err)
	}
	if _, err := svc.Signup(context.Background(), in); !errors.Is(err, ErrIdentityExists) {
		t.Fatalf("expected ErrIdentityExists, got %v", err)
	}
}

func TestSignupMapsConflictFromStore(t *testing.T) {
	repo := newFakeIdentityRepo()
	repo.createErr = repository.ErrConflict
	svc, _ := newTestService(repo)
	_, err := svc.Signup(context.Background(), SignupInput{Name: "Ana", Email: "ana@example.com", Password: "hunter22"})
	if !errors.Is(err, ErrIdentityExists) {
		t.Fatalf("expected ErrIdentityExists, got %v", err)
	}
}

func TestSignupValidation(t *testing.T) {
	svc, _ := newTestService(newFakeIdentityRepo())
	negative := -1
	cases := []SignupInput{
		{Email: "ana@example.com", Password: "hunter22"},
		{Name: "Ana", Email: "not-an-email", Password: "hunter22"},
		{Name: "Ana", Email: "ana@example.com", Password: "short"},
		{Name: "Ana", Email: "ana@example.com", Password: "hunter22", Age: &negative},
	}
	for _, in := range cases {
		if _, err := svc.Signup(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", in, err)
		}
	}
}

func TestLoginCachesProfile(t *testing.T) {
	repo := newFakeIdentityRepo()
	svc, backend := newTestService(repo)
	created, err := svc.Signup(context.Background(), SignupInput{Name: "Ana", Email: "ana@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if backend.Len() != 0 {
		t.Fatal("signup must not populate the profile cache")
	}

	session, err := svc.Login(context.Background(), "ana@example.com", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.User.ID != created.User.ID {
		t.Fatalf("unexpected user %+v", session.User)
	}
	if _, err := backend.Get(context.Background(), cache.Key(cache.KindUser, created.User.ID)); err != nil {
		t.Fatalf("expected cached profile, got %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	repo := newFakeIdentityRepo()
	svc, _ := newTestService(repo)
	if _, err := svc.Signup(context.Background(), SignupInput{Name: "Ana", Email: "ana@example.com", Password: "hunter22"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := svc.Login(context.Background(), "ana@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "ghost@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}
