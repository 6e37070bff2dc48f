package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/athlink/internal/cache"
	"github.com/splax/athlink/internal/domain"
	"github.com/splax/athlink/internal/repository"
	"github.com/splax/athlink/pkg/config"
	"github.com/splax/athlink/pkg/crypto"
	jwtpkg "github.com/splax/athlink/pkg/jwt"
)

var (
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrIdentityExists is returned when signing up with a taken email.
	ErrIdentityExists = errors.New("auth: user already exists")
	// ErrInvalidInput reports a malformed signup request.
	ErrInvalidInput = errors.New("auth: invalid input")
)

// Service handles signup and login.
type Service struct {
	users    repository.IdentityRepository
	profiles *cache.Store[domain.Profile]
	logger   *slog.Logger
	cfg      config.APIConfig
	now      func() time.Time
}

// New constructs a Service.
func New(users repository.IdentityRepository, profiles *cache.Store[domain.Profile], logger *slog.Logger, cfg config.APIConfig) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{users: users, profiles: profiles, logger: logger.With("component", "auth"), cfg: cfg, now: time.Now}
}

// SignupInput carries registration fields.
type SignupInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      *int   `json:"age"`
	Sport    string `json:"sport"`
	Bio      string `json:"bio"`
}

// Session is returned after a successful signup or login.
type Session struct {
	User      domain.Profile `json:"user"`
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// Signup registers a new athlete.
func (s Service) Signup(ctx context.Context, in SignupInput) (Session, error) {
	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Session{}, fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return Session{}, fmt.Errorf("%w: email invalid", ErrInvalidInput)
	}
	if in.Age != nil && *in.Age < 0 {
		return Session{}, fmt.Errorf("%w: age must be positive", ErrInvalidInput)
	}
	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, crypto.ErrWeakPassword) {
			return Session{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, crypto.MinPasswordLength)
		}
		return Session{}, err
	}
	if _, err := s.users.GetIdentityByEmail(ctx, email); err == nil {
		return Session{}, ErrIdentityExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return Session{}, err
	}

	now := s.now().UTC()
	identity := &domain.Identity{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Age:          in.Age,
		Sport:        strings.TrimSpace(in.Sport),
		Bio:          strings.TrimSpace(in.Bio),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateIdentity(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return Session{}, ErrIdentityExists
		}
		return Session{}, err
	}
	session, err := s.issue(identity)
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("user registered", "user_id", identity.ID)
	return session, nil
}

// Login authenticates an athlete and caches the profile snapshot.
func (s Service) Login(ctx context.Context, email, password string) (Session, error) {
	identity, err := s.users.GetIdentityByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := crypto.ComparePassword(identity.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	session, err := s.issue(identity)
	if err != nil {
		return Session{}, err
	}
	if s.profiles != nil {
		s.profiles.Put(ctx, cache.Key(cache.KindUser, identity.ID), session.User, s.cfg.CacheTTL)
	}
	s.logger.Info("user logged in", "user_id", identity.ID)
	return session, nil
}

func (s Service) issue(identity *domain.Identity) (Session, error) {
	ttl := s.cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	token, err := jwtpkg.GenerateToken(identity.ID, s.cfg.JWTSecret, ttl)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{User: identity.Profile(), Token: token, ExpiresAt: s.now().UTC().Add(ttl)}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
