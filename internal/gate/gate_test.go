package gate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/splax/athlink/internal/domain"
	"github.com/splax/athlink/internal/repository"
	"github.com/splax/athlink/pkg/jwt"
)

const secret = "test-secret"

type stubFinder struct {
	identities map[string]*domain.Identity
	err        error
	calls      int
}

func (s *stubFinder) GetIdentity(_ context.Context, id string) (*domain.Identity, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if ident, ok := s.identities[id]; ok {
		return ident, nil
	}
	return nil, repository.ErrNotFound
}

func newGate(finder *stubFinder) *Gate {
	return New(JWTVerifier{Secret: secret}, finder, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func token(t *testing.T, userID string, ttl time.Duration) string {
	t.Helper()
	tok, err := jwt.GenerateToken(userID, secret, ttl)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func TestAdmitValidCredential(t *testing.T) {
	finder := &stubFinder{identities: map[string]*domain.Identity{"u1": {ID: "u1"}}}
	g := newGate(finder)

	id, err := g.Admit(context.Background(), token(t, "u1", time.Hour))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if id != "u1" {
		t.Fatalf("expected u1, got %q", id)
	}
}

func TestAdmitRejections(t *testing.T) {
	finder := &stubFinder{identities: map[string]*domain.Identity{"u1": {ID: "u1"}}}
	g := newGate(finder)
	other, err := jwt.GenerateToken("u1", "other-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	cases := []struct {
		name       string
		credential string
		reason     string
	}{
		{"missing", "  ", ReasonMissing},
		{"garbage", "not-a-token", ReasonInvalid},
		{"bad signature", other, ReasonInvalid},
		{"expired", token(t, "u1", -time.Minute), ReasonExpired},
		{"unknown identity", token(t, "ghost", time.Hour), ReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.Admit(context.Background(), tc.credential)
			if !errors.Is(err, ErrAuthentication) {
				t.Fatalf("expected authentication error, got %v", err)
			}
			var authErr *AuthError
			if !errors.As(err, &authErr) || authErr.Reason != tc.reason {
				t.Fatalf("expected reason %q, got %v", tc.reason, err)
			}
		})
	}
}

func TestAdmitStoreUnavailableIsDistinguishable(t *testing.T) {
	finder := &stubFinder{err: errors.New("connection refused")}
	g := newGate(finder)

	_, err := g.Admit(context.Background(), token(t, "u1", time.Hour))
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if !errors.Is(err, repository.ErrUnavailable) {
		t.Fatalf("expected unavailable classification, got %v", err)
	}
}

func TestAdmitSkipsLookupForBadCredential(t *testing.T) {
	finder := &stubFinder{}
	g := newGate(finder)
	_, _ = g.Admit(context.Background(), "bogus")
	if finder.calls != 0 {
		t.Fatalf("expected no identity lookup, got %d", finder.calls)
	}
}

func TestCredentialFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws?token=abc", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	if got := CredentialFromRequest(req); got != "abc" {
		t.Fatalf("expected query token, got %q", got)
	}

	req = httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	if got := CredentialFromRequest(req); got != "header-token" {
		t.Fatalf("expected header token, got %q", got)
	}

	req = httptest.NewRequest("GET", "/ws", nil)
	if got := CredentialFromRequest(req); got != "" {
		t.Fatalf("expected empty credential, got %q", got)
	}
}
