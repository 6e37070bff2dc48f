// Package gate admits live connections by resolving a credential to an
// existing identity before any channel is registered.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/splax/athlink/internal/domain"
	"github.com/splax/athlink/internal/repository"
	"github.com/splax/athlink/pkg/jwt"
)

// ErrAuthentication is matched by every admission rejection.
var ErrAuthentication = errors.New("gate: authentication failed")

// Rejection reasons.
const (
	ReasonMissing     = "missing credential"
	ReasonInvalid     = "invalid credential"
	ReasonExpired     = "credential expired"
	ReasonUnknown     = "unknown identity"
	ReasonUnavailable = "identity store unavailable"
)

// AuthError describes why a credential was refused.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gate: %s: %v", e.Reason, e.Err)
	}
	return "gate: " + e.Reason
}

// Is makes every AuthError match ErrAuthentication.
func (e *AuthError) Is(target error) bool { return target == ErrAuthentication }

func (e *AuthError) Unwrap() error { return e.Err }

// Verifier turns a credential into the identity id it names.
type Verifier interface {
	Verify(credential string) (string, error)
}

// IdentityFinder checks that an identity still exists.
type IdentityFinder interface {
	GetIdentity(ctx context.Context, id string) (*domain.Identity, error)
}

// JWTVerifier verifies HS256 tokens issued by pkg/jwt.
type JWTVerifier struct {
	Secret string
}

// Verify parses token and returns the embedded user id.
func (v JWTVerifier) Verify(token string) (string, error) {
	claims, err := jwt.Parse(token, v.Secret)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// Gate resolves credentials to identities.
type Gate struct {
	verifier Verifier
	finder   IdentityFinder
	log      *slog.Logger
}

// New constructs a Gate.
func New(verifier Verifier, finder IdentityFinder, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{verifier: verifier, finder: finder, log: logger.With("component", "gate")}
}

// Admit returns the identity named by credential. Every failure is an
// *AuthError; there are no retries.
func (g *Gate) Admit(ctx context.Context, credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", &AuthError{Reason: ReasonMissing}
	}
	userID, err := g.verifier.Verify(credential)
	if err != nil {
		if jwt.Expired(err) {
			return "", &AuthError{Reason: ReasonExpired, Err: err}
		}
		return "", &AuthError{Reason: ReasonInvalid, Err: err}
	}
	if _, err := g.finder.GetIdentity(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", &AuthError{Reason: ReasonUnknown, Err: err}
		}
		g.log.Error("identity lookup failed during admission", "user_id", userID, "error", err)
		return "", &AuthError{Reason: ReasonUnavailable, Err: fmt.Errorf("%w: %v", repository.ErrUnavailable, err)}
	}
	return userID, nil
}

// CredentialFromRequest extracts the token from the "token" query parameter,
// falling back to an Authorization bearer header.
func CredentialFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	token, _ := BearerToken(r.Header.Get("Authorization"))
	return token
}

// BearerToken parses an Authorization header value.
func BearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
