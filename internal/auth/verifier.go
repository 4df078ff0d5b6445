package auth

import (
	"context"
	"log/slog"

	"github.com/chirpline/backend/internal/domain"
	"github.com/google/uuid"
)

// Principal is the resolved identity of an access credential, component D's
// output shape.
type Principal struct {
	UserID      uuid.UUID
	DisplayName string
	Username    string
}

// Verifier implements component D's three session-resolution modes.
type Verifier struct {
	tokens TokenProvider
	users  domain.UserRepository
}

func NewVerifier(tokens TokenProvider, users domain.UserRepository) *Verifier {
	return &Verifier{tokens: tokens, users: users}
}

// RequirePrincipal is the strong mode: a missing, malformed or expired
// token is always an error.
func (v *Verifier) RequirePrincipal(ctx context.Context, tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, ErrInvalidAccessToken
	}
	claims, err := v.tokens.ValidateToken(tokenString)
	if err != nil {
		return nil, ErrInvalidAccessToken
	}
	return &Principal{
		UserID:      claims.UserID,
		DisplayName: claims.DisplayName,
		Username:    claims.Username,
	}, nil
}

// TryResolvePrincipal is the soft mode: a missing or invalid token resolves
// to an anonymous caller (nil principal, no error) instead of failing the
// request, for endpoints that behave differently for authenticated callers
// but don't require authentication.
func (v *Verifier) TryResolvePrincipal(ctx context.Context, tokenString string) *Principal {
	if tokenString == "" {
		return nil
	}
	claims, err := v.tokens.ValidateToken(tokenString)
	if err != nil {
		slog.DebugContext(ctx, "soft_auth_token_rejected", "error", err)
		return nil
	}
	return &Principal{
		UserID:      claims.UserID,
		DisplayName: claims.DisplayName,
		Username:    claims.Username,
	}
}

// RequireSensitivePrincipal is the sensitive mode used before operations
// like password change or session revocation: it re-checks that the user
// still exists and that no password change has happened since the token
// was issued (which would mean the session was meant to be invalidated).
func (v *Verifier) RequireSensitivePrincipal(ctx context.Context, tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, ErrInvalidAccessToken
	}
	claims, err := v.tokens.ValidateToken(tokenString)
	if err != nil {
		return nil, ErrInvalidAccessToken
	}

	user, err := v.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, ErrSessionRevoked
	}

	issuedAt := claims.IssuedAt.Time
	if user.PasswordChangedAt.After(issuedAt.Add(clockLeeway)) {
		return nil, ErrSessionRevoked
	}

	return &Principal{
		UserID:      claims.UserID,
		DisplayName: claims.DisplayName,
		Username:    claims.Username,
	}, nil
}
