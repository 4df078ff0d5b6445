package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/chirpline/backend/internal/api/helpers"
	"github.com/chirpline/backend/internal/auth"
)

// bearerToken extracts the raw token from an "Authorization: Bearer <token>"
// header, returning "" if the header is absent or malformed.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func withPrincipal(r *http.Request, p *auth.Principal) *http.Request {
	ctx := context.WithValue(r.Context(), PrincipalKey, p)
	ctx = context.WithValue(ctx, UserIDKey, p.UserID)
	return r.WithContext(ctx)
}

// RequireAuth implements component D's strong resolution mode (spec.md
// §4.2): a missing or invalid access credential always rejects the
// request with 401 INVALID_TOKEN.
func RequireAuth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := verifier.RequirePrincipal(r.Context(), bearerToken(r))
			if err != nil {
				helpers.RespondError(w, http.StatusUnauthorized, "INVALID_TOKEN", "missing or invalid access token")
				return
			}
			SetSentryUser(r.Context(), principal.UserID.String(), principal.Username, r.RemoteAddr)
			next.ServeHTTP(w, withPrincipal(r, principal))
		})
	}
}

// OptionalAuth implements component D's soft, anonymous-tolerant
// resolution mode (spec.md §4.2): any failure to resolve a principal —
// missing header, malformed token, expired token — falls through as an
// anonymous request instead of a challenge. Used on public read routes so
// a stale token never breaks read availability.
func OptionalAuth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if principal := verifier.TryResolvePrincipal(r.Context(), bearerToken(r)); principal != nil {
				r = withPrincipal(r, principal)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSensitiveAuth implements component D's sensitive resolution mode
// (spec.md §4.2): strong resolution plus a fresh passwordChangedAt
// re-check, for routes like change-password and session revocation where
// a credential issued before the last password change must be rejected
// even though its signature and expiry are still valid.
func RequireSensitiveAuth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := verifier.RequireSensitivePrincipal(r.Context(), bearerToken(r))
			if err != nil {
				code := "SESSION_REVOKED"
				if err == auth.ErrInvalidAccessToken {
					code = "INVALID_TOKEN"
				}
				helpers.RespondError(w, http.StatusUnauthorized, code, "session is no longer valid")
				return
			}
			SetSentryUser(r.Context(), principal.UserID.String(), principal.Username, r.RemoteAddr)
			next.ServeHTTP(w, withPrincipal(r, principal))
		})
	}
}
