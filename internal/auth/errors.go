package auth

import "errors"

// Sentinel errors matching spec.md §7's error kind table. Handlers map
// these onto the wire {code,message,timestamp} shape with errors.Is,
// continuing the teacher's "business errors as values" pattern.
var (
	ErrInvalidEmail        = errors.New("INVALID_EMAIL")
	ErrWeakPassword        = errors.New("WEAK_PASSWORD")
	ErrInvalidDisplayName  = errors.New("INVALID_DISPLAY_NAME")
	ErrUserExists          = errors.New("USER_EXISTS")
	ErrAuthFailed          = errors.New("AUTH_FAILED")
	ErrInvalidAccessToken  = errors.New("INVALID_TOKEN")
	ErrRefreshTokenInvalid = errors.New("REFRESH_TOKEN_INVALID")
	ErrRefreshTokenExpired = errors.New("REFRESH_TOKEN_EXPIRED")
	ErrTokenReuseDetected  = errors.New("TOKEN_REUSE_DETECTED")
	ErrStaleRefreshToken   = errors.New("STALE_REFRESH_TOKEN")
	ErrSessionRevoked      = errors.New("SESSION_REVOKED")
)
