package middleware

import (
	"context"
	"fmt"

	"github.com/chirpline/backend/internal/auth"
	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
// This prevents accidental key conflicts with other packages.
type contextKey string

// Context keys for request-scoped values.
const (
	UserIDKey    contextKey = "user_id"
	PrincipalKey contextKey = "principal"
)

// GetPrincipal safely extracts the resolved principal from context.
func GetPrincipal(ctx context.Context) (*auth.Principal, error) {
	val := ctx.Value(PrincipalKey)
	if val == nil {
		return nil, fmt.Errorf("principal not found in context")
	}
	p, ok := val.(*auth.Principal)
	if !ok {
		return nil, fmt.Errorf("principal has wrong type: %T", val)
	}
	return p, nil
}

// GetUserID safely extracts the user ID from context.
// Returns an error if the value is missing or wrong type.
func GetUserID(ctx context.Context) (uuid.UUID, error) {
	val := ctx.Value(UserIDKey)
	if val == nil {
		return uuid.Nil, fmt.Errorf("user_id not found in context")
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("user_id has wrong type: %T", val)
	}
	return id, nil
}

// MustGetUserID extracts user ID and panics if not found.
// Use only in contexts where UserID is guaranteed to be set by middleware.
func MustGetUserID(ctx context.Context) uuid.UUID {
	id, err := GetUserID(ctx)
	if err != nil {
		panic(fmt.Sprintf("CRITICAL: %v", err))
	}
	return id
}
