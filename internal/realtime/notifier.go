package realtime

import (
	"context"

	"github.com/google/uuid"
)

// Notifier implements auth.SessionNotifier against the router, so the
// rotation engine can fan out auth_revoked frames without internal/auth
// importing internal/realtime directly.
type Notifier struct {
	router *Router
}

func NewNotifier(router *Router) *Notifier {
	return &Notifier{router: router}
}

func (n *Notifier) NotifyAuthRevoked(ctx context.Context, userID uuid.UUID, reason string) {
	n.router.Publish(NewAuthRevokedEvent(userID, authRevokedMessage(reason)))
}

func authRevokedMessage(reason string) string {
	switch reason {
	case "TOKEN_REUSE_DETECTED":
		return "Your session was revoked because a refresh token was reused. Please log in again."
	case "PASSWORD_CHANGE":
		return "Your session was revoked because your password was changed."
	case "ADMIN_FORCE":
		return "Your session was revoked by an administrator."
	default:
		return "Your session was revoked."
	}
}
