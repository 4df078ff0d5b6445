// Package domain holds the entities and collaborator ports that the session
// core and realtime fabric depend on but do not own. Post/like/bookmark/
// follow/block/DM/media business logic lives outside this module; only the
// shapes this core needs to call are declared here.
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is the account record the session core authenticates against.
type User struct {
	ID                uuid.UUID
	Email             string
	DisplayName       string
	Username          string
	PasswordHash      string
	PasswordChangedAt time.Time
	CreatedAt         time.Time
}

// UserRepository is the port the credential issuer, rotation engine and
// session verifier call into to resolve and persist user records.
type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, changedAt time.Time) error
}

// ErrUserNotFound is returned by UserRepository implementations when no
// matching row exists.
var ErrUserNotFound = userNotFoundError{}

type userNotFoundError struct{}

func (userNotFoundError) Error() string { return "user not found" }

// ErrUserExists is returned by Create when the email is already taken.
var ErrUserExists = userExistsError{}

type userExistsError struct{}

func (userExistsError) Error() string { return "user already exists" }

// ConversationRepository resolves the peer set the realtime fabric's
// presence fan-out uses (spec.md's "conversation peers only" decision for
// user_presence_changed). Message content and threading stay out of scope;
// this port only answers "who shares a conversation with this user".
type ConversationRepository interface {
	PeersOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	Between(ctx context.Context, a, b uuid.UUID) (conversationID uuid.UUID, ok bool, err error)
}
