// Package refreshstore declares the port the rotation engine (component C)
// persists refresh-token state through. internal/storage/postgres supplies
// the pgx-backed implementation.
package refreshstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status mirrors the RefreshRecord state machine from spec.md §3/§4.3.1.
type Status string

const (
	StatusActive        Status = "ACTIVE"
	StatusRotated        Status = "ROTATED"
	StatusFamilyRevoked Status = "FAMILY_REVOKED"
	StatusExpired        Status = "EXPIRED"
)

// RevocationReason records why a record left the ACTIVE state, for audit
// and for distinguishing ordinary rotation from a reuse-triggered nuke.
type RevocationReason string

const (
	RevokedByRotation      RevocationReason = "ROTATED"
	RevokedByReuseDetected RevocationReason = "TOKEN_REUSE_DETECTED"
	RevokedByLogout        RevocationReason = "LOGOUT"
	RevokedByPasswordChange RevocationReason = "PASSWORD_CHANGE"
	RevokedByAdmin         RevocationReason = "ADMIN_FORCE"
)

// RefreshRecord is the persisted row backing one link in a refresh-token
// family chain (spec.md §3 RefreshRecord, §6.4 persisted table layout).
type RefreshRecord struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	FamilyID         uuid.UUID
	Version          int
	TokenHash        string
	Status           Status
	CreatedAt        time.Time
	ExpiresAt        time.Time
	RevokedAt        *time.Time
	RevocationReason RevocationReason
	RotatedToID      *uuid.UUID
}

// IsActive reports whether this record can still be redeemed.
func (r RefreshRecord) IsActive() bool { return r.Status == StatusActive }

var (
	// ErrNotFound is returned when no record matches the given hash.
	ErrNotFound = errors.New("refresh record not found")
	// ErrNotActive is returned by Store.Rotate when the CAS predicate
	// (status = ACTIVE) did not hold — the caller must re-fetch to decide
	// between grace-window tolerance and reuse detection.
	ErrNotActive = errors.New("refresh record is not active")
)

// Store is the persistence port for the rotation engine.
type Store interface {
	// Save inserts the root record of a new family (login) or a successor
	// record produced by Rotate.
	Save(ctx context.Context, r *RefreshRecord) error

	// FindByHash looks up a record by its keyed hash for redemption.
	FindByHash(ctx context.Context, tokenHash string) (*RefreshRecord, error)

	// Rotate performs the atomic CAS rotation from spec.md §4.3.2: the
	// predecessor is revoked only if it is still ACTIVE, the successor is
	// inserted, and the predecessor's RotatedToID is backfilled, all in one
	// transaction. Returns ErrNotActive if the predecessor was not ACTIVE
	// when the transaction ran (caller must re-fetch to classify grace vs.
	// reuse).
	Rotate(ctx context.Context, oldID uuid.UUID, successor *RefreshRecord) error

	// RevokeFamily marks the family's ACTIVE records FAMILY_REVOKED; records
	// that are already ROTATED keep their status and revocation reason. Used
	// on reuse detection (nuclear option) and logout.
	RevokeFamily(ctx context.Context, familyID uuid.UUID, reason RevocationReason) error

	// FindLatestRevokedInFamily returns the record with the greatest
	// RevokedAt in familyID (spec.md §4.4), used to classify a redemption
	// of a non-ACTIVE record as concurrent-stale vs. reuse against the
	// family's actual most-recent rotation, not just the presented record's
	// own timestamp.
	FindLatestRevokedInFamily(ctx context.Context, familyID uuid.UUID) (*RefreshRecord, error)

	// RevokeAllForUser revokes every active family belonging to a user.
	// Used on password change and admin-forced logout.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, reason RevocationReason) error

	// ListActiveForUser returns the active sessions for a user (one row per
	// family's current head), for a "list my sessions" style operation.
	ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]RefreshRecord, error)
}
