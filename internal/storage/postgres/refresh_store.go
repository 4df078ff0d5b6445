package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chirpline/backend/internal/storage/refreshstore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RefreshStore implements refreshstore.Store directly against Postgres via
// pgx, generalizing the teacher's sqlc-generated RotateRefreshToken/
// GetRefreshToken/RevokeTokenFamily queries into explicit SQL since the
// sqlc layer is not part of this rewrite.
type RefreshStore struct {
	pool *pgxpool.Pool
}

func NewRefreshStore(pool *pgxpool.Pool) *RefreshStore {
	return &RefreshStore{pool: pool}
}

func (s *RefreshStore) Save(ctx context.Context, r *refreshstore.RefreshRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_records
			(id, user_id, family_id, version, token_hash, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.UserID, r.FamilyID, r.Version, r.TokenHash, r.Status, r.CreatedAt, r.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("refreshstore: save: %w", err)
	}
	return nil
}

func (s *RefreshStore) FindByHash(ctx context.Context, tokenHash string) (*refreshstore.RefreshRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, family_id, version, token_hash, status,
		       created_at, expires_at, revoked_at, revocation_reason, rotated_to_id
		FROM refresh_records WHERE token_hash = $1`, tokenHash)
	return scanRefreshRecord(row)
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows, letting
// scanRefreshRecord serve both single-row lookups and result iteration.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRefreshRecord(row rowScanner) (*refreshstore.RefreshRecord, error) {
	var r refreshstore.RefreshRecord
	var revokedAt *time.Time
	var reason *string
	var rotatedTo *uuid.UUID

	err := row.Scan(
		&r.ID, &r.UserID, &r.FamilyID, &r.Version, &r.TokenHash, &r.Status,
		&r.CreatedAt, &r.ExpiresAt, &revokedAt, &reason, &rotatedTo,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, refreshstore.ErrNotFound
		}
		return nil, fmt.Errorf("refreshstore: scan: %w", err)
	}
	r.RevokedAt = revokedAt
	if reason != nil {
		r.RevocationReason = refreshstore.RevocationReason(*reason)
	}
	r.RotatedToID = rotatedTo
	return &r, nil
}

// Rotate is the atomic CAS rotation from spec.md §4.3.2: revoke the
// predecessor only if it is still ACTIVE, insert the successor, and
// backfill the predecessor's rotated_to_id, all in one transaction.
func (s *RefreshStore) Rotate(ctx context.Context, oldID uuid.UUID, successor *refreshstore.RefreshRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("refreshstore: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE refresh_records
		SET status = $1, revoked_at = now(), revocation_reason = $2
		WHERE id = $3 AND status = $4`,
		refreshstore.StatusRotated, refreshstore.RevokedByRotation, oldID, refreshstore.StatusActive,
	)
	if err != nil {
		return fmt.Errorf("refreshstore: revoke predecessor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// The CAS predicate failed: either already rotated, revoked, or
		// never existed. The caller re-fetches to classify grace-window
		// tolerance vs. reuse detection.
		return refreshstore.ErrNotActive
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO refresh_records
			(id, user_id, family_id, version, token_hash, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		successor.ID, successor.UserID, successor.FamilyID, successor.Version,
		successor.TokenHash, successor.Status, successor.CreatedAt, successor.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("refreshstore: insert successor: %w", err)
	}

	_, err = tx.Exec(ctx, `UPDATE refresh_records SET rotated_to_id = $1 WHERE id = $2`,
		successor.ID, oldID,
	)
	if err != nil {
		return fmt.Errorf("refreshstore: backfill rotated_to_id: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("refreshstore: commit: %w", err)
	}
	return nil
}

// FindLatestRevokedInFamily returns the record with the greatest revoked_at
// in familyID, the primitive spec.md §4.4 names for reuse classification.
func (s *RefreshStore) FindLatestRevokedInFamily(ctx context.Context, familyID uuid.UUID) (*refreshstore.RefreshRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, family_id, version, token_hash, status,
		       created_at, expires_at, revoked_at, revocation_reason, rotated_to_id
		FROM refresh_records
		WHERE family_id = $1 AND revoked_at IS NOT NULL
		ORDER BY revoked_at DESC
		LIMIT 1`, familyID)
	return scanRefreshRecord(row)
}

func (s *RefreshStore) RevokeFamily(ctx context.Context, familyID uuid.UUID, reason refreshstore.RevocationReason) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_records
		SET status = $1, revoked_at = now(), revocation_reason = $2
		WHERE family_id = $3 AND status = $4`,
		refreshstore.StatusFamilyRevoked, reason, familyID, refreshstore.StatusActive,
	)
	if err != nil {
		return fmt.Errorf("refreshstore: revoke family: %w", err)
	}
	return nil
}

func (s *RefreshStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID, reason refreshstore.RevocationReason) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_records
		SET status = $1, revoked_at = now(), revocation_reason = $2
		WHERE user_id = $3 AND status = $4`,
		refreshstore.StatusFamilyRevoked, reason, userID, refreshstore.StatusActive,
	)
	if err != nil {
		return fmt.Errorf("refreshstore: revoke all for user: %w", err)
	}
	return nil
}

func (s *RefreshStore) ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]refreshstore.RefreshRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, family_id, version, token_hash, status,
		       created_at, expires_at, revoked_at, revocation_reason, rotated_to_id
		FROM refresh_records
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at DESC`,
		userID, refreshstore.StatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("refreshstore: list active: %w", err)
	}
	defer rows.Close()

	var out []refreshstore.RefreshRecord
	for rows.Next() {
		r, err := scanRefreshRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
