package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConversationRepository implements domain.ConversationRepository against a
// minimal conversation_members table — just enough for the realtime
// fabric's presence fan-out to have a real collaborator to call, per
// SPEC_FULL.md §6.1. Message bodies, threading and delivery are out of
// scope for this core.
type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

func (r *ConversationRepository) PeersOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT m2.user_id
		FROM conversation_members m1
		JOIN conversation_members m2 ON m2.conversation_id = m1.conversation_id
		WHERE m1.user_id = $1 AND m2.user_id != $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("conversationrepository: peers of: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("conversationrepository: scan peer: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *ConversationRepository) Between(ctx context.Context, a, b uuid.UUID) (uuid.UUID, bool, error) {
	var conversationID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT m1.conversation_id
		FROM conversation_members m1
		JOIN conversation_members m2 ON m2.conversation_id = m1.conversation_id
		WHERE m1.user_id = $1 AND m2.user_id = $2
		LIMIT 1`, a, b,
	).Scan(&conversationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("conversationrepository: between: %w", err)
	}
	return conversationID, true, nil
}
