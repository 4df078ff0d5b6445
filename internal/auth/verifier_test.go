package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/chirpline/backend/internal/auth"
	"github.com/chirpline/backend/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_RequirePrincipal(t *testing.T) {
	tokens := newTestTokenProvider(t)
	users := newFakeUsers()
	verifier := auth.NewVerifier(tokens, users)

	t.Run("empty token rejected", func(t *testing.T) {
		_, err := verifier.RequirePrincipal(context.Background(), "")
		assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
	})

	t.Run("valid token resolves principal", func(t *testing.T) {
		userID := uuid.New()
		tok, err := tokens.GenerateAccessToken(userID, "Hedy Lamarr", "hedy")
		require.NoError(t, err)

		p, err := verifier.RequirePrincipal(context.Background(), tok)
		require.NoError(t, err)
		assert.Equal(t, userID, p.UserID)
		assert.Equal(t, "hedy", p.Username)
	})

	t.Run("malformed token rejected", func(t *testing.T) {
		_, err := verifier.RequirePrincipal(context.Background(), "not-a-jwt")
		assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
	})
}

func TestVerifier_TryResolvePrincipal_AnonymousFallback(t *testing.T) {
	tokens := newTestTokenProvider(t)
	users := newFakeUsers()
	verifier := auth.NewVerifier(tokens, users)

	assert.Nil(t, verifier.TryResolvePrincipal(context.Background(), ""))
	assert.Nil(t, verifier.TryResolvePrincipal(context.Background(), "garbage"))

	userID := uuid.New()
	tok, err := tokens.GenerateAccessToken(userID, "Margaret Hamilton", "mham")
	require.NoError(t, err)

	p := verifier.TryResolvePrincipal(context.Background(), tok)
	require.NotNil(t, p)
	assert.Equal(t, userID, p.UserID)
}

func TestVerifier_RequireSensitivePrincipal_RejectsTokenIssuedBeforePasswordChange(t *testing.T) {
	tokens := newTestTokenProvider(t)
	users := newFakeUsers()
	verifier := auth.NewVerifier(tokens, users)
	ctx := context.Background()

	userID := uuid.New()
	require.NoError(t, users.Create(ctx, &domain.User{
		ID: userID, Email: "grace@example.com", DisplayName: "Grace Hopper", Username: "grace",
		PasswordHash: "irrelevant",
	}))

	tok, err := tokens.GenerateAccessToken(userID, "Grace Hopper", "grace")
	require.NoError(t, err)

	p, err := verifier.RequireSensitivePrincipal(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, userID, p.UserID)

	require.NoError(t, users.UpdatePassword(ctx, userID, "new-hash", time.Now().UTC().Add(time.Minute)))

	_, err = verifier.RequireSensitivePrincipal(ctx, tok)
	assert.ErrorIs(t, err, auth.ErrSessionRevoked)
}

func TestVerifier_RequireSensitivePrincipal_UnknownUserRejected(t *testing.T) {
	tokens := newTestTokenProvider(t)
	users := newFakeUsers()
	verifier := auth.NewVerifier(tokens, users)

	tok, err := tokens.GenerateAccessToken(uuid.New(), "Nobody", "nobody")
	require.NoError(t, err)

	_, err = verifier.RequireSensitivePrincipal(context.Background(), tok)
	assert.ErrorIs(t, err, auth.ErrSessionRevoked)
}
