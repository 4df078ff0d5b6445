//go:build integration

package postgres_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chirpline/backend/internal/domain"
	"github.com/chirpline/backend/internal/storage/postgres"
	"github.com/chirpline/backend/internal/storage/refreshstore"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestPool starts a real Postgres 16 container, applies the repo's
// golang-migrate migrations, and returns a pool pointed at it. Grounded on
// yegamble-goimg-datalayer's tests/integration/containers/postgres.go
// testcontainers pattern, adapted from sqlx+goose to pgx+golang-migrate to
// match this repo's own storage stack.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		tcpostgres.BasicWaitStrategies(),
		wait.ForLog("database system is ready to accept connections"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)

	m, err := migrate.New("file://"+migrationsPath, connStr)
	require.NoError(t, err)
	require.NoError(t, m.Up())

	pool, err := postgres.NewPool(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func newTestUser() *domain.User {
	return &domain.User{
		ID:           uuid.New(),
		Email:        uuid.NewString() + "@example.com",
		DisplayName:  "Test User",
		Username:     "testuser_" + uuid.NewString()[:8],
		PasswordHash: "$2a$12$placeholderplaceholderplaceholderplaceholderplaceholdp",
	}
}

// TestRefreshStoreRotation exercises the refresh store's primitives against
// a real Postgres instance: save a root record, rotate it, confirm the
// predecessor is marked ROTATED with rotated_to_id set, confirm a second
// rotation of the now-inactive predecessor is rejected, and confirm that
// family revocation leaves the user with no active records.
func TestRefreshStoreRotation(t *testing.T) {
	pool := newTestPool(t)
	store := postgres.NewRefreshStore(pool)
	users := postgres.NewUserRepository(pool)
	ctx := context.Background()

	user := newTestUser()
	require.NoError(t, users.Create(ctx, user))

	familyID := uuid.New()
	root := &refreshstore.RefreshRecord{
		ID:        uuid.New(),
		UserID:    user.ID,
		FamilyID:  familyID,
		Version:   1,
		TokenHash: "root-hash",
		Status:    refreshstore.StatusActive,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, store.Save(ctx, root))

	successor := &refreshstore.RefreshRecord{
		ID:        uuid.New(),
		UserID:    user.ID,
		FamilyID:  familyID,
		Version:   2,
		TokenHash: "successor-hash",
		Status:    refreshstore.StatusActive,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, store.Rotate(ctx, root.ID, successor))

	rotatedRoot, err := store.FindByHash(ctx, "root-hash")
	require.NoError(t, err)
	require.Equal(t, refreshstore.StatusRotated, rotatedRoot.Status)
	require.NotNil(t, rotatedRoot.RotatedToID)
	require.Equal(t, successor.ID, *rotatedRoot.RotatedToID)

	// Second rotation attempt against the now-inactive predecessor loses
	// the CAS and must report ErrNotActive.
	err = store.Rotate(ctx, root.ID, &refreshstore.RefreshRecord{
		ID: uuid.New(), UserID: user.ID, FamilyID: familyID, Version: 3,
		TokenHash: "replay-hash", Status: refreshstore.StatusActive,
		CreatedAt: time.Now().UTC(), ExpiresAt: time.Now().UTC().Add(time.Hour),
	})
	require.ErrorIs(t, err, refreshstore.ErrNotActive)

	// Family revocation on reuse detection marks every record dead.
	require.NoError(t, store.RevokeFamily(ctx, familyID, refreshstore.RevokedByReuseDetected))
	active, err := store.ListActiveForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Empty(t, active)
}

// TestUserRepositoryUniqueEmail confirms the unique-constraint-violation
// mapping to domain.ErrUserExists on a duplicate email.
func TestUserRepositoryUniqueEmail(t *testing.T) {
	pool := newTestPool(t)
	users := postgres.NewUserRepository(pool)
	ctx := context.Background()

	user := newTestUser()
	require.NoError(t, users.Create(ctx, user))

	dup := newTestUser()
	dup.Email = user.Email
	err := users.Create(ctx, dup)
	require.ErrorIs(t, err, domain.ErrUserExists)
}
