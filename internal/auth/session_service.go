package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"
	"unicode/utf8"

	"github.com/chirpline/backend/internal/audit"
	"github.com/chirpline/backend/internal/domain"
	"github.com/chirpline/backend/internal/storage/refreshstore"
	"github.com/google/uuid"
)

const refreshTokenTTL = 7 * 24 * time.Hour

// refreshReuseGracePeriod tolerates a second concurrent redemption of a
// just-rotated refresh token (typical of a UI race: two tabs refreshing at
// once) without treating it as an attack. Reuse past this window triggers
// family revocation.
const refreshReuseGracePeriod = 10 * time.Second

// SessionNotifier is the realtime fabric's collaborator port: the rotation
// engine calls it to push auth_revoked frames (spec.md §4.3.4) without this
// package importing internal/realtime directly.
type SessionNotifier interface {
	NotifyAuthRevoked(ctx context.Context, userID uuid.UUID, reason string)
}

type noopNotifier struct{}

func (noopNotifier) NotifyAuthRevoked(context.Context, uuid.UUID, string) {}

// AuthConfig holds configuration the rotation engine needs beyond its
// collaborators.
type AuthConfig struct {
	RefreshTokenPepper string
}

// AuthService orchestrates the credential issuer (A), rotation engine (C)
// and session verifier (D) collaborators into the Register/Login/Refresh/
// Logout/ChangePassword operations spec.md §4 names.
type AuthService struct {
	config   AuthConfig
	users    domain.UserRepository
	refresh  refreshstore.Store
	hasher   PasswordHasher
	tokens   TokenProvider
	audit    audit.AuditService
	notifier SessionNotifier
}

func NewAuthService(
	config AuthConfig,
	users domain.UserRepository,
	refresh refreshstore.Store,
	hasher PasswordHasher,
	tokens TokenProvider,
	auditLogger audit.AuditService,
	notifier SessionNotifier,
) *AuthService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &AuthService{
		config:   config,
		users:    users,
		refresh:  refresh,
		hasher:   hasher,
		tokens:   tokens,
		audit:    auditLogger,
		notifier: notifier,
	}
}

// RegisterInput defines the data needed to register a new user.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	Username    string
}

func (in RegisterInput) validate() error {
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return ErrInvalidEmail
	}
	if utf8.RuneCountInString(in.Password) < 8 {
		return ErrWeakPassword
	}
	if l := utf8.RuneCountInString(in.DisplayName); l == 0 || l > 100 {
		return ErrInvalidDisplayName
	}
	return nil
}

// SessionResult carries the access/refresh pair and the user issued by
// register/login/refresh.
type SessionResult struct {
	User         *domain.User
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// Register creates a new user and immediately issues a session, matching
// spec.md §6.2's register response contract.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*SessionResult, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	hashedPassword, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing failed: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        input.Email,
		DisplayName:  input.DisplayName,
		Username:     input.Username,
		PasswordHash: hashedPassword,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	s.audit.Log(ctx, "user.create", audit.LogParams{
		ActorID:  user.ID,
		TargetID: user.ID,
	})

	return s.issueSession(ctx, user, uuid.New(), 1)
}

// LoginInput defines the credentials for login.
type LoginInput struct {
	Email    string
	Password string
}

// Login authenticates a user and starts a new refresh-token family.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*SessionResult, error) {
	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		// Generic error regardless of whether the user exists, per
		// spec.md §7's AUTH_FAILED being deliberately ambiguous.
		return nil, ErrAuthFailed
	}

	if err := s.hasher.Compare(user.PasswordHash, input.Password); err != nil {
		s.audit.Log(ctx, "auth.login.failed", audit.LogParams{TargetID: user.ID})
		return nil, ErrAuthFailed
	}

	s.audit.Log(ctx, "auth.login.success", audit.LogParams{ActorID: user.ID, TargetID: user.ID})

	return s.issueSession(ctx, user, uuid.New(), 1)
}

// issueSession generates an access token and a root-or-successor refresh
// record, persists the refresh record and returns both tokens raw.
func (s *AuthService) issueSession(ctx context.Context, user *domain.User, familyID uuid.UUID, version int) (*SessionResult, error) {
	accessToken, err := s.tokens.GenerateAccessToken(user.ID, user.DisplayName, user.Username)
	if err != nil {
		return nil, fmt.Errorf("token generation failed: %w", err)
	}

	rawSecret, err := generateRefreshSecret()
	if err != nil {
		return nil, err
	}

	record := &refreshstore.RefreshRecord{
		ID:        uuid.New(),
		UserID:    user.ID,
		FamilyID:  familyID,
		Version:   version,
		TokenHash: hashRefresh(s.config.RefreshTokenPepper, rawSecret),
		Status:    refreshstore.StatusActive,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(refreshTokenTTL),
	}
	if err := s.refresh.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return &SessionResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: rawSecret,
		ExpiresIn:    int(accessTokenTTL.Seconds()),
	}, nil
}

// RefreshSession performs the rotation protocol from spec.md §4.3.1-§4.3.2:
// look up the record by hash, classify grace-window reuse vs. an attack,
// check expiry, and atomically rotate to a successor.
func (s *AuthService) RefreshSession(ctx context.Context, rawRefreshToken string) (*SessionResult, error) {
	tokenHash := hashRefresh(s.config.RefreshTokenPepper, rawRefreshToken)

	record, err := s.refresh.FindByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, refreshstore.ErrNotFound) {
			return nil, ErrRefreshTokenInvalid
		}
		return nil, fmt.Errorf("refresh lookup failed: %w", err)
	}

	if !record.IsActive() {
		return s.classifyInactiveRedemption(ctx, record)
	}

	if time.Now().After(record.ExpiresAt) {
		return nil, ErrRefreshTokenExpired
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		return nil, ErrRefreshTokenInvalid
	}

	accessToken, err := s.tokens.GenerateAccessToken(user.ID, user.DisplayName, user.Username)
	if err != nil {
		return nil, fmt.Errorf("token generation failed: %w", err)
	}

	rawSecret, err := generateRefreshSecret()
	if err != nil {
		return nil, err
	}

	successor := &refreshstore.RefreshRecord{
		ID:        uuid.New(),
		UserID:    user.ID,
		FamilyID:  record.FamilyID,
		Version:   record.Version + 1,
		TokenHash: hashRefresh(s.config.RefreshTokenPepper, rawSecret),
		Status:    refreshstore.StatusActive,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(refreshTokenTTL),
	}

	if err := s.refresh.Rotate(ctx, record.ID, successor); err != nil {
		if errors.Is(err, refreshstore.ErrNotActive) {
			// Lost the CAS race against a concurrent redemption of the same
			// predecessor; re-fetch and classify exactly as above.
			fresh, fetchErr := s.refresh.FindByHash(ctx, tokenHash)
			if fetchErr != nil {
				return nil, ErrRefreshTokenInvalid
			}
			return s.classifyInactiveRedemption(ctx, fresh)
		}
		return nil, fmt.Errorf("rotation failed: %w", err)
	}

	return &SessionResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: rawSecret,
		ExpiresIn:    int(accessTokenTTL.Seconds()),
	}, nil
}

// classifyInactiveRedemption implements the grace-window split from
// spec.md §4.3.2/§4.4: the window is measured against the family's latest
// revoked record, not necessarily the presented one — a family that has
// rotated more than once since the presented record was revoked must
// still classify against its most recent rotation, or a stale replay of
// an old record can be wrongly tolerated as concurrent-stale.
func (s *AuthService) classifyInactiveRedemption(ctx context.Context, record *refreshstore.RefreshRecord) (*SessionResult, error) {
	latestRevoked, err := s.refresh.FindLatestRevokedInFamily(ctx, record.FamilyID)
	if err != nil && !errors.Is(err, refreshstore.ErrNotFound) {
		return nil, fmt.Errorf("failed to find latest revoked record: %w", err)
	}
	if latestRevoked == nil {
		latestRevoked = record
	}

	if latestRevoked.RevokedAt != nil && time.Since(*latestRevoked.RevokedAt) <= refreshReuseGracePeriod {
		return nil, ErrStaleRefreshToken
	}

	if err := s.refresh.RevokeFamily(ctx, record.FamilyID, refreshstore.RevokedByReuseDetected); err != nil {
		return nil, fmt.Errorf("failed to revoke family on reuse: %w", err)
	}
	s.audit.Log(ctx, "auth.token_reuse_detected", audit.LogParams{
		TargetID: record.UserID,
		Metadata: map[string]any{"family_id": record.FamilyID},
	})
	s.notifier.NotifyAuthRevoked(ctx, record.UserID, "TOKEN_REUSE_DETECTED")

	return nil, ErrTokenReuseDetected
}

// Logout revokes the refresh token's entire family, ending the session on
// every device that shares it.
func (s *AuthService) Logout(ctx context.Context, rawRefreshToken string) error {
	tokenHash := hashRefresh(s.config.RefreshTokenPepper, rawRefreshToken)
	record, err := s.refresh.FindByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, refreshstore.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("refresh lookup failed: %w", err)
	}
	if err := s.refresh.RevokeFamily(ctx, record.FamilyID, refreshstore.RevokedByLogout); err != nil {
		return fmt.Errorf("logout revoke failed: %w", err)
	}
	s.audit.Log(ctx, "auth.logout", audit.LogParams{ActorID: record.UserID, TargetID: record.UserID})
	return nil
}

// ChangePassword implements spec.md §4.3.4's password-change trigger:
// verify the old password, persist the new hash, revoke every active
// session and push auth_revoked to any connected realtime clients.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return ErrAuthFailed
	}

	if err := s.hasher.Compare(user.PasswordHash, oldPassword); err != nil {
		return ErrAuthFailed
	}
	if utf8.RuneCountInString(newPassword) < 8 {
		return ErrWeakPassword
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	changedAt := time.Now().UTC()
	if err := s.users.UpdatePassword(ctx, userID, newHash, changedAt); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return s.revokeAllForUser(ctx, userID, refreshstore.RevokedByPasswordChange)
}

// RevokeSession implements the admin-forced-logout trigger from spec.md
// §4.3.4: revoke every active session for a user outside of a password
// change (e.g. an operator action).
func (s *AuthService) RevokeSession(ctx context.Context, userID uuid.UUID) error {
	return s.revokeAllForUser(ctx, userID, refreshstore.RevokedByAdmin)
}

func (s *AuthService) revokeAllForUser(ctx context.Context, userID uuid.UUID, reason refreshstore.RevocationReason) error {
	if err := s.refresh.RevokeAllForUser(ctx, userID, reason); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	s.audit.Log(ctx, "auth.sessions_revoked", audit.LogParams{
		ActorID:  userID,
		TargetID: userID,
		Metadata: map[string]any{"reason": string(reason)},
	})
	s.notifier.NotifyAuthRevoked(ctx, userID, string(reason))
	return nil
}

// GetSessions lists a user's active sessions.
func (s *AuthService) GetSessions(ctx context.Context, userID uuid.UUID) ([]refreshstore.RefreshRecord, error) {
	return s.refresh.ListActiveForUser(ctx, userID)
}

// GetJWKS exposes the credential issuer's public keys.
func (s *AuthService) GetJWKS() (*JWKS, error) {
	return s.tokens.GetJWKS()
}
