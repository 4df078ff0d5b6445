package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/chirpline/backend/internal/api/helpers"
	"github.com/chirpline/backend/internal/api/middleware"
	"github.com/chirpline/backend/internal/auth"
	"github.com/google/uuid"
)

// AuthHandler exposes the HTTP surface for components A/C/D from spec.md
// §6.2: register, login, refresh, logout and the sensitive-route password
// change, plus a session listing for the authenticated user.
type AuthHandler struct {
	service  *auth.AuthService
	verifier *auth.Verifier
	logger   *slog.Logger
}

func NewAuthHandler(service *auth.AuthService, verifier *auth.Verifier, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: service, verifier: verifier, logger: logger}
}

// sessionResponse is the {token, refreshToken, expiresIn} triple spec.md
// §6.2 requires from register, login and refresh.
type sessionResponse struct {
	ID          uuid.UUID `json:"id,omitempty"`
	Email       string    `json:"email,omitempty"`
	Username    string    `json:"username,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	Token       string    `json:"token"`
	RefreshToken string   `json:"refreshToken"`
	ExpiresIn   int       `json:"expiresIn"`
}

func newSessionResponse(result *auth.SessionResult, includeProfile bool) sessionResponse {
	resp := sessionResponse{
		Token:        result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresIn,
	}
	if includeProfile {
		resp.ID = result.User.ID
		resp.Email = result.User.Email
		resp.Username = result.User.Username
		resp.DisplayName = result.User.DisplayName
	}
	return resp
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Username    string `json:"username"`
}

// Register implements POST /v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "INVALID_EMAIL", "malformed request body")
		return
	}

	result, err := h.service.Register(r.Context(), auth.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Username:    req.Username,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	helpers.RespondJSON(w, http.StatusCreated, newSessionResponse(result, true))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login implements POST /v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "INVALID_EMAIL", "malformed request body")
		return
	}

	result, err := h.service.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, newSessionResponse(result, true))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh implements POST /v1/auth/refresh — the rotation protocol from
// spec.md §4.3.2, surfaced over HTTP.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := helpers.DecodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		helpers.RespondError(w, http.StatusUnauthorized, "REFRESH_TOKEN_INVALID", "missing refresh token")
		return
	}

	result, err := h.service.RefreshSession(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, newSessionResponse(result, false))
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout revokes the presented refresh token's entire family.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := helpers.DecodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		helpers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		h.logger.Error("logout_failed", "error", err)
	}
	helpers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePassword is a sensitive route (spec.md §4.3.4): it re-verifies the
// old password, persists the new hash, and revokes every active session —
// including the realtime fabric's auth_revoked push to any connected
// clients.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.GetPrincipal(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "INVALID_TOKEN", "missing principal")
		return
	}

	var req changePasswordRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "WEAK_PASSWORD", "malformed request body")
		return
	}

	if err := h.service.ChangePassword(r.Context(), principal.UserID, req.OldPassword, req.NewPassword); err != nil {
		h.writeServiceError(w, err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionView is the wire-safe projection of a refreshstore.RefreshRecord —
// it omits TokenHash, which must never leave the server.
type sessionView struct {
	FamilyID  uuid.UUID `json:"familyId"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// GetSessions lists the authenticated user's active refresh-token
// families — one row per family's current head.
func (h *AuthHandler) GetSessions(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.GetPrincipal(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "INVALID_TOKEN", "missing principal")
		return
	}

	records, err := h.service.GetSessions(r.Context(), principal.UserID)
	if err != nil {
		h.logger.Error("list_sessions_failed", "error", err)
		helpers.RespondError(w, http.StatusInternalServerError, "INTERNAL", "failed to list sessions")
		return
	}

	sessions := make([]sessionView, 0, len(records))
	for _, rec := range records {
		sessions = append(sessions, sessionView{
			FamilyID:  rec.FamilyID,
			Version:   rec.Version,
			CreatedAt: rec.CreatedAt,
			ExpiresAt: rec.ExpiresAt,
		})
	}

	helpers.RespondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// GetJWKS serves the credential issuer's public keys (component A).
func (h *AuthHandler) GetJWKS(w http.ResponseWriter, r *http.Request) {
	jwks, err := h.service.GetJWKS()
	if err != nil {
		h.logger.Error("jwks_failed", "error", err)
		helpers.RespondError(w, http.StatusInternalServerError, "INTERNAL", "failed to build JWKS")
		return
	}
	helpers.RespondJSON(w, http.StatusOK, jwks)
}

// writeServiceError maps an AuthService sentinel error onto the
// {code,message,timestamp} wire shape from spec.md §7's error kind table.
func (h *AuthHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidEmail):
		helpers.RespondError(w, http.StatusBadRequest, "INVALID_EMAIL", "invalid email address")
	case errors.Is(err, auth.ErrWeakPassword):
		helpers.RespondError(w, http.StatusBadRequest, "WEAK_PASSWORD", "password does not meet strength requirements")
	case errors.Is(err, auth.ErrInvalidDisplayName):
		helpers.RespondError(w, http.StatusBadRequest, "INVALID_DISPLAY_NAME", "display name is invalid")
	case errors.Is(err, auth.ErrUserExists):
		helpers.RespondError(w, http.StatusConflict, "USER_EXISTS", "an account with that email already exists")
	case errors.Is(err, auth.ErrAuthFailed):
		helpers.RespondError(w, http.StatusUnauthorized, "AUTH_FAILED", "invalid email or password")
	case errors.Is(err, auth.ErrRefreshTokenInvalid):
		helpers.RespondError(w, http.StatusUnauthorized, "REFRESH_TOKEN_INVALID", "refresh token not recognized")
	case errors.Is(err, auth.ErrRefreshTokenExpired):
		helpers.RespondError(w, http.StatusUnauthorized, "REFRESH_TOKEN_EXPIRED", "refresh token has expired")
	case errors.Is(err, auth.ErrTokenReuseDetected):
		helpers.RespondError(w, http.StatusUnauthorized, "TOKEN_REUSE_DETECTED", "refresh token reuse detected, session revoked")
	case errors.Is(err, auth.ErrStaleRefreshToken):
		helpers.RespondError(w, http.StatusConflict, "STALE_REFRESH_TOKEN", "refresh token already rotated, retry with your latest token pair")
	case errors.Is(err, auth.ErrSessionRevoked):
		helpers.RespondError(w, http.StatusUnauthorized, "SESSION_REVOKED", "session has been revoked")
	default:
		h.logger.Error("auth_handler_internal_error", "error", err)
		helpers.RespondError(w, http.StatusInternalServerError, "INTERNAL", "an internal error occurred")
	}
}
