package api

import (
	"net/http"

	"github.com/chirpline/backend/internal/api/helpers"
	"github.com/chirpline/backend/internal/api/middleware"
	"github.com/chirpline/backend/internal/realtime"
)

// RealtimeHandler upgrades authenticated connections into the websocket
// fabric (components E/F/G). Route auth uses RequireAuth's strong mode —
// spec.md §4.7 requires a resolved principal before the upgrade, there is
// no anonymous realtime access.
type RealtimeHandler struct {
	endpoint *realtime.Endpoint
}

func NewRealtimeHandler(endpoint *realtime.Endpoint) *RealtimeHandler {
	return &RealtimeHandler{endpoint: endpoint}
}

// ServeWS implements GET /v1/notifications/ws.
func (h *RealtimeHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.GetPrincipal(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "INVALID_TOKEN", "missing or invalid access token")
		return
	}
	h.endpoint.ServeHTTP(w, r, principal)
}
