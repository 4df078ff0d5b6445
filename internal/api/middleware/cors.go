package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
)

// NewCORS builds the CORS middleware for this core's static allow-list.
// This replaces the teacher's DynamicCorsMiddleware, which looked up
// per-tenant allowed_origins from the database on every request — there
// are no tenants in this core, so a single process-wide allow-list
// configured at startup (internal/config) is all that's needed, grounded
// in yegamble-goimg-datalayer's CORSConfig/DefaultCORSConfig pattern.
func NewCORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	})
}
