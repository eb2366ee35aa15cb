package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// APIKeyHeader carries the shared API key. "Authorization: Bearer <key>" is
// accepted as well.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth guards the API routes with a single shared key.
type APIKeyAuth struct {
	key    []byte
	logger *zap.Logger
}

// NewAPIKeyAuth creates the middleware. An empty key disables the check,
// which callers only allow in local environments.
func NewAPIKeyAuth(key string, logger *zap.Logger) *APIKeyAuth {
	return &APIKeyAuth{key: []byte(key), logger: logger}
}

// Enabled reports whether requests are checked.
func (a *APIKeyAuth) Enabled() bool {
	return len(a.key) > 0
}

// Require wraps next with the key check.
func (a *APIKeyAuth) Require(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := extractAPIKey(r)
		if provided == "" {
			writeError(w, http.StatusUnauthorized, "API key required",
				"Include API key in X-API-Key header or Authorization header")
			return
		}

		if subtle.ConstantTimeCompare(a.key, []byte(provided)) != 1 {
			a.logger.Warn("Rejected request with invalid API key",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr))
			writeError(w, http.StatusUnauthorized, "Invalid API key", "The provided API key is not valid")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// writeError returns a JSON error body shaped like the handlers' envelope.
func writeError(w http.ResponseWriter, status int, errorText, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   errorText,
		"message": message,
	})
}
