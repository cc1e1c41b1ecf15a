package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tixgate/tixgate/internal/audit"
	"github.com/tixgate/tixgate/internal/metrics"
	"github.com/tixgate/tixgate/internal/model"
	"github.com/tixgate/tixgate/internal/service"
)

type contextKeyAuth string

// AuthPrincipalKey is the context key for the authenticated principal.
const AuthPrincipalKey contextKeyAuth = "auth_principal"

// Principal represents the authenticated identity making the request.
type Principal struct {
	Type  string        // "admin" or "api_key"
	Email string        // set for admin bearer tokens
	Key   *model.APIKey // set for API-key callers
}

// Authenticate returns an HTTP middleware that validates the request's
// credentials. It supports two methods:
//
//  1. API key via the configured key header (for service consumers)
//  2. HS256 Bearer token via the Authorization header (for operators)
//
// On success a Principal is attached to the request context. On failure a
// 401 JSON response is returned, a security event is recorded, and the
// verification outcome counter is incremented. Unknown, revoked, and
// expired keys all collapse into the same client-facing message; the
// distinction lives in metrics and the audit trail only.
func Authenticate(keys *service.KeyService, auth *service.AuthService, keyHeader string, m *metrics.Metrics, rec *audit.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var principal *Principal

			if rawKey := r.Header.Get(keyHeader); rawKey != "" {
				key, err := keys.Verify(r.Context(), rawKey)
				if err != nil {
					m.APIKeyVerifications.WithLabelValues(keyOutcome(err)).Inc()
					rec.Record(r.Context(), model.EventAPIKeyDenied, model.SeverityMedium,
						r.RemoteAddr, r.UserAgent(), map[string]any{"outcome": keyOutcome(err)})
					writeReason(w, http.StatusUnauthorized, "invalid_api_key", "Invalid API key")
					return
				}
				m.APIKeyVerifications.WithLabelValues("ok").Inc()
				principal = &Principal{Type: "api_key", Key: key}
			}

			if principal == nil {
				if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
					admin, err := auth.ValidateToken(strings.TrimPrefix(authHeader, "Bearer "))
					if err != nil {
						writeReason(w, http.StatusUnauthorized, "invalid_token", "Invalid token")
						return
					}
					principal = &Principal{Type: "admin", Email: admin.Email}
				}
			}

			if principal == nil {
				writeReason(w, http.StatusUnauthorized, "credentials_required",
					"Authentication required. Provide "+keyHeader+" header or Bearer token.")
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin enforces operator-level access. It must run after
// Authenticate in the middleware chain.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil || principal.Type != "admin" {
				writeReason(w, http.StatusForbidden, "admin_required", "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil for unauthenticated requests.
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

func keyOutcome(err error) string {
	switch {
	case errors.Is(err, service.ErrKeyRevoked):
		return "revoked"
	case errors.Is(err, service.ErrKeyExpired):
		return "expired"
	default:
		return "invalid"
	}
}
