package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tixgate/tixgate/internal/audit"
	"github.com/tixgate/tixgate/internal/metrics"
	"github.com/tixgate/tixgate/internal/model"
	"github.com/tixgate/tixgate/internal/signedurl"
)

// SignedURLGate returns a middleware guarding static file serving under a
// mount like /uploads/*. Files inside a protected segment require a valid
// expires+signature query pair; everything else passes through. Expired
// links answer 410 so clients know to request a fresh one; any other
// failure answers 403 with a generic reason.
func SignedURLGate(signer *signedurl.Signer, protectedSegments []string, stripPrefix string, m *metrics.Metrics, rec *audit.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			filePath := strings.TrimPrefix(r.URL.Path, stripPrefix)
			filePath = strings.TrimPrefix(filePath, "/")

			if !signedurl.Protected(filePath, protectedSegments) {
				m.SignedURLVerifications.WithLabelValues("public").Inc()
				next.ServeHTTP(w, r)
				return
			}

			q := r.URL.Query()
			err := signer.Verify(filePath, q.Get("expires"), q.Get("signature"))
			if err != nil {
				outcome, status, reason := "invalid", http.StatusForbidden, "invalid_signature"
				if errors.Is(err, signedurl.ErrExpired) {
					outcome, status, reason = "expired", http.StatusGone, "link_expired"
				}
				m.SignedURLVerifications.WithLabelValues(outcome).Inc()
				rec.Record(r.Context(), model.EventSignedURLDenied, model.SeverityMedium,
					r.RemoteAddr, r.UserAgent(), map[string]any{
						"path":    filePath,
						"outcome": outcome,
					})
				writeReason(w, status, reason, "Access to this file was denied")
				return
			}

			m.SignedURLVerifications.WithLabelValues("ok").Inc()
			next.ServeHTTP(w, r)
		})
	}
}
