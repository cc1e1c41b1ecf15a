package middleware

import (
	"net/http"

	"github.com/tixgate/tixgate/internal/audit"
	"github.com/tixgate/tixgate/internal/metrics"
	"github.com/tixgate/tixgate/internal/model"
)

// Route classes for payload ceilings. Each mounted route group picks one.
const (
	ClassStandard = "standard"
	ClassAuth     = "auth"
	ClassUpload   = "upload"
	ClassBulk     = "bulk"
	ClassWebhook  = "webhook"
)

// BodyLimit returns a middleware that rejects requests whose declared
// Content-Length exceeds the ceiling for the given route class. Only the
// declared length is inspected; the body is never read here, so an
// oversized request costs no buffering. Requests without a declared
// length pass through and are bounded downstream by MaxBytesReader.
func BodyLimit(class string, limit int64, m *metrics.Metrics, rec *audit.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				m.PayloadRejections.WithLabelValues(class).Inc()
				rec.Record(r.Context(), model.EventPayloadTooLarge, model.SeverityLow,
					r.RemoteAddr, r.UserAgent(), map[string]any{
						"class":          class,
						"content_length": r.ContentLength,
						"limit":          limit,
						"path":           r.URL.Path,
					})
				writeReason(w, http.StatusRequestEntityTooLarge, "payload_too_large",
					"Request body exceeds the limit for this endpoint")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
