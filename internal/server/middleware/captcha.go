package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/tixgate/tixgate/internal/audit"
	"github.com/tixgate/tixgate/internal/captcha"
	"github.com/tixgate/tixgate/internal/metrics"
	"github.com/tixgate/tixgate/internal/model"
)

type contextKeyCaptcha string

// CaptchaDecisionKey is the context key carrying the risk-gate verdict.
const CaptchaDecisionKey contextKeyCaptcha = "captcha_decision"

// maxGateBody caps how much of the body the gate itself will buffer while
// looking for a token. Route body limits run earlier and are tighter for
// the form endpoints this gate protects.
const maxGateBody = 1 << 20

// CaptchaGate returns a middleware that runs the bot-risk gate over the
// request. In blocking mode a denial short-circuits with 403 and records
// a security event. In advisory mode the verdict is attached to the
// request context and the request always proceeds; downstream handlers
// decide what to do with a low score.
func CaptchaGate(verifier *captcha.Verifier, blocking bool, m *metrics.Metrics, rec *audit.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractRequestToken(r)
			decision := verifier.Evaluate(r.Context(), token)

			outcome := "deny"
			if decision.Allowed {
				outcome = "allow"
			}
			m.CaptchaDecisions.WithLabelValues(outcome, decision.Reason).Inc()

			if !decision.Allowed && blocking {
				eventType := model.EventCaptchaFailed
				if decision.Reason == captcha.ReasonMissingToken {
					eventType = model.EventCaptchaMissing
				}
				rec.Record(r.Context(), eventType, model.SeverityMedium,
					r.RemoteAddr, r.UserAgent(), map[string]any{
						"reason": decision.Reason,
						"score":  decision.Score,
						"path":   r.URL.Path,
					})
				writeReason(w, http.StatusForbidden, decision.Reason,
					"Request blocked by bot protection")
				return
			}

			ctx := context.WithValue(r.Context(), CaptchaDecisionKey, decision)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCaptchaDecision extracts the risk-gate verdict from the context.
// The second return is false when no gate ran on this route.
func GetCaptchaDecision(ctx context.Context) (captcha.Decision, bool) {
	d, ok := ctx.Value(CaptchaDecisionKey).(captcha.Decision)
	return d, ok
}

// extractRequestToken buffers a JSON body (when present), runs the
// ordered extraction strategies, and restores the body for downstream
// handlers.
func extractRequestToken(r *http.Request) string {
	var body map[string]any

	ct := r.Header.Get("Content-Type")
	if r.Body != nil && strings.HasPrefix(ct, "application/json") {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxGateBody))
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(raw))
		if err == nil {
			// A malformed body just means no body-field token; the
			// handler will reject it on its own terms.
			_ = json.Unmarshal(raw, &body)
		}
	}

	return captcha.ExtractToken(r.Header, body, captcha.DefaultExtractors)
}
