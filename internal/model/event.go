package model

import "time"

// Security event types emitted on denial paths.
const (
	EventCaptchaMissing    = "captcha_missing_token"
	EventCaptchaFailed     = "captcha_failed"
	EventSignedURLDenied   = "signed_url_denied"
	EventAPIKeyDenied      = "api_key_denied"
	EventPayloadTooLarge   = "payload_too_large"
)

// Severity levels for security events.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// SecurityEvent is the structured record emitted to the audit sink when a
// request is denied by one of the access-control gates. Recording is
// best-effort: a failed write never alters the admission decision.
type SecurityEvent struct {
	ID         string         `json:"id" db:"id"`
	Type       string         `json:"type" db:"event_type"`
	Severity   string         `json:"severity" db:"severity"`
	SourceAddr string         `json:"source_addr" db:"source_addr"`
	UserAgent  string         `json:"user_agent" db:"user_agent"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}
