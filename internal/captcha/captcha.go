// Package captcha implements the bot-risk gate: it submits a
// client-supplied token to an external verification oracle, applies a
// score threshold and action-match policy, and renders a binary admission
// decision with a machine-readable reason code.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tixgate/tixgate/internal/config"
)

// Denial and admission reason codes.
const (
	ReasonMissingToken   = "missing_token"
	ReasonNotConfigured  = "captcha_not_configured"
	ReasonVerifyError    = "verification_error"
	ReasonScoreTooLow    = "score_too_low"
	ReasonActionMismatch = "action_mismatch"
)

// Decision is the gate's terminal verdict for one request. It is a plain
// result value: evaluation never panics or raises past this boundary.
type Decision struct {
	Allowed bool
	Score   float64
	Reason  string
}

// verdict is the oracle's JSON response body.
type verdict struct {
	Success    bool     `json:"success"`
	Score      *float64 `json:"score,omitempty"`
	Action     string   `json:"action,omitempty"`
	ErrorCodes []string `json:"error-codes,omitempty"`
}

// Verifier evaluates captcha tokens against the external oracle. All
// configuration is injected at construction; nothing is read from ambient
// global state per request.
type Verifier struct {
	secret         string
	verifyURL      string
	minScore       float64
	expectedAction string
	permissive     bool
	client         *http.Client
	logger         *slog.Logger
}

// New creates a Verifier from configuration. In strict mode a missing
// oracle secret is a construction error; in permissive mode the gate fails
// open with a synthetic verdict (development use only).
func New(cfg config.CaptchaConfig, mode string, logger *slog.Logger) (*Verifier, error) {
	if mode == config.ModeStrict && cfg.Secret == "" {
		return nil, fmt.Errorf("captcha secret required in strict mode")
	}

	timeout := 5 * time.Second
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("parse captcha timeout: %w", err)
		}
		timeout = d
	}

	minScore := cfg.MinScore
	if minScore == 0 {
		minScore = 0.5
	}

	return &Verifier{
		secret:         cfg.Secret,
		verifyURL:      cfg.VerifyURL,
		minScore:       minScore,
		expectedAction: cfg.ExpectedAction,
		permissive:     mode == config.ModePermissive,
		client:         &http.Client{Timeout: timeout},
		logger:         logger,
	}, nil
}

// Configured reports whether an oracle secret is present.
func (v *Verifier) Configured() bool {
	return v.secret != ""
}

// Evaluate runs the gate's single-pass state machine for one token.
// The pass is terminal: no retries, every failure maps to a denial with a
// reason code. When no oracle secret is configured the gate admits with a
// synthetic maximal score; that branch depends only on configuration,
// never on any request-supplied value.
func (v *Verifier) Evaluate(ctx context.Context, token string) Decision {
	if !v.Configured() {
		return Decision{Allowed: true, Score: 1.0, Reason: ReasonNotConfigured}
	}

	if token == "" {
		return Decision{Reason: ReasonMissingToken}
	}

	result, err := v.callOracle(ctx, token)
	if err != nil {
		// Raw network detail stays in the log; callers see one generic
		// denial reason.
		v.logger.Warn("captcha oracle call failed", "error", err)
		return Decision{Reason: ReasonVerifyError}
	}

	if !result.Success {
		reason := strings.Join(result.ErrorCodes, ",")
		if reason == "" {
			reason = ReasonVerifyError
		}
		return Decision{Reason: reason}
	}

	score := 1.0
	if result.Score != nil {
		score = *result.Score
		if score < v.minScore {
			return Decision{Score: score, Reason: ReasonScoreTooLow}
		}
	}

	if v.expectedAction != "" && result.Action != v.expectedAction {
		return Decision{Score: score, Reason: ReasonActionMismatch}
	}

	return Decision{Allowed: true, Score: score}
}

// callOracle POSTs the token and shared secret to the verification service
// as URL-encoded form fields and decodes the JSON verdict.
func (v *Verifier) callOracle(ctx context.Context, token string) (*verdict, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}

	var result verdict
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode oracle response: %w", err)
	}
	return &result, nil
}
