package captcha

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tixgate/tixgate/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// oracleResponse starts a stub verification oracle that checks the posted
// form and replies with the given JSON body.
func oracleResponse(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("oracle: parse form: %v", err)
		}
		if r.PostFormValue("secret") == "" {
			t.Error("oracle: missing secret field")
		}
		if r.PostFormValue("response") == "" {
			t.Error("oracle: missing response field")
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("oracle: content type %q", ct)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
}

func newTestVerifier(t *testing.T, oracleURL string, cfg config.CaptchaConfig) *Verifier {
	t.Helper()
	cfg.VerifyURL = oracleURL
	v, err := New(cfg, config.ModeStrict, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestEvaluateAdmitsHighScore(t *testing.T) {
	oracle := oracleResponse(t, `{"success":true,"score":0.9,"action":"purchase"}`)
	defer oracle.Close()

	v := newTestVerifier(t, oracle.URL, config.CaptchaConfig{Secret: "s3cret", ExpectedAction: "purchase"})
	d := v.Evaluate(context.Background(), "tok")
	if !d.Allowed {
		t.Fatalf("expected admission, got denial with reason %q", d.Reason)
	}
	if d.Score != 0.9 {
		t.Errorf("score: got %v, want 0.9", d.Score)
	}
}

func TestEvaluateDeniesLowScore(t *testing.T) {
	oracle := oracleResponse(t, `{"success":true,"score":0.3,"action":"purchase"}`)
	defer oracle.Close()

	v := newTestVerifier(t, oracle.URL, config.CaptchaConfig{Secret: "s3cret"})
	d := v.Evaluate(context.Background(), "tok")
	if d.Allowed {
		t.Fatal("expected denial")
	}
	if d.Reason != ReasonScoreTooLow {
		t.Errorf("reason: got %q, want %q", d.Reason, ReasonScoreTooLow)
	}
	if d.Score != 0.3 {
		t.Errorf("score: got %v, want 0.3", d.Score)
	}
}

func TestEvaluateCustomThreshold(t *testing.T) {
	oracle := oracleResponse(t, `{"success":true,"score":0.6}`)
	defer oracle.Close()

	v := newTestVerifier(t, oracle.URL, config.CaptchaConfig{Secret: "s3cret", MinScore: 0.7})
	if d := v.Evaluate(context.Background(), "tok"); d.Allowed || d.Reason != ReasonScoreTooLow {
		t.Errorf("0.6 under threshold 0.7: got %+v", d)
	}
}

func TestEvaluateOracleFailureCodes(t *testing.T) {
	oracle := oracleResponse(t, `{"success":false,"error-codes":["timeout-or-duplicate"]}`)
	defer oracle.Close()

	v := newTestVerifier(t, oracle.URL, config.CaptchaConfig{Secret: "s3cret"})
	d := v.Evaluate(context.Background(), "tok")
	if d.Allowed {
		t.Fatal("expected denial")
	}
	if !strings.Contains(d.Reason, "timeout-or-duplicate") {
		t.Errorf("reason %q should carry the oracle error code", d.Reason)
	}
}

func TestEvaluateOracleFailureNoCodes(t *testing.T) {
	oracle := oracleResponse(t, `{"success":false}`)
	defer oracle.Close()

	v := newTestVerifier(t, oracle.URL, config.CaptchaConfig{Secret: "s3cret"})
	if d := v.Evaluate(context.Background(), "tok"); d.Allowed || d.Reason != ReasonVerifyError {
		t.Errorf("got %+v, want denial with %q", d, ReasonVerifyError)
	}
}

func TestEvaluateActionMismatch(t *testing.T) {
	oracle := oracleResponse(t, `{"success":true,"score":0.9,"action":"login"}`)
	defer oracle.Close()

	v := newTestVerifier(t, oracle.URL, config.CaptchaConfig{Secret: "s3cret", ExpectedAction: "purchase"})
	if d := v.Evaluate(context.Background(), "tok"); d.Allowed || d.Reason != ReasonActionMismatch {
		t.Errorf("got %+v, want denial with %q", d, ReasonActionMismatch)
	}
}

func TestEvaluateNoActionPolicy(t *testing.T) {
	// Without an expected action the reported action is ignored.
	oracle := oracleResponse(t, `{"success":true,"score":0.9,"action":"whatever"}`)
	defer oracle.Close()

	v := newTestVerifier(t, oracle.URL, config.CaptchaConfig{Secret: "s3cret"})
	if d := v.Evaluate(context.Background(), "tok"); !d.Allowed {
		t.Errorf("got denial %+v", d)
	}
}

func TestEvaluateScorelessVerdict(t *testing.T) {
	// Checkbox-style verdicts carry no score; success alone admits.
	oracle := oracleResponse(t, `{"success":true}`)
	defer oracle.Close()

	v := newTestVerifier(t, oracle.URL, config.CaptchaConfig{Secret: "s3cret"})
	if d := v.Evaluate(context.Background(), "tok"); !d.Allowed {
		t.Errorf("got denial %+v", d)
	}
}

func TestEvaluateMissingToken(t *testing.T) {
	v := newTestVerifier(t, "http://127.0.0.1:0", config.CaptchaConfig{Secret: "s3cret"})
	if d := v.Evaluate(context.Background(), ""); d.Allowed || d.Reason != ReasonMissingToken {
		t.Errorf("got %+v, want denial with %q", d, ReasonMissingToken)
	}
}

func TestEvaluateOracleUnreachable(t *testing.T) {
	oracle := httptest.NewServer(http.NotFoundHandler())
	oracle.Close()

	v := newTestVerifier(t, oracle.URL, config.CaptchaConfig{Secret: "s3cret"})
	if d := v.Evaluate(context.Background(), "tok"); d.Allowed || d.Reason != ReasonVerifyError {
		t.Errorf("got %+v, want denial with %q", d, ReasonVerifyError)
	}
}

func TestEvaluateOracleBadStatus(t *testing.T) {
	oracle := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer oracle.Close()

	v := newTestVerifier(t, oracle.URL, config.CaptchaConfig{Secret: "s3cret"})
	if d := v.Evaluate(context.Background(), "tok"); d.Allowed || d.Reason != ReasonVerifyError {
		t.Errorf("got %+v, want denial with %q", d, ReasonVerifyError)
	}
}

func TestEvaluateUnconfiguredPermissive(t *testing.T) {
	v, err := New(config.CaptchaConfig{}, config.ModePermissive, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d := v.Evaluate(context.Background(), "anything")
	if !d.Allowed || d.Reason != ReasonNotConfigured {
		t.Errorf("got %+v, want fail-open with %q", d, ReasonNotConfigured)
	}
	if d.Score != 1.0 {
		t.Errorf("synthetic score: got %v, want 1.0", d.Score)
	}
}

func TestNewStrictRequiresSecret(t *testing.T) {
	if _, err := New(config.CaptchaConfig{}, config.ModeStrict, testLogger()); err == nil {
		t.Error("strict mode without a secret should fail construction")
	}
}

func TestNewBadTimeout(t *testing.T) {
	cfg := config.CaptchaConfig{Secret: "s3cret", Timeout: "soon"}
	if _, err := New(cfg, config.ModeStrict, testLogger()); err == nil {
		t.Error("unparseable timeout should fail construction")
	}
}

func TestExtractTokenOrder(t *testing.T) {
	header := http.Header{}
	header.Set("X-Captcha-Token", "from-header")

	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"camelCase wins", map[string]any{"captchaToken": "camel", "captcha_token": "snake"}, "camel"},
		{"snake_case next", map[string]any{"captcha_token": "snake"}, "snake"},
		{"header last", map[string]any{}, "from-header"},
		{"non-string field skipped", map[string]any{"captchaToken": 42}, "from-header"},
		{"empty field skipped", map[string]any{"captchaToken": ""}, "from-header"},
		{"nil body", nil, "from-header"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractToken(header, tt.body, DefaultExtractors); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractTokenNothingFound(t *testing.T) {
	if got := ExtractToken(http.Header{}, nil, DefaultExtractors); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
