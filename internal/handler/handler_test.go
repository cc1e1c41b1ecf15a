package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tixgate/tixgate/internal/config"
	"github.com/tixgate/tixgate/internal/service"
	"github.com/tixgate/tixgate/internal/signedurl"
	"github.com/tixgate/tixgate/internal/signing"
)

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store   *config.Store
	keys    *service.KeyService
	system  *SystemHandler
	uploads *UploadsHandler
	router  chi.Router
}

// newTestEnv creates a fresh environment with an in-memory store and a
// chi router with routes mounted, without auth middleware, so handlers
// are exercised directly.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	keys := service.NewKeyService(store, logger)
	system := NewSystemHandler(keys, store)

	signer := signedurl.New([]byte("test-upload-secret"))
	uploads := NewUploadsHandler(signer, 5*time.Minute, "/uploads", []string{"payment-proofs"})
	forms := NewFormsHandler(logger)
	state := NewStateHandler(signing.NewCodec([]byte("test-state-secret")))

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/uploads/sign", uploads.SignURL)
		r.Post("/forms/contact", forms.Contact)
		r.Post("/feedback", forms.Feedback)
		r.Post("/state/issue", state.IssueState)
		r.Post("/state/verify", state.VerifyState)

		r.Route("/system", func(r chi.Router) {
			r.Get("/api-key", system.ListAPIKeys)
			r.Post("/api-key", system.CreateAPIKey)
			r.Delete("/api-key/{keyId}", system.RevokeAPIKey)
			r.Get("/security-event", system.ListSecurityEvents)
		})
	})

	return &testEnv{
		store:   store,
		keys:    keys,
		system:  system,
		uploads: uploads,
		router:  r,
	}
}

// do executes an HTTP request against the test router.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}
