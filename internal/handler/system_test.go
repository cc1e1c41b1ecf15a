package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/tixgate/tixgate/internal/model"
	"github.com/tixgate/tixgate/internal/service"
)

// ---------------------------------------------------------------------------
// CreateAPIKey
// ---------------------------------------------------------------------------

func TestCreateAPIKey_PlaintextShownOnce(t *testing.T) {
	env := newTestEnv(t)

	body := toJSON(t, map[string]interface{}{
		"name":        "checkout",
		"owner_id":    "org_9",
		"owner_type":  model.OwnerTypeOrganization,
		"permissions": []string{"events:read", "tickets:write"},
	})
	rr := env.do(t, "POST", "/api/v1/system/api-key", body)
	assertStatus(t, rr, http.StatusCreated)

	var resp struct {
		Key    string        `json:"api_key"`
		APIKey *model.APIKey `json:"key"`
	}
	decodeJSON(t, rr, &resp)

	if !strings.HasPrefix(resp.Key, service.KeyPrefix) {
		t.Errorf("plaintext = %q, want %q prefix", resp.Key, service.KeyPrefix)
	}
	if resp.APIKey == nil || resp.APIKey.ID == 0 {
		t.Fatalf("key metadata missing: %+v", resp.APIKey)
	}
	if resp.APIKey.KeyPrefix != resp.Key[:11] {
		t.Errorf("key_prefix = %q, want first 11 chars of plaintext", resp.APIKey.KeyPrefix)
	}

	// The stored hash must never appear in the response body.
	if strings.Contains(rr.Body.String(), "key_hash") {
		t.Error("response leaks key_hash")
	}

	// Listing afterwards shows the prefix but never the plaintext.
	rr = env.do(t, "GET", "/api/v1/system/api-key", nil)
	assertStatus(t, rr, http.StatusOK)
	if strings.Contains(rr.Body.String(), resp.Key) {
		t.Error("list response leaks plaintext key")
	}
	if !strings.Contains(rr.Body.String(), resp.APIKey.KeyPrefix) {
		t.Error("list response missing key prefix")
	}
}

func TestCreateAPIKey_RequiresName(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "POST", "/api/v1/system/api-key", toJSON(t, map[string]string{}))
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestCreateAPIKey_RejectsBadOwnerType(t *testing.T) {
	env := newTestEnv(t)
	body := toJSON(t, map[string]string{"name": "x", "owner_type": "robot"})
	rr := env.do(t, "POST", "/api/v1/system/api-key", body)
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestCreateAPIKey_InvalidBody(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "POST", "/api/v1/system/api-key", strings.NewReader("{not json"))
	assertStatus(t, rr, http.StatusBadRequest)
}

// ---------------------------------------------------------------------------
// RevokeAPIKey
// ---------------------------------------------------------------------------

func TestRevokeAPIKey(t *testing.T) {
	env := newTestEnv(t)

	key, plaintext, err := env.keys.Issue(context.Background(), service.IssueParams{Name: "doomed"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rr := env.do(t, "DELETE", fmt.Sprintf("/api/v1/system/api-key/%d", key.ID), nil)
	assertStatus(t, rr, http.StatusOK)

	if _, err := env.keys.Verify(context.Background(), plaintext); !errors.Is(err, service.ErrKeyRevoked) {
		t.Errorf("verify after revoke: got %v, want ErrKeyRevoked", err)
	}
}

func TestRevokeAPIKey_NotFound(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "DELETE", "/api/v1/system/api-key/99999", nil)
	assertStatus(t, rr, http.StatusNotFound)
}

func TestRevokeAPIKey_BadID(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "DELETE", "/api/v1/system/api-key/abc", nil)
	assertStatus(t, rr, http.StatusBadRequest)
}

// ---------------------------------------------------------------------------
// ListSecurityEvents
// ---------------------------------------------------------------------------

func TestListSecurityEvents(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		ev := &model.SecurityEvent{
			ID:       fmt.Sprintf("ev-%d", i),
			Type:     model.EventCaptchaFailed,
			Severity: model.SeverityMedium,
		}
		if err := env.store.InsertSecurityEvent(context.Background(), ev); err != nil {
			t.Fatalf("InsertSecurityEvent: %v", err)
		}
	}

	rr := env.do(t, "GET", "/api/v1/system/security-event?limit=2", nil)
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		Resource []model.SecurityEvent `json:"resource"`
		Meta     *model.ResponseMeta   `json:"meta"`
	}
	decodeJSON(t, rr, &resp)

	if len(resp.Resource) != 2 {
		t.Errorf("events returned: got %d, want 2", len(resp.Resource))
	}
	if resp.Meta == nil || resp.Meta.Limit != 2 {
		t.Errorf("meta: got %+v", resp.Meta)
	}
}
