package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/tixgate/tixgate/internal/config"
	"github.com/tixgate/tixgate/internal/model"
)

func newTestKeys(t *testing.T) (*KeyService, *config.Store) {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewKeyService(store, logger), store
}

func TestGenerateKeyShape(t *testing.T) {
	plaintext, prefix, hash, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	if !strings.HasPrefix(plaintext, KeyPrefix) {
		t.Errorf("plaintext %q missing %q prefix", plaintext, KeyPrefix)
	}
	if len(plaintext) != len(KeyPrefix)+64 {
		t.Errorf("plaintext length: got %d, want %d", len(plaintext), len(KeyPrefix)+64)
	}
	if len(prefix) != 11 {
		t.Errorf("key prefix length: got %d, want 11", len(prefix))
	}
	if !strings.HasPrefix(plaintext, prefix) {
		t.Errorf("prefix %q is not a prefix of the plaintext", prefix)
	}
	if hash != config.HashAPIKey(plaintext) {
		t.Error("hash does not match SHA-256 of plaintext")
	}
}

func TestGenerateKeyUnique(t *testing.T) {
	p1, prefix1, h1, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p2, prefix2, h2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	if p1 == p2 || h1 == h2 {
		t.Error("two generated keys collided")
	}
	if prefix1 == prefix2 {
		t.Error("two generated key prefixes collided")
	}
}

func TestIssueAndVerify(t *testing.T) {
	svc, _ := newTestKeys(t)
	ctx := context.Background()

	key, plaintext, err := svc.Issue(ctx, IssueParams{
		Name:        "checkout service",
		OwnerID:     "org_42",
		OwnerType:   model.OwnerTypeOrganization,
		Permissions: []string{"events:read"},
		RateLimit:   60,
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if key.UsageCount != 0 {
		t.Errorf("fresh key usage count: got %d, want 0", key.UsageCount)
	}

	got, err := svc.Verify(ctx, plaintext)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.ID != key.ID {
		t.Errorf("verified ID: got %d, want %d", got.ID, key.ID)
	}
	if got.UsageCount != 1 {
		t.Errorf("usage count after verify: got %d, want 1", got.UsageCount)
	}
	if got.LastUsedAt == nil {
		t.Error("last_used_at not set after verify")
	}
	if got.OwnerType != model.OwnerTypeOrganization {
		t.Errorf("owner type: got %q", got.OwnerType)
	}

	// Second verify increments again.
	got, err = svc.Verify(ctx, plaintext)
	if err != nil {
		t.Fatalf("second Verify: %v", err)
	}
	if got.UsageCount != 2 {
		t.Errorf("usage count after second verify: got %d, want 2", got.UsageCount)
	}
}

func TestVerifyUnknownKey(t *testing.T) {
	svc, _ := newTestKeys(t)
	if _, err := svc.Verify(context.Background(), "tg_nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown key: got %v, want ErrInvalidCredentials", err)
	}
}

func TestVerifyRevokedKey(t *testing.T) {
	svc, _ := newTestKeys(t)
	ctx := context.Background()

	key, plaintext, err := svc.Issue(ctx, IssueParams{Name: "doomed"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := svc.Revoke(ctx, key.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	if _, err := svc.Verify(ctx, plaintext); !errors.Is(err, ErrKeyRevoked) {
		t.Errorf("revoked key: got %v, want ErrKeyRevoked", err)
	}
}

func TestVerifyExpiredKey(t *testing.T) {
	svc, store := newTestKeys(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	key, plaintext, err := svc.Issue(ctx, IssueParams{Name: "lapsed", ExpiresAt: &past})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := svc.Verify(ctx, plaintext); !errors.Is(err, ErrKeyExpired) {
		t.Errorf("expired key: got %v, want ErrKeyExpired", err)
	}

	// The record is left intact, neither reactivated nor deleted, and its
	// usage count is untouched.
	stored, err := store.GetAPIKeyByHash(ctx, key.KeyHash)
	if err != nil {
		t.Fatalf("GetAPIKeyByHash: %v", err)
	}
	if !stored.IsActive {
		t.Error("expired key should remain active in storage (only lapsed)")
	}
	if stored.UsageCount != 0 {
		t.Errorf("expired key usage count: got %d, want 0", stored.UsageCount)
	}
}

func TestIssueRejectsBadOwnerType(t *testing.T) {
	svc, _ := newTestKeys(t)
	if _, _, err := svc.Issue(context.Background(), IssueParams{OwnerType: "robot"}); err == nil {
		t.Error("expected error for invalid owner type")
	}
}
