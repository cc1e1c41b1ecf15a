// Package service implements API-key issuance and verification plus the
// admin bearer tokens that guard the key-management surface.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tixgate/tixgate/internal/config"
	"github.com/tixgate/tixgate/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrKeyRevoked         = errors.New("api key revoked")
	ErrKeyExpired         = errors.New("api key expired")
)

// KeyPrefix is the constant plaintext prefix for all issued keys.
// keyPrefixLen covers the prefix plus the first 8 hex characters: long
// enough for human identification, short enough to leak negligible entropy.
const (
	KeyPrefix    = "tg_"
	keyPrefixLen = len(KeyPrefix) + 8
)

// maxGenerateAttempts bounds regeneration on a key_hash collision. With
// 256-bit random input a collision is vanishingly unlikely; the retry
// exists so a persistence-layer uniqueness violation never silently
// overwrites an existing record.
const maxGenerateAttempts = 3

// IssueParams describes a new key to mint.
type IssueParams struct {
	Name        string
	OwnerID     string
	OwnerType   string
	Permissions []string
	RateLimit   int
	ExpiresAt   *time.Time
	IPWhitelist []string
}

// KeyService issues, verifies, and revokes API keys against the store.
type KeyService struct {
	store  *config.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewKeyService creates a KeyService.
func NewKeyService(store *config.Store, logger *slog.Logger) *KeyService {
	return &KeyService{store: store, logger: logger, now: time.Now}
}

// GenerateKey mints a fresh plaintext key with 32 bytes of cryptographic
// randomness and derives its storable prefix and hash. The plaintext is
// never reconstructable from the returned prefix and hash.
func GenerateKey() (plaintext, prefix, hash string, err error) {
	raw := make([]byte, 32)
	if _, err = rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("generate random key: %w", err)
	}
	plaintext = KeyPrefix + hex.EncodeToString(raw)
	return plaintext, plaintext[:keyPrefixLen], config.HashAPIKey(plaintext), nil
}

// Issue creates and persists a new API key. The returned plaintext is
// shown exactly once; only its hash and prefix are stored. A hash
// collision in the store triggers regeneration with fresh randomness.
func (s *KeyService) Issue(ctx context.Context, p IssueParams) (*model.APIKey, string, error) {
	if p.OwnerType == "" {
		p.OwnerType = model.OwnerTypeUser
	}
	if p.OwnerType != model.OwnerTypeUser && p.OwnerType != model.OwnerTypeOrganization {
		return nil, "", fmt.Errorf("invalid owner type %q", p.OwnerType)
	}

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		plaintext, prefix, hash, err := GenerateKey()
		if err != nil {
			return nil, "", err
		}

		key := &model.APIKey{
			Name:        p.Name,
			KeyHash:     hash,
			KeyPrefix:   prefix,
			OwnerID:     p.OwnerID,
			OwnerType:   p.OwnerType,
			Permissions: p.Permissions,
			RateLimit:   p.RateLimit,
			IsActive:    true,
			ExpiresAt:   p.ExpiresAt,
			IPWhitelist: p.IPWhitelist,
		}

		err = s.store.CreateAPIKey(ctx, key)
		if err == nil {
			return key, plaintext, nil
		}
		if !errors.Is(err, config.ErrDuplicate) {
			return nil, "", err
		}
		s.logger.Warn("api key hash collision, regenerating", "attempt", attempt+1)
	}
	return nil, "", fmt.Errorf("could not generate unique api key after %d attempts", maxGenerateAttempts)
}

// Verify checks a presented raw key and, on success, records the usage:
// last_used_at is set and usage_count incremented as a side effect of
// verification, so callers never have to remember a separate accounting
// step. Returns ErrInvalidCredentials for unknown keys, ErrKeyRevoked for
// deactivated keys, and ErrKeyExpired for lapsed keys; an expired key is
// never reactivated or deleted here.
func (s *KeyService) Verify(ctx context.Context, rawKey string) (*model.APIKey, error) {
	key, err := s.store.GetAPIKeyByHash(ctx, config.HashAPIKey(rawKey))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !key.IsActive {
		return nil, ErrKeyRevoked
	}
	if key.Expired(s.now()) {
		return nil, ErrKeyExpired
	}

	// Usage accounting is not a security boundary: a failed write is
	// logged and the verification still succeeds.
	if err := s.store.RecordAPIKeyUsage(ctx, key.ID); err != nil {
		s.logger.Warn("failed to record api key usage", "key_prefix", key.KeyPrefix, "error", err)
	} else {
		now := s.now().UTC()
		key.UsageCount++
		key.LastUsedAt = &now
	}

	return key, nil
}

// Revoke soft-deactivates a key by ID.
func (s *KeyService) Revoke(ctx context.Context, id int64) error {
	return s.store.RevokeAPIKey(ctx, id)
}

// List returns all keys with their non-secret metadata.
func (s *KeyService) List(ctx context.Context) ([]model.APIKey, error) {
	return s.store.ListAPIKeys(ctx)
}
