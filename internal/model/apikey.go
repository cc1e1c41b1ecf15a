package model

import "time"

// Owner types an API key can be bound to.
const (
	OwnerTypeUser         = "user"
	OwnerTypeOrganization = "organization"
)

// APIKey represents a programmatic-access credential. The raw key is
// generated once, shown once, and never stored; only a SHA-256 hash and a
// short non-secret prefix for human identification are persisted.
//
// Permissions, RateLimit, and IPWhitelist are metadata the key carries for
// the calling layer's authorization and throttling decisions; verification
// surfaces them but does not enforce them.
type APIKey struct {
	ID          int64      `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	KeyHash     string     `json:"-" db:"key_hash"`            // SHA-256 hash, never expose
	KeyPrefix   string     `json:"key_prefix" db:"key_prefix"` // "tg_" + first 8 hex chars
	OwnerID     string     `json:"owner_id" db:"owner_id"`
	OwnerType   string     `json:"owner_type" db:"owner_type"` // user | organization
	Permissions []string   `json:"permissions"`
	RateLimit   int        `json:"rate_limit" db:"rate_limit"` // requests per minute
	IsActive    bool       `json:"is_active" db:"is_active"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	UsageCount  int64      `json:"usage_count" db:"usage_count"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	IPWhitelist []string   `json:"ip_whitelist,omitempty"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Expired reports whether the key has an expiry instant in the past
// relative to now. Keys without an expiry never expire.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}
