package config

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tixgate/tixgate/internal/model"
)

// Store persists API keys, security events, and instance settings. The
// default backend is embedded SQLite; a shared Postgres backend is
// available for multi-instance deployments.
type Store struct {
	db     *sqlx.DB
	driver string
}

// NewStore creates a SQLite-backed store rooted at dataDir. Pass empty
// string for in-memory (tests).
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "tixgate.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	s := &Store{db: db, driver: "sqlite"}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate store database: %w", err)
	}
	return s, nil
}

// NewPostgresStore creates a Postgres-backed store via the pgx stdlib
// driver.
func NewPostgresStore(dsn string) (*Store, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store database: %w", err)
	}

	s := &Store{db: db, driver: "postgres"}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate store database: %w", err)
	}
	return s, nil
}

// Open selects a backend from StoreConfig. An empty driver means SQLite
// under dataDir.
func Open(cfg StoreConfig, dataDir string) (*Store, error) {
	if cfg.Driver == "postgres" {
		return NewPostgresStore(cfg.DSN)
	}
	return NewStore(dataDir)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the backend is reachable, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

// apiKeyRow is a flat struct that maps 1:1 to the api_keys table columns.
// Permissions and the IP whitelist are stored as JSON text.
type apiKeyRow struct {
	ID              int64      `db:"id"`
	Name            string     `db:"name"`
	KeyHash         string     `db:"key_hash"`
	KeyPrefix       string     `db:"key_prefix"`
	OwnerID         string     `db:"owner_id"`
	OwnerType       string     `db:"owner_type"`
	PermissionsJSON string     `db:"permissions_json"`
	RateLimit       int        `db:"rate_limit"`
	IsActive        bool       `db:"is_active"`
	LastUsedAt      *time.Time `db:"last_used_at"`
	UsageCount      int64      `db:"usage_count"`
	ExpiresAt       *time.Time `db:"expires_at"`
	IPWhitelistJSON string     `db:"ip_whitelist_json"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func apiKeyRowFromModel(k *model.APIKey) (apiKeyRow, error) {
	perms, err := json.Marshal(k.Permissions)
	if err != nil {
		return apiKeyRow{}, fmt.Errorf("marshal permissions: %w", err)
	}
	ips, err := json.Marshal(k.IPWhitelist)
	if err != nil {
		return apiKeyRow{}, fmt.Errorf("marshal ip whitelist: %w", err)
	}
	return apiKeyRow{
		ID:              k.ID,
		Name:            k.Name,
		KeyHash:         k.KeyHash,
		KeyPrefix:       k.KeyPrefix,
		OwnerID:         k.OwnerID,
		OwnerType:       k.OwnerType,
		PermissionsJSON: string(perms),
		RateLimit:       k.RateLimit,
		IsActive:        k.IsActive,
		LastUsedAt:      k.LastUsedAt,
		UsageCount:      k.UsageCount,
		ExpiresAt:       k.ExpiresAt,
		IPWhitelistJSON: string(ips),
		CreatedAt:       k.CreatedAt,
		UpdatedAt:       k.UpdatedAt,
	}, nil
}

func (r apiKeyRow) toModel() (model.APIKey, error) {
	var perms, ips []string
	if r.PermissionsJSON != "" && r.PermissionsJSON != "null" {
		if err := json.Unmarshal([]byte(r.PermissionsJSON), &perms); err != nil {
			return model.APIKey{}, fmt.Errorf("unmarshal permissions: %w", err)
		}
	}
	if r.IPWhitelistJSON != "" && r.IPWhitelistJSON != "null" {
		if err := json.Unmarshal([]byte(r.IPWhitelistJSON), &ips); err != nil {
			return model.APIKey{}, fmt.Errorf("unmarshal ip whitelist: %w", err)
		}
	}
	return model.APIKey{
		ID:          r.ID,
		Name:        r.Name,
		KeyHash:     r.KeyHash,
		KeyPrefix:   r.KeyPrefix,
		OwnerID:     r.OwnerID,
		OwnerType:   r.OwnerType,
		Permissions: perms,
		RateLimit:   r.RateLimit,
		IsActive:    r.IsActive,
		LastUsedAt:  r.LastUsedAt,
		UsageCount:  r.UsageCount,
		ExpiresAt:   r.ExpiresAt,
		IPWhitelist: ips,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

// CreateAPIKey inserts a new API key record. The key_hash must already be
// set (use HashAPIKey). The ID, CreatedAt, and UpdatedAt fields on key are
// populated after a successful insert. A key_hash collision returns
// ErrDuplicate so the caller can regenerate rather than overwrite.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	now := time.Now().UTC()
	key.CreatedAt = now
	key.UpdatedAt = now

	row, err := apiKeyRowFromModel(key)
	if err != nil {
		return err
	}

	const q = `INSERT INTO api_keys
		(name, key_hash, key_prefix, owner_id, owner_type, permissions_json,
		 rate_limit, is_active, usage_count, expires_at, ip_whitelist_json,
		 created_at, updated_at)
		VALUES
		(:name, :key_hash, :key_prefix, :owner_id, :owner_type, :permissions_json,
		 :rate_limit, :is_active, :usage_count, :expires_at, :ip_whitelist_json,
		 :created_at, :updated_at)`

	if s.driver == "postgres" {
		rows, err := s.db.NamedQueryContext(ctx, q+" RETURNING id", row)
		if err != nil {
			return classifyInsertErr(err)
		}
		defer rows.Close()
		if rows.Next() {
			if err := rows.Scan(&key.ID); err != nil {
				return fmt.Errorf("scan api key id: %w", err)
			}
		}
		return nil
	}

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return classifyInsertErr(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get api key id: %w", err)
	}
	key.ID = id
	return nil
}

// GetAPIKeyByHash looks up an API key by its SHA-256 hash.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var row apiKeyRow
	q := s.db.Rebind("SELECT * FROM api_keys WHERE key_hash = ?")
	if err := s.db.GetContext(ctx, &row, q, hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	key, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// ListAPIKeys returns all API keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	var rows []apiKeyRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM api_keys ORDER BY created_at DESC"); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}

	keys := make([]model.APIKey, 0, len(rows))
	for _, r := range rows {
		k, err := r.toModel()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// RevokeAPIKey marks an API key as inactive by ID. Records are soft-revoked,
// never deleted, so the prefix stays visible for auditing.
func (s *Store) RevokeAPIKey(ctx context.Context, id int64) error {
	q := s.db.Rebind("UPDATE api_keys SET is_active = FALSE, updated_at = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordAPIKeyUsage sets last_used_at and increments usage_count as one
// atomic statement, avoiding the lost-increment race of a read-modify-write
// across concurrent verifications of the same key.
func (s *Store) RecordAPIKeyUsage(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	q := s.db.Rebind(`UPDATE api_keys
		SET last_used_at = ?, usage_count = usage_count + 1, updated_at = ?
		WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, q, now, now, id)
	if err != nil {
		return fmt.Errorf("record api key usage: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record api key usage rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Security events
// ---------------------------------------------------------------------------

type securityEventRow struct {
	ID          string    `db:"id"`
	EventType   string    `db:"event_type"`
	Severity    string    `db:"severity"`
	SourceAddr  string    `db:"source_addr"`
	UserAgent   string    `db:"user_agent"`
	DetailsJSON string    `db:"details_json"`
	CreatedAt   time.Time `db:"created_at"`
}

// InsertSecurityEvent persists a denial-path audit record.
func (s *Store) InsertSecurityEvent(ctx context.Context, ev *model.SecurityEvent) error {
	details, err := json.Marshal(ev.Details)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	row := securityEventRow{
		ID:          ev.ID,
		EventType:   ev.Type,
		Severity:    ev.Severity,
		SourceAddr:  ev.SourceAddr,
		UserAgent:   ev.UserAgent,
		DetailsJSON: string(details),
		CreatedAt:   ev.CreatedAt,
	}

	const q = `INSERT INTO security_events
		(id, event_type, severity, source_addr, user_agent, details_json, created_at)
		VALUES
		(:id, :event_type, :severity, :source_addr, :user_agent, :details_json, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

// ListSecurityEvents returns the most recent events, newest first.
func (s *Store) ListSecurityEvents(ctx context.Context, limit int) ([]model.SecurityEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []securityEventRow
	q := s.db.Rebind("SELECT * FROM security_events ORDER BY created_at DESC LIMIT ?")
	if err := s.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, fmt.Errorf("list security events: %w", err)
	}

	events := make([]model.SecurityEvent, 0, len(rows))
	for _, r := range rows {
		ev := model.SecurityEvent{
			ID:         r.ID,
			Type:       r.EventType,
			Severity:   r.Severity,
			SourceAddr: r.SourceAddr,
			UserAgent:  r.UserAgent,
			CreatedAt:  r.CreatedAt,
		}
		if r.DetailsJSON != "" && r.DetailsJSON != "null" {
			if err := json.Unmarshal([]byte(r.DetailsJSON), &ev.Details); err != nil {
				return nil, fmt.Errorf("unmarshal event details: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns the value for key, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	q := s.db.Rebind("SELECT value FROM settings WHERE key = ?")
	if err := s.db.GetContext(ctx, &value, q, key); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting upserts a key-value setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	q := s.db.Rebind(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`)
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

// HashAPIKey returns the hex-encoded SHA-256 hash of a raw API key string.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
