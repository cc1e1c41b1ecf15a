// Package handler implements the HTTP endpoints: key management for
// operators, signed-link minting for API consumers, and the captcha-gated
// public form intake.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tixgate/tixgate/internal/config"
	"github.com/tixgate/tixgate/internal/model"
	"github.com/tixgate/tixgate/internal/service"
)

// SystemHandler manages the instance's own access-control state: API keys
// and the security-event audit trail.
type SystemHandler struct {
	keys  *service.KeyService
	store *config.Store
}

// NewSystemHandler creates a SystemHandler.
func NewSystemHandler(keys *service.KeyService, store *config.Store) *SystemHandler {
	return &SystemHandler{keys: keys, store: store}
}

// ---------------------------------------------------------------------------
// API key management
// ---------------------------------------------------------------------------

// createAPIKeyRequest is the expected payload for CreateAPIKey.
type createAPIKeyRequest struct {
	Name        string     `json:"name"`
	OwnerID     string     `json:"owner_id"`
	OwnerType   string     `json:"owner_type"`
	Permissions []string   `json:"permissions"`
	RateLimit   int        `json:"rate_limit"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IPWhitelist []string   `json:"ip_whitelist,omitempty"`
}

// createAPIKeyResponse includes the plaintext key, shown once only.
type createAPIKeyResponse struct {
	Key    string        `json:"api_key"` // Plaintext. Never retrievable again.
	APIKey *model.APIKey `json:"key"`
}

// CreateAPIKey mints a new API key and returns the plaintext exactly once;
// only the hash and display prefix are persisted.
// POST /api/v1/system/api-key
func (h *SystemHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Key name is required")
		return
	}

	key, plaintext, err := h.keys.Issue(r.Context(), service.IssueParams{
		Name:        req.Name,
		OwnerID:     req.OwnerID,
		OwnerType:   req.OwnerType,
		Permissions: req.Permissions,
		RateLimit:   req.RateLimit,
		ExpiresAt:   req.ExpiresAt,
		IPWhitelist: req.IPWhitelist,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to create API key: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, createAPIKeyResponse{
		Key:    plaintext,
		APIKey: key,
	})
}

// ListAPIKeys returns all keys with their non-secret metadata. The hash
// never leaves the store's JSON shape and the plaintext no longer exists.
// GET /api/v1/system/api-key
func (h *SystemHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list API keys: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: keys,
		Meta:     &model.ResponseMeta{Count: len(keys)},
	})
}

// RevokeAPIKey soft-deactivates a key by ID. The record survives for the
// audit trail; verification of the key fails from this point on.
// DELETE /api/v1/system/api-key/{keyId}
func (h *SystemHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "keyId")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid key ID: "+idStr)
		return
	}

	if err := h.keys.Revoke(r.Context(), id); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "API key not found: "+idStr)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to revoke API key: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "API key revoked",
	})
}

// ---------------------------------------------------------------------------
// Security events
// ---------------------------------------------------------------------------

// ListSecurityEvents returns recent denial records, newest first.
// GET /api/v1/system/security-event?limit=N
func (h *SystemHandler) ListSecurityEvents(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(queryInt(r, "limit", 100), 1, 1000)

	events, err := h.store.ListSecurityEvents(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list security events: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: events,
		Meta:     &model.ResponseMeta{Count: len(events), Limit: limit},
	})
}
