package handler

import (
	"encoding/json"
	"net/http"

	"github.com/tixgate/tixgate/internal/signing"
)

// StateHandler issues and checks signed state tokens, used to carry a
// payload across an untrusted round-trip (OAuth redirects, webhook echo
// parameters) without server-side storage.
type StateHandler struct {
	codec *signing.Codec
}

// NewStateHandler creates a StateHandler.
func NewStateHandler(codec *signing.Codec) *StateHandler {
	return &StateHandler{codec: codec}
}

// issueStateRequest is the expected payload for IssueState.
type issueStateRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// IssueState signs an arbitrary JSON payload into an opaque token.
// POST /api/v1/state/issue
func (h *StateHandler) IssueState(w http.ResponseWriter, r *http.Request) {
	var req issueStateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Payload) == 0 {
		writeError(w, http.StatusBadRequest, "Payload is required")
		return
	}

	token, err := h.codec.Encode(req.Payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to sign state: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"token": token})
}

// verifyStateRequest is the expected payload for VerifyState.
type verifyStateRequest struct {
	Token string `json:"token"`
}

// VerifyState checks a state token and, when authentic, returns the
// embedded payload. A failed check reports valid=false with no detail;
// tampered and malformed tokens are indistinguishable to the caller.
// POST /api/v1/state/verify
func (h *StateHandler) VerifyState(w http.ResponseWriter, r *http.Request) {
	var req verifyStateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	var payload json.RawMessage
	if !h.codec.Decode(req.Token, &payload) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"valid": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":   true,
		"payload": payload,
	})
}
