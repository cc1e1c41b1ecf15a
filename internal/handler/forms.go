package handler

import (
	"log/slog"
	"net/http"

	"github.com/tixgate/tixgate/internal/server/middleware"
)

// FormsHandler accepts public form submissions. The routes it serves sit
// behind the captcha gate: contact intake behind the blocking gate,
// feedback behind the advisory gate.
type FormsHandler struct {
	logger *slog.Logger
}

// NewFormsHandler creates a FormsHandler.
func NewFormsHandler(logger *slog.Logger) *FormsHandler {
	return &FormsHandler{logger: logger}
}

// contactRequest is the expected payload for Contact.
type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Contact accepts a contact-form submission. Bot traffic never reaches
// this handler; the blocking gate has already rejected it.
// POST /api/v1/forms/contact
func (h *FormsHandler) Contact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "Email and message are required")
		return
	}

	h.logger.Info("contact form accepted", "email", req.Email)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"message": "Submission received",
	})
}

// feedbackRequest is the expected payload for Feedback.
type feedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// Feedback accepts a low-stakes feedback submission. The advisory gate
// never blocks; the verdict rides along in the context and is echoed back
// so callers can see how the submission was scored.
// POST /api/v1/feedback
func (h *FormsHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeError(w, http.StatusBadRequest, "Rating must be between 1 and 5")
		return
	}

	resp := map[string]interface{}{
		"success": true,
		"message": "Feedback received",
	}
	if decision, ok := middleware.GetCaptchaDecision(r.Context()); ok {
		resp["risk_checked"] = decision.Allowed
		resp["risk_score"] = decision.Score
		if !decision.Allowed {
			h.logger.Warn("feedback flagged by risk gate",
				"reason", decision.Reason, "score", decision.Score)
		}
	}

	writeJSON(w, http.StatusAccepted, resp)
}
