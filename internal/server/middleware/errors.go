package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/tixgate/tixgate/internal/model"
)

// writeReason renders the standard JSON error envelope with a
// machine-readable denial reason. Kept local to avoid an import cycle
// with the handler package.
func writeReason(w http.ResponseWriter, status int, reason, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message, Reason: reason},
	})
}
