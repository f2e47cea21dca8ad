package api

import (
	"encoding/json"
	"net/http"

	"github.com/strefethen/taskscheduler/internal/apperrors"
)

// envelope is the wire shape for every MonitorAPI response:
// either {"success": ...} or {"error": "..."}.
type envelope struct {
	Success any    `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WriteJSON sends a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// WriteSuccess writes {"success": data} with HTTP 200.
func WriteSuccess(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusOK, envelope{Success: data})
}

// WriteError serializes an error as {"error": "..."} with the AppError's
// status code. Blocked mutating actions (a wrong api_token) still return
// HTTP 200; the envelope itself carries the outcome.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.EnsureAppError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	_ = WriteJSON(w, status, envelope{Error: appErr.Message})
}
