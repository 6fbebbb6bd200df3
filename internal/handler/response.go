package handler

import (
	"net/http"

	"github.com/hosteldesk/desk-relay-go/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// successResponse is the envelope for all desk endpoint replies.
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeSuccess(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, successResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}
