// Package api provides the REST and websocket server for greenroom.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/greenroomhq/greenroom/internal/errors"
	"github.com/greenroomhq/greenroom/internal/orchestrator"
)

// envelope is the uniform response shape. Business-state outcomes travel as
// error_data on an HTTP 200 so clients branch on the payload, not the status
// code; only validation and infrastructure failures use error statuses.
type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	ErrorData any    `json:"error_data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondData writes a successful envelope.
func respondData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// respondMessage writes a failure envelope with an HTTP error status.
func respondMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

// respondError classifies an operation error into the envelope.
func respondError(w http.ResponseWriter, err error) {
	var be *orchestrator.BusinessError
	if errors.As(err, &be) {
		writeJSON(w, http.StatusOK, envelope{Success: false, ErrorData: be})
		return
	}
	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		respondMessage(w, ae.Category().HTTPStatus(), ae.Error())
		return
	}
	respondMessage(w, http.StatusInternalServerError, err.Error())
}
