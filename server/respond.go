package server

import (
	"encoding/json"
	"net/http"
)

const contentTypeJSON = "application/json; charset=utf-8"

// Error codes returned in JSON error bodies.
const (
	errCodeInvalidRequest = "invalid_request"
	errCodeInvalidGrant   = "invalid_grant"
	errCodeUnauthorized   = "unauthorized"
	errCodeServerError    = "server_error"
)

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Err(err).Msg("Failed to encode response body")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, description string) {
	s.writeJSON(w, status, errorResponse{Error: code, ErrorDescription: description})
}
