package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/buttrest/internal/gateway"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes. Gateway failures map to one code each and never collapse into
// a generic failure.
const (
	ErrCodeValidation         = "validation_error"
	ErrCodeDeviceNotFound     = "device_not_found"
	ErrCodeCapabilityNotFound = "capability_not_found"
	ErrCodeKindMismatch       = "capability_kind_mismatch"
	ErrCodeDeviceGone         = "device_gone"
	ErrCodeProtocol           = "protocol_error"
	ErrCodeConnection         = "connection_unavailable"
	ErrCodeTimeout            = "timeout"
	ErrCodeNotFound           = "not_found"
	ErrCodeInternal           = "internal_error"
	ErrCodeMethodNotAllow     = "method_not_allowed"
	ErrCodeClientClosed       = "client_closed_request"
)

// statusClientClosedRequest is the de facto status for requests the client
// abandoned. The client never sees it; it shows up in logs and metrics.
const statusClientClosedRequest = 499

// gatewayErrors maps gateway sentinels to responses, checked in order.
var gatewayErrors = []struct {
	err    error
	status int
	code   string
}{
	{gateway.ErrValidation, http.StatusBadRequest, ErrCodeValidation},
	{gateway.ErrDeviceNotFound, http.StatusNotFound, ErrCodeDeviceNotFound},
	{gateway.ErrCapabilityKindMismatch, http.StatusNotFound, ErrCodeKindMismatch},
	{gateway.ErrCapabilityNotFound, http.StatusNotFound, ErrCodeCapabilityNotFound},
	{gateway.ErrDeviceGone, http.StatusConflict, ErrCodeDeviceGone},
	{gateway.ErrProtocol, http.StatusBadGateway, ErrCodeProtocol},
	{gateway.ErrConnection, http.StatusServiceUnavailable, ErrCodeConnection},
	{gateway.ErrClosed, http.StatusServiceUnavailable, ErrCodeConnection},
	{gateway.ErrTimeout, http.StatusGatewayTimeout, ErrCodeTimeout},
}

// gatewayErrorStatus returns the status and code for a gateway error.
func gatewayErrorStatus(err error) (int, string) {
	for _, m := range gatewayErrors {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

// writeGatewayError writes the response for an error returned by the gateway.
func (s *Server) writeGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := gatewayErrorStatus(err)
	if status == http.StatusInternalServerError && r.Context().Err() != nil {
		status, code = statusClientClosedRequest, ErrCodeClientClosed
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("unmapped gateway error",
			"path", r.URL.Path,
			"error", err,
			"request_id", requestID(r.Context()),
		)
	}
	writeError(w, status, code, err.Error())
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeValidationError writes a 400 error response.
func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeValidation, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
