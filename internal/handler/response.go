// Package handler contains the HTTP handlers for the CoffeeHouse API.
//
// Every response, successful or not, is written as the same JSON envelope:
//
//	{"success":true,"response_code":200,"results":{...}}
//	{"success":false,"response_code":429,"error":{"error_code":6,"type":"CLIENT","message":"..."}}
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/intellivoid/coffeehouse-api/internal/domain"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success      bool           `json:"success"`
	ResponseCode int            `json:"response_code"`
	Results      any            `json:"results,omitempty"`
	Error        *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError describes a failed request.
type EnvelopeError struct {
	ErrorCode int    `json:"error_code"`
	Type      string `json:"type"`
	Message   string `json:"message"`
}

// Responder writes envelopes. With Debug set, the underlying error text is
// appended to internal error messages.
type Responder struct {
	logger *slog.Logger
	debug  bool
}

// NewResponder creates a new Responder.
func NewResponder(logger *slog.Logger, debug bool) *Responder {
	return &Responder{logger: logger, debug: debug}
}

// Results writes a successful envelope.
func (rs *Responder) Results(w http.ResponseWriter, status int, results any) {
	writeEnvelope(w, status, Envelope{
		Success:      true,
		ResponseCode: status,
		Results:      results,
	})
}

// Error writes an error envelope.
// It maps domain error codes to HTTP status codes and hides internal details
// unless debug is enabled.
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	// Extract structured info from error
	code := domain.ErrorCode(err)
	message := domain.ErrorMessage(err)
	op := domain.ErrorOp(err)

	// Map to HTTP status
	status := ErrorCodeToHTTPStatus(code)

	// Log error with context
	logError(rs.logger, r, err, code, op, status)

	if rs.debug && code == domain.EINTERNAL {
		message = message + " (" + err.Error() + ")"
	}

	writeEnvelope(w, status, Envelope{
		Success:      false,
		ResponseCode: status,
		Error: &EnvelopeError{
			ErrorCode: domain.ErrorAPICode(err),
			Type:      ErrorType(status),
			Message:   message,
		},
	})
}

// NotFound writes a 404 envelope for unknown routes.
func (rs *Responder) NotFound(w http.ResponseWriter, r *http.Request) {
	rs.Error(w, r, domain.NotFound("", "The requested resource was not found"))
}

// MethodNotAllowed writes a 405 envelope.
func (rs *Responder) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusMethodNotAllowed, Envelope{
		ResponseCode: http.StatusMethodNotAllowed,
		Error: &EnvelopeError{
			ErrorCode: domain.ErrCodeGeneric,
			Type:      ErrorType(http.StatusMethodNotAllowed),
			Message:   "This method is not allowed on this resource",
		},
	})
}

// writeEnvelope writes a JSON envelope.
func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
