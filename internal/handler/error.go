package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/intellivoid/coffeehouse-api/internal/coffeehouse"
	"github.com/intellivoid/coffeehouse-api/internal/domain"
)

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest // 400
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized // 401
	case domain.EPAYMENT:
		return http.StatusPaymentRequired // 402
	case domain.EFORBIDDEN:
		return http.StatusForbidden // 403
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.ETOOLARGE:
		return http.StatusRequestEntityTooLarge // 413
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests // 429
	case domain.EINTERNAL, domain.ESUBSCRIPTION:
		return http.StatusInternalServerError // 500
	case domain.EUNAVAILABLE:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}

// ErrorType classifies a status for the "type" field of error responses.
func ErrorType(status int) string {
	if status >= 500 {
		return "SERVER"
	}
	return "CLIENT"
}

// EngineError translates a CoffeeHouse engine failure into a domain error.
func EngineError(op string, err error) error {
	switch {
	case errors.Is(err, coffeehouse.ErrUnavailable):
		return domain.Unavailable(err, op, "CoffeeHouse is currently unavailable, please try again later")
	case errors.Is(err, coffeehouse.ErrLanguageUnidentifiable):
		return domain.Invalid(op, domain.ErrCodeLanguageUnidentifiable, "The language of the input could not be identified")
	case errors.Is(err, coffeehouse.ErrSessionNotFound):
		return domain.NotFound(op, "The requested session was not found").WithAPICode(domain.ErrCodeSessionNotFound)
	case errors.Is(err, coffeehouse.ErrInvalidInput):
		return domain.Invalid(op, domain.ErrCodeGeneric, "The input was rejected by CoffeeHouse")
	case errors.Is(err, coffeehouse.ErrRateLimit):
		return domain.Unavailable(err, op, "CoffeeHouse is busy, please try again later")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, coffeehouse.ErrTimeout):
		return domain.Internal(err, op, "engine call timed out")
	default:
		return domain.Internal(err, op, "engine call failed")
	}
}

// logError logs the error with appropriate level based on status code.
func logError(logger *slog.Logger, r *http.Request, err error, code, op string, status int) {
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"api_code", domain.ErrorAPICode(err),
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
	}

	// Add operation if present
	if op != "" {
		attrs = append(attrs, "op", op)
	}

	// Log level based on status code:
	// - 5xx errors are warnings/errors (server-side issues)
	// - 4xx errors are info (client errors, expected)
	if status >= 500 {
		logger.Error("server error", attrs...)
	} else if status >= 400 {
		logger.Info("client error", attrs...)
	}
}
