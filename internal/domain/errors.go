package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID      = "invalid"      // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized" // Missing or unknown access key
	EPAYMENT      = "payment"      // Renewal charge declined
	EFORBIDDEN    = "forbidden"    // Subscription does not permit the request
	ENOTFOUND     = "not_found"    // Resource not found
	ERATELIMIT    = "rate_limit"   // Quota or request rate exceeded
	ETOOLARGE     = "too_large"    // Request entity too large
	EINTERNAL     = "internal"     // Internal server error, message hidden
	ESUBSCRIPTION = "subscription" // Subscription backend failure, message shown
	EUNAVAILABLE  = "unavailable"  // Downstream engine not ready
)

// Numeric error codes carried in the "error_code" field of API responses.
// The values are kept stable for existing API clients.
const (
	ErrCodeGeneric                   = 0
	ErrCodeMissingSession            = 1
	ErrCodeSessionNotFound           = 2
	ErrCodeQuotaExceeded             = 6
	ErrCodeLanguageUnidentifiable    = 7
	ErrCodeServiceUnavailable        = 13
	ErrCodeGeneralizationSizeInvalid = 17
	ErrCodeGeneralizationSizeLimit   = 18
	ErrCodeGeneralizationNotFound    = 19
	ErrCodeGeneralizationIDInvalid   = 20
	ErrCodeInputTooLong              = 21
	ErrCodeInputEmpty                = 22
	ErrCodeImageInvalid              = 23
	ErrCodeImageTooLarge             = 24
	ErrCodeUnexpected                = -1
)

// GenericInternalMessage is returned to clients in place of internal error details.
const GenericInternalMessage = "An unexpected internal server error occurred, please try again later."

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "subscription.validate")
	Message string // Human-readable message
	Err     error  // Underlying error
	APICode int    // Numeric code exposed to API clients
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
		APICode: defaultAPICode(code),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code, op, message string) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
		APICode: defaultAPICode(code),
	}
}

// WithAPICode sets the numeric client-facing code and returns the error.
func (e *Error) WithAPICode(code int) *Error {
	e.APICode = code
	return e
}

func defaultAPICode(code string) int {
	switch code {
	case EINTERNAL, ESUBSCRIPTION:
		return ErrCodeUnexpected
	case EUNAVAILABLE:
		return ErrCodeServiceUnavailable
	case ERATELIMIT:
		return ErrCodeQuotaExceeded
	default:
		return ErrCodeGeneric
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorAPICode returns the numeric client-facing code of the error.
func ErrorAPICode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.APICode
	}
	return ErrCodeUnexpected
}

// ErrorMessage returns the human-readable message of the error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		// For internal errors, return generic message
		if e.Code == EINTERNAL {
			return GenericInternalMessage
		}
		return e.Message
	}
	return GenericInternalMessage
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Convenience constructors for common error types

// NotFound creates a not found error.
func NotFound(op, message string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: message,
		APICode: ErrCodeGeneric,
	}
}

// Invalid creates a validation error with the given client-facing code.
func Invalid(op string, apiCode int, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
		APICode: apiCode,
	}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, message string) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: message,
		APICode: ErrCodeGeneric,
	}
}

// Forbidden creates a permission error.
func Forbidden(op, message string) *Error {
	return &Error{
		Code:    EFORBIDDEN,
		Op:      op,
		Message: message,
		APICode: ErrCodeGeneric,
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
		APICode: ErrCodeUnexpected,
	}
}

// SubscriptionFailure creates a 500-class subscription backend error whose message
// is shown to the client.
func SubscriptionFailure(err error, op, message string) *Error {
	return &Error{
		Code:    ESUBSCRIPTION,
		Op:      op,
		Message: message,
		Err:     err,
		APICode: ErrCodeUnexpected,
	}
}

// Unavailable creates a service unavailable error.
func Unavailable(err error, op, message string) *Error {
	return &Error{
		Code:    EUNAVAILABLE,
		Op:      op,
		Message: message,
		Err:     err,
		APICode: ErrCodeServiceUnavailable,
	}
}

// QuotaExceeded creates the fixed max-quota error for a feature.
func QuotaExceeded(op string, feature FeatureName) *Error {
	return &Error{
		Code:    ERATELIMIT,
		Op:      op,
		Message: "You have reached the maximum quota for this method, upgrade your subscription or wait for your next billing cycle",
		Err:     fmt.Errorf("feature %s", feature),
		APICode: ErrCodeQuotaExceeded,
	}
}

// RateLimit creates a request rate limit error.
func RateLimit(op string) *Error {
	return &Error{
		Code:    ERATELIMIT,
		Op:      op,
		Message: "Too many requests. Please try again later.",
		APICode: ErrCodeGeneric,
	}
}
