package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrIPForbidden     ErrorType = "IP_FORBIDDEN"     // source IP not allow-listed
	ErrPolicyReject    ErrorType = "POLICY_REJECT"    // withdraw/order rule failed
	ErrInvalidArgument ErrorType = "INVALID_ARGUMENT" // payload missing/malformed fields
	ErrUnauthenticated ErrorType = "UNAUTHENTICATED"  // no resolvable broker credentials
	ErrUnknownMarket   ErrorType = "UNKNOWN_MARKET"   // no tradable pair in either direction
	ErrPolicyLoad      ErrorType = "POLICY_LOAD_FAILED"
	ErrUpstream        ErrorType = "UPSTREAM_ERROR" // exchange adapter failure
	ErrReadOnly        ErrorType = "READ_ONLY_MODE"
	ErrInternal        ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the gateway
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func Newf(errType ErrorType, format string, args ...any) *AppError {
	return New(errType, fmt.Sprintf(format, args...), nil)
}

func NewPolicyReject(msg string) *AppError {
	return New(ErrPolicyReject, msg, nil)
}

func NewInvalidArgument(msg string) *AppError {
	return New(ErrInvalidArgument, msg, nil)
}

// NewUpstream wraps an adapter failure. The caller-facing message names only
// the action and exchange; the underlying error stays in Cause for logging.
func NewUpstream(action, exchange string, cause error) *AppError {
	return New(ErrUpstream, fmt.Sprintf("%s failed on %s", action, exchange), cause)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidArgument, ErrUnknownMarket, ErrPolicyLoad:
		return http.StatusBadRequest
	case ErrUnauthenticated:
		return http.StatusUnauthorized
	case ErrIPForbidden, ErrPolicyReject, ErrReadOnly:
		return http.StatusForbidden
	case ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrPolicyReject:
		return "Check the request against the configured withdraw/order policy."
	case ErrUnauthenticated:
		return "Supply API credentials via headers or configure them for this exchange."
	case ErrIPForbidden:
		return "Ask the operator to allow-list your source IP."
	case ErrUpstream:
		return "Retry later; the exchange rejected or failed the call."
	default:
		return ""
	}
}
