package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindUnauthorized  Kind = "unauthorized"
	KindForbidden     Kind = "forbidden"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindUsageLimit    Kind = "usage_limit"
	KindPaymentFailed Kind = "payment_failed"
	KindConfiguration Kind = "configuration"
	KindUnavailable   Kind = "unavailable"
	KindTransient     Kind = "transient"
	KindInternal      Kind = "internal"
)

// Common error types. Every AppError matches the sentinel of its kind with errors.Is.
var (
	ErrValidation    = errors.New("validation failed")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("resource not found")
	ErrConflict      = errors.New("resource conflict")
	ErrUsageLimit    = errors.New("usage limit exceeded")
	ErrPaymentFailed = errors.New("payment failed")
	ErrConfiguration = errors.New("configuration error")
	ErrUnavailable   = errors.New("service unavailable")
	ErrTransient     = errors.New("transient infrastructure error")
	ErrInternal      = errors.New("internal error")
)

var kindSentinels = map[Kind]error{
	KindValidation:    ErrValidation,
	KindUnauthorized:  ErrUnauthorized,
	KindForbidden:     ErrForbidden,
	KindNotFound:      ErrNotFound,
	KindConflict:      ErrConflict,
	KindUsageLimit:    ErrUsageLimit,
	KindPaymentFailed: ErrPaymentFailed,
	KindConfiguration: ErrConfiguration,
	KindUnavailable:   ErrUnavailable,
	KindTransient:     ErrTransient,
	KindInternal:      ErrInternal,
}

var kindStatus = map[Kind]int{
	KindValidation:    http.StatusBadRequest,
	KindUnauthorized:  http.StatusUnauthorized,
	KindForbidden:     http.StatusForbidden,
	KindNotFound:      http.StatusNotFound,
	KindConflict:      http.StatusConflict,
	KindUsageLimit:    http.StatusTooManyRequests,
	KindPaymentFailed: http.StatusPaymentRequired,
	KindConfiguration: http.StatusInternalServerError,
	KindUnavailable:   http.StatusServiceUnavailable,
	KindTransient:     http.StatusServiceUnavailable,
	KindInternal:      http.StatusInternalServerError,
}

// AppError is a classified application error.
// Message is for logs; UserMessage is the only text shown to end users.
type AppError struct {
	Kind        Kind
	Code        string
	Message     string
	UserMessage string
	Retryable   bool
	Context     map[string]any
	Err         error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *AppError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// StatusCode returns the HTTP status for this error's kind.
func (e *AppError) StatusCode() int {
	if status, ok := kindStatus[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// With attaches a context value and returns the error.
func (e *AppError) With(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse represents the JSON error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// ToResponse converts an AppError to ErrorResponse.
// Context is only exposed for kinds whose context is meant for the client.
func (e *AppError) ToResponse() ErrorResponse {
	detail := ErrorDetail{
		Code:      e.Code,
		Message:   e.UserMessage,
		Retryable: e.Retryable,
	}
	switch e.Kind {
	case KindValidation, KindNotFound, KindConflict, KindUsageLimit, KindPaymentFailed, KindForbidden:
		if len(e.Context) > 0 {
			detail.Details = e.Context
		}
	}
	return ErrorResponse{Error: detail}
}

// Validation creates a validation error for a single field.
func Validation(field, message string) *AppError {
	return &AppError{
		Kind:        KindValidation,
		Code:        "VALIDATION_ERROR",
		Message:     fmt.Sprintf("invalid %s: %s", field, message),
		UserMessage: message,
		Context:     map[string]any{"field": field},
	}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(code, message string) *AppError {
	if code == "" {
		code = "AUTHENTICATION_REQUIRED"
	}
	if message == "" {
		message = "authentication required"
	}
	return &AppError{
		Kind:        KindUnauthorized,
		Code:        code,
		Message:     message,
		UserMessage: message,
	}
}

// Forbidden creates a forbidden error.
func Forbidden(code, message string) *AppError {
	return &AppError{
		Kind:        KindForbidden,
		Code:        code,
		Message:     message,
		UserMessage: message,
	}
}

// AccountNotFound creates a not found error for an account identifier.
func AccountNotFound(id string) *AppError {
	return &AppError{
		Kind:        KindNotFound,
		Code:        "ACCOUNT_NOT_FOUND",
		Message:     fmt.Sprintf("account %s not found", id),
		UserMessage: "Account not found.",
	}
}

// SubscriptionNotFound creates a not found error for an external subscription.
func SubscriptionNotFound(id string) *AppError {
	e := &AppError{
		Kind:        KindNotFound,
		Code:        "SUBSCRIPTION_NOT_FOUND",
		Message:     fmt.Sprintf("subscription %q not found", id),
		UserMessage: "Subscription not found.",
	}
	if id != "" {
		e.With("subscription_id", id)
	}
	return e
}

// Conflict creates a conflict error.
func Conflict(code, message string) *AppError {
	return &AppError{
		Kind:        KindConflict,
		Code:        code,
		Message:     message,
		UserMessage: message,
	}
}

// UsageLimitExceeded creates the upgrade-to-continue error returned when a free account is out of allowance.
func UsageLimitExceeded(remaining, limit int, upgradeURL string) *AppError {
	return &AppError{
		Kind:        KindUsageLimit,
		Code:        "USAGE_LIMIT_EXCEEDED",
		Message:     fmt.Sprintf("daily usage limit of %d reached", limit),
		UserMessage: "You've reached your daily limit. Upgrade to continue.",
		Context: map[string]any{
			"remaining":   remaining,
			"limit":       limit,
			"upgrade_url": upgradeURL,
		},
	}
}

// PaymentFailed creates a terminal payment error carrying the provider's reason when known.
func PaymentFailed(reason string, err error) *AppError {
	userMessage := "Payment was declined. Please check your payment method."
	e := &AppError{
		Kind:        KindPaymentFailed,
		Code:        "PAYMENT_FAILED",
		Message:     "payment failed",
		UserMessage: userMessage,
		Err:         err,
	}
	if reason != "" {
		e.UserMessage = reason
		e.With("reason", reason)
	}
	return e
}

// Configuration creates a terminal error that needs operator action.
func Configuration(message string, err error) *AppError {
	return &AppError{
		Kind:        KindConfiguration,
		Code:        "CONFIGURATION_ERROR",
		Message:     message,
		UserMessage: "Billing is not available right now. Please contact support.",
		Err:         err,
	}
}

// Unavailable creates a retryable error for an external service that could not be reached.
func Unavailable(service string, err error) *AppError {
	return &AppError{
		Kind:        KindUnavailable,
		Code:        "SERVICE_UNAVAILABLE",
		Message:     fmt.Sprintf("%s unavailable", service),
		UserMessage: "The service is temporarily unavailable. Please try again later.",
		Retryable:   true,
		Context:     map[string]any{"service": service},
		Err:         err,
	}
}

// Transient creates a retryable persistence error.
func Transient(op string, err error) *AppError {
	return &AppError{
		Kind:        KindTransient,
		Code:        "DATABASE_ERROR",
		Message:     op,
		UserMessage: "A temporary error occurred. Please try again.",
		Retryable:   true,
		Context:     map[string]any{"operation": op},
		Err:         err,
	}
}

// Internal creates an internal error.
func Internal(message string, err error) *AppError {
	return &AppError{
		Kind:        KindInternal,
		Code:        "INTERNAL_ERROR",
		Message:     message,
		UserMessage: "An unexpected error occurred.",
		Err:         err,
	}
}

// As returns the AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// From classifies any error. Unclassified context and network failures become
// retryable Unavailable errors; everything else becomes Internal.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Unavailable("upstream", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Unavailable("upstream", err)
	}
	return Internal("unexpected error", err)
}

// KindOf returns the kind of err, or KindInternal when it is unclassified.
func KindOf(err error) Kind {
	return From(err).Kind
}

// IsRetryable reports whether err is marked retryable.
// A cancelled context is never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return From(err).Retryable
}

// GetStatusCode returns the appropriate HTTP status code for an error.
func GetStatusCode(err error) int {
	return From(err).StatusCode()
}
