package errors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Error kinds shared by every service. Package level errors wrap one of these
// so callers can classify failures with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrAlreadyAwarded     = errors.New("badge already awarded")
	ErrDuplicateReward    = errors.New("reward already issued")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidToken       = errors.New("invalid token")
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInactiveUser       = errors.New("inactive user")
)

// kindError carries a human readable message for an error kind
type kindError struct {
	kind    error
	message string
}

func (e *kindError) Error() string { return e.message }

func (e *kindError) Unwrap() error { return e.kind }

// WithKind returns an error reading message that matches kind under errors.Is
func WithKind(kind error, message string) error {
	return &kindError{kind: kind, message: message}
}

// ValidationError describes malformed input field by field
type ValidationError struct {
	Fields map[string]string
}

// NewFieldError creates a validation error for a single field
func NewFieldError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

// Unwrap makes errors.Is(err, ErrValidation) true
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Request errors (400xx)
	CodeInvalidRequest   ErrorCode = "40001"
	CodeValidationFailed ErrorCode = "40002"
	CodeInvalidJSON      ErrorCode = "40003"

	// Authentication errors (401xx)
	CodeUnauthorized       ErrorCode = "40100"
	CodeInvalidCredentials ErrorCode = "40101"
	CodeInactiveUser       ErrorCode = "40102"

	// Authorization errors (403xx)
	CodeForbidden ErrorCode = "40301"

	// Resource errors (404xx)
	CodeNotFound ErrorCode = "40400"

	// State errors (409xx)
	CodeConflict          ErrorCode = "40900"
	CodeInvalidTransition ErrorCode = "40901"
	CodeAlreadyAwarded    ErrorCode = "40902"
	CodeDuplicateReward   ErrorCode = "40903"

	// Rate limit errors (429xx)
	CodeRateLimited ErrorCode = "42902"

	// Server errors (500xx)
	CodeInternalServer    ErrorCode = "50001"
	CodeDatabaseError     ErrorCode = "50002"
	CodeLedgerUnavailable ErrorCode = "50301"
)

// APIError represents a standardized API error
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	HTTPStatus int       `json:"-"`
	Timestamp  time.Time `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// WithDetails returns a copy of the error carrying details
func (e *APIError) WithDetails(details any) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    e.Message,
		Details:    details,
		HTTPStatus: e.HTTPStatus,
		Timestamp:  time.Now().UTC(),
	}
}

// WithMessage returns a copy of the error with a different message
func (e *APIError) WithMessage(message string) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    message,
		Details:    e.Details,
		HTTPStatus: e.HTTPStatus,
		Timestamp:  time.Now().UTC(),
	}
}

// ErrorBody is the error object of the JSON envelope
type ErrorBody struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
	Timestamp string    `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
	Method    string    `json:"method,omitempty"`
}

// ErrorResponse represents the error response format
type ErrorResponse struct {
	Error         ErrorBody `json:"error"`
	RequestID     string    `json:"request_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// NewErrorResponse builds the JSON envelope for err
func NewErrorResponse(err *APIError, requestID, correlationID, path, method string) *ErrorResponse {
	ts := err.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if correlationID == "" {
		correlationID = requestID
	}
	return &ErrorResponse{
		Error: ErrorBody{
			Code:      err.Code,
			Message:   err.Message,
			Details:   err.Details,
			Timestamp: ts.Format(time.RFC3339),
			Path:      path,
			Method:    method,
		},
		RequestID:     requestID,
		CorrelationID: correlationID,
	}
}

// Common errors
var (
	ErrUnauthorizedError = &APIError{
		Code:       CodeUnauthorized,
		Message:    "Could not validate credentials",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidCredentialsError = &APIError{
		Code:       CodeInvalidCredentials,
		Message:    "Incorrect username or password",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInactiveUserError = &APIError{
		Code:       CodeInactiveUser,
		Message:    "Inactive user",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbiddenError = &APIError{
		Code:       CodeForbidden,
		Message:    "Access denied",
		HTTPStatus: http.StatusForbidden,
	}

	ErrRateLimitedError = &APIError{
		Code:       CodeRateLimited,
		Message:    "Rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrInternalServerError = &APIError{
		Code:       CodeInternalServer,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrLedgerUnavailableError = &APIError{
		Code:       CodeLedgerUnavailable,
		Message:    "Ledger queue unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)

// NewValidationError creates a validation error with details
func NewValidationError(details any) *APIError {
	return &APIError{
		Code:       CodeValidationFailed,
		Message:    "Validation failed",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:       CodeInvalidRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewRateLimitError creates a rate limit error telling the client when to retry
func NewRateLimitError(retryAfterSeconds int64) *APIError {
	return ErrRateLimitedError.WithDetails(map[string]int64{
		"retry_after_seconds": retryAfterSeconds,
	})
}

// FromError maps a service error to its API representation.
// Errors of no known kind become an internal server error.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return NewValidationError(validationErr.Fields)
	}

	message := func(fallback string) string {
		var ke *kindError
		if errors.As(err, &ke) {
			return capitalize(ke.message)
		}
		return fallback
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return &APIError{Code: CodeNotFound, Message: message("Resource not found"), HTTPStatus: http.StatusNotFound}
	case errors.Is(err, ErrInvalidTransition):
		return &APIError{Code: CodeInvalidTransition, Message: message("Invalid state transition"), HTTPStatus: http.StatusConflict}
	case errors.Is(err, ErrAlreadyAwarded):
		return &APIError{Code: CodeAlreadyAwarded, Message: message("User already has this badge"), HTTPStatus: http.StatusConflict}
	case errors.Is(err, ErrDuplicateReward):
		return &APIError{Code: CodeDuplicateReward, Message: message("Reward already issued"), HTTPStatus: http.StatusConflict}
	case errors.Is(err, ErrConflict):
		return &APIError{Code: CodeConflict, Message: message("Resource already exists"), HTTPStatus: http.StatusConflict}
	case errors.Is(err, ErrValidation):
		return NewValidationError(message("Invalid input"))
	case errors.Is(err, ErrInvalidCredentials):
		return ErrInvalidCredentialsError
	case errors.Is(err, ErrInactiveUser):
		return ErrInactiveUserError
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidToken):
		return ErrUnauthorizedError
	default:
		return ErrInternalServerError
	}
}

// GetHTTPStatusFromCode returns the HTTP status for an error code
func GetHTTPStatusFromCode(code ErrorCode) int {
	switch code {
	case CodeInvalidRequest, CodeValidationFailed, CodeInvalidJSON:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeInvalidCredentials, CodeInactiveUser:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidTransition, CodeAlreadyAwarded, CodeDuplicateReward:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeLedgerUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsClientError reports whether the error is the caller's fault
func IsClientError(err *APIError) bool {
	return err.HTTPStatus >= 400 && err.HTTPStatus < 500
}

// IsServerError reports whether the error is a server side failure
func IsServerError(err *APIError) bool {
	return err.HTTPStatus >= 500 && err.HTTPStatus < 600
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
