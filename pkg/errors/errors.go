package errors

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents different types of application errors
type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeUnknownCategory ErrorType = "unknown_category"
	ErrorTypeDuplicateVote   ErrorType = "duplicate_vote"
	ErrorTypeRequestExpired  ErrorType = "request_expired"
	ErrorTypeInvalidSecurity ErrorType = "invalid_security_data"
	ErrorTypeAuthentication  ErrorType = "authentication"
	ErrorTypeAuthorization   ErrorType = "authorization"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeUnavailable     ErrorType = "backend_unavailable"
	ErrorTypeInternal        ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"-"`
	Internal   error                  `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Internal.Error())
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details map[string]interface{}) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// NewUnknownCategoryError rejects a vote for a category outside the closed set
func NewUnknownCategoryError(category string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeUnknownCategory,
		Message:    "Invalid category",
		StatusCode: http.StatusBadRequest,
		Internal:   internal,
		Details:    map[string]interface{}{"category": category},
	}
}

// NewDuplicateVoteError rejects a vote already cast along some identity dimension
func NewDuplicateVoteError(message, dimension string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeDuplicateVote,
		Message:    message,
		StatusCode: http.StatusConflict,
		Internal:   internal,
		Details:    map[string]interface{}{"dimension": dimension},
	}
}

// NewRequestExpiredError rejects a submission whose client timestamp is out of tolerance
func NewRequestExpiredError(internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeRequestExpired,
		Message:    "Request expired, please refresh and try again",
		StatusCode: http.StatusBadRequest,
		Internal:   internal,
	}
}

// NewInvalidSecurityError rejects a submission with missing or malformed security fields
func NewInvalidSecurityError(internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidSecurity,
		Message:    "Invalid security data",
		StatusCode: http.StatusBadRequest,
		Internal:   internal,
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewAuthorizationError creates a new authorization error
func NewAuthorizationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthorization,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewUnavailableError reports that the vote store cannot accept writes
func NewUnavailableError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Internal:   internal,
	}
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   internal,
	}
}

// ErrorBody is the error object embedded in JSON responses
type ErrorBody struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// ErrorResponse represents the JSON error response
type ErrorResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Error   ErrorBody `json:"error"`
}

// Response builds the JSON body for e
func (e *AppError) Response(requestID string) ErrorResponse {
	return ErrorResponse{
		Success: false,
		Message: e.Message,
		Error: ErrorBody{
			Type:      e.Type,
			Message:   e.Message,
			Details:   e.Details,
			RequestID: requestID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}
