package api

import (
	"fmt"
	"net/http"
)

// ReasonCode is the machine-readable cause of an error response.
type ReasonCode string

const (
	ReasonUnauthenticated ReasonCode = "unauthenticated"
	ReasonTokenExpired    ReasonCode = "token_expired"
	ReasonForbidden       ReasonCode = "forbidden"
	ReasonBadCredentials  ReasonCode = "bad_credentials"
	ReasonInvalidRequest  ReasonCode = "invalid_request"
	ReasonConflict        ReasonCode = "conflict"
	ReasonNotFound        ReasonCode = "not_found"
	ReasonTooManyRequests ReasonCode = "too_many_requests"
	ReasonServerError     ReasonCode = "server_error"
)

// APIError is the body of every error response.
type APIError struct {
	Status     int        `json:"status"`
	Title      string     `json:"error"`
	Message    string     `json:"message"`
	ReasonCode ReasonCode `json:"reasonCode"`
	Param      string     `json:"param,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.ReasonCode, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.ReasonCode, e.Message)
}

func newError(status int, code ReasonCode, message string) *APIError {
	return &APIError{
		Status:     status,
		Title:      http.StatusText(status),
		Message:    message,
		ReasonCode: code,
	}
}

// NewUnauthorizedError creates a 401 error with the given reason code.
func NewUnauthorizedError(code ReasonCode, message string) *APIError {
	return newError(http.StatusUnauthorized, code, message)
}

// NewForbiddenError creates a 403 error.
func NewForbiddenError(message string) *APIError {
	return newError(http.StatusForbidden, ReasonForbidden, message)
}

// NewBadCredentialsError creates the 401 returned for a failed signin. The
// message does not say whether the user exists.
func NewBadCredentialsError() *APIError {
	return newError(http.StatusUnauthorized, ReasonBadCredentials, "Bad credentials")
}

// NewInvalidRequestError creates a 400 error for an invalid field.
func NewInvalidRequestError(param, message string) *APIError {
	e := newError(http.StatusBadRequest, ReasonInvalidRequest, message)
	e.Param = param
	return e
}

// NewConflictError creates a 409 error.
func NewConflictError(message string) *APIError {
	return newError(http.StatusConflict, ReasonConflict, message)
}

// NewNotFoundError creates a 404 error.
func NewNotFoundError(message string) *APIError {
	return newError(http.StatusNotFound, ReasonNotFound, message)
}

// NewTooManyRequestsError creates a 429 error.
func NewTooManyRequestsError(message string) *APIError {
	return newError(http.StatusTooManyRequests, ReasonTooManyRequests, message)
}

// NewServerError creates a 500 error. Callers pass a generic message, never
// internal error text.
func NewServerError(message string) *APIError {
	return newError(http.StatusInternalServerError, ReasonServerError, message)
}
