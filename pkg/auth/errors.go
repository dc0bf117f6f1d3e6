package auth

import (
	"errors"
	"net/http"
)

// Sentinel errors. Typed errors below wrap exactly one of these as their kind,
// so callers can test with errors.Is.
var (
	// Token verification failures.
	ErrMalformed    = errors.New("malformed token")
	ErrBadSignature = errors.New("invalid token signature")
	ErrExpired      = errors.New("token expired")

	// Principal resolution failures.
	ErrNotFound         = errors.New("principal not found")
	ErrStoreUnavailable = errors.New("identity store unavailable")

	// Access decisions.
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")

	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// TokenError reports why a token failed verification.
type TokenError struct {
	Kind error // ErrMalformed, ErrBadSignature or ErrExpired
	Err  error // underlying cause, may be nil
}

// NewTokenError wraps cause with the given kind.
func NewTokenError(kind, cause error) *TokenError {
	return &TokenError{Kind: kind, Err: cause}
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *TokenError) Unwrap() []error { return unwrapPair(e.Kind, e.Err) }

// ResolveError reports why a subject could not be resolved to a Principal.
type ResolveError struct {
	Kind    error // ErrNotFound or ErrStoreUnavailable
	Subject string
	Err     error
}

func (e *ResolveError) Error() string {
	msg := e.Kind.Error() + " (subject " + e.Subject + ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolveError) Unwrap() []error { return unwrapPair(e.Kind, e.Err) }

// AccessError is the only error class that reaches callers. It carries the
// anonymous reason so the entry point can pick a reason code without
// exposing which internal check failed.
type AccessError struct {
	Kind      error // ErrUnauthenticated or ErrForbidden
	Anonymous AnonymousReason
}

func (e *AccessError) Error() string { return e.Kind.Error() }

func (e *AccessError) Unwrap() error { return e.Kind }

// Status returns the HTTP status for the error: 403 for forbidden, 401 otherwise.
func (e *AccessError) Status() int {
	if errors.Is(e.Kind, ErrForbidden) {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

func unauthenticated(reason AnonymousReason) *AccessError {
	return &AccessError{Kind: ErrUnauthenticated, Anonymous: reason}
}

func forbidden() *AccessError {
	return &AccessError{Kind: ErrForbidden}
}

func unwrapPair(kind, cause error) []error {
	if cause == nil {
		return []error{kind}
	}
	return []error{kind, cause}
}
