package auth

import (
	"context"
	"sync"
)

// AnonymousReason records why a request carries no principal.
type AnonymousReason string

const (
	ReasonNone             AnonymousReason = ""                  // authenticated, or filter not yet run
	ReasonNoToken          AnonymousReason = "no_token"          // header absent or not a bearer token
	ReasonMalformed        AnonymousReason = "malformed"         // token did not parse
	ReasonBadSignature     AnonymousReason = "bad_signature"     // signature or algorithm mismatch
	ReasonExpired          AnonymousReason = "expired"           // token past its expiry
	ReasonNotFound         AnonymousReason = "not_found"         // subject no longer exists
	ReasonStoreUnavailable AnonymousReason = "store_unavailable" // identity store failed or timed out
	ReasonReleased         AnonymousReason = "released"          // request already finished
)

// RequestContext binds the outcome of authentication to one request.
// It is created by the Filter and released when the request returns, after
// which it reports anonymous to any reader that still holds it.
type RequestContext struct {
	mu        sync.RWMutex
	principal *Principal
	reason    AnonymousReason
}

// NewRequestContext returns a RequestContext bound to p, or anonymous with
// the given reason when p is nil.
func NewRequestContext(p *Principal, reason AnonymousReason) *RequestContext {
	if p != nil {
		reason = ReasonNone
	} else if reason == ReasonNone {
		reason = ReasonNoToken
	}
	return &RequestContext{principal: p, reason: reason}
}

// Principal returns the bound principal, or nil when anonymous.
func (rc *RequestContext) Principal() *Principal {
	if rc == nil {
		return nil
	}
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.principal
}

// Authenticated reports whether a principal is bound.
func (rc *RequestContext) Authenticated() bool {
	return rc.Principal() != nil
}

// Reason returns why the request is anonymous, or ReasonNone when a
// principal is bound.
func (rc *RequestContext) Reason() AnonymousReason {
	if rc == nil {
		return ReasonNoToken
	}
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.reason
}

// release clears the binding.
func (rc *RequestContext) release() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.principal = nil
	rc.reason = ReasonReleased
}

// requestContextKey is a private type for the context key.
type requestContextKey struct{}

// WithRequestContext stores rc in ctx.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext returns the RequestContext for the request, or nil when the
// Filter has not run.
func FromContext(ctx context.Context) *RequestContext {
	if v, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok {
		return v
	}
	return nil
}

// PrincipalFromContext returns the authenticated principal.
// Returns nil if the request is anonymous.
func PrincipalFromContext(ctx context.Context) *Principal {
	return FromContext(ctx).Principal()
}
