package auth

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/rhuss/polls/pkg/observability"
	"github.com/rhuss/polls/pkg/storage"
)

// PrincipalResolver turns a verified token subject into a Principal.
// Failures are returned as *ResolveError.
type PrincipalResolver interface {
	Resolve(ctx context.Context, subject string) (*Principal, error)
}

// DefaultLookupTimeout bounds a single identity store lookup.
const DefaultLookupTimeout = 2 * time.Second

// Resolver resolves subjects against a storage.UserLookup.
type Resolver struct {
	users   storage.UserLookup
	timeout time.Duration
	cache   *expirable.LRU[string, *Principal]
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLookupTimeout sets the per-lookup deadline. Zero or negative disables it,
// leaving only the request's own deadline.
func WithLookupTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.timeout = d }
}

// WithCache keeps resolved principals for ttl. The ttl must not exceed the
// identity store's consistency window; a deleted user keeps resolving until
// the entry expires. Size or ttl <= 0 disables caching.
func WithCache(size int, ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if size <= 0 || ttl <= 0 {
			r.cache = nil
			return
		}
		r.cache = expirable.NewLRU[string, *Principal](size, nil, ttl)
	}
}

// NewResolver creates a Resolver backed by users.
func NewResolver(users storage.UserLookup, opts ...ResolverOption) *Resolver {
	r := &Resolver{users: users, timeout: DefaultLookupTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks up subject. storage.ErrNotFound becomes ErrNotFound; any
// other failure, including a timeout or cancellation, becomes
// ErrStoreUnavailable.
func (r *Resolver) Resolve(ctx context.Context, subject string) (*Principal, error) {
	if r.cache != nil {
		if p, ok := r.cache.Get(subject); ok {
			return p, nil
		}
	}

	lookupCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	u, err := r.users.GetUser(lookupCtx, subject)
	observability.PrincipalLookupDuration.Observe(time.Since(start).Seconds())
	if err == nil && lookupCtx.Err() != nil {
		// The store answered after the deadline; treat it like a timeout.
		err = lookupCtx.Err()
	}
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		return nil, &ResolveError{Kind: ErrNotFound, Subject: subject}
	default:
		return nil, &ResolveError{Kind: ErrStoreUnavailable, Subject: subject, Err: err}
	}

	p := NewPrincipal(u.ID, u.Username, u.Name, u.Roles)
	if r.cache != nil {
		r.cache.Add(subject, p)
	}
	return p, nil
}
