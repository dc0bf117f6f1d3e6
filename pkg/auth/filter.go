package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/polls/pkg/debug"
	"github.com/rhuss/polls/pkg/observability"
)

// Filter authenticates each request exactly once and binds the outcome to a
// RequestContext. It never rejects a request: the decision belongs to
// Authorize.
type Filter struct {
	verifier TokenVerifier
	resolver PrincipalResolver
	now      func() time.Time
	logger   *slog.Logger
}

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// WithClock overrides the time source used for token verification.
func WithClock(now func() time.Time) FilterOption {
	return func(f *Filter) { f.now = now }
}

// WithLogger sets the logger used for resolution failures.
func WithLogger(l *slog.Logger) FilterOption {
	return func(f *Filter) { f.logger = l }
}

// NewFilter creates a Filter.
func NewFilter(verifier TokenVerifier, resolver PrincipalResolver, opts ...FilterOption) *Filter {
	f := &Filter{
		verifier: verifier,
		resolver: resolver,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Middleware wraps next with authentication. The RequestContext is released
// when next returns or panics.
func (f *Filter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Already authenticated further up the chain.
		if FromContext(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}

		rc := f.authenticate(r)
		defer rc.release()

		next.ServeHTTP(w, r.WithContext(WithRequestContext(r.Context(), rc)))
	})
}

// authenticate runs extract, verify and resolve for r.
func (f *Filter) authenticate(r *http.Request) *RequestContext {
	raw, ok := BearerToken(r)
	if !ok {
		observability.TokenVerificationsTotal.WithLabelValues("absent").Inc()
		return NewRequestContext(nil, ReasonNoToken)
	}

	claims, err := f.verifier.Verify(raw, f.now())
	if err != nil {
		reason := tokenReason(err)
		observability.TokenVerificationsTotal.WithLabelValues(string(reason)).Inc()
		debug.Log("auth", "token rejected",
			"reason", reason,
			"path", r.URL.Path,
			"error", err,
		)
		return NewRequestContext(nil, reason)
	}
	observability.TokenVerificationsTotal.WithLabelValues("ok").Inc()

	p, err := f.resolver.Resolve(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			observability.PrincipalResolutionsTotal.WithLabelValues(string(ReasonNotFound)).Inc()
			f.logger.Info("token subject not found",
				"subject", claims.Subject,
				"jti", claims.ID,
				"path", r.URL.Path,
			)
			return NewRequestContext(nil, ReasonNotFound)
		}
		observability.PrincipalResolutionsTotal.WithLabelValues(string(ReasonStoreUnavailable)).Inc()
		f.logger.Error("identity store unavailable, request continues anonymous",
			"subject", claims.Subject,
			"path", r.URL.Path,
			"error", err,
		)
		return NewRequestContext(nil, ReasonStoreUnavailable)
	}
	observability.PrincipalResolutionsTotal.WithLabelValues("ok").Inc()

	debug.Log("auth", "principal bound",
		"subject", p.ID,
		"username", p.Username,
		"path", r.URL.Path,
	)
	return NewRequestContext(p, ReasonNone)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive; the token must be non-empty and
// contain no whitespace.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

func tokenReason(err error) AnonymousReason {
	switch {
	case errors.Is(err, ErrExpired):
		return ReasonExpired
	case errors.Is(err, ErrBadSignature):
		return ReasonBadSignature
	default:
		return ReasonMalformed
	}
}
