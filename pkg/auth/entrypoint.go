package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/rhuss/polls/pkg/api"
	"github.com/rhuss/polls/pkg/observability"
	"github.com/rhuss/polls/pkg/transport"
)

// EntryPoint converts access errors into the uniform error response and
// terminates the request.
type EntryPoint struct {
	logger       *slog.Logger
	exposeExpiry bool
}

// EntryPointOption configures an EntryPoint.
type EntryPointOption func(*EntryPoint)

// WithEntryPointLogger sets the logger for denials.
func WithEntryPointLogger(l *slog.Logger) EntryPointOption {
	return func(e *EntryPoint) { e.logger = l }
}

// WithExpiryReason controls whether a denial caused by an expired token
// carries the token_expired reason code instead of unauthenticated. The
// status code is 401 either way.
func WithExpiryReason(expose bool) EntryPointOption {
	return func(e *EntryPoint) { e.exposeExpiry = expose }
}

// NewEntryPoint creates an EntryPoint. Expired-token denials report
// token_expired unless disabled with WithExpiryReason(false).
func NewEntryPoint(opts ...EntryPointOption) *EntryPoint {
	e := &EntryPoint{logger: slog.Default(), exposeExpiry: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Commence writes the error response for err. Nothing else may be written to
// w afterwards.
func (e *EntryPoint) Commence(w http.ResponseWriter, r *http.Request, err *AccessError) {
	apiErr := e.toAPIError(err)

	observability.AccessDeniedTotal.WithLabelValues(string(apiErr.ReasonCode)).Inc()
	e.logger.Warn("access denied",
		"path", r.URL.Path,
		"method", r.Method,
		"status", apiErr.Status,
		"reason", apiErr.ReasonCode,
		"anonymous_reason", err.Anonymous,
		"remote_addr", r.RemoteAddr,
		"request_id", transport.RequestIDFromContext(r.Context()),
	)

	if apiErr.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="polls"`)
	}
	transport.WriteAPIError(w, apiErr)
}

// RequirePrincipal returns the request's principal. When the request is
// anonymous it commences an unauthenticated response and returns false;
// handlers must return immediately in that case.
func (e *EntryPoint) RequirePrincipal(w http.ResponseWriter, r *http.Request) (*Principal, bool) {
	rc := FromContext(r.Context())
	if p := rc.Principal(); p != nil {
		return p, true
	}
	e.Commence(w, r, unauthenticated(rc.Reason()))
	return nil, false
}

func (e *EntryPoint) toAPIError(err *AccessError) *api.APIError {
	if errors.Is(err, ErrForbidden) {
		return api.NewForbiddenError("You don't have permission to access this resource")
	}
	if e.exposeExpiry && err.Anonymous == ReasonExpired {
		return api.NewUnauthorizedError(api.ReasonTokenExpired, "Access token has expired")
	}
	return api.NewUnauthorizedError(api.ReasonUnauthenticated, "Full authentication is required to access this resource")
}
