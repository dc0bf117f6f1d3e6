package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/rhuss/polls/pkg/api"
	"github.com/rhuss/polls/pkg/auth"
	"github.com/rhuss/polls/pkg/observability"
	"github.com/rhuss/polls/pkg/storage"
	"github.com/rhuss/polls/pkg/transport"
)

// DefaultRole is granted to every user created through signup.
const DefaultRole = "USER"

// TokenIssuer signs access tokens for authenticated principals.
type TokenIssuer interface {
	Issue(p *auth.Principal, now time.Time) (string, *auth.Claims, error)
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64

	// MetricsPath serves Prometheus metrics when non-empty.
	MetricsPath string

	// ReadyTimeout bounds the store ping behind /readyz.
	ReadyTimeout time.Duration

	// Downstream receives every request that matches no built-in route,
	// after the access policy allowed it. Nil answers with a JSON 404.
	Downstream http.Handler
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize:  transport.DefaultMaxBodySize,
		MetricsPath:  "/metrics",
		ReadyTimeout: 2 * time.Second,
	}
}

// Adapter serves the polls authentication and user API over HTTP.
type Adapter struct {
	users   storage.UserStore
	tokens  TokenIssuer
	entry   *auth.EntryPoint
	limiter auth.RateLimiter
	now     func() time.Time
	logger  *slog.Logger
	mux     *http.ServeMux
	config  Config

	// dummyHash keeps signin timing uniform for unknown logins.
	dummyHash []byte
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithSigninLimiter guards POST /api/auth/signin, keyed by client address.
func WithSigninLimiter(l auth.RateLimiter) AdapterOption {
	return func(a *Adapter) { a.limiter = l }
}

// WithAdapterClock overrides the time source used when issuing tokens.
func WithAdapterClock(now func() time.Time) AdapterOption {
	return func(a *Adapter) { a.now = now }
}

// WithAdapterLogger sets the logger for handler failures.
func WithAdapterLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = l }
}

// NewAdapter creates an HTTP adapter. The entry point answers handlers that
// need a principal the request does not carry.
func NewAdapter(users storage.UserStore, tokens TokenIssuer, entry *auth.EntryPoint, cfg Config, opts ...AdapterOption) *Adapter {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = transport.DefaultMaxBodySize
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 2 * time.Second
	}

	a := &Adapter{
		users:  users,
		tokens: tokens,
		entry:  entry,
		now:    time.Now,
		logger: slog.Default(),
		mux:    http.NewServeMux(),
		config: cfg,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("polls-dummy-password"), bcrypt.DefaultCost)

	a.mux.HandleFunc("POST /api/auth/signin", a.handleSignIn)
	a.mux.HandleFunc("POST /api/auth/signup", a.handleSignUp)
	a.mux.HandleFunc("GET /api/user/checkUsernameAvailability", a.handleUsernameAvailability)
	a.mux.HandleFunc("GET /api/user/checkEmailAvailability", a.handleEmailAvailability)
	a.mux.HandleFunc("GET /api/user/me", a.handleCurrentUser)
	a.mux.HandleFunc("GET /api/users/{username}", a.handleUserProfile)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)
	a.mux.HandleFunc("GET /readyz", a.handleReady)
	if cfg.MetricsPath != "" {
		a.mux.Handle("GET "+cfg.MetricsPath, promhttp.Handler())
	}
	a.mux.Handle("/", a.downstream())

	return a
}

// Handler returns the routing handler. Authentication and the access policy
// are applied around it by the server.
func (a *Adapter) Handler() http.Handler {
	return a.mux
}

func (a *Adapter) downstream() http.Handler {
	if a.config.Downstream != nil {
		return a.config.Downstream
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteAPIError(w, api.NewNotFoundError("no route for "+r.Method+" "+r.URL.Path))
	})
}

// handleSignIn handles POST /api/auth/signin.
func (a *Adapter) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if a.limiter != nil {
		if err := a.limiter.Allow(r.Context(), clientAddr(r)); err != nil {
			observability.RateLimitRejectedTotal.WithLabelValues("signin").Inc()
			w.Header().Set("Retry-After", "60")
			transport.WriteAPIError(w, api.NewTooManyRequestsError("Too many signin attempts, try again later"))
			return
		}
	}

	var req api.SignInRequest
	if apiErr := transport.DecodeJSON(w, r, a.config.MaxBodySize, &req); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	if apiErr := api.ValidateSignIn(&req); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	u, err := a.users.GetUserByLogin(r.Context(), strings.TrimSpace(req.UsernameOrEmail))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			bcrypt.CompareHashAndPassword(a.dummyHash, []byte(req.Password))
			transport.WriteAPIError(w, api.NewBadCredentialsError())
			return
		}
		a.serverError(w, r, "signin lookup failed", err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		transport.WriteAPIError(w, api.NewBadCredentialsError())
		return
	}

	token, claims, err := a.tokens.Issue(auth.NewPrincipal(u.ID, u.Username, u.Name, u.Roles), a.now())
	if err != nil {
		a.serverError(w, r, "token issue failed", err)
		return
	}
	observability.TokensIssuedTotal.Inc()
	a.logger.Info("user signed in", "user_id", u.ID, "jti", claims.ID)

	transport.WriteJSON(w, http.StatusOK, api.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   claims.ExpiresAt.UTC(),
	})
}

// handleSignUp handles POST /api/auth/signup.
func (a *Adapter) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req api.SignUpRequest
	if apiErr := transport.DecodeJSON(w, r, a.config.MaxBodySize, &req); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if apiErr := api.ValidateSignUp(&req); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.serverError(w, r, "password hashing failed", err)
		return
	}

	u := &storage.User{
		Name:         req.Name,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Roles:        []string{DefaultRole},
	}
	if err := a.users.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			transport.WriteAPIError(w, api.NewConflictError("Username or email address is already in use"))
			return
		}
		a.serverError(w, r, "user creation failed", err)
		return
	}
	a.logger.Info("user registered", "user_id", u.ID, "username", u.Username)

	w.Header().Set("Location", "/api/users/"+u.Username)
	transport.WriteJSON(w, http.StatusCreated, api.StatusResponse{
		Success: true,
		Message: "User registered successfully",
	})
}

// handleUsernameAvailability handles GET /api/user/checkUsernameAvailability.
func (a *Adapter) handleUsernameAvailability(w http.ResponseWriter, r *http.Request) {
	a.availability(w, r, "username", a.users.UsernameExists)
}

// handleEmailAvailability handles GET /api/user/checkEmailAvailability.
func (a *Adapter) handleEmailAvailability(w http.ResponseWriter, r *http.Request) {
	a.availability(w, r, "email", a.users.EmailExists)
}

func (a *Adapter) availability(w http.ResponseWriter, r *http.Request, param string, exists func(context.Context, string) (bool, error)) {
	value := strings.TrimSpace(r.URL.Query().Get(param))
	if value == "" {
		transport.WriteAPIError(w, api.NewInvalidRequestError(param, param+" query parameter is required"))
		return
	}
	taken, err := exists(r.Context(), value)
	if err != nil {
		a.serverError(w, r, param+" availability check failed", err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, api.AvailabilityResponse{Available: !taken})
}

// handleCurrentUser handles GET /api/user/me.
func (a *Adapter) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	p, ok := a.entry.RequirePrincipal(w, r)
	if !ok {
		return
	}
	transport.WriteJSON(w, http.StatusOK, api.UserSummary{
		ID:          p.ID,
		Username:    p.Username,
		Name:        p.Name,
		Authorities: p.Authorities(),
	})
}

// handleUserProfile handles GET /api/users/{username}.
func (a *Adapter) handleUserProfile(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	u, err := a.users.GetUserByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			transport.WriteAPIError(w, api.NewNotFoundError("User "+username+" not found"))
			return
		}
		a.serverError(w, r, "profile lookup failed", err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, api.UserProfile{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Name,
		JoinedAt: u.CreatedAt.UTC(),
	})
}

// handleHealth handles GET /healthz.
func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady handles GET /readyz.
func (a *Adapter) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), a.config.ReadyTimeout)
	defer cancel()

	if err := a.users.HealthCheck(ctx); err != nil {
		a.logger.Warn("readiness check failed", "error", err)
		apiErr := api.NewServerError("identity store unavailable")
		apiErr.Status = http.StatusServiceUnavailable
		apiErr.Title = http.StatusText(http.StatusServiceUnavailable)
		transport.WriteAPIError(w, apiErr)
		return
	}
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// serverError logs err and writes a generic 500.
func (a *Adapter) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	a.logger.Error(msg,
		"error", err,
		"path", r.URL.Path,
		"request_id", transport.RequestIDFromContext(r.Context()),
	)
	transport.WriteAPIError(w, api.NewServerError("Internal server error"))
}

// clientAddr returns the host part of the peer address.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
