package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rhuss/polls/pkg/auth"
	authjwt "github.com/rhuss/polls/pkg/auth/jwt"
	"github.com/rhuss/polls/pkg/transport"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with a descriptive field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize))
	}

	switch c.Storage.Type {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}
	if c.Storage.Type == "postgres" && c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
		errs = append(errs, errors.New("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
	}

	// The codec performs the algorithm and key material checks.
	if _, err := authjwt.NewCodec(c.Auth.Token.CodecConfig()); err != nil {
		errs = append(errs, fmt.Errorf("auth.token: %w", err))
	}
	if c.Auth.LookupTimeout < 0 {
		errs = append(errs, fmt.Errorf("auth.lookup_timeout must be >= 0, got %s", c.Auth.LookupTimeout))
	}
	if c.Auth.PrincipalCache.Size < 0 || c.Auth.PrincipalCache.TTL < 0 {
		errs = append(errs, errors.New("auth.principal_cache size and ttl must be >= 0"))
	}
	if c.Auth.SigninRateLimit < 0 {
		errs = append(errs, fmt.Errorf("auth.signin_rate_limit must be >= 0, got %d", c.Auth.SigninRateLimit))
	}
	if _, err := c.Auth.PolicyRules(); err != nil {
		errs = append(errs, fmt.Errorf("auth.rules: %w", err))
	}
	for i, u := range c.Auth.SeedUsers {
		if u.Username == "" || u.Email == "" || u.PasswordHash == "" {
			errs = append(errs, fmt.Errorf("auth.seed_users[%d]: username, email and password_hash are required", i))
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with /, got %q", c.Observability.Metrics.Path))
	}

	return errors.Join(errs...)
}

// CodecConfig converts the token settings for the token codec.
func (t TokenConfig) CodecConfig() authjwt.Config {
	return authjwt.Config{
		Algorithm:     t.Algorithm,
		Secret:        []byte(t.Secret),
		PrivateKeyPEM: []byte(t.PrivateKey),
		Issuer:        t.Issuer,
		TTL:           t.TTL,
	}
}

// PolicyRules converts the configured rules, falling back to the built-in
// rule table when none are configured. The result has been validated by
// auth.NewPolicy.
func (a AuthConfig) PolicyRules() ([]auth.Rule, error) {
	if len(a.Rules) == 0 {
		return auth.DefaultRules(), nil
	}

	var errs []error
	rules := make([]auth.Rule, 0, len(a.Rules))
	for i, rc := range a.Rules {
		req, err := rc.requirement()
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %d: %w", i, err))
			continue
		}
		if m := strings.ToUpper(rc.Method); m != "" && m != "*" && !knownMethod(m) {
			errs = append(errs, fmt.Errorf("rule %d: unknown method %q", i, rc.Method))
			continue
		}
		rules = append(rules, auth.Rule{Pattern: rc.Pattern, Method: rc.Method, Requirement: req})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if _, err := auth.NewPolicy(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (rc RuleConfig) requirement() (auth.Requirement, error) {
	switch strings.ToLower(strings.TrimSpace(rc.Access)) {
	case "public", "permit_all":
		return auth.PermitAll(), nil
	case "authenticated", "":
		return auth.Authenticated(), nil
	case "role":
		if strings.TrimSpace(rc.Role) == "" {
			return auth.Requirement{}, errors.New("access \"role\" requires role")
		}
		return auth.HasRole(rc.Role), nil
	default:
		return auth.Requirement{}, fmt.Errorf("unknown access %q", rc.Access)
	}
}

func knownMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

// Transport converts the CORS settings for the transport middleware. Empty
// method and header lists take the transport defaults so that browsers may
// send the Authorization header.
func (c CORSConfig) Transport() transport.CORSConfig {
	out := transport.DefaultCORSConfig()
	out.AllowedOrigins = c.AllowedOrigins
	if len(c.AllowedMethods) > 0 {
		out.AllowedMethods = c.AllowedMethods
	}
	if len(c.AllowedHeaders) > 0 {
		out.AllowedHeaders = c.AllowedHeaders
	}
	out.MaxAge = c.MaxAge
	return out
}
