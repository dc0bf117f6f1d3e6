// Package config provides unified configuration for the polls server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (POLLS_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the polls server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	CORS          CORSConfig          `yaml:"cors"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 15s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 1 MiB
}

// StorageConfig holds identity store settings.
type StorageConfig struct {
	Type     string         `yaml:"type"` // "memory" or "postgres", default: "memory"
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds token, resolution and access policy settings.
type AuthConfig struct {
	Token TokenConfig `yaml:"token"`

	// LookupTimeout bounds one identity store lookup. Default: 2s.
	LookupTimeout time.Duration `yaml:"lookup_timeout"`

	PrincipalCache CacheConfig `yaml:"principal_cache"`

	// ExposeExpiryReason reports reasonCode "token_expired" instead of
	// "unauthenticated" when a protected route is denied because the
	// presented token expired. Default: true.
	ExposeExpiryReason bool `yaml:"expose_expiry_reason"`

	// SigninRateLimit is the number of signin attempts allowed per client
	// address per minute. Zero disables limiting. Default: 10.
	SigninRateLimit int `yaml:"signin_rate_limit"`

	// Rules is the ordered access policy. Empty means the built-in rules.
	Rules []RuleConfig `yaml:"rules"`

	// SeedUsers are created at startup when their username is free.
	SeedUsers []SeedUserConfig `yaml:"seed_users"`
}

// TokenConfig holds access token settings.
type TokenConfig struct {
	Algorithm      string        `yaml:"algorithm"` // HS256|HS384|HS512|RS256|RS384|RS512, default: HS256
	Secret         string        `yaml:"secret"`
	SecretFile     string        `yaml:"secret_file"` // _file variant for secret
	PrivateKey     string        `yaml:"private_key"` // PEM
	PrivateKeyFile string        `yaml:"private_key_file"`
	Issuer         string        `yaml:"issuer"`
	TTL            time.Duration `yaml:"ttl"` // default: 168h
}

// CacheConfig holds principal cache settings. A zero Size or TTL disables
// the cache.
type CacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// RuleConfig describes one access rule.
type RuleConfig struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Method  string `yaml:"method" json:"method"` // empty matches any method
	Access  string `yaml:"access" json:"access"` // "public", "authenticated" or "role"
	Role    string `yaml:"role" json:"role"`     // required when access is "role"
}

// SeedUserConfig describes a user created at startup. PasswordHash is a
// bcrypt hash; plain passwords are never read from config.
type SeedUserConfig struct {
	Name             string   `yaml:"name"`
	Username         string   `yaml:"username"`
	Email            string   `yaml:"email"`
	PasswordHash     string   `yaml:"password_hash"`
	PasswordHashFile string   `yaml:"password_hash_file"`
	Roles            []string `yaml:"roles"`
}

// CORSConfig holds cross-origin settings for browser clients.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"` // default: http://localhost:3000
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"` // seconds, default: 3600
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// LoggingConfig holds log output settings. POLLS_LOG_LEVEL and POLLS_DEBUG
// take precedence.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // ERROR|WARN|INFO|DEBUG|TRACE, default: INFO
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     1 << 20,
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Token: TokenConfig{
				Algorithm: "HS256",
				TTL:       7 * 24 * time.Hour,
			},
			LookupTimeout:      2 * time.Second,
			ExposeExpiryReason: true,
			SigninRateLimit:    10,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			AllowedMethods: []string{"HEAD", "OPTIONS", "GET", "POST", "PUT", "PATCH", "DELETE"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
			MaxAge:         3600,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}
