package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/polls/pkg/debug"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, POLLS_CONFIG env, ./config.yaml, /etc/polls/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log("config", "config file loaded", "path", filePath)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. POLLS_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/polls/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("POLLS_CONFIG"); envPath != "" {
		return envPath
	}

	for _, path := range []string{"config.yaml", "/etc/polls/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
// Unknown keys are rejected so that a misspelled rule never silently
// disappears from the policy.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides maps POLLS_* environment variables to config fields.
// Malformed numeric and duration values are errors rather than being
// ignored.
func applyEnvOverrides(cfg *Config) error {
	var err error
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if err != nil {
			return
		}
		if v := os.Getenv(name); v != "" {
			n, convErr := strconv.Atoi(v)
			if convErr != nil {
				err = fmt.Errorf("%s: %w", name, convErr)
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if err != nil {
			return
		}
		if v := os.Getenv(name); v != "" {
			d, parseErr := time.ParseDuration(v)
			if parseErr != nil {
				err = fmt.Errorf("%s: %w", name, parseErr)
				return
			}
			*dst = d
		}
	}

	num("POLLS_PORT", &cfg.Server.Port)
	str("POLLS_STORAGE", &cfg.Storage.Type)
	str("POLLS_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	str("POLLS_TOKEN_ALGORITHM", &cfg.Auth.Token.Algorithm)
	str("POLLS_TOKEN_SECRET", &cfg.Auth.Token.Secret)
	str("POLLS_TOKEN_SECRET_FILE", &cfg.Auth.Token.SecretFile)
	str("POLLS_TOKEN_PRIVATE_KEY_FILE", &cfg.Auth.Token.PrivateKeyFile)
	str("POLLS_TOKEN_ISSUER", &cfg.Auth.Token.Issuer)
	dur("POLLS_TOKEN_TTL", &cfg.Auth.Token.TTL)
	dur("POLLS_LOOKUP_TIMEOUT", &cfg.Auth.LookupTimeout)
	num("POLLS_SIGNIN_RATE_LIMIT", &cfg.Auth.SigninRateLimit)
	str("POLLS_LOG_FORMAT", &cfg.Logging.Format)
	if err != nil {
		return err
	}

	if v := os.Getenv("POLLS_EXPOSE_EXPIRY_REASON"); v != "" {
		b, parseErr := strconv.ParseBool(v)
		if parseErr != nil {
			return fmt.Errorf("POLLS_EXPOSE_EXPIRY_REASON: %w", parseErr)
		}
		cfg.Auth.ExposeExpiryReason = b
	}

	if v := os.Getenv("POLLS_CORS_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = splitList(v)
	}

	// POLLS_RULES: JSON array of rule configs.
	if v := os.Getenv("POLLS_RULES"); v != "" {
		rules, parseErr := parseRulesJSON(v)
		if parseErr != nil {
			return parseErr
		}
		cfg.Auth.Rules = rules
	}

	return nil
}

// parseRulesJSON parses a JSON array of rule configurations.
func parseRulesJSON(jsonStr string) ([]RuleConfig, error) {
	var rules []RuleConfig
	if err := json.Unmarshal([]byte(jsonStr), &rules); err != nil {
		return nil, fmt.Errorf("parsing POLLS_RULES JSON: %w", err)
	}
	return rules, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		name  string
		file  string
		value *string
	}{
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"auth.token.secret_file", cfg.Auth.Token.SecretFile, &cfg.Auth.Token.Secret},
		{"auth.token.private_key_file", cfg.Auth.Token.PrivateKeyFile, &cfg.Auth.Token.PrivateKey},
	}
	for i := range cfg.Auth.SeedUsers {
		u := &cfg.Auth.SeedUsers[i]
		refs = append(refs, struct {
			name  string
			file  string
			value *string
		}{fmt.Sprintf("auth.seed_users[%d].password_hash_file", i), u.PasswordHashFile, &u.PasswordHash})
	}

	for _, ref := range refs {
		if ref.file == "" || *ref.value != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.value = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
