// Package jwt issues and verifies the signed access tokens carried in
// "Authorization: Bearer" headers.
//
// A Codec is pinned to one signing algorithm: HMAC (HS256, HS384, HS512)
// with a shared secret, or RSA (RS256, RS384, RS512) with a PEM private key
// whose public half verifies. Tokens carry exactly sub, iat and exp, plus
// jti and iss when issued by this package. Anything else is rejected.
package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rhuss/polls/pkg/auth"
	"github.com/rhuss/polls/pkg/debug"
)

// DefaultTTL is the token lifetime when Config.TTL is zero.
const DefaultTTL = 7 * 24 * time.Hour

const minRSABits = 2048

// Config holds the codec configuration.
type Config struct {
	// Algorithm is the pinned signing algorithm. Default: HS256.
	Algorithm string

	// Secret is the HMAC key. It must be at least as long as the hash
	// output (32, 48 or 64 bytes).
	Secret []byte

	// PrivateKeyPEM is the RSA private key for RS* algorithms.
	PrivateKeyPEM []byte

	// Issuer is written to and required in the iss claim. Empty disables it.
	Issuer string

	// TTL is the lifetime of issued tokens. Default: 7 days.
	TTL time.Duration
}

// Codec issues and verifies tokens. It is immutable after construction and
// safe for concurrent use.
type Codec struct {
	method    jwtlib.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	ttl       time.Duration
}

var _ auth.TokenVerifier = (*Codec)(nil)

// claim names accepted in a token payload.
var knownClaims = map[string]bool{"sub": true, "iat": true, "exp": true, "iss": true, "jti": true}

// NewCodec validates cfg and builds a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "HS256"
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", cfg.TTL)
	}

	c := &Codec{issuer: cfg.Issuer, ttl: cfg.TTL}

	switch cfg.Algorithm {
	case "HS256", "HS384", "HS512":
		m := jwtlib.GetSigningMethod(cfg.Algorithm).(*jwtlib.SigningMethodHMAC)
		if minLen := m.Hash.Size(); len(cfg.Secret) < minLen {
			return nil, fmt.Errorf("%s secret must be at least %d bytes, got %d", cfg.Algorithm, minLen, len(cfg.Secret))
		}
		c.method = m
		c.signKey = cfg.Secret
		c.verifyKey = cfg.Secret
	case "RS256", "RS384", "RS512":
		if len(cfg.PrivateKeyPEM) == 0 {
			return nil, fmt.Errorf("%s requires a private key", cfg.Algorithm)
		}
		key, err := jwtlib.ParseRSAPrivateKeyFromPEM(cfg.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parsing RSA private key: %w", err)
		}
		if key.N.BitLen() < minRSABits {
			return nil, fmt.Errorf("RSA key must be at least %d bits, got %d", minRSABits, key.N.BitLen())
		}
		c.method = jwtlib.GetSigningMethod(cfg.Algorithm)
		c.signKey = key
		c.verifyKey = &key.PublicKey
	default:
		return nil, fmt.Errorf("unsupported token algorithm %q", cfg.Algorithm)
	}

	return c, nil
}

// Algorithm returns the pinned algorithm name.
func (c *Codec) Algorithm() string { return c.method.Alg() }

// TTL returns the lifetime of issued tokens.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue signs a token for p valid from now until now+TTL. Timestamps are
// truncated to whole seconds.
func (c *Codec) Issue(p *auth.Principal, now time.Time) (string, *auth.Claims, error) {
	if p == nil || p.ID == "" {
		return "", nil, errors.New("cannot issue token without a subject")
	}

	iat := now.Truncate(time.Second)
	claims := &auth.Claims{
		Subject:   p.ID,
		IssuedAt:  iat,
		ExpiresAt: iat.Add(c.ttl),
		ID:        uuid.NewString(),
		Issuer:    c.issuer,
	}

	mc := jwtlib.MapClaims{
		"sub": claims.Subject,
		"iat": claims.IssuedAt.Unix(),
		"exp": claims.ExpiresAt.Unix(),
		"jti": claims.ID,
	}
	if c.issuer != "" {
		mc["iss"] = c.issuer
	}

	signed, err := jwtlib.NewWithClaims(c.method, mc).SignedString(c.signKey)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}

	debug.Log("token", "token issued", "subject", claims.Subject, "jti", claims.ID, "exp", claims.ExpiresAt)
	return signed, claims, nil
}

// Verify checks token at instant now. Failures are *auth.TokenError:
//   - ErrMalformed: not three segments, bad encoding, bad JSON, unknown or
//     missing claims, wrong claim types, wrong issuer, iat in the future
//   - ErrBadSignature: signature mismatch, undecodable signature, or an
//     algorithm other than the pinned one (including "none")
//   - ErrExpired: now >= exp
func (c *Codec) Verify(token string, now time.Time) (*auth.Claims, error) {
	parser := c.parser(now)

	// Structure and claim set first, so that claim problems are never
	// reported as signature problems.
	raw := jwtlib.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, raw); err != nil {
		if errors.Is(err, jwtlib.ErrTokenUnverifiable) {
			return nil, auth.NewTokenError(auth.ErrBadSignature, err)
		}
		return nil, auth.NewTokenError(auth.ErrMalformed, err)
	}
	if err := checkClaimSet(raw); err != nil {
		return nil, auth.NewTokenError(auth.ErrMalformed, err)
	}

	mc := jwtlib.MapClaims{}
	_, err := parser.ParseWithClaims(token, mc, func(*jwtlib.Token) (any, error) {
		return c.verifyKey, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	return toClaims(mc), nil
}

func (c *Codec) parser(now time.Time) *jwtlib.Parser {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{c.method.Alg()}),
		jwtlib.WithStrictDecoding(),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithIssuedAt(),
		jwtlib.WithTimeFunc(func() time.Time { return now }),
	}
	if c.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(c.issuer))
	}
	return jwtlib.NewParser(opts...)
}

// classify maps a verifying parse error onto a token error kind. The
// header and payload already decoded cleanly, so a malformed error here
// can only come from the signature segment.
func classify(err error) *auth.TokenError {
	switch {
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return auth.NewTokenError(auth.ErrExpired, err)
	case errors.Is(err, jwtlib.ErrTokenSignatureInvalid),
		errors.Is(err, jwtlib.ErrTokenUnverifiable),
		errors.Is(err, jwtlib.ErrTokenMalformed):
		return auth.NewTokenError(auth.ErrBadSignature, err)
	default:
		return auth.NewTokenError(auth.ErrMalformed, err)
	}
}

func checkClaimSet(mc jwtlib.MapClaims) error {
	for k := range mc {
		if !knownClaims[k] {
			return fmt.Errorf("unexpected claim %q", k)
		}
	}
	sub, ok := mc["sub"].(string)
	if !ok || sub == "" {
		return errors.New("sub claim must be a non-empty string")
	}
	for _, k := range []string{"iat", "exp"} {
		if _, ok := mc[k].(float64); !ok {
			return fmt.Errorf("%s claim must be a number", k)
		}
	}
	for _, k := range []string{"iss", "jti"} {
		if v, present := mc[k]; present {
			if _, ok := v.(string); !ok {
				return fmt.Errorf("%s claim must be a string", k)
			}
		}
	}
	return nil
}

func toClaims(mc jwtlib.MapClaims) *auth.Claims {
	claims := &auth.Claims{}
	claims.Subject, _ = mc.GetSubject()
	claims.Issuer, _ = mc.GetIssuer()
	if iat, _ := mc.GetIssuedAt(); iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, _ := mc.GetExpirationTime(); exp != nil {
		claims.ExpiresAt = exp.Time
	}
	claims.ID, _ = mc["jti"].(string)
	return claims
}
