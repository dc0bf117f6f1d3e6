package auth

import (
	"sort"
	"strings"
	"time"
)

// Principal is the resolved identity of a request's caller.
// It is built once per request and never mutated afterwards.
type Principal struct {
	// ID is the stored user id; it is also the token subject.
	ID string

	Username string
	Name     string

	authorities map[string]struct{}
}

// NewPrincipal builds a Principal. Authorities are normalized so that
// "ADMIN" and "ROLE_ADMIN" name the same role.
func NewPrincipal(id, username, name string, authorities []string) *Principal {
	set := make(map[string]struct{}, len(authorities))
	for _, a := range authorities {
		if n := normalizeRole(a); n != "" {
			set[n] = struct{}{}
		}
	}
	return &Principal{ID: id, Username: username, Name: name, authorities: set}
}

// HasAuthority reports whether the principal holds the role.
func (p *Principal) HasAuthority(role string) bool {
	if p == nil {
		return false
	}
	_, ok := p.authorities[normalizeRole(role)]
	return ok
}

// Authorities returns the normalized roles in sorted order.
func (p *Principal) Authorities() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.authorities))
	for a := range p.authorities {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func normalizeRole(role string) string {
	role = strings.ToUpper(strings.TrimSpace(role))
	return strings.TrimPrefix(role, "ROLE_")
}

// Claims is the verified content of a token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time

	// ID is the unique token id (jti). Used for log correlation only; there
	// is no revocation list.
	ID string

	Issuer string
}

// TokenVerifier decodes and verifies a token string at the given instant.
// Failures are returned as *TokenError.
type TokenVerifier interface {
	Verify(token string, now time.Time) (*Claims, error)
}
