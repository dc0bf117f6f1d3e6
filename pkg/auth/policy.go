package auth

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// RequirementKind is the access level a rule demands.
type RequirementKind int

const (
	// RequireAuthenticated allows any bound principal. It is the default
	// when no rule matches.
	RequireAuthenticated RequirementKind = iota

	// RequirePublic allows every request, anonymous or not.
	RequirePublic

	// RequireRole allows principals holding a specific role.
	RequireRole
)

func (k RequirementKind) String() string {
	switch k {
	case RequirePublic:
		return "public"
	case RequireRole:
		return "role"
	default:
		return "authenticated"
	}
}

// Requirement is what a matched rule demands of the caller.
type Requirement struct {
	Kind RequirementKind
	Role string // only for RequireRole
}

// PermitAll allows every request.
func PermitAll() Requirement { return Requirement{Kind: RequirePublic} }

// Authenticated allows any authenticated principal.
func Authenticated() Requirement { return Requirement{Kind: RequireAuthenticated} }

// HasRole allows principals holding role.
func HasRole(role string) Requirement { return Requirement{Kind: RequireRole, Role: role} }

// Rule maps a path pattern and method to a requirement.
//
// Pattern uses Ant-style globs: "*" matches one path segment, "**" any number
// of segments, and a trailing "/**" also matches the prefix itself, so
// "/api/polls/**" matches "/api/polls". Method is an HTTP method, or empty or
// "*" for any method.
type Rule struct {
	Pattern     string
	Method      string
	Requirement Requirement
}

// Decision is the outcome of Policy.Decide.
type Decision struct {
	Allowed bool

	// Rule is the matched rule, or nil when the default applied.
	Rule *Rule

	// Err explains a denial; nil when allowed.
	Err *AccessError
}

// Policy is an immutable, ordered rule table. It is safe for concurrent use.
type Policy struct {
	rules []Rule
}

// NewPolicy validates and copies rules.
func NewPolicy(rules []Rule) (*Policy, error) {
	var errs []error
	compiled := make([]Rule, 0, len(rules))
	for i, rule := range rules {
		if !strings.HasPrefix(rule.Pattern, "/") {
			errs = append(errs, fmt.Errorf("rule %d: pattern %q must start with /", i, rule.Pattern))
			continue
		}
		if !doublestar.ValidatePattern(rule.Pattern) {
			errs = append(errs, fmt.Errorf("rule %d: invalid pattern %q", i, rule.Pattern))
			continue
		}
		if rule.Requirement.Kind == RequireRole && normalizeRole(rule.Requirement.Role) == "" {
			errs = append(errs, fmt.Errorf("rule %d: role requirement without a role", i))
			continue
		}
		rule.Method = strings.ToUpper(strings.TrimSpace(rule.Method))
		if rule.Method == "*" {
			rule.Method = ""
		}
		compiled = append(compiled, rule)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Policy{rules: compiled}, nil
}

// Rules returns a copy of the rule table.
func (p *Policy) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

// Decide evaluates the rules in order for the request path and method. The
// first matching rule governs; with no match the request must be
// authenticated.
func (p *Policy) Decide(requestPath, method string, rc *RequestContext) Decision {
	cleaned := cleanPath(requestPath)
	method = strings.ToUpper(method)

	req := Authenticated()
	var matched *Rule
	for i := range p.rules {
		if p.rules[i].matches(cleaned, method) {
			matched = &p.rules[i]
			req = matched.Requirement
			break
		}
	}

	principal := rc.Principal()
	switch req.Kind {
	case RequirePublic:
		return Decision{Allowed: true, Rule: matched}
	case RequireRole:
		if principal == nil {
			return Decision{Rule: matched, Err: unauthenticated(rc.Reason())}
		}
		if !principal.HasAuthority(req.Role) {
			return Decision{Rule: matched, Err: forbidden()}
		}
		return Decision{Allowed: true, Rule: matched}
	default:
		if principal == nil {
			return Decision{Rule: matched, Err: unauthenticated(rc.Reason())}
		}
		return Decision{Allowed: true, Rule: matched}
	}
}

func (r *Rule) matches(p, method string) bool {
	if r.Method != "" && r.Method != method {
		return false
	}
	if prefix, ok := strings.CutSuffix(r.Pattern, "/**"); ok && p == prefix {
		return true
	}
	ok, err := doublestar.Match(r.Pattern, p)
	return err == nil && ok
}

// cleanPath resolves dot segments so "/api/polls/../admin" cannot reach a
// rule for a different prefix.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

// DefaultRules is the rule table of the polls server.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "/api/auth/**", Requirement: PermitAll()},
		{Pattern: "/api/user/checkUsernameAvailability", Requirement: PermitAll()},
		{Pattern: "/api/user/checkEmailAvailability", Requirement: PermitAll()},
		{Pattern: "/api/polls/**", Method: http.MethodGet, Requirement: PermitAll()},
		{Pattern: "/api/users/**", Method: http.MethodGet, Requirement: PermitAll()},
		{Pattern: "/healthz", Method: http.MethodGet, Requirement: PermitAll()},
		{Pattern: "/readyz", Method: http.MethodGet, Requirement: PermitAll()},
		{Pattern: "/metrics", Method: http.MethodGet, Requirement: PermitAll()},
		{Pattern: "/api/admin/**", Requirement: HasRole("ADMIN")},
	}
}
