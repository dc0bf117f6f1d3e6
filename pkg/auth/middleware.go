package auth

import (
	"net/http"

	"github.com/rhuss/polls/pkg/debug"
	"github.com/rhuss/polls/pkg/observability"
)

// Authorize creates middleware that evaluates policy for every request and
// hands denials to ep. Requests that did not pass through a Filter are
// treated as anonymous.
func Authorize(policy *Policy, ep *EntryPoint) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := FromContext(r.Context())
			if rc == nil {
				rc = NewRequestContext(nil, ReasonNoToken)
			}

			decision := policy.Decide(r.URL.Path, r.Method, rc)

			requirement := RequireAuthenticated.String()
			if decision.Rule != nil {
				requirement = decision.Rule.Requirement.Kind.String()
			}

			if !decision.Allowed {
				observability.AccessDecisionsTotal.WithLabelValues(requirement, "deny").Inc()
				ep.Commence(w, r, decision.Err)
				return
			}

			observability.AccessDecisionsTotal.WithLabelValues(requirement, "allow").Inc()
			debug.Log("policy", "access granted",
				"path", r.URL.Path,
				"method", r.Method,
				"requirement", requirement,
			)
			next.ServeHTTP(w, r)
		})
	}
}

// Middleware composes the Filter and Authorize: authentication runs first,
// then the policy gate.
func Middleware(filter *Filter, policy *Policy, ep *EntryPoint) func(http.Handler) http.Handler {
	authorize := Authorize(policy, ep)
	return func(next http.Handler) http.Handler {
		return filter.Middleware(authorize(next))
	}
}
