// Package auth is the authentication and authorization boundary of the polls
// server.
//
// A request passes through two stages. The Filter runs exactly once per
// request: it extracts a bearer token, verifies it with a TokenVerifier,
// resolves the subject to a Principal and binds the outcome to a
// RequestContext carried in the request context. Verification and resolution
// failures never fail the request; they leave it anonymous and record why.
//
// Authorize then evaluates the Policy, an ordered list of rules matched
// first-wins by path pattern and method, defaulting to Authenticated when no
// rule matches. Denials are rendered by the EntryPoint as a uniform JSON body
// with status 401 (no principal) or 403 (principal without the required role).
//
// Token encoding lives in the jwt subpackage.
package auth
