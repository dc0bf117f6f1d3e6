// Package transport provides the HTTP middleware chain and response helpers
// shared by the polls server.
//
// # Middleware
//
// Middleware wraps an http.Handler. Built-in middleware provides panic
// recovery, request ID assignment (X-Request-ID), structured logging via
// log/slog and CORS. Chain(a, b, c) produces a(b(c(handler))), so the first
// middleware is the outermost wrapper.
//
// # Responses
//
// WriteJSON and WriteAPIError write JSON bodies. Every error response uses
// the api.APIError shape so clients can branch on reasonCode.
package transport
