// Package api defines the wire types of the polls HTTP API: the uniform
// error body, authentication requests and responses, and user summaries.
//
// The package performs no I/O. JSON field names follow the polls web client
// (camelCase).
//
// Core types:
//   - [APIError]: uniform error body {status, error, message, reasonCode}
//   - [SignInRequest], [SignUpRequest]: credential payloads
//   - [TokenResponse]: issued access token
//   - [UserSummary], [UserProfile]: user views
package api
