// Package storage defines the identity store contract used by the auth
// gateway together with the sentinel errors shared by its adapters.
//
// Adapters (memory, postgres) implement UserStore. The auth package only
// depends on the read side (UserLookup); the HTTP layer uses the full
// interface for signup and availability checks.
package storage
