package storage

import (
	"context"
	"time"
)

// User is a stored account.
type User struct {
	ID           string
	Name         string
	Username     string
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

// UserLookup is the read-only side of the identity store.
type UserLookup interface {
	// GetUser returns the user with the given id, or ErrNotFound.
	GetUser(ctx context.Context, id string) (*User, error)
}

// UserStore is the full identity store.
type UserStore interface {
	UserLookup

	// GetUserByLogin finds a user by username or email, or returns ErrNotFound.
	GetUserByLogin(ctx context.Context, usernameOrEmail string) (*User, error)

	// GetUserByUsername returns the user with the given username, or ErrNotFound.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// CreateUser persists a new user. Returns ErrConflict when the username
	// or email is already taken.
	CreateUser(ctx context.Context, u *User) error

	// UsernameExists reports whether the username is taken.
	UsernameExists(ctx context.Context, username string) (bool, error)

	// EmailExists reports whether the email is taken.
	EmailExists(ctx context.Context, email string) (bool, error)

	// HealthCheck verifies the store connection is functional.
	HealthCheck(ctx context.Context) error

	// Close releases database connections and resources.
	Close() error
}
