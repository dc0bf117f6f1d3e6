// Package memory provides an in-memory implementation of storage.UserStore
// for tests and single-instance deployments. Users are lost when the process
// restarts.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rhuss/polls/pkg/storage"
)

// Store is an in-memory UserStore.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]*storage.User
	byUsername map[string]string // lower(username) -> id
	byEmail    map[string]string // lower(email) -> id
}

// Ensure Store implements storage.UserStore at compile time.
var _ storage.UserStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		byID:       make(map[string]*storage.User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

// CreateUser stores a copy of u. An empty ID is replaced by a random UUID
// and a zero CreatedAt by the current time; both are written back to u.
func (s *Store) CreateUser(_ context.Context, u *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	uname := strings.ToLower(u.Username)
	email := strings.ToLower(u.Email)
	if _, taken := s.byUsername[uname]; taken {
		return storage.ErrConflict
	}
	if _, taken := s.byEmail[email]; email != "" && taken {
		return storage.ErrConflict
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, taken := s.byID[u.ID]; taken {
		return storage.ErrConflict
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	s.byID[u.ID] = clone(u)
	s.byUsername[uname] = u.ID
	if email != "" {
		s.byEmail[email] = u.ID
	}
	return nil
}

// GetUser returns the user with the given id.
func (s *Store) GetUser(_ context.Context, id string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(u), nil
}

// GetUserByUsername returns the user with the given username (case-insensitive).
func (s *Store) GetUserByUsername(_ context.Context, username string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

// GetUserByLogin resolves a username or an email address.
func (s *Store) GetUserByLogin(_ context.Context, usernameOrEmail string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := strings.ToLower(usernameOrEmail)
	id, ok := s.byUsername[key]
	if !ok {
		id, ok = s.byEmail[key]
	}
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

// UsernameExists reports whether the username is taken.
func (s *Store) UsernameExists(_ context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byUsername[strings.ToLower(username)]
	return ok, nil
}

// EmailExists reports whether the email is taken.
func (s *Store) EmailExists(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[strings.ToLower(email)]
	return ok, nil
}

// DeleteUser removes a user. Tokens issued to the user stay structurally
// valid but no longer resolve.
func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byUsername, strings.ToLower(u.Username))
	delete(s.byEmail, strings.ToLower(u.Email))
	return nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// clone copies u so callers never share the stored value.
func clone(u *storage.User) *storage.User {
	c := *u
	c.Roles = append([]string(nil), u.Roles...)
	return &c
}
