package storage

import (
	"context"
	"errors"
	"fmt"
)

// Seed creates each user whose username is still free and returns how many
// were created. Existing accounts are never modified.
func Seed(ctx context.Context, store UserStore, users []User) (int, error) {
	created := 0
	for i := range users {
		u := users[i]
		taken, err := store.UsernameExists(ctx, u.Username)
		if err != nil {
			return created, fmt.Errorf("seeding %s: %w", u.Username, err)
		}
		if taken {
			continue
		}
		if err := store.CreateUser(ctx, &u); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return created, fmt.Errorf("seeding %s: %w", u.Username, err)
		}
		created++
	}
	return created, nil
}
