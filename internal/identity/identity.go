// Package identity canonicalizes client-reported usernames into stable user
// keys and lazily creates user records on first sight.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/execguard/syncd/internal/domain"
	"github.com/execguard/syncd/internal/storage"
)

// Resolver maps usernames to user keys and ensures user records exist.
type Resolver struct {
	store           storage.Storage
	emailDomain     string
	placeholderUser string
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(store storage.Storage, emailDomain, placeholderUser string) *Resolver {
	return &Resolver{
		store:           store,
		emailDomain:     emailDomain,
		placeholderUser: placeholderUser,
	}
}

// Username substitutes the placeholder user for an empty username.
func (r *Resolver) Username(username string) string {
	if username == "" {
		return r.placeholderUser
	}
	return username
}

// UserKey returns the canonical key for a username. Usernames that already
// look like an email address pass through lowercased; bare usernames are
// qualified with the configured domain.
func (r *Resolver) UserKey(username string) string {
	username = strings.ToLower(r.Username(username))
	if strings.Contains(username, "@") {
		return username
	}
	return fmt.Sprintf("%s@%s", username, r.emailDomain)
}

// EnsureUser looks up the user record for a username, creating it if absent.
// The returned bool reports whether a new record was created.
func (r *Resolver) EnsureUser(ctx context.Context, username string) (*domain.User, bool, error) {
	key := r.UserKey(username)

	user, err := r.store.GetUser(ctx, key)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, fmt.Errorf("looking up user %q: %w", key, err)
	}

	user = &domain.User{
		Key:       key,
		Username:  r.Username(username),
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			user, err = r.store.GetUser(ctx, key)
			if err != nil {
				return nil, false, fmt.Errorf("re-reading user %q: %w", key, err)
			}
			return user, false, nil
		}
		return nil, false, fmt.Errorf("creating user %q: %w", key, err)
	}
	return user, true, nil
}
