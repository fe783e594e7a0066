package domain

import "time"

// User is keyed by the canonical email form of a username. Created lazily on
// first reference as a host's primary user.
type User struct {
	Key       string    `json:"key" db:"key"`
	Username  string    `json:"username" db:"username"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
