package domain

import "time"

// Blockable is a binary identified by its content hash. Content-addressed and
// shared across hosts and users.
type Blockable struct {
	SHA256     string    `json:"sha256" db:"sha256"`
	FileName   string    `json:"file_name" db:"file_name"`
	CertSHA256 string    `json:"cert_sha256" db:"cert_sha256"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
