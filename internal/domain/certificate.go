package domain

import "time"

// Certificate is one entry of a signing chain, identified by its own content
// hash. Immutable once created.
type Certificate struct {
	SHA256       string    `json:"sha256" db:"sha256"`
	CommonName   string    `json:"common_name" db:"common_name"`
	Organization string    `json:"organization" db:"organization"`
	OrgUnit      string    `json:"org_unit" db:"org_unit"`
	ValidFrom    int64     `json:"valid_from" db:"valid_from"`
	ValidUntil   int64     `json:"valid_until" db:"valid_until"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
