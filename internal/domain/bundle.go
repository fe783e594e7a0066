package domain

import "time"

// Bundle is a logical grouping of blockables (an application package)
// identified by a bundle hash. BinaryCount is the member count declared by
// the client; zero means the count is not yet known and the bundle can never
// be considered fully uploaded.
type Bundle struct {
	Hash                string    `json:"hash" db:"hash"`
	BundleID            string    `json:"bundle_id" db:"bundle_id"`
	Name                string    `json:"name" db:"name"`
	Version             string    `json:"version" db:"version"`
	BinaryCount         int       `json:"binary_count" db:"binary_count"`
	ExecutableRelPath   string    `json:"executable_rel_path" db:"executable_rel_path"`
	HasUnsignedContents bool      `json:"has_unsigned_contents" db:"has_unsigned_contents"`
	HasBeenUploaded     bool      `json:"has_been_uploaded" db:"has_been_uploaded"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// BundleBinary is a membership record, one per (bundle, member blockable)
// pair, owned by its bundle.
type BundleBinary struct {
	BundleHash string    `json:"bundle_hash" db:"bundle_hash"`
	SHA256     string    `json:"sha256" db:"sha256"`
	FileName   string    `json:"file_name" db:"file_name"`
	RelPath    string    `json:"rel_path" db:"rel_path"`
	FullPath   string    `json:"full_path" db:"full_path"`
	CertSHA256 string    `json:"cert_sha256" db:"cert_sha256"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
