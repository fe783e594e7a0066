// Package validation provides validation functions for client-reported
// identifiers. Agents are untrusted input sources; anything used as a storage
// key is checked here before it reaches an engine.
package validation

import "fmt"

const maxHostIDLength = 128

// isHex returns true if the byte is a lowercase hex digit.
func isHex(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f')
}

// isAlphaNum returns true if the byte is an ASCII letter or digit.
func isAlphaNum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// ValidateSHA256 checks that a client-reported hash is a 64-character
// lowercase hex string.
func ValidateSHA256(hash string) error {
	if len(hash) != 64 {
		return NewValidationError("file_sha256", hash, fmt.Sprintf("must be 64 characters, got %d", len(hash)))
	}
	for _, b := range []byte(hash) {
		if !isHex(b) {
			return NewValidationError("file_sha256", hash, "must be lowercase hex")
		}
	}
	return nil
}

// ValidateHostID checks an agent identifier. Agents report a hardware UUID or
// an operator-assigned name; letters, digits, hyphens, underscores and dots
// are accepted, with a length cap since the id becomes a storage key.
func ValidateHostID(id string) error {
	if id == "" {
		return NewValidationError("host_id", id, "must not be empty")
	}
	if len(id) > maxHostIDLength {
		return NewValidationError("host_id", id, fmt.Sprintf("must not exceed %d characters", maxHostIDLength))
	}
	for _, b := range []byte(id) {
		if !isAlphaNum(b) && b != '-' && b != '_' && b != '.' {
			return NewValidationError("host_id", id, "can only contain letters, numbers, hyphens, underscores, or dots")
		}
	}
	return nil
}
