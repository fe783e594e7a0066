package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringList stores a slice of strings as a JSON column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
}

// Event is an aggregated execution record for one (user, host, blockable)
// triple. Repeated telemetry for the same triple increments Count and extends
// the FirstBlockedAt/LastBlockedAt range; it never creates a second record.
type Event struct {
	UserKey              string     `json:"user_key" db:"user_key"`
	HostID               string     `json:"host_id" db:"host_id"`
	FileSHA256           string     `json:"file_sha256" db:"file_sha256"`
	FileName             string     `json:"file_name" db:"file_name"`
	FilePath             string     `json:"file_path" db:"file_path"`
	ExecutingUser        string     `json:"executing_user" db:"executing_user"`
	Decision             string     `json:"decision" db:"decision"`
	Count                int        `json:"count" db:"count"`
	LoggedInUsers        StringList `json:"logged_in_users" db:"logged_in_users"`
	CurrentSessions      StringList `json:"current_sessions" db:"current_sessions"`
	PID                  int        `json:"pid" db:"pid"`
	PPID                 int        `json:"ppid" db:"ppid"`
	CertSHA256           string     `json:"cert_sha256" db:"cert_sha256"`
	BundleHash           string     `json:"bundle_hash" db:"bundle_hash"`
	QuarantineDataURL    string     `json:"quarantine_data_url" db:"quarantine_data_url"`
	QuarantineRefererURL string     `json:"quarantine_referer_url" db:"quarantine_referer_url"`
	QuarantineAt         *time.Time `json:"quarantine_at" db:"quarantine_at"`
	FirstBlockedAt       time.Time  `json:"first_blocked_at" db:"first_blocked_at"`
	LastBlockedAt        time.Time  `json:"last_blocked_at" db:"last_blocked_at"`
}

// SigningChainEntry is one certificate of an uploaded event's signing chain.
// The first entry is the leaf.
type SigningChainEntry struct {
	SHA256     string `json:"sha256"`
	CommonName string `json:"cn"`
	Org        string `json:"org"`
	OrgUnit    string `json:"ou"`
	ValidFrom  int64  `json:"valid_from"`
	ValidUntil int64  `json:"valid_until"`
}

// UploadedEvent is one telemetry record in an event-upload request.
type UploadedEvent struct {
	FileSHA256      string              `json:"file_sha256"`
	FileName        string              `json:"file_name"`
	FilePath        string              `json:"file_path"`
	ExecutionTime   float64             `json:"execution_time"`
	ExecutingUser   string              `json:"executing_user"`
	LoggedInUsers   []string            `json:"logged_in_users"`
	CurrentSessions []string            `json:"current_sessions"`
	Decision        string              `json:"decision"`
	PID             int                 `json:"pid"`
	PPID            int                 `json:"ppid"`
	SigningChain    []SigningChainEntry `json:"signing_chain"`

	FileBundleHash        string `json:"file_bundle_hash"`
	FileBundlePath        string `json:"file_bundle_path"`
	FileBundleID          string `json:"file_bundle_id"`
	FileBundleName        string `json:"file_bundle_name"`
	FileBundleVersion     string `json:"file_bundle_version"`
	FileBundleBinaryCount int    `json:"file_bundle_binary_count"`
	FileBundleExecRelPath string `json:"file_bundle_executable_rel_path"`

	QuarantineDataURL    string `json:"quarantine_data_url"`
	QuarantineRefererURL string `json:"quarantine_refer_url"`
	QuarantineTimestamp  int64  `json:"quarantine_timestamp"`
}

// ExecutedAt converts the client-reported execution timestamp (fractional
// unix seconds) to a time.
func (e *UploadedEvent) ExecutedAt() time.Time {
	sec := int64(e.ExecutionTime)
	nsec := int64((e.ExecutionTime - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

// IsBundleMember reports whether this record describes a member of a bundle
// upload rather than an execution.
func (e *UploadedEvent) IsBundleMember() bool {
	return e.Decision == DecisionBundleBinary
}

// EventUploadRequest is the body of an event-upload request.
type EventUploadRequest struct {
	Events []UploadedEvent `json:"events"`
}

// EventUploadResponse lists the bundles whose member binaries the client must
// still report.
type EventUploadResponse struct {
	BundleBinariesToUpload []string `json:"event_upload_bundle_binaries,omitempty"`
}
