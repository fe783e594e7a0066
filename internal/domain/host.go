package domain

import "time"

// Host is one registered endpoint agent. Created on first preflight, mutated
// on every preflight/postflight, never deleted.
type Host struct {
	ID                     string     `json:"id" db:"id"`
	SerialNum              string     `json:"serial_num" db:"serial_num"`
	Hostname               string     `json:"hostname" db:"hostname"`
	PrimaryUser            string     `json:"primary_user" db:"primary_user"`
	AgentVersion           string     `json:"agent_version" db:"agent_version"`
	OSVersion              string     `json:"os_version" db:"os_version"`
	OSBuild                string     `json:"os_build" db:"os_build"`
	ClientMode             ClientMode `json:"client_mode" db:"client_mode"`
	DirectoryWhitelist     string     `json:"directory_whitelist_regex" db:"directory_whitelist_regex"`
	TransitiveWhitelisting bool       `json:"transitive_whitelisting_enabled" db:"transitive_whitelisting_enabled"`
	ShouldUploadLogs       bool       `json:"should_upload_logs" db:"should_upload_logs"`
	LastPreflightAt        *time.Time `json:"last_preflight_at" db:"last_preflight_at"`
	LastPostflightAt       *time.Time `json:"last_postflight_at" db:"last_postflight_at"`
	RuleSyncAt             *time.Time `json:"rule_sync_at" db:"rule_sync_at"`
	CreatedAt              time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at" db:"updated_at"`
}

// Synced reports whether the host has ever completed a full handshake.
// Telemetry from an unsynced host is dropped and its local rules are not
// eligible for first-checkin seeding.
func (h *Host) Synced() bool {
	return h.LastPostflightAt != nil
}

// PreflightRequest is the body of a preflight checkin.
type PreflightRequest struct {
	SerialNum        string `json:"serial_num"`
	Hostname         string `json:"hostname"`
	PrimaryUser      string `json:"primary_user"`
	AgentVersion     string `json:"santa_version"`
	OSVersion        string `json:"os_version"`
	OSBuild          string `json:"os_build"`
	ClientMode       string `json:"client_mode"`
	RequestCleanSync bool   `json:"request_clean_sync"`
}

// PreflightResponse is the body returned from a preflight checkin.
type PreflightResponse struct {
	ClientMode             ClientMode `json:"client_mode"`
	BatchSize              int        `json:"batch_size"`
	CleanSync              bool       `json:"clean_sync"`
	WhitelistRegex         string     `json:"whitelist_regex"`
	TransitiveWhitelisting bool       `json:"transitive_whitelisting_enabled"`
	UploadLogsURL          string     `json:"upload_logs_url,omitempty"`
}
