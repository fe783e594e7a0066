package domain

import "time"

// Rule is a policy decision scoped by its target hash (a blockable or bundle;
// empty for a global rule) and optionally restricted to one host. The newest
// rule for a scope supersedes older ones for distribution; superseded rules
// are retained for audit.
type Rule struct {
	ID         string    `json:"id" db:"id"`
	TargetHash string    `json:"target_hash" db:"target_hash"`
	HostID     string    `json:"host_id" db:"host_id"`
	RuleType   RuleType  `json:"rule_type" db:"rule_type"`
	Policy     Policy    `json:"policy" db:"policy"`
	CustomMsg  string    `json:"custom_msg" db:"custom_msg"`
	InEffect   bool      `json:"in_effect" db:"in_effect"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ScopeKey identifies the supersession scope of a rule: two rules with equal
// scope keys compete and only the newest is distributed.
func (r *Rule) ScopeKey() string {
	return r.TargetHash + "|" + r.HostID
}

// DownloadedRule is one rule entry in a rule-download response. Package rules
// are expanded into one entry per bundle member, carrying the member's own
// hash plus the bundle's hash and declared member count.
type DownloadedRule struct {
	SHA256                string   `json:"sha256"`
	RuleType              RuleType `json:"rule_type"`
	Policy                Policy   `json:"policy"`
	CustomMsg             string   `json:"custom_msg,omitempty"`
	CreationTime          float64  `json:"creation_time"`
	FileBundleHash        string   `json:"file_bundle_hash,omitempty"`
	FileBundleBinaryCount int      `json:"file_bundle_binary_count,omitempty"`
}

// RuleDownloadRequest is the body of a rule-download request.
type RuleDownloadRequest struct {
	Cursor string `json:"cursor,omitempty"`
}

// RuleDownloadResponse is one page of rules. A missing cursor signals sync
// completion.
type RuleDownloadResponse struct {
	Rules  []DownloadedRule `json:"rules"`
	Cursor string           `json:"cursor,omitempty"`
}
