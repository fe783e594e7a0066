package domain

// ClientMode is the execution-enforcement mode an agent runs in.
type ClientMode string

const (
	ModeMonitor  ClientMode = "MONITOR"
	ModeLockdown ClientMode = "LOCKDOWN"
	ModeUnknown  ClientMode = "UNKNOWN"
)

// ParseClientMode maps a client-declared mode string onto the closed set of
// known modes. Unrecognized or missing values become ModeUnknown; they are
// recorded but never rejected.
func ParseClientMode(s string) ClientMode {
	switch ClientMode(s) {
	case ModeMonitor:
		return ModeMonitor
	case ModeLockdown:
		return ModeLockdown
	default:
		return ModeUnknown
	}
}

// Policy is the decision a rule carries.
type Policy string

const (
	PolicyWhitelist Policy = "WHITELIST"
	PolicyBlacklist Policy = "BLACKLIST"
	PolicyRemove    Policy = "REMOVE"
)

// RuleType describes what a rule's target hash identifies.
type RuleType string

const (
	RuleTypeBinary      RuleType = "BINARY"
	RuleTypeCertificate RuleType = "CERTIFICATE"
	RuleTypePackage     RuleType = "PACKAGE"
)

// Decision values reported in uploaded events. Only the bundle-member marker
// changes server behavior; the rest are stored verbatim.
const (
	DecisionBundleBinary = "BUNDLE_BINARY"
	DecisionBlockUnknown = "BLOCK_UNKNOWN"
	DecisionBlockBinary  = "BLOCK_BINARY"
	DecisionAllowBinary  = "ALLOW_BINARY"
)
