package config

import (
	"fmt"

	"github.com/caarlos0/env/v9"

	"github.com/execguard/syncd/internal/domain"
	"github.com/execguard/syncd/internal/trust"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Sync     SyncConfig
	Trust    TrustConfig
	Audit    AuditConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/syncd.db"`
}

// SyncConfig holds handshake behavior configuration.
type SyncConfig struct {
	// EventBatchSize is advertised to clients in preflight responses.
	EventBatchSize int `env:"SYNC_EVENT_BATCH_SIZE" envDefault:"50"`
	// RuleBatchSize is the rule-download page size.
	RuleBatchSize int `env:"SYNC_RULE_BATCH_SIZE" envDefault:"50"`
	// DefaultClientMode is assigned to new hosts that declare no recognized
	// mode of their own.
	DefaultClientMode string `env:"SYNC_DEFAULT_CLIENT_MODE" envDefault:"MONITOR"`
	// DirectoryWhitelistRegex is the server-wide default; a host-level
	// override takes precedence.
	DirectoryWhitelistRegex string `env:"SYNC_DIRECTORY_WHITELIST_REGEX"`
	// PlaceholderUser stands in for telemetry records with no executing user.
	PlaceholderUser string `env:"SYNC_PLACEHOLDER_USER" envDefault:"unknown"`
	// UserEmailDomain canonicalizes usernames to user keys.
	UserEmailDomain string `env:"SYNC_USER_EMAIL_DOMAIN" envDefault:"example.com"`
	// LogUploadURL, when set, is the base URL handed to hosts flagged for
	// log upload. The host id is appended as the final path segment.
	LogUploadURL string `env:"SYNC_LOG_UPLOAD_URL"`
}

// TrustConfig holds client trust-verification configuration.
type TrustConfig struct {
	Mode         string `env:"TRUST_MODE" envDefault:"none"`
	OIDCIssuer   string `env:"TRUST_OIDC_ISSUER"`
	OIDCAudience string `env:"TRUST_OIDC_AUDIENCE"`
}

// Enabled reports whether verification should run at all.
func (c *TrustConfig) Enabled() bool {
	return trust.Mode(c.Mode) != trust.ModeNone
}

// AuditConfig holds audit sink configuration. An empty NATS URL routes audit
// records to the structured log instead.
type AuditConfig struct {
	NATSURL       string `env:"AUDIT_NATS_URL"`
	SubjectPrefix string `env:"AUDIT_SUBJECT_PREFIX" envDefault:"audit"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := env.Parse(&cfg.Database); err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if err := env.Parse(&cfg.Sync); err != nil {
		return nil, fmt.Errorf("parsing sync config: %w", err)
	}
	if err := env.Parse(&cfg.Trust); err != nil {
		return nil, fmt.Errorf("parsing trust config: %w", err)
	}
	if err := env.Parse(&cfg.Audit); err != nil {
		return nil, fmt.Errorf("parsing audit config: %w", err)
	}

	return cfg, nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Sync.EventBatchSize <= 0 {
		return fmt.Errorf("SYNC_EVENT_BATCH_SIZE must be positive")
	}
	if c.Sync.RuleBatchSize <= 0 {
		return fmt.Errorf("SYNC_RULE_BATCH_SIZE must be positive")
	}
	if domain.ParseClientMode(c.Sync.DefaultClientMode) == domain.ModeUnknown {
		return fmt.Errorf("SYNC_DEFAULT_CLIENT_MODE must be a recognized client mode")
	}
	if c.Trust.Enabled() {
		if c.Trust.OIDCIssuer == "" {
			return fmt.Errorf("TRUST_OIDC_ISSUER is required when trust verification is enabled")
		}
		if c.Trust.OIDCAudience == "" {
			return fmt.Errorf("TRUST_OIDC_AUDIENCE is required when trust verification is enabled")
		}
	}
	return nil
}
