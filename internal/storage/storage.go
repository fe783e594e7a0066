package storage

import (
	"context"
	"time"

	"github.com/execguard/syncd/internal/domain"
)

// RuleCursor marks a resume position in the (created_at, id) rule ordering.
// Results strictly after the cursor are returned.
type RuleCursor struct {
	CreatedAt time.Time `json:"c"`
	ID        string    `json:"i"`
}

// RuleQuery selects rules for distribution to one host: rules created at or
// after Since that are either unrestricted or restricted to the host, with
// superseded rules (same scope, older creation) excluded.
type RuleQuery struct {
	HostID string
	Since  *time.Time
	After  *RuleCursor
	Limit  int
}

// Storage defines the interface for the persistence layer.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// Hosts
	CreateHost(ctx context.Context, host *domain.Host) error
	GetHost(ctx context.Context, id string) (*domain.Host, error)
	UpdateHost(ctx context.Context, host *domain.Host) error
	// ListSyncedHostIDs returns the ids of hosts with the given primary user
	// that have completed at least one postflight.
	ListSyncedHostIDs(ctx context.Context, primaryUser string) ([]string, error)

	// Users
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, key string) (*domain.User, error)

	// Blockables
	CreateBlockable(ctx context.Context, b *domain.Blockable) error
	GetBlockable(ctx context.Context, sha256 string) (*domain.Blockable, error)
	UpdateBlockable(ctx context.Context, b *domain.Blockable) error

	// Certificates
	CreateCertificate(ctx context.Context, c *domain.Certificate) error
	GetCertificate(ctx context.Context, sha256 string) (*domain.Certificate, error)

	// Bundles
	CreateBundle(ctx context.Context, b *domain.Bundle) error
	GetBundle(ctx context.Context, hash string) (*domain.Bundle, error)
	UpdateBundle(ctx context.Context, b *domain.Bundle) error

	// Bundle members
	CreateBundleBinary(ctx context.Context, m *domain.BundleBinary) error
	GetBundleBinary(ctx context.Context, bundleHash, sha256 string) (*domain.BundleBinary, error)
	UpdateBundleBinary(ctx context.Context, m *domain.BundleBinary) error
	ListBundleBinaries(ctx context.Context, bundleHash string) ([]*domain.BundleBinary, error)
	CountBundleBinaries(ctx context.Context, bundleHash string) (int, error)

	// Events
	CreateEvent(ctx context.Context, e *domain.Event) error
	GetEvent(ctx context.Context, userKey, hostID, fileSHA256 string) (*domain.Event, error)
	UpdateEvent(ctx context.Context, e *domain.Event) error

	// Rules
	CreateRule(ctx context.Context, r *domain.Rule) error
	ListInEffectRulesForHost(ctx context.Context, hostID string) ([]*domain.Rule, error)
	ListRulesForDistribution(ctx context.Context, q RuleQuery) ([]*domain.Rule, error)

	// Transaction support
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction represents a storage transaction. Writes under one transaction
// apply atomically; concurrent transactions touching the same aggregate
// serialize, with the loser failing with domain.ErrTxConflict.
type Transaction interface {
	Storage
	Commit() error
	Rollback() error
}
