package sql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/execguard/syncd/internal/domain"
	"github.com/execguard/syncd/internal/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// isContention checks if an error indicates transaction contention that the
// caller should retry from scratch.
func isContention(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "database is locked") || strings.Contains(errStr, "database table is locked") {
		return true
	}
	// PostgreSQL serialization failures
	if strings.Contains(errStr, "could not serialize access") || strings.Contains(errStr, "deadlock detected") {
		return true
	}
	return false
}

// wrapWriteError converts driver-level failures to domain errors.
func wrapWriteError(err error) error {
	switch {
	case isUniqueViolation(err):
		return domain.ErrAlreadyExists
	case isContention(err):
		return domain.ErrTxConflict
	default:
		return err
	}
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New creates a new SQL store and runs pending migrations.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrapWriteError(err)
	}
	return &Tx{tx: tx, driver: s.driver}, nil
}

// Tx wraps a database transaction.
type Tx struct {
	tx     *sqlx.Tx
	driver string
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return wrapWriteError(t.tx.Commit())
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Close is a no-op for transactions (they should be committed or rolled back).
func (t *Tx) Close() error {
	return nil
}

// BeginTx is not supported within a transaction.
func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}

// helper to get the correct database interface
type dbInterface interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ============================================
// Hosts
// ============================================

const hostColumns = `id, serial_num, hostname, primary_user, agent_version, os_version, os_build,
	client_mode, directory_whitelist_regex, transitive_whitelisting_enabled, should_upload_logs,
	last_preflight_at, last_postflight_at, rule_sync_at, created_at, updated_at`

func createHost(ctx context.Context, db dbInterface, host *domain.Host) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO hosts (`+hostColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		host.ID, host.SerialNum, host.Hostname, host.PrimaryUser, host.AgentVersion,
		host.OSVersion, host.OSBuild, host.ClientMode, host.DirectoryWhitelist,
		host.TransitiveWhitelisting, host.ShouldUploadLogs,
		host.LastPreflightAt, host.LastPostflightAt, host.RuleSyncAt,
		host.CreatedAt, host.UpdatedAt)
	return wrapWriteError(err)
}

func (s *Store) CreateHost(ctx context.Context, host *domain.Host) error {
	return createHost(ctx, s.db, host)
}

func (t *Tx) CreateHost(ctx context.Context, host *domain.Host) error {
	return createHost(ctx, t.tx, host)
}

func getHost(ctx context.Context, db dbInterface, id string) (*domain.Host, error) {
	var host domain.Host
	err := db.GetContext(ctx, &host,
		`SELECT `+hostColumns+` FROM hosts WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return &host, err
}

func (s *Store) GetHost(ctx context.Context, id string) (*domain.Host, error) {
	return getHost(ctx, s.db, id)
}

func (t *Tx) GetHost(ctx context.Context, id string) (*domain.Host, error) {
	return getHost(ctx, t.tx, id)
}

func updateHost(ctx context.Context, db dbInterface, host *domain.Host) error {
	result, err := db.ExecContext(ctx,
		`UPDATE hosts SET serial_num = $1, hostname = $2, primary_user = $3, agent_version = $4,
		 os_version = $5, os_build = $6, client_mode = $7, directory_whitelist_regex = $8,
		 transitive_whitelisting_enabled = $9, should_upload_logs = $10, last_preflight_at = $11,
		 last_postflight_at = $12, rule_sync_at = $13, updated_at = $14
		 WHERE id = $15`,
		host.SerialNum, host.Hostname, host.PrimaryUser, host.AgentVersion,
		host.OSVersion, host.OSBuild, host.ClientMode, host.DirectoryWhitelist,
		host.TransitiveWhitelisting, host.ShouldUploadLogs, host.LastPreflightAt,
		host.LastPostflightAt, host.RuleSyncAt, host.UpdatedAt, host.ID)
	if err != nil {
		return wrapWriteError(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateHost(ctx context.Context, host *domain.Host) error {
	return updateHost(ctx, s.db, host)
}

func (t *Tx) UpdateHost(ctx context.Context, host *domain.Host) error {
	return updateHost(ctx, t.tx, host)
}

func listSyncedHostIDs(ctx context.Context, db dbInterface, primaryUser string) ([]string, error) {
	var ids []string
	err := db.SelectContext(ctx, &ids,
		`SELECT id FROM hosts WHERE primary_user = $1 AND last_postflight_at IS NOT NULL ORDER BY id`,
		primaryUser)
	return ids, err
}

func (s *Store) ListSyncedHostIDs(ctx context.Context, primaryUser string) ([]string, error) {
	return listSyncedHostIDs(ctx, s.db, primaryUser)
}

func (t *Tx) ListSyncedHostIDs(ctx context.Context, primaryUser string) ([]string, error) {
	return listSyncedHostIDs(ctx, t.tx, primaryUser)
}

// ============================================
// Users
// ============================================

func createUser(ctx context.Context, db dbInterface, user *domain.User) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO users (key, username, created_at) VALUES ($1, $2, $3)`,
		user.Key, user.Username, user.CreatedAt)
	return wrapWriteError(err)
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	return createUser(ctx, s.db, user)
}

func (t *Tx) CreateUser(ctx context.Context, user *domain.User) error {
	return createUser(ctx, t.tx, user)
}

func getUser(ctx context.Context, db dbInterface, key string) (*domain.User, error) {
	var user domain.User
	err := db.GetContext(ctx, &user,
		`SELECT key, username, created_at FROM users WHERE key = $1`, key)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return &user, err
}

func (s *Store) GetUser(ctx context.Context, key string) (*domain.User, error) {
	return getUser(ctx, s.db, key)
}

func (t *Tx) GetUser(ctx context.Context, key string) (*domain.User, error) {
	return getUser(ctx, t.tx, key)
}

// ============================================
// Blockables
// ============================================

func createBlockable(ctx context.Context, db dbInterface, b *domain.Blockable) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO blockables (sha256, file_name, cert_sha256, created_at)
		 VALUES ($1, $2, $3, $4)`,
		b.SHA256, b.FileName, b.CertSHA256, b.CreatedAt)
	return wrapWriteError(err)
}

func (s *Store) CreateBlockable(ctx context.Context, b *domain.Blockable) error {
	return createBlockable(ctx, s.db, b)
}

func (t *Tx) CreateBlockable(ctx context.Context, b *domain.Blockable) error {
	return createBlockable(ctx, t.tx, b)
}

func getBlockable(ctx context.Context, db dbInterface, sha256 string) (*domain.Blockable, error) {
	var b domain.Blockable
	err := db.GetContext(ctx, &b,
		`SELECT sha256, file_name, cert_sha256, created_at FROM blockables WHERE sha256 = $1`, sha256)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return &b, err
}

func (s *Store) GetBlockable(ctx context.Context, sha256 string) (*domain.Blockable, error) {
	return getBlockable(ctx, s.db, sha256)
}

func (t *Tx) GetBlockable(ctx context.Context, sha256 string) (*domain.Blockable, error) {
	return getBlockable(ctx, t.tx, sha256)
}

func updateBlockable(ctx context.Context, db dbInterface, b *domain.Blockable) error {
	_, err := db.ExecContext(ctx,
		`UPDATE blockables SET file_name = $1, cert_sha256 = $2 WHERE sha256 = $3`,
		b.FileName, b.CertSHA256, b.SHA256)
	return wrapWriteError(err)
}

func (s *Store) UpdateBlockable(ctx context.Context, b *domain.Blockable) error {
	return updateBlockable(ctx, s.db, b)
}

func (t *Tx) UpdateBlockable(ctx context.Context, b *domain.Blockable) error {
	return updateBlockable(ctx, t.tx, b)
}

// ============================================
// Certificates
// ============================================

func createCertificate(ctx context.Context, db dbInterface, c *domain.Certificate) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO certificates (sha256, common_name, organization, org_unit, valid_from, valid_until, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.SHA256, c.CommonName, c.Organization, c.OrgUnit, c.ValidFrom, c.ValidUntil, c.CreatedAt)
	return wrapWriteError(err)
}

func (s *Store) CreateCertificate(ctx context.Context, c *domain.Certificate) error {
	return createCertificate(ctx, s.db, c)
}

func (t *Tx) CreateCertificate(ctx context.Context, c *domain.Certificate) error {
	return createCertificate(ctx, t.tx, c)
}

func getCertificate(ctx context.Context, db dbInterface, sha256 string) (*domain.Certificate, error) {
	var c domain.Certificate
	err := db.GetContext(ctx, &c,
		`SELECT sha256, common_name, organization, org_unit, valid_from, valid_until, created_at
		 FROM certificates WHERE sha256 = $1`, sha256)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return &c, err
}

func (s *Store) GetCertificate(ctx context.Context, sha256 string) (*domain.Certificate, error) {
	return getCertificate(ctx, s.db, sha256)
}

func (t *Tx) GetCertificate(ctx context.Context, sha256 string) (*domain.Certificate, error) {
	return getCertificate(ctx, t.tx, sha256)
}

// ============================================
// Bundles
// ============================================

const bundleColumns = `hash, bundle_id, name, version, binary_count, executable_rel_path,
	has_unsigned_contents, has_been_uploaded, created_at, updated_at`

func createBundle(ctx context.Context, db dbInterface, b *domain.Bundle) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO bundles (`+bundleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.Hash, b.BundleID, b.Name, b.Version, b.BinaryCount, b.ExecutableRelPath,
		b.HasUnsignedContents, b.HasBeenUploaded, b.CreatedAt, b.UpdatedAt)
	return wrapWriteError(err)
}

func (s *Store) CreateBundle(ctx context.Context, b *domain.Bundle) error {
	return createBundle(ctx, s.db, b)
}

func (t *Tx) CreateBundle(ctx context.Context, b *domain.Bundle) error {
	return createBundle(ctx, t.tx, b)
}

func getBundle(ctx context.Context, db dbInterface, hash string) (*domain.Bundle, error) {
	var b domain.Bundle
	err := db.GetContext(ctx, &b,
		`SELECT `+bundleColumns+` FROM bundles WHERE hash = $1`, hash)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return &b, err
}

func (s *Store) GetBundle(ctx context.Context, hash string) (*domain.Bundle, error) {
	return getBundle(ctx, s.db, hash)
}

func (t *Tx) GetBundle(ctx context.Context, hash string) (*domain.Bundle, error) {
	return getBundle(ctx, t.tx, hash)
}

func updateBundle(ctx context.Context, db dbInterface, b *domain.Bundle) error {
	_, err := db.ExecContext(ctx,
		`UPDATE bundles SET bundle_id = $1, name = $2, version = $3, binary_count = $4,
		 executable_rel_path = $5, has_unsigned_contents = $6, has_been_uploaded = $7, updated_at = $8
		 WHERE hash = $9`,
		b.BundleID, b.Name, b.Version, b.BinaryCount, b.ExecutableRelPath,
		b.HasUnsignedContents, b.HasBeenUploaded, b.UpdatedAt, b.Hash)
	return wrapWriteError(err)
}

func (s *Store) UpdateBundle(ctx context.Context, b *domain.Bundle) error {
	return updateBundle(ctx, s.db, b)
}

func (t *Tx) UpdateBundle(ctx context.Context, b *domain.Bundle) error {
	return updateBundle(ctx, t.tx, b)
}

// ============================================
// Bundle members
// ============================================

func createBundleBinary(ctx context.Context, db dbInterface, m *domain.BundleBinary) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO bundle_binaries (bundle_hash, sha256, file_name, rel_path, full_path, cert_sha256, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.BundleHash, m.SHA256, m.FileName, m.RelPath, m.FullPath, m.CertSHA256, m.CreatedAt)
	return wrapWriteError(err)
}

func (s *Store) CreateBundleBinary(ctx context.Context, m *domain.BundleBinary) error {
	return createBundleBinary(ctx, s.db, m)
}

func (t *Tx) CreateBundleBinary(ctx context.Context, m *domain.BundleBinary) error {
	return createBundleBinary(ctx, t.tx, m)
}

func getBundleBinary(ctx context.Context, db dbInterface, bundleHash, sha256 string) (*domain.BundleBinary, error) {
	var m domain.BundleBinary
	err := db.GetContext(ctx, &m,
		`SELECT bundle_hash, sha256, file_name, rel_path, full_path, cert_sha256, created_at
		 FROM bundle_binaries WHERE bundle_hash = $1 AND sha256 = $2`, bundleHash, sha256)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return &m, err
}

func (s *Store) GetBundleBinary(ctx context.Context, bundleHash, sha256 string) (*domain.BundleBinary, error) {
	return getBundleBinary(ctx, s.db, bundleHash, sha256)
}

func (t *Tx) GetBundleBinary(ctx context.Context, bundleHash, sha256 string) (*domain.BundleBinary, error) {
	return getBundleBinary(ctx, t.tx, bundleHash, sha256)
}

func updateBundleBinary(ctx context.Context, db dbInterface, m *domain.BundleBinary) error {
	_, err := db.ExecContext(ctx,
		`UPDATE bundle_binaries SET file_name = $1, rel_path = $2, full_path = $3, cert_sha256 = $4
		 WHERE bundle_hash = $5 AND sha256 = $6`,
		m.FileName, m.RelPath, m.FullPath, m.CertSHA256, m.BundleHash, m.SHA256)
	return wrapWriteError(err)
}

func (s *Store) UpdateBundleBinary(ctx context.Context, m *domain.BundleBinary) error {
	return updateBundleBinary(ctx, s.db, m)
}

func (t *Tx) UpdateBundleBinary(ctx context.Context, m *domain.BundleBinary) error {
	return updateBundleBinary(ctx, t.tx, m)
}

func listBundleBinaries(ctx context.Context, db dbInterface, bundleHash string) ([]*domain.BundleBinary, error) {
	var members []*domain.BundleBinary
	err := db.SelectContext(ctx, &members,
		`SELECT bundle_hash, sha256, file_name, rel_path, full_path, cert_sha256, created_at
		 FROM bundle_binaries WHERE bundle_hash = $1 ORDER BY sha256`, bundleHash)
	return members, err
}

func (s *Store) ListBundleBinaries(ctx context.Context, bundleHash string) ([]*domain.BundleBinary, error) {
	return listBundleBinaries(ctx, s.db, bundleHash)
}

func (t *Tx) ListBundleBinaries(ctx context.Context, bundleHash string) ([]*domain.BundleBinary, error) {
	return listBundleBinaries(ctx, t.tx, bundleHash)
}

func countBundleBinaries(ctx context.Context, db dbInterface, bundleHash string) (int, error) {
	var count int
	err := db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM bundle_binaries WHERE bundle_hash = $1`, bundleHash)
	return count, err
}

func (s *Store) CountBundleBinaries(ctx context.Context, bundleHash string) (int, error) {
	return countBundleBinaries(ctx, s.db, bundleHash)
}

func (t *Tx) CountBundleBinaries(ctx context.Context, bundleHash string) (int, error) {
	return countBundleBinaries(ctx, t.tx, bundleHash)
}

// ============================================
// Events
// ============================================

const eventColumns = `user_key, host_id, file_sha256, file_name, file_path, executing_user,
	decision, count, logged_in_users, current_sessions, pid, ppid, cert_sha256, bundle_hash,
	quarantine_data_url, quarantine_referer_url, quarantine_at, first_blocked_at, last_blocked_at`

func createEvent(ctx context.Context, db dbInterface, e *domain.Event) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		e.UserKey, e.HostID, e.FileSHA256, e.FileName, e.FilePath, e.ExecutingUser,
		e.Decision, e.Count, e.LoggedInUsers, e.CurrentSessions, e.PID, e.PPID,
		e.CertSHA256, e.BundleHash, e.QuarantineDataURL, e.QuarantineRefererURL,
		e.QuarantineAt, e.FirstBlockedAt, e.LastBlockedAt)
	return wrapWriteError(err)
}

func (s *Store) CreateEvent(ctx context.Context, e *domain.Event) error {
	return createEvent(ctx, s.db, e)
}

func (t *Tx) CreateEvent(ctx context.Context, e *domain.Event) error {
	return createEvent(ctx, t.tx, e)
}

func getEvent(ctx context.Context, db dbInterface, userKey, hostID, fileSHA256 string) (*domain.Event, error) {
	var e domain.Event
	err := db.GetContext(ctx, &e,
		`SELECT `+eventColumns+` FROM events
		 WHERE user_key = $1 AND host_id = $2 AND file_sha256 = $3`,
		userKey, hostID, fileSHA256)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return &e, err
}

func (s *Store) GetEvent(ctx context.Context, userKey, hostID, fileSHA256 string) (*domain.Event, error) {
	return getEvent(ctx, s.db, userKey, hostID, fileSHA256)
}

func (t *Tx) GetEvent(ctx context.Context, userKey, hostID, fileSHA256 string) (*domain.Event, error) {
	return getEvent(ctx, t.tx, userKey, hostID, fileSHA256)
}

func updateEvent(ctx context.Context, db dbInterface, e *domain.Event) error {
	result, err := db.ExecContext(ctx,
		`UPDATE events SET file_name = $1, file_path = $2, executing_user = $3, decision = $4,
		 count = $5, logged_in_users = $6, current_sessions = $7, pid = $8, ppid = $9,
		 cert_sha256 = $10, bundle_hash = $11, quarantine_data_url = $12,
		 quarantine_referer_url = $13, quarantine_at = $14, first_blocked_at = $15, last_blocked_at = $16
		 WHERE user_key = $17 AND host_id = $18 AND file_sha256 = $19`,
		e.FileName, e.FilePath, e.ExecutingUser, e.Decision, e.Count,
		e.LoggedInUsers, e.CurrentSessions, e.PID, e.PPID, e.CertSHA256, e.BundleHash,
		e.QuarantineDataURL, e.QuarantineRefererURL, e.QuarantineAt,
		e.FirstBlockedAt, e.LastBlockedAt, e.UserKey, e.HostID, e.FileSHA256)
	if err != nil {
		return wrapWriteError(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateEvent(ctx context.Context, e *domain.Event) error {
	return updateEvent(ctx, s.db, e)
}

func (t *Tx) UpdateEvent(ctx context.Context, e *domain.Event) error {
	return updateEvent(ctx, t.tx, e)
}

// ============================================
// Rules
// ============================================

const ruleColumns = `id, target_hash, host_id, rule_type, policy, custom_msg, in_effect, created_at`

func createRule(ctx context.Context, db dbInterface, r *domain.Rule) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO rules (`+ruleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.TargetHash, r.HostID, r.RuleType, r.Policy, r.CustomMsg, r.InEffect, r.CreatedAt)
	return wrapWriteError(err)
}

func (s *Store) CreateRule(ctx context.Context, r *domain.Rule) error {
	return createRule(ctx, s.db, r)
}

func (t *Tx) CreateRule(ctx context.Context, r *domain.Rule) error {
	return createRule(ctx, t.tx, r)
}

func listInEffectRulesForHost(ctx context.Context, db dbInterface, hostID string) ([]*domain.Rule, error) {
	var rules []*domain.Rule
	err := db.SelectContext(ctx, &rules,
		`SELECT `+ruleColumns+` FROM rules
		 WHERE host_id = $1 AND in_effect ORDER BY created_at, id`, hostID)
	return rules, err
}

func (s *Store) ListInEffectRulesForHost(ctx context.Context, hostID string) ([]*domain.Rule, error) {
	return listInEffectRulesForHost(ctx, s.db, hostID)
}

func (t *Tx) ListInEffectRulesForHost(ctx context.Context, hostID string) ([]*domain.Rule, error) {
	return listInEffectRulesForHost(ctx, t.tx, hostID)
}

// listRulesForDistribution selects candidate rules for one host in stable
// (created_at, id) order, excluding superseded rules. The NOT EXISTS clause
// drops any rule with a newer sibling in the same (target_hash, host_id)
// scope.
func listRulesForDistribution(ctx context.Context, db dbInterface, q storage.RuleQuery) ([]*domain.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules r
		 WHERE (r.host_id = '' OR r.host_id = $1)
		 AND NOT EXISTS (
			SELECT 1 FROM rules r2
			WHERE r2.target_hash = r.target_hash AND r2.host_id = r.host_id
			AND (r2.created_at > r.created_at OR (r2.created_at = r.created_at AND r2.id > r.id))
		 )`
	args := []any{q.HostID}
	if q.Since != nil {
		args = append(args, *q.Since)
		query += fmt.Sprintf(` AND r.created_at >= $%d`, len(args))
	}
	if q.After != nil {
		args = append(args, q.After.CreatedAt, q.After.CreatedAt, q.After.ID)
		query += fmt.Sprintf(` AND (r.created_at > $%d OR (r.created_at = $%d AND r.id > $%d))`,
			len(args)-2, len(args)-1, len(args))
	}
	query += ` ORDER BY r.created_at, r.id`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	var rules []*domain.Rule
	err := db.SelectContext(ctx, &rules, query, args...)
	return rules, err
}

func (s *Store) ListRulesForDistribution(ctx context.Context, q storage.RuleQuery) ([]*domain.Rule, error) {
	return listRulesForDistribution(ctx, s.db, q)
}

func (t *Tx) ListRulesForDistribution(ctx context.Context, q storage.RuleQuery) ([]*domain.Rule, error) {
	return listRulesForDistribution(ctx, t.tx, q)
}
