package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/execguard/syncd/internal/domain"
	"github.com/execguard/syncd/internal/storage"
)

// Store is an in-memory implementation of the storage interface for testing.
type Store struct {
	mu sync.RWMutex

	hosts          map[string]*domain.Host
	users          map[string]*domain.User
	blockables     map[string]*domain.Blockable
	certificates   map[string]*domain.Certificate
	bundles        map[string]*domain.Bundle
	bundleBinaries map[string]*domain.BundleBinary // key: bundleHash:sha256
	events         map[string]*domain.Event        // key: userKey:hostID:sha256
	rules          []*domain.Rule
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		hosts:          make(map[string]*domain.Host),
		users:          make(map[string]*domain.User),
		blockables:     make(map[string]*domain.Blockable),
		certificates:   make(map[string]*domain.Certificate),
		bundles:        make(map[string]*domain.Bundle),
		bundleBinaries: make(map[string]*domain.BundleBinary),
		events:         make(map[string]*domain.Event),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return &Tx{store: s}, nil
}

// Tx forwards to the underlying store. Commit and rollback are no-ops; the
// engines perform all reads first and a single write-set last, so an abort
// before the writes leaves no partial state.
type Tx struct {
	store *Store
}

func (t *Tx) Commit() error   { return nil }
func (t *Tx) Rollback() error { return nil }
func (t *Tx) Close() error    { return nil }
func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, domain.ErrInvalidInput
}

func memberKey(bundleHash, sha256 string) string { return bundleHash + ":" + sha256 }
func eventKey(userKey, hostID, sha256 string) string {
	return userKey + ":" + hostID + ":" + sha256
}

func (s *Store) CreateHost(ctx context.Context, host *domain.Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hosts[host.ID]; ok {
		return domain.ErrAlreadyExists
	}
	h := *host
	s.hosts[host.ID] = &h
	return nil
}

func (s *Store) GetHost(ctx context.Context, id string) (*domain.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	host, ok := s.hosts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	h := *host
	return &h, nil
}

func (s *Store) UpdateHost(ctx context.Context, host *domain.Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hosts[host.ID]; !ok {
		return domain.ErrNotFound
	}
	h := *host
	s.hosts[host.ID] = &h
	return nil
}

func (s *Store) ListSyncedHostIDs(ctx context.Context, primaryUser string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, h := range s.hosts {
		if h.PrimaryUser == primaryUser && h.LastPostflightAt != nil {
			ids = append(ids, h.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Key]; ok {
		return domain.ErrAlreadyExists
	}
	u := *user
	s.users[user.Key] = &u
	return nil
}

func (s *Store) GetUser(ctx context.Context, key string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	u := *user
	return &u, nil
}

func (s *Store) CreateBlockable(ctx context.Context, b *domain.Blockable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blockables[b.SHA256]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *b
	s.blockables[b.SHA256] = &cp
	return nil
}

func (s *Store) GetBlockable(ctx context.Context, sha256 string) (*domain.Blockable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blockables[sha256]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *Store) UpdateBlockable(ctx context.Context, b *domain.Blockable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blockables[b.SHA256]; !ok {
		return domain.ErrNotFound
	}
	cp := *b
	s.blockables[b.SHA256] = &cp
	return nil
}

func (s *Store) CreateCertificate(ctx context.Context, c *domain.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.certificates[c.SHA256]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *c
	s.certificates[c.SHA256] = &cp
	return nil
}

func (s *Store) GetCertificate(ctx context.Context, sha256 string) (*domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.certificates[sha256]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) CreateBundle(ctx context.Context, b *domain.Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bundles[b.Hash]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *b
	s.bundles[b.Hash] = &cp
	return nil
}

func (s *Store) GetBundle(ctx context.Context, hash string) (*domain.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bundles[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *Store) UpdateBundle(ctx context.Context, b *domain.Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bundles[b.Hash]; !ok {
		return domain.ErrNotFound
	}
	cp := *b
	s.bundles[b.Hash] = &cp
	return nil
}

func (s *Store) CreateBundleBinary(ctx context.Context, m *domain.BundleBinary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey(m.BundleHash, m.SHA256)
	if _, ok := s.bundleBinaries[key]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *m
	s.bundleBinaries[key] = &cp
	return nil
}

func (s *Store) GetBundleBinary(ctx context.Context, bundleHash, sha256 string) (*domain.BundleBinary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.bundleBinaries[memberKey(bundleHash, sha256)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) UpdateBundleBinary(ctx context.Context, m *domain.BundleBinary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey(m.BundleHash, m.SHA256)
	if _, ok := s.bundleBinaries[key]; !ok {
		return domain.ErrNotFound
	}
	cp := *m
	s.bundleBinaries[key] = &cp
	return nil
}

func (s *Store) ListBundleBinaries(ctx context.Context, bundleHash string) ([]*domain.BundleBinary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var members []*domain.BundleBinary
	for key, m := range s.bundleBinaries {
		if strings.HasPrefix(key, bundleHash+":") {
			cp := *m
			members = append(members, &cp)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].SHA256 < members[j].SHA256 })
	return members, nil
}

func (s *Store) CountBundleBinaries(ctx context.Context, bundleHash string) (int, error) {
	members, err := s.ListBundleBinaries(ctx, bundleHash)
	return len(members), err
}

func (s *Store) CreateEvent(ctx context.Context, e *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := eventKey(e.UserKey, e.HostID, e.FileSHA256)
	if _, ok := s.events[key]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *e
	s.events[key] = &cp
	return nil
}

func (s *Store) GetEvent(ctx context.Context, userKey, hostID, fileSHA256 string) (*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventKey(userKey, hostID, fileSHA256)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) UpdateEvent(ctx context.Context, e *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := eventKey(e.UserKey, e.HostID, e.FileSHA256)
	if _, ok := s.events[key]; !ok {
		return domain.ErrNotFound
	}
	cp := *e
	s.events[key] = &cp
	return nil
}

// CountEvents reports the total number of stored events. Test helper,
// not part of the storage interface.
func (s *Store) CountEvents() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// CountRules reports the total number of stored rules. Test helper.
func (s *Store) CountRules() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

func (s *Store) CreateRule(ctx context.Context, r *domain.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rules {
		if existing.ID == r.ID {
			return domain.ErrAlreadyExists
		}
	}
	cp := *r
	s.rules = append(s.rules, &cp)
	return nil
}

func (s *Store) ListInEffectRulesForHost(ctx context.Context, hostID string) ([]*domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rules []*domain.Rule
	for _, r := range s.rules {
		if r.HostID == hostID && r.InEffect {
			cp := *r
			rules = append(rules, &cp)
		}
	}
	sortRules(rules)
	return rules, nil
}

func (s *Store) ListRulesForDistribution(ctx context.Context, q storage.RuleQuery) ([]*domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Latest rule per scope wins; older siblings are superseded.
	newest := make(map[string]*domain.Rule)
	for _, r := range s.rules {
		if r.HostID != "" && r.HostID != q.HostID {
			continue
		}
		cur, ok := newest[r.ScopeKey()]
		if !ok || r.CreatedAt.After(cur.CreatedAt) ||
			(r.CreatedAt.Equal(cur.CreatedAt) && r.ID > cur.ID) {
			newest[r.ScopeKey()] = r
		}
	}

	var rules []*domain.Rule
	for _, r := range newest {
		if q.Since != nil && r.CreatedAt.Before(*q.Since) {
			continue
		}
		if q.After != nil {
			if r.CreatedAt.Before(q.After.CreatedAt) {
				continue
			}
			if r.CreatedAt.Equal(q.After.CreatedAt) && r.ID <= q.After.ID {
				continue
			}
		}
		cp := *r
		rules = append(rules, &cp)
	}
	sortRules(rules)
	if q.Limit > 0 && len(rules) > q.Limit {
		rules = rules[:q.Limit]
	}
	return rules, nil
}

func sortRules(rules []*domain.Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})
}

// Forward all Tx methods to the underlying store.
func (t *Tx) CreateHost(ctx context.Context, host *domain.Host) error {
	return t.store.CreateHost(ctx, host)
}
func (t *Tx) GetHost(ctx context.Context, id string) (*domain.Host, error) {
	return t.store.GetHost(ctx, id)
}
func (t *Tx) UpdateHost(ctx context.Context, host *domain.Host) error {
	return t.store.UpdateHost(ctx, host)
}
func (t *Tx) ListSyncedHostIDs(ctx context.Context, primaryUser string) ([]string, error) {
	return t.store.ListSyncedHostIDs(ctx, primaryUser)
}
func (t *Tx) CreateUser(ctx context.Context, user *domain.User) error {
	return t.store.CreateUser(ctx, user)
}
func (t *Tx) GetUser(ctx context.Context, key string) (*domain.User, error) {
	return t.store.GetUser(ctx, key)
}
func (t *Tx) CreateBlockable(ctx context.Context, b *domain.Blockable) error {
	return t.store.CreateBlockable(ctx, b)
}
func (t *Tx) GetBlockable(ctx context.Context, sha256 string) (*domain.Blockable, error) {
	return t.store.GetBlockable(ctx, sha256)
}
func (t *Tx) UpdateBlockable(ctx context.Context, b *domain.Blockable) error {
	return t.store.UpdateBlockable(ctx, b)
}
func (t *Tx) CreateCertificate(ctx context.Context, c *domain.Certificate) error {
	return t.store.CreateCertificate(ctx, c)
}
func (t *Tx) GetCertificate(ctx context.Context, sha256 string) (*domain.Certificate, error) {
	return t.store.GetCertificate(ctx, sha256)
}
func (t *Tx) CreateBundle(ctx context.Context, b *domain.Bundle) error {
	return t.store.CreateBundle(ctx, b)
}
func (t *Tx) GetBundle(ctx context.Context, hash string) (*domain.Bundle, error) {
	return t.store.GetBundle(ctx, hash)
}
func (t *Tx) UpdateBundle(ctx context.Context, b *domain.Bundle) error {
	return t.store.UpdateBundle(ctx, b)
}
func (t *Tx) CreateBundleBinary(ctx context.Context, m *domain.BundleBinary) error {
	return t.store.CreateBundleBinary(ctx, m)
}
func (t *Tx) GetBundleBinary(ctx context.Context, bundleHash, sha256 string) (*domain.BundleBinary, error) {
	return t.store.GetBundleBinary(ctx, bundleHash, sha256)
}

func (t *Tx) UpdateBundleBinary(ctx context.Context, m *domain.BundleBinary) error {
	return t.store.UpdateBundleBinary(ctx, m)
}
func (t *Tx) ListBundleBinaries(ctx context.Context, bundleHash string) ([]*domain.BundleBinary, error) {
	return t.store.ListBundleBinaries(ctx, bundleHash)
}
func (t *Tx) CountBundleBinaries(ctx context.Context, bundleHash string) (int, error) {
	return t.store.CountBundleBinaries(ctx, bundleHash)
}
func (t *Tx) CreateEvent(ctx context.Context, e *domain.Event) error {
	return t.store.CreateEvent(ctx, e)
}
func (t *Tx) GetEvent(ctx context.Context, userKey, hostID, fileSHA256 string) (*domain.Event, error) {
	return t.store.GetEvent(ctx, userKey, hostID, fileSHA256)
}
func (t *Tx) UpdateEvent(ctx context.Context, e *domain.Event) error {
	return t.store.UpdateEvent(ctx, e)
}
func (t *Tx) CreateRule(ctx context.Context, r *domain.Rule) error {
	return t.store.CreateRule(ctx, r)
}
func (t *Tx) ListInEffectRulesForHost(ctx context.Context, hostID string) ([]*domain.Rule, error) {
	return t.store.ListInEffectRulesForHost(ctx, hostID)
}
func (t *Tx) ListRulesForDistribution(ctx context.Context, q storage.RuleQuery) ([]*domain.Rule, error) {
	return t.store.ListRulesForDistribution(ctx, q)
}
