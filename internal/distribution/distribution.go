// Package distribution pages rules out to hosts. Pages follow the stored
// (created_at, id) ordering with an opaque resume cursor; package rules are
// expanded into one entry per known bundle member.
package distribution

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/execguard/syncd/internal/domain"
	"github.com/execguard/syncd/internal/storage"
)

// Engine serves rule-download pages.
type Engine struct {
	store    storage.Storage
	pageSize int
}

// New creates a distribution Engine with the given page size.
func New(store storage.Storage, pageSize int) *Engine {
	return &Engine{store: store, pageSize: pageSize}
}

// RulesForHost returns one page of rules for a host. A host that has synced
// before only receives rules created at or after its last acknowledged rule
// sync; a clean-syncing host (RuleSyncAt nil) receives everything. The
// returned cursor is empty on the final page.
func (e *Engine) RulesForHost(ctx context.Context, host *domain.Host, cursor string) (*domain.RuleDownloadResponse, error) {
	after, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	q := storage.RuleQuery{
		HostID: host.ID,
		Since:  host.RuleSyncAt,
		After:  after,
		Limit:  e.pageSize + 1,
	}
	rules, err := e.store.ListRulesForDistribution(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing rules for host %s: %w", host.ID, err)
	}

	more := len(rules) > e.pageSize
	if more {
		rules = rules[:e.pageSize]
	}

	resp := &domain.RuleDownloadResponse{Rules: []domain.DownloadedRule{}}
	for _, r := range rules {
		expanded, err := e.expand(ctx, r)
		if err != nil {
			return nil, err
		}
		resp.Rules = append(resp.Rules, expanded...)
	}

	if more {
		last := rules[len(rules)-1]
		resp.Cursor = encodeCursor(&storage.RuleCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return resp, nil
}

// expand turns one stored rule into its wire entries. Package rules fan out
// to one binary-shaped entry per recorded member, each tagged with the bundle
// hash and declared count so the client can reassemble the package decision.
// A package rule for an unknown or memberless bundle expands to nothing.
func (e *Engine) expand(ctx context.Context, r *domain.Rule) ([]domain.DownloadedRule, error) {
	creation := float64(r.CreatedAt.UnixNano()) / 1e9

	if r.RuleType != domain.RuleTypePackage {
		return []domain.DownloadedRule{{
			SHA256:       r.TargetHash,
			RuleType:     r.RuleType,
			Policy:       r.Policy,
			CustomMsg:    r.CustomMsg,
			CreationTime: creation,
		}}, nil
	}

	bundle, err := e.store.GetBundle(ctx, r.TargetHash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading bundle %s for package rule: %w", r.TargetHash, err)
	}
	members, err := e.store.ListBundleBinaries(ctx, bundle.Hash)
	if err != nil {
		return nil, fmt.Errorf("listing members of bundle %s: %w", bundle.Hash, err)
	}

	out := make([]domain.DownloadedRule, 0, len(members))
	for _, m := range members {
		out = append(out, domain.DownloadedRule{
			SHA256:                m.SHA256,
			RuleType:              domain.RuleTypeBinary,
			Policy:                r.Policy,
			CustomMsg:             r.CustomMsg,
			CreationTime:          creation,
			FileBundleHash:        bundle.Hash,
			FileBundleBinaryCount: bundle.BinaryCount,
		})
	}
	return out, nil
}

func encodeCursor(c *storage.RuleCursor) string {
	b, _ := json.Marshal(c)
	return base64.StdEncoding.EncodeToString(b)
}

func decodeCursor(s string) (*storage.RuleCursor, error) {
	if s == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", domain.ErrInvalidInput)
	}
	var c storage.RuleCursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", domain.ErrInvalidInput)
	}
	return &c, nil
}
