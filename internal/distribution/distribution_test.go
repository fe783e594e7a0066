package distribution_test

import (
	"context"
	"testing"
	"time"

	"github.com/execguard/syncd/internal/distribution"
	"github.com/execguard/syncd/internal/domain"
	"github.com/execguard/syncd/internal/storage/memory"
)

func seedRule(t *testing.T, store *memory.Store, id, target, hostID string, policy domain.Policy, at time.Time) {
	t.Helper()
	err := store.CreateRule(context.Background(), &domain.Rule{
		ID:         id,
		TargetHash: target,
		HostID:     hostID,
		RuleType:   domain.RuleTypeBinary,
		Policy:     policy,
		InEffect:   true,
		CreatedAt:  at,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPagingReturnsEveryRuleExactlyOnce(t *testing.T) {
	store := memory.New()
	engine := distribution.New(store, 3)
	base := time.Now().UTC().Add(-time.Hour)

	const total = 10
	for i := 0; i < total; i++ {
		seedRule(t, store, ruleID(i), shaID(i), "", domain.PolicyWhitelist, base.Add(time.Duration(i)*time.Second))
	}

	host := &domain.Host{ID: "host-1"}
	seen := map[string]int{}
	cursor := ""
	for page := 0; ; page++ {
		resp, err := engine.RulesForHost(context.Background(), host, cursor)
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range resp.Rules {
			seen[r.SHA256]++
		}
		if resp.Cursor == "" {
			break
		}
		cursor = resp.Cursor
		if page > total {
			t.Fatal("Pagination did not terminate")
		}
	}

	if len(seen) != total {
		t.Errorf("Expected %d distinct rules, got %d", total, len(seen))
	}
	for sha, n := range seen {
		if n != 1 {
			t.Errorf("Rule %s returned %d times", sha, n)
		}
	}
}

func TestNewestRulePerScopeWins(t *testing.T) {
	store := memory.New()
	engine := distribution.New(store, 50)
	base := time.Now().UTC().Add(-time.Hour)

	seedRule(t, store, "r1", "sha-a", "", domain.PolicyWhitelist, base)
	seedRule(t, store, "r2", "sha-a", "", domain.PolicyBlacklist, base.Add(time.Minute))
	// Same target but host-scoped: a separate scope, both distributed.
	seedRule(t, store, "r3", "sha-a", "host-1", domain.PolicyWhitelist, base.Add(2*time.Minute))

	resp, err := engine.RulesForHost(context.Background(), &domain.Host{ID: "host-1"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Rules) != 2 {
		t.Fatalf("Expected 2 rules (newest global + host-scoped), got %d", len(resp.Rules))
	}
	if resp.Rules[0].Policy != domain.PolicyBlacklist {
		t.Errorf("Expected superseding BLACKLIST first, got %s", resp.Rules[0].Policy)
	}
}

func TestWatermarkFiltersOldRules(t *testing.T) {
	store := memory.New()
	engine := distribution.New(store, 50)
	base := time.Now().UTC().Add(-time.Hour)

	seedRule(t, store, "r1", "sha-old", "", domain.PolicyWhitelist, base)
	seedRule(t, store, "r2", "sha-new", "", domain.PolicyWhitelist, base.Add(30*time.Minute))

	watermark := base.Add(10 * time.Minute)
	host := &domain.Host{ID: "host-1", RuleSyncAt: &watermark}
	resp, err := engine.RulesForHost(context.Background(), host, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Rules) != 1 || resp.Rules[0].SHA256 != "sha-new" {
		t.Errorf("Expected only the post-watermark rule, got %+v", resp.Rules)
	}
}

func TestPackageRuleExpandsPerMember(t *testing.T) {
	store := memory.New()
	engine := distribution.New(store, 50)

	bundle := &domain.Bundle{Hash: "bundle-1", BinaryCount: 2, CreatedAt: time.Now().UTC()}
	if err := store.CreateBundle(context.Background(), bundle); err != nil {
		t.Fatal(err)
	}
	for _, sha := range []string{"sha-m1", "sha-m2"} {
		err := store.CreateBundleBinary(context.Background(), &domain.BundleBinary{
			BundleHash: "bundle-1",
			SHA256:     sha,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	err := store.CreateRule(context.Background(), &domain.Rule{
		ID:         "r1",
		TargetHash: "bundle-1",
		RuleType:   domain.RuleTypePackage,
		Policy:     domain.PolicyBlacklist,
		InEffect:   true,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := engine.RulesForHost(context.Background(), &domain.Host{ID: "host-1"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Rules) != 2 {
		t.Fatalf("Expected 2 expanded entries, got %d", len(resp.Rules))
	}
	for _, r := range resp.Rules {
		if r.RuleType != domain.RuleTypeBinary || r.Policy != domain.PolicyBlacklist {
			t.Errorf("Expanded entry has wrong type/policy: %+v", r)
		}
		if r.FileBundleHash != "bundle-1" || r.FileBundleBinaryCount != 2 {
			t.Errorf("Expanded entry missing bundle tagging: %+v", r)
		}
	}
}

func TestPackageRuleForUnknownBundleExpandsToNothing(t *testing.T) {
	store := memory.New()
	engine := distribution.New(store, 50)

	err := store.CreateRule(context.Background(), &domain.Rule{
		ID:         "r1",
		TargetHash: "bundle-missing",
		RuleType:   domain.RuleTypePackage,
		Policy:     domain.PolicyWhitelist,
		InEffect:   true,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := engine.RulesForHost(context.Background(), &domain.Host{ID: "host-1"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Rules) != 0 {
		t.Errorf("Expected no entries for an unknown bundle, got %d", len(resp.Rules))
	}
}

func TestMalformedCursorRejected(t *testing.T) {
	store := memory.New()
	engine := distribution.New(store, 50)

	_, err := engine.RulesForHost(context.Background(), &domain.Host{ID: "host-1"}, "not base64 at all!")
	if err == nil {
		t.Fatal("Expected an error for a malformed cursor")
	}
}

func ruleID(i int) string { return string(rune('a'+i)) + "-rule" }
func shaID(i int) string  { return "sha-" + string(rune('a'+i)) }
