package identity_test

import (
	"context"
	"testing"

	"github.com/execguard/syncd/internal/identity"
	"github.com/execguard/syncd/internal/storage/memory"
)

func TestUserKeyCanonicalization(t *testing.T) {
	r := identity.NewResolver(memory.New(), "example.com", "unknown")

	tests := []struct {
		in   string
		want string
	}{
		{"alice", "alice@example.com"},
		{"Alice", "alice@example.com"},
		{"alice@other.org", "alice@other.org"},
		{"", "unknown@example.com"},
	}
	for _, tt := range tests {
		if got := r.UserKey(tt.in); got != tt.want {
			t.Errorf("UserKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnsureUserCreatesOnce(t *testing.T) {
	store := memory.New()
	r := identity.NewResolver(store, "example.com", "unknown")

	u1, created, err := r.EnsureUser(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("Expected first resolution to create the user")
	}
	if u1.Key != "alice@example.com" || u1.Username != "alice" {
		t.Errorf("Unexpected user record: %+v", u1)
	}

	u2, created, err := r.EnsureUser(context.Background(), "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("Expected second resolution to reuse the record")
	}
	if u2.Key != u1.Key {
		t.Errorf("Expected a single canonical record, got %q and %q", u1.Key, u2.Key)
	}
}
