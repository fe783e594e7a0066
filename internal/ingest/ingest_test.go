package ingest_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/execguard/syncd/internal/audit"
	"github.com/execguard/syncd/internal/catalog"
	"github.com/execguard/syncd/internal/domain"
	"github.com/execguard/syncd/internal/identity"
	"github.com/execguard/syncd/internal/ingest"
	"github.com/execguard/syncd/internal/storage"
	"github.com/execguard/syncd/internal/storage/memory"
)

func sha(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

func newEngine(store storage.Storage) *ingest.Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	res := identity.NewResolver(store, "example.com", "unknown")
	emitter := audit.NewEmitter(audit.NewMemorySink(), logger)
	return ingest.New(store, catalog.New(store), res, emitter, logger)
}

func syncedHost(id string) *domain.Host {
	now := time.Now().UTC()
	return &domain.Host{ID: id, LastPostflightAt: &now}
}

func event(sha, user string, at float64) domain.UploadedEvent {
	return domain.UploadedEvent{
		FileSHA256:    sha,
		FileName:      "bin",
		FilePath:      "/usr/local/bin",
		ExecutionTime: at,
		ExecutingUser: user,
		Decision:      domain.DecisionBlockUnknown,
	}
}

// conflictStore injects a transaction conflict into the first n event writes,
// simulating a store that aborts a contended transaction before any of its
// writes land.
type conflictStore struct {
	*memory.Store
	remaining int
}

func (s *conflictStore) BeginTx(ctx context.Context) (storage.Transaction, error) {
	tx, err := s.Store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return &conflictTx{Transaction: tx, store: s}, nil
}

type conflictTx struct {
	storage.Transaction
	store *conflictStore
}

func (t *conflictTx) CreateEvent(ctx context.Context, e *domain.Event) error {
	if t.store.remaining > 0 {
		t.store.remaining--
		return domain.ErrTxConflict
	}
	return t.Transaction.CreateEvent(ctx, e)
}

func (t *conflictTx) UpdateEvent(ctx context.Context, e *domain.Event) error {
	if t.store.remaining > 0 {
		t.store.remaining--
		return domain.ErrTxConflict
	}
	return t.Transaction.UpdateEvent(ctx, e)
}

func TestProcessMergesBatchBeforePersisting(t *testing.T) {
	store := memory.New()
	engine := newEngine(store)

	_, err := engine.Process(context.Background(), syncedHost("host-1"),
		[]domain.UploadedEvent{
			event(sha("a"), "alice", 1700000100),
			event(sha("a"), "alice", 1700000000),
			event(sha("a"), "alice", 1700000200),
		})
	if err != nil {
		t.Fatal(err)
	}

	if got := store.CountEvents(); got != 1 {
		t.Fatalf("Expected 1 event, got %d", got)
	}
	ev, err := store.GetEvent(context.Background(), "alice@example.com", "host-1", sha("a"))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Count != 3 {
		t.Errorf("Expected count 3, got %d", ev.Count)
	}
	if ev.FirstBlockedAt.Unix() != 1700000000 || ev.LastBlockedAt.Unix() != 1700000200 {
		t.Errorf("Expected range [1700000000, 1700000200], got [%d, %d]",
			ev.FirstBlockedAt.Unix(), ev.LastBlockedAt.Unix())
	}
}

func TestProcessRetriesAbortedMerge(t *testing.T) {
	store := &conflictStore{Store: memory.New(), remaining: 2}
	engine := newEngine(store)

	_, err := engine.Process(context.Background(), syncedHost("host-1"),
		[]domain.UploadedEvent{event(sha("a"), "alice", 1700000000)})
	if err != nil {
		t.Fatalf("Expected conflicts to be retried away, got %v", err)
	}

	ev, err := store.GetEvent(context.Background(), "alice@example.com", "host-1", sha("a"))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Count != 1 {
		t.Errorf("Expected count 1 after retries, got %d", ev.Count)
	}
}

func TestProcessSurfacesExhaustedRetries(t *testing.T) {
	store := &conflictStore{Store: memory.New(), remaining: 100}
	engine := newEngine(store)

	_, err := engine.Process(context.Background(), syncedHost("host-1"),
		[]domain.UploadedEvent{event(sha("a"), "alice", 1700000000)})
	if err == nil {
		t.Fatal("Expected an error once retries are exhausted")
	}
	if store.CountEvents() != 0 {
		t.Error("Expected no event after a merge that never committed")
	}
}

func TestProcessDropsUnsyncedHost(t *testing.T) {
	store := memory.New()
	engine := newEngine(store)

	resp, err := engine.Process(context.Background(), &domain.Host{ID: "host-1"},
		[]domain.UploadedEvent{event(sha("a"), "alice", 1700000000)})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.BundleBinariesToUpload) != 0 {
		t.Error("Expected empty response for unsynced host")
	}
	if store.CountEvents() != 0 {
		t.Error("Expected no persistence for unsynced host")
	}
}

func TestProcessSkipsRecordsWithoutHash(t *testing.T) {
	store := memory.New()
	engine := newEngine(store)

	_, err := engine.Process(context.Background(), syncedHost("host-1"),
		[]domain.UploadedEvent{
			event("", "alice", 1700000000),
			event(sha("a"), "alice", 1700000000),
		})
	if err != nil {
		t.Fatal(err)
	}
	if got := store.CountEvents(); got != 1 {
		t.Errorf("Expected the valid record to survive a skipped sibling, got %d events", got)
	}
}

func TestProcessSolicitationsDeduplicated(t *testing.T) {
	store := memory.New()
	engine := newEngine(store)

	e1 := event(sha("a"), "alice", 1700000000)
	e1.FileBundleHash = "bundle-1"
	e1.FileBundleBinaryCount = 5
	e2 := event(sha("b"), "alice", 1700000000)
	e2.FileBundleHash = "bundle-1"

	resp, err := engine.Process(context.Background(), syncedHost("host-1"),
		[]domain.UploadedEvent{e1, e2})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.BundleBinariesToUpload) != 1 || resp.BundleBinariesToUpload[0] != "bundle-1" {
		t.Errorf("Expected one deduplicated solicitation, got %v", resp.BundleBinariesToUpload)
	}
}

func TestProcessSolicitsIncompleteBundle(t *testing.T) {
	store := memory.New()
	engine := newEngine(store)

	member := domain.UploadedEvent{
		FileSHA256:            sha("m1"),
		FileName:              "demo",
		FilePath:              "/Applications/Demo.app/Contents/MacOS",
		Decision:              domain.DecisionBundleBinary,
		FileBundleHash:        "bundle-1",
		FileBundlePath:        "/Applications/Demo.app",
		FileBundleBinaryCount: 2,
	}

	resp, err := engine.Process(context.Background(), syncedHost("host-1"),
		[]domain.UploadedEvent{member})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.BundleBinariesToUpload) != 1 || resp.BundleBinariesToUpload[0] != "bundle-1" {
		t.Errorf("Expected bundle-1 solicited at 1 of 2 members, got %v", resp.BundleBinariesToUpload)
	}
}
