// Package ingest processes event-upload telemetry: it maintains the entity
// catalog, aggregates execution records into per-triple events, tracks bundle
// upload progress, and decides which bundles the client must still report.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/execguard/syncd/internal/audit"
	"github.com/execguard/syncd/internal/catalog"
	"github.com/execguard/syncd/internal/domain"
	"github.com/execguard/syncd/internal/identity"
	"github.com/execguard/syncd/internal/storage"
	"github.com/execguard/syncd/internal/validation"
)

// Engine ingests uploaded events for one host at a time.
type Engine struct {
	store    storage.Storage
	catalog  *catalog.Catalog
	identity *identity.Resolver
	emitter  *audit.Emitter
	logger   *slog.Logger
}

// New creates an ingest Engine.
func New(store storage.Storage, cat *catalog.Catalog, res *identity.Resolver, emitter *audit.Emitter, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		catalog:  cat,
		identity: res,
		emitter:  emitter,
		logger:   logger,
	}
}

// group is the in-batch aggregation of execution records sharing one
// (user, host, blockable) triple.
type group struct {
	key    eventKey
	latest *domain.UploadedEvent
	count  int
	first  domain.UploadedEvent
	last   domain.UploadedEvent
}

type eventKey struct {
	userKey string
	sha256  string
}

// Process ingests one upload batch. Telemetry from a host that has never
// completed a handshake is dropped wholesale. The response names the bundles
// whose member binaries the client must still upload.
func (e *Engine) Process(ctx context.Context, host *domain.Host, events []domain.UploadedEvent) (*domain.EventUploadResponse, error) {
	resp := &domain.EventUploadResponse{}
	if !host.Synced() {
		e.logger.InfoContext(ctx, "dropping upload from unsynced host",
			"host_id", host.ID, "events", len(events))
		return resp, nil
	}

	solicit := map[string]struct{}{}
	groups := map[eventKey]*group{}
	var order []eventKey

	for i := range events {
		ev := &events[i]
		if err := validation.ValidateSHA256(ev.FileSHA256); err != nil {
			e.logger.WarnContext(ctx, "skipping event with invalid file hash",
				"host_id", host.ID, "file_name", ev.FileName, "error", err)
			continue
		}

		if err := e.catalogEvent(ctx, ev); err != nil {
			return nil, err
		}

		if ev.IsBundleMember() {
			if err := e.recordBundleMember(ctx, ev, solicit); err != nil {
				return nil, err
			}
			continue
		}

		if ev.FileBundleHash != "" {
			if err := e.noteBundleReference(ctx, ev, solicit); err != nil {
				return nil, err
			}
		}

		key := eventKey{userKey: e.identity.UserKey(ev.ExecutingUser), sha256: ev.FileSHA256}
		g, ok := groups[key]
		if !ok {
			g = &group{key: key, latest: ev, count: 0, first: *ev, last: *ev}
			groups[key] = g
			order = append(order, key)
		}
		g.count++
		g.latest = ev
		if ev.ExecutedAt().Before(g.first.ExecutedAt()) {
			g.first = *ev
		}
		if !ev.ExecutedAt().Before(g.last.ExecutedAt()) {
			g.last = *ev
		}

		e.emitter.Emit(ctx, audit.KindExecution, executionPayload(host, key.userKey, ev))
	}

	for _, key := range order {
		if err := e.mergeGroup(ctx, host, groups[key]); err != nil {
			return nil, err
		}
	}

	resp.BundleBinariesToUpload = sortedKeys(solicit)
	return resp, nil
}

// catalogEvent records the blockable and signing chain of one uploaded
// record, whatever its decision.
func (e *Engine) catalogEvent(ctx context.Context, ev *domain.UploadedEvent) error {
	certs, err := e.catalog.EnsureCertificates(ctx, ev.SigningChain)
	if err != nil {
		return err
	}
	for _, cert := range certs {
		e.emitter.Emit(ctx, audit.KindCertificate, catalog.CertificatePayload(cert))
	}

	b, created, err := e.catalog.EnsureBlockable(ctx, ev)
	if err != nil {
		return err
	}
	if created {
		e.emitter.Emit(ctx, audit.KindBinary, catalog.BlockablePayload(b))
	}
	return nil
}

// recordBundleMember handles one BUNDLE_BINARY record: it files the member
// under its bundle and refreshes the bundle's upload state. Records that do
// not name a bundle, or whose path falls outside the declared bundle root,
// are skipped without failing the batch. A bundle that is still missing
// members after this record stays in the solicitation set. A member arriving
// for a bundle that already completed its upload is not filed, but its bundle
// is re-solicited so the client resends the full member set.
func (e *Engine) recordBundleMember(ctx context.Context, ev *domain.UploadedEvent, solicit map[string]struct{}) error {
	if ev.FileBundleHash == "" {
		e.logger.WarnContext(ctx, "skipping bundle member without bundle hash",
			"file_sha256", ev.FileSHA256)
		return nil
	}
	relPath, ok := bundleRelPath(ev)
	if !ok {
		e.logger.WarnContext(ctx, "skipping bundle member outside bundle root",
			"bundle_hash", ev.FileBundleHash,
			"bundle_path", ev.FileBundlePath,
			"file_path", ev.FilePath)
		return nil
	}

	bundle, created, err := e.catalog.EnsureBundle(ctx, ev)
	if err != nil {
		return err
	}
	if created {
		e.emitter.Emit(ctx, audit.KindBundle, catalog.BundlePayload(bundle))
	}

	if bundle.HasBeenUploaded {
		_, err := e.store.GetBundleBinary(ctx, bundle.Hash, ev.FileSHA256)
		if errors.Is(err, domain.ErrNotFound) {
			solicit[bundle.Hash] = struct{}{}
			return nil
		}
		return err
	}

	member := &domain.BundleBinary{
		BundleHash: bundle.Hash,
		SHA256:     ev.FileSHA256,
		FileName:   ev.FileName,
		RelPath:    relPath,
		FullPath:   bundleFullPath(relPath, ev.FileName),
		CertSHA256: catalog.LeafCertHash(ev.SigningChain),
	}
	memberCreated, err := e.catalog.EnsureBundleBinary(ctx, member)
	if err != nil {
		return err
	}
	if memberCreated {
		e.emitter.Emit(ctx, audit.KindBundleBinary, catalog.BundleBinaryPayload(member))
	}

	if err := e.catalog.RefreshUploadState(ctx, bundle); err != nil {
		return err
	}
	if !bundle.HasBeenUploaded {
		solicit[bundle.Hash] = struct{}{}
	}
	return nil
}

// noteBundleReference ensures the bundle an execution record points at
// exists, and solicits its members when the upload is incomplete.
func (e *Engine) noteBundleReference(ctx context.Context, ev *domain.UploadedEvent, solicit map[string]struct{}) error {
	bundle, created, err := e.catalog.EnsureBundle(ctx, ev)
	if err != nil {
		return err
	}
	if created {
		e.emitter.Emit(ctx, audit.KindBundle, catalog.BundlePayload(bundle))
	}
	if !bundle.HasBeenUploaded {
		solicit[bundle.Hash] = struct{}{}
	}
	return nil
}

// mergeGroup folds one in-batch group into the stored event for its triple.
// The fold runs in a transaction that re-reads current state, so a retry
// after contention starts from scratch and cannot double count.
func (e *Engine) mergeGroup(ctx context.Context, host *domain.Host, g *group) error {
	err := storage.RunInTx(ctx, e.store, func(tx storage.Transaction) error {
		existing, err := tx.GetEvent(ctx, g.key.userKey, host.ID, g.key.sha256)
		if err == nil {
			merged := *existing
			merged.Count += g.count
			if g.first.ExecutedAt().Before(merged.FirstBlockedAt) {
				merged.FirstBlockedAt = g.first.ExecutedAt()
			}
			if g.last.ExecutedAt().After(merged.LastBlockedAt) {
				merged.LastBlockedAt = g.last.ExecutedAt()
			}
			applyLatest(&merged, g.latest)
			return tx.UpdateEvent(ctx, &merged)
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("looking up event: %w", err)
		}

		ev := &domain.Event{
			UserKey:        g.key.userKey,
			HostID:         host.ID,
			FileSHA256:     g.key.sha256,
			Count:          g.count,
			FirstBlockedAt: g.first.ExecutedAt(),
			LastBlockedAt:  g.last.ExecutedAt(),
		}
		applyLatest(ev, g.latest)
		return tx.CreateEvent(ctx, ev)
	})
	if err != nil {
		return fmt.Errorf("merging events for %s on %s: %w", g.key.sha256, host.ID, err)
	}
	return nil
}

// applyLatest overwrites an event's descriptive fields from the most recent
// record of the batch. Quarantine data is last-wins but never cleared.
func applyLatest(ev *domain.Event, latest *domain.UploadedEvent) {
	ev.FileName = latest.FileName
	ev.FilePath = latest.FilePath
	ev.ExecutingUser = latest.ExecutingUser
	ev.Decision = latest.Decision
	ev.LoggedInUsers = domain.StringList(latest.LoggedInUsers)
	ev.CurrentSessions = domain.StringList(latest.CurrentSessions)
	ev.PID = latest.PID
	ev.PPID = latest.PPID
	ev.CertSHA256 = catalog.LeafCertHash(latest.SigningChain)
	ev.BundleHash = latest.FileBundleHash
	if latest.QuarantineDataURL != "" {
		ev.QuarantineDataURL = latest.QuarantineDataURL
		ev.QuarantineRefererURL = latest.QuarantineRefererURL
		qt := timeFromUnix(latest.QuarantineTimestamp)
		ev.QuarantineAt = &qt
	}
}

// bundleRelPath locates a member inside its bundle. The member's directory
// must sit at or under the declared bundle root.
func bundleRelPath(ev *domain.UploadedEvent) (string, bool) {
	root := strings.TrimSuffix(ev.FileBundlePath, "/")
	if root == "" {
		return "", false
	}
	if ev.FilePath == root {
		return "", true
	}
	if !strings.HasPrefix(ev.FilePath, root+"/") {
		return "", false
	}
	return strings.TrimPrefix(ev.FilePath, root+"/"), true
}

func timeFromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func bundleFullPath(relPath, fileName string) string {
	if relPath == "" {
		return fileName
	}
	return relPath + "/" + fileName
}

func executionPayload(host *domain.Host, userKey string, ev *domain.UploadedEvent) map[string]any {
	return map[string]any{
		"host_id":        host.ID,
		"user_key":       userKey,
		"file_sha256":    ev.FileSHA256,
		"file_name":      ev.FileName,
		"file_path":      ev.FilePath,
		"decision":       ev.Decision,
		"executed_at":    ev.ExecutedAt(),
		"executing_user": ev.ExecutingUser,
	}
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
