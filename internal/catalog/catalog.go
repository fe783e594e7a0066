// Package catalog maintains the content-addressed entity catalog shared by
// all hosts: blockables, signing certificates, bundles and their members.
// Every entity is keyed by a client-reported hash, so creation is get-or-
// create with a lost race resolved by re-reading.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/execguard/syncd/internal/domain"
	"github.com/execguard/syncd/internal/storage"
)

// Catalog wraps a store with get-or-create semantics for content-addressed
// entities. The bool returned by Ensure* methods reports whether a new record
// was created in this call.
type Catalog struct {
	store storage.Storage
}

// New creates a Catalog over the given store.
func New(store storage.Storage) *Catalog {
	return &Catalog{store: store}
}

// EnsureBlockable looks up a blockable by hash, creating it from the uploaded
// record if absent. A blockable first seen unsigned gains its certificate
// association when a later record carries a signing chain.
func (c *Catalog) EnsureBlockable(ctx context.Context, ev *domain.UploadedEvent) (*domain.Blockable, bool, error) {
	b, err := c.store.GetBlockable(ctx, ev.FileSHA256)
	if err == nil {
		if leaf := LeafCertHash(ev.SigningChain); b.CertSHA256 == "" && leaf != "" {
			b.CertSHA256 = leaf
			if err := c.store.UpdateBlockable(ctx, b); err != nil {
				return nil, false, fmt.Errorf("updating blockable %s: %w", ev.FileSHA256, err)
			}
		}
		return b, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, fmt.Errorf("looking up blockable %s: %w", ev.FileSHA256, err)
	}

	b = &domain.Blockable{
		SHA256:     ev.FileSHA256,
		FileName:   ev.FileName,
		CertSHA256: LeafCertHash(ev.SigningChain),
		CreatedAt:  time.Now().UTC(),
	}
	if err := c.store.CreateBlockable(ctx, b); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			b, err = c.store.GetBlockable(ctx, ev.FileSHA256)
			if err != nil {
				return nil, false, fmt.Errorf("re-reading blockable %s: %w", ev.FileSHA256, err)
			}
			return b, false, nil
		}
		return nil, false, fmt.Errorf("creating blockable %s: %w", ev.FileSHA256, err)
	}
	return b, true, nil
}

// EnsureCertificates records every certificate of a signing chain that is not
// yet known. Certificates are immutable, so an existing record is left alone.
// Returns the chain entries that were newly created.
func (c *Catalog) EnsureCertificates(ctx context.Context, chain []domain.SigningChainEntry) ([]*domain.Certificate, error) {
	var created []*domain.Certificate
	for _, entry := range chain {
		if entry.SHA256 == "" {
			continue
		}
		_, err := c.store.GetCertificate(ctx, entry.SHA256)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("looking up certificate %s: %w", entry.SHA256, err)
		}

		cert := &domain.Certificate{
			SHA256:       entry.SHA256,
			CommonName:   entry.CommonName,
			Organization: entry.Org,
			OrgUnit:      entry.OrgUnit,
			ValidFrom:    entry.ValidFrom,
			ValidUntil:   entry.ValidUntil,
			CreatedAt:    time.Now().UTC(),
		}
		if err := c.store.CreateCertificate(ctx, cert); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				continue
			}
			return nil, fmt.Errorf("creating certificate %s: %w", entry.SHA256, err)
		}
		created = append(created, cert)
	}
	return created, nil
}

// EnsureBundle looks up a bundle by hash, creating it from the uploaded
// record if absent. An existing bundle with an unknown binary count adopts
// the count declared by this upload.
func (c *Catalog) EnsureBundle(ctx context.Context, ev *domain.UploadedEvent) (*domain.Bundle, bool, error) {
	hash := ev.FileBundleHash
	b, err := c.store.GetBundle(ctx, hash)
	if err == nil {
		if b.BinaryCount == 0 && ev.FileBundleBinaryCount > 0 {
			b.BinaryCount = ev.FileBundleBinaryCount
			b.UpdatedAt = time.Now().UTC()
			if err := c.store.UpdateBundle(ctx, b); err != nil {
				return nil, false, fmt.Errorf("updating bundle %s: %w", hash, err)
			}
		}
		return b, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, fmt.Errorf("looking up bundle %s: %w", hash, err)
	}

	now := time.Now().UTC()
	b = &domain.Bundle{
		Hash:              hash,
		BundleID:          ev.FileBundleID,
		Name:              ev.FileBundleName,
		Version:           ev.FileBundleVersion,
		BinaryCount:       ev.FileBundleBinaryCount,
		ExecutableRelPath: ev.FileBundleExecRelPath,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := c.store.CreateBundle(ctx, b); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			b, err = c.store.GetBundle(ctx, hash)
			if err != nil {
				return nil, false, fmt.Errorf("re-reading bundle %s: %w", hash, err)
			}
			return b, false, nil
		}
		return nil, false, fmt.Errorf("creating bundle %s: %w", hash, err)
	}
	return b, true, nil
}

// EnsureBundleBinary records a membership for one bundle member. RelPath and
// FullPath locate the member inside the bundle. Duplicate memberships are
// collapsed to one record whose descriptive fields follow the freshest
// sighting; a known signature is never forgotten.
func (c *Catalog) EnsureBundleBinary(ctx context.Context, m *domain.BundleBinary) (bool, error) {
	existing, err := c.store.GetBundleBinary(ctx, m.BundleHash, m.SHA256)
	if err == nil {
		refreshed := *existing
		refreshed.FileName = m.FileName
		refreshed.RelPath = m.RelPath
		refreshed.FullPath = m.FullPath
		if m.CertSHA256 != "" {
			refreshed.CertSHA256 = m.CertSHA256
		}
		if refreshed == *existing {
			return false, nil
		}
		if err := c.store.UpdateBundleBinary(ctx, &refreshed); err != nil {
			return false, fmt.Errorf("updating bundle member %s/%s: %w", m.BundleHash, m.SHA256, err)
		}
		return false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return false, fmt.Errorf("looking up bundle member %s/%s: %w", m.BundleHash, m.SHA256, err)
	}

	m.CreatedAt = time.Now().UTC()
	if err := c.store.CreateBundleBinary(ctx, m); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return false, nil
		}
		return false, fmt.Errorf("creating bundle member %s/%s: %w", m.BundleHash, m.SHA256, err)
	}
	return true, nil
}

// RefreshUploadState recomputes a bundle's derived flags after member
// arrivals: unsigned contents when any member lacks a certificate, uploaded
// when the distinct member count reaches the declared binary count. A zero
// declared count never completes.
func (c *Catalog) RefreshUploadState(ctx context.Context, b *domain.Bundle) error {
	members, err := c.store.ListBundleBinaries(ctx, b.Hash)
	if err != nil {
		return fmt.Errorf("listing members of bundle %s: %w", b.Hash, err)
	}

	unsigned := false
	for _, m := range members {
		if m.CertSHA256 == "" {
			unsigned = true
			break
		}
	}
	uploaded := b.BinaryCount > 0 && len(members) >= b.BinaryCount

	if unsigned == b.HasUnsignedContents && uploaded == b.HasBeenUploaded {
		return nil
	}
	b.HasUnsignedContents = unsigned
	b.HasBeenUploaded = uploaded
	b.UpdatedAt = time.Now().UTC()
	if err := c.store.UpdateBundle(ctx, b); err != nil {
		return fmt.Errorf("updating bundle %s: %w", b.Hash, err)
	}
	return nil
}

// LeafCertHash returns the hash of the chain's leaf certificate, or empty for
// an unsigned binary.
func LeafCertHash(chain []domain.SigningChainEntry) string {
	if len(chain) == 0 {
		return ""
	}
	return chain[0].SHA256
}

// BlockablePayload flattens a blockable for an audit record.
func BlockablePayload(b *domain.Blockable) map[string]any {
	return map[string]any{
		"sha256":      b.SHA256,
		"file_name":   b.FileName,
		"cert_sha256": b.CertSHA256,
	}
}

// CertificatePayload flattens a certificate for an audit record.
func CertificatePayload(c *domain.Certificate) map[string]any {
	return map[string]any{
		"sha256":       c.SHA256,
		"common_name":  c.CommonName,
		"organization": c.Organization,
	}
}

// BundlePayload flattens a bundle for an audit record.
func BundlePayload(b *domain.Bundle) map[string]any {
	return map[string]any{
		"hash":         b.Hash,
		"bundle_id":    b.BundleID,
		"name":         b.Name,
		"version":      b.Version,
		"binary_count": b.BinaryCount,
	}
}

// BundleBinaryPayload flattens a membership for an audit record.
func BundleBinaryPayload(m *domain.BundleBinary) map[string]any {
	return map[string]any{
		"bundle_hash": m.BundleHash,
		"sha256":      m.SHA256,
		"file_name":   m.FileName,
		"rel_path":    m.RelPath,
		"full_path":   m.FullPath,
	}
}
