package catalog_test

import (
	"context"
	"testing"

	"github.com/execguard/syncd/internal/catalog"
	"github.com/execguard/syncd/internal/domain"
	"github.com/execguard/syncd/internal/storage/memory"
)

func TestEnsureBlockableIsIdempotent(t *testing.T) {
	store := memory.New()
	cat := catalog.New(store)

	ev := &domain.UploadedEvent{
		FileSHA256: "sha-a",
		FileName:   "demo",
		SigningChain: []domain.SigningChainEntry{
			{SHA256: "cert-leaf"},
			{SHA256: "cert-root"},
		},
	}

	b1, created, err := cat.EnsureBlockable(context.Background(), ev)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("Expected first call to create")
	}
	if b1.CertSHA256 != "cert-leaf" {
		t.Errorf("Expected leaf certificate association, got %q", b1.CertSHA256)
	}

	_, created, err = cat.EnsureBlockable(context.Background(), ev)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("Expected second call to return the existing record")
	}
}

func TestEnsureBundleAdoptsDeclaredCount(t *testing.T) {
	store := memory.New()
	cat := catalog.New(store)

	first := &domain.UploadedEvent{FileBundleHash: "bundle-1", FileBundleName: "Demo"}
	if _, _, err := cat.EnsureBundle(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	b, _ := store.GetBundle(context.Background(), "bundle-1")
	if b.BinaryCount != 0 {
		t.Fatalf("Expected unknown count, got %d", b.BinaryCount)
	}

	second := &domain.UploadedEvent{FileBundleHash: "bundle-1", FileBundleBinaryCount: 7}
	if _, _, err := cat.EnsureBundle(context.Background(), second); err != nil {
		t.Fatal(err)
	}
	b, _ = store.GetBundle(context.Background(), "bundle-1")
	if b.BinaryCount != 7 {
		t.Errorf("Expected adopted count 7, got %d", b.BinaryCount)
	}
}

func TestRefreshUploadStateNeverCompletesUndeclaredCount(t *testing.T) {
	store := memory.New()
	cat := catalog.New(store)

	ev := &domain.UploadedEvent{FileBundleHash: "bundle-1"}
	bundle, _, err := cat.EnsureBundle(context.Background(), ev)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cat.EnsureBundleBinary(context.Background(), &domain.BundleBinary{
		BundleHash: "bundle-1", SHA256: "sha-m1", CertSHA256: "cert-1",
	}); err != nil {
		t.Fatal(err)
	}
	if err := cat.RefreshUploadState(context.Background(), bundle); err != nil {
		t.Fatal(err)
	}

	b, _ := store.GetBundle(context.Background(), "bundle-1")
	if b.HasBeenUploaded {
		t.Error("A bundle with no declared member count must never complete")
	}
}

func TestEnsureBlockableGainsLateCertificate(t *testing.T) {
	store := memory.New()
	cat := catalog.New(store)

	unsigned := &domain.UploadedEvent{FileSHA256: "sha-a", FileName: "demo"}
	if _, _, err := cat.EnsureBlockable(context.Background(), unsigned); err != nil {
		t.Fatal(err)
	}

	signed := &domain.UploadedEvent{
		FileSHA256:   "sha-a",
		FileName:     "demo",
		SigningChain: []domain.SigningChainEntry{{SHA256: "cert-leaf"}},
	}
	b, created, err := cat.EnsureBlockable(context.Background(), signed)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("Expected the existing record")
	}
	if b.CertSHA256 != "cert-leaf" {
		t.Errorf("Expected the late chain to associate, got %q", b.CertSHA256)
	}

	stored, err := store.GetBlockable(context.Background(), "sha-a")
	if err != nil {
		t.Fatal(err)
	}
	if stored.CertSHA256 != "cert-leaf" {
		t.Errorf("Expected the association persisted, got %q", stored.CertSHA256)
	}
}

func TestEnsureBundleBinaryRefreshesPlacement(t *testing.T) {
	store := memory.New()
	cat := catalog.New(store)

	first := &domain.BundleBinary{
		BundleHash: "bundle-1", SHA256: "sha-m1", FileName: "demo",
		RelPath: "Contents/MacOS", FullPath: "Contents/MacOS/demo", CertSHA256: "cert-leaf",
	}
	created, err := cat.EnsureBundleBinary(context.Background(), first)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("Expected the first sighting to create")
	}

	moved := &domain.BundleBinary{
		BundleHash: "bundle-1", SHA256: "sha-m1", FileName: "demo",
		RelPath: "Contents/Helpers", FullPath: "Contents/Helpers/demo",
	}
	created, err = cat.EnsureBundleBinary(context.Background(), moved)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("Expected the re-sighting to update, not create")
	}

	m, err := store.GetBundleBinary(context.Background(), "bundle-1", "sha-m1")
	if err != nil {
		t.Fatal(err)
	}
	if m.RelPath != "Contents/Helpers" || m.FullPath != "Contents/Helpers/demo" {
		t.Errorf("Expected the freshest placement, got %q / %q", m.RelPath, m.FullPath)
	}
	if m.CertSHA256 != "cert-leaf" {
		t.Errorf("Expected the known signature kept, got %q", m.CertSHA256)
	}
}
