package crypto

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestMasterKeyProviderGenerateAndUnseal(t *testing.T) {
	dir := t.TempDir()
	blobPath := filepath.Join(dir, "sub", "sealed_master.blob")

	p1 := NewMasterKeyProvider(blobPath)
	if err := p1.Init(); err != nil {
		t.Fatalf("Init() (generate) error = %v", err)
	}
	key1 := p1.GetMasterKey()
	if len(key1) != KeySize {
		t.Errorf("generated key length = %d, want %d", len(key1), KeySize)
	}

	info, err := os.Stat(blobPath)
	if err != nil {
		t.Fatalf("expected sealed blob to exist: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("sealed blob mode = %v, want 0600", info.Mode().Perm())
	}

	p2 := NewMasterKeyProvider(blobPath)
	if err := p2.Init(); err != nil {
		t.Fatalf("Init() (unseal) error = %v", err)
	}
	key2 := p2.GetMasterKey()
	if !bytes.Equal(key1, key2) {
		t.Errorf("unsealed key does not match originally generated key")
	}
}

func TestMasterKeyProviderCorruptBlob(t *testing.T) {
	dir := t.TempDir()
	blobPath := filepath.Join(dir, "sealed_master.blob")

	if err := os.WriteFile(blobPath, []byte("too-short"), 0600); err != nil {
		t.Fatalf("failed to seed corrupt blob: %v", err)
	}

	p := NewMasterKeyProvider(blobPath)
	if err := p.Init(); err == nil {
		t.Fatalf("expected Init() to reject an undersized sealed blob")
	}
}
