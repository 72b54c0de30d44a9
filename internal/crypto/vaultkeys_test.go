package crypto

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"

	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
)

type memKeyStore struct {
	mu   sync.Mutex
	keys map[int64][]*vaulttypes.VaultKey
}

func newMemKeyStore() *memKeyStore {
	return &memKeyStore{keys: make(map[int64][]*vaulttypes.VaultKey)}
}

func (s *memKeyStore) Load(vaultID int64) ([]*vaulttypes.VaultKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*vaulttypes.VaultKey, len(s.keys[vaultID]))
	copy(out, s.keys[vaultID])
	return out, nil
}

func (s *memKeyStore) Save(key *vaulttypes.VaultKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.keys[key.VaultID]
	for i, k := range versions {
		if k.Version == key.Version {
			versions[i] = key
			s.keys[key.VaultID] = versions
			return nil
		}
	}
	s.keys[key.VaultID] = append(versions, key)
	return nil
}

func newTestManager(t *testing.T) (*VaultKeyManager, *memKeyStore) {
	t.Helper()
	blobPath := filepath.Join(t.TempDir(), "sealed_master.blob")
	master := NewMasterKeyProvider(blobPath)
	if err := master.Init(); err != nil {
		t.Fatalf("master.Init() error = %v", err)
	}
	store := newMemKeyStore()
	return NewVaultKeyManager(master, store), store
}

func TestVaultKeyManagerCreatesKeyOnFirstUse(t *testing.T) {
	mgr, _ := newTestManager(t)

	key, err := mgr.ActiveKey(42)
	if err != nil {
		t.Fatalf("ActiveKey() error = %v", err)
	}
	if key.Version != 1 {
		t.Errorf("Version = %d, want 1", key.Version)
	}
	if len(key.DataKey) != KeySize {
		t.Errorf("DataKey length = %d, want %d", len(key.DataKey), KeySize)
	}

	again, err := mgr.ActiveKey(42)
	if err != nil {
		t.Fatalf("second ActiveKey() error = %v", err)
	}
	if !bytes.Equal(key.DataKey, again.DataKey) {
		t.Errorf("ActiveKey() is not idempotent across calls")
	}
}

func TestVaultKeyManagerRotation(t *testing.T) {
	mgr, _ := newTestManager(t)

	v1, err := mgr.ActiveKey(7)
	if err != nil {
		t.Fatalf("ActiveKey() error = %v", err)
	}

	v2, err := mgr.Rotate(7)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if v2.Version != 2 {
		t.Errorf("rotated key version = %d, want 2", v2.Version)
	}
	if bytes.Equal(v1.DataKey, v2.DataKey) {
		t.Errorf("rotated key must differ from the original")
	}

	old, err := mgr.KeyByVersion(7, 1)
	if err != nil {
		t.Fatalf("KeyByVersion(1) error = %v", err)
	}
	if old.State != vaulttypes.KeyRotationInProgress {
		t.Errorf("old key state = %v, want RotationInProgress", old.State)
	}

	active, err := mgr.ActiveKey(7)
	if err != nil {
		t.Fatalf("ActiveKey() error = %v", err)
	}
	if active.Version != 2 {
		t.Errorf("ActiveKey() returned version %d, want 2", active.Version)
	}

	if err := mgr.CompleteRotation(7, 1); err != nil {
		t.Fatalf("CompleteRotation() error = %v", err)
	}
	retired, err := mgr.KeyByVersion(7, 1)
	if err != nil {
		t.Fatalf("KeyByVersion(1) after retirement error = %v", err)
	}
	if retired.State != vaulttypes.KeyRetired {
		t.Errorf("retired key state = %v, want Retired", retired.State)
	}
}

func TestVaultEncryptionManagerRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	enc := NewVaultEncryptionManager(99, mgr)

	plaintext := []byte("vault payload bytes")
	ciphertext, iv, version, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	got, err := enc.Decrypt(ciphertext, iv, version)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip = %q, want %q", got, plaintext)
	}
}

func TestVaultEncryptionManagerDecryptsRetiredVersion(t *testing.T) {
	mgr, _ := newTestManager(t)
	enc := NewVaultEncryptionManager(5, mgr)

	plaintext := []byte("encrypted under version 1")
	ciphertext, iv, version, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := mgr.Rotate(5); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	got, err := enc.Decrypt(ciphertext, iv, version)
	if err != nil {
		t.Fatalf("Decrypt() of pre-rotation ciphertext error = %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip after rotation = %q, want %q", got, plaintext)
	}
}
