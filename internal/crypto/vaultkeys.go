package crypto

import (
	"sync"
	"time"

	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
	"github.com/vaulthalla/vaulthalla/pkg/vherrors"
)

// VaultKeyStore persists wrapped vault keys. The core only needs the
// operations below; the concrete store (a relational table in production)
// is an external collaborator.
type VaultKeyStore interface {
	Load(vaultID int64) ([]*vaulttypes.VaultKey, error)
	Save(key *vaulttypes.VaultKey) error
}

// VaultKeyManager loads, wraps, unwraps, and rotates per-vault data keys
// under the master key. Keys are held in memory behind a mutex and loaded
// on first use per vault, per the concurrency model.
type VaultKeyManager struct {
	master *MasterKeyProvider
	store  VaultKeyStore

	mu   sync.Mutex
	keys map[int64][]*vaulttypes.VaultKey // version-ordered, newest last
}

// NewVaultKeyManager constructs a manager backed by the given master key
// provider and persistence store.
func NewVaultKeyManager(master *MasterKeyProvider, store VaultKeyStore) *VaultKeyManager {
	return &VaultKeyManager{
		master: master,
		store:  store,
		keys:   make(map[int64][]*vaulttypes.VaultKey),
	}
}

// ActiveKey returns the current (highest-version, non-retired) data key for
// a vault, loading and unwrapping it from the store on first use, or
// generating one if the vault has no key yet.
func (m *VaultKeyManager) ActiveKey(vaultID int64) (*vaulttypes.VaultKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions, err := m.loadLocked(vaultID)
	if err != nil {
		return nil, err
	}

	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].State != vaulttypes.KeyRetired {
			return versions[i], nil
		}
	}

	return m.createKeyLocked(vaultID, len(versions)+1)
}

// loadLocked loads and unwraps every key version for a vault from the
// store into the in-memory cache, if not already cached. Caller holds mu.
func (m *VaultKeyManager) loadLocked(vaultID int64) ([]*vaulttypes.VaultKey, error) {
	if versions, ok := m.keys[vaultID]; ok {
		return versions, nil
	}

	stored, err := m.store.Load(vaultID)
	if err != nil {
		return nil, vherrors.Wrap(vherrors.Internal, err, "failed to load vault keys").
			WithComponent("crypto").WithOperation("load_keys")
	}

	master := m.master.GetMasterKey()
	for _, k := range stored {
		plain, err := DecryptAESGCM(k.WrappedKeyBytes, master, k.IV)
		if err != nil {
			return nil, vherrors.Wrap(vherrors.AuthFailure, err, "failed to unwrap vault data key").
				WithComponent("crypto").WithOperation("load_keys").
				WithDetail("vault_id", vaultID).WithDetail("version", k.Version)
		}
		k.DataKey = plain
	}

	m.keys[vaultID] = stored
	return stored, nil
}

// createKeyLocked generates, wraps, and persists a new data key version for
// a vault. Caller holds mu.
func (m *VaultKeyManager) createKeyLocked(vaultID int64, version int) (*vaulttypes.VaultKey, error) {
	dataKey, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	master := m.master.GetMasterKey()
	wrapped, iv, err := EncryptAESGCM(dataKey, master)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	key := &vaulttypes.VaultKey{
		VaultID:         vaultID,
		Version:         version,
		DataKey:         dataKey,
		WrappedKeyBytes: wrapped,
		IV:              iv,
		State:           vaulttypes.KeyActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := m.store.Save(key); err != nil {
		return nil, vherrors.Wrap(vherrors.Internal, err, "failed to persist vault data key").
			WithComponent("crypto").WithOperation("create_key")
	}

	m.keys[vaultID] = append(m.keys[vaultID], key)
	return key, nil
}

// Rotate creates a new active key version for a vault and marks the
// previously active version as rotation-in-progress; it stays retained
// until CompleteRotation is called once all ciphertext has been re-wrapped.
func (m *VaultKeyManager) Rotate(vaultID int64) (*vaulttypes.VaultKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions, err := m.loadLocked(vaultID)
	if err != nil {
		return nil, err
	}

	for _, k := range versions {
		if k.State == vaulttypes.KeyActive {
			k.State = vaulttypes.KeyRotationInProgress
			k.UpdatedAt = time.Now()
			if err := m.store.Save(k); err != nil {
				return nil, vherrors.Wrap(vherrors.Internal, err, "failed to mark key rotation in progress").
					WithComponent("crypto").WithOperation("rotate")
			}
		}
	}

	return m.createKeyLocked(vaultID, len(versions)+1)
}

// CompleteRotation marks a superseded key version as retired once every
// ciphertext that referenced it has been re-wrapped under the new version.
func (m *VaultKeyManager) CompleteRotation(vaultID int64, oldVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions, err := m.loadLocked(vaultID)
	if err != nil {
		return err
	}

	for _, k := range versions {
		if k.Version == oldVersion {
			k.State = vaulttypes.KeyRetired
			k.UpdatedAt = time.Now()
			return m.store.Save(k)
		}
	}

	return vherrors.New(vherrors.NotFound, "vault key version not found").
		WithComponent("crypto").WithOperation("complete_rotation").
		WithDetail("vault_id", vaultID).WithDetail("version", oldVersion)
}

// KeyByVersion returns a specific key version for a vault, used to decrypt
// ciphertext written under a now-superseded version during rotation.
func (m *VaultKeyManager) KeyByVersion(vaultID int64, version int) (*vaulttypes.VaultKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions, err := m.loadLocked(vaultID)
	if err != nil {
		return nil, err
	}

	for _, k := range versions {
		if k.Version == version {
			return k, nil
		}
	}
	return nil, vherrors.New(vherrors.NotFound, "vault key version not found").
		WithComponent("crypto").WithOperation("key_by_version").
		WithDetail("vault_id", vaultID).WithDetail("version", version)
}
