package crypto

import "github.com/vaulthalla/vaulthalla/pkg/vherrors"

// VaultEncryptionManager encrypts and decrypts payloads for one vault,
// resolving the active (or, during rotation, a specific prior) data key
// through a VaultKeyManager.
type VaultEncryptionManager struct {
	vaultID int64
	keys    *VaultKeyManager
}

// NewVaultEncryptionManager constructs a manager scoped to one vault.
func NewVaultEncryptionManager(vaultID int64, keys *VaultKeyManager) *VaultEncryptionManager {
	return &VaultEncryptionManager{vaultID: vaultID, keys: keys}
}

// Encrypt wraps plaintext under the vault's current active data key. It
// returns the ciphertext, the generated IV, and the key version used, all
// of which the caller attaches as object metadata (x-amz-meta-iv,
// x-amz-meta-keyver).
func (m *VaultEncryptionManager) Encrypt(plaintext []byte) (ciphertext, iv []byte, keyVersion int, err error) {
	key, err := m.keys.ActiveKey(m.vaultID)
	if err != nil {
		return nil, nil, 0, err
	}

	ciphertext, iv, err = EncryptAESGCM(plaintext, key.DataKey)
	if err != nil {
		return nil, nil, 0, err
	}
	return ciphertext, iv, key.Version, nil
}

// Decrypt unwraps ciphertext using the data key version it was encrypted
// under, which may be a retired version still held for rotation purposes.
func (m *VaultEncryptionManager) Decrypt(ciphertext, iv []byte, keyVersion int) ([]byte, error) {
	key, err := m.keys.KeyByVersion(m.vaultID, keyVersion)
	if err != nil {
		return nil, vherrors.Wrap(vherrors.AuthFailure, err, "unknown vault key version").
			WithComponent("crypto").WithOperation("decrypt").
			WithDetail("vault_id", m.vaultID).WithDetail("key_version", keyVersion)
	}
	return DecryptAESGCM(ciphertext, key.DataKey, iv)
}
