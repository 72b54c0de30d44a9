package crypto

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/vaulthalla/vaulthalla/pkg/vherrors"
)

// MasterKeyProvider owns the single master key Vaulthalla uses to wrap every
// vault's data key. The key lives in a sealed blob on disk: generated and
// sealed on first start, unsealed on every subsequent start. There is no
// hardware TPM available to this implementation, so sealing is simulated by
// restrictive file permissions on the blob; the seal/unseal boundary is kept
// opaque behind Init so a real hardware-backed seal can replace it later
// without touching callers.
type MasterKeyProvider struct {
	mu             sync.RWMutex
	sealedBlobPath string
	masterKey      []byte
}

// NewMasterKeyProvider constructs a provider rooted at the given sealed blob
// path. Init must be called before GetMasterKey.
func NewMasterKeyProvider(sealedBlobPath string) *MasterKeyProvider {
	return &MasterKeyProvider{sealedBlobPath: sealedBlobPath}
}

// Init loads the master key, generating and sealing one on first run.
func (p *MasterKeyProvider) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := os.Stat(p.sealedBlobPath); err == nil {
		return p.unseal()
	} else if !os.IsNotExist(err) {
		return vherrors.Wrap(vherrors.Internal, err, "failed to stat sealed master key blob").
			WithComponent("crypto").WithOperation("init")
	}
	return p.generateAndSeal()
}

func (p *MasterKeyProvider) generateAndSeal() error {
	key, err := GenerateKey()
	if err != nil {
		return err
	}

	dir := filepath.Dir(p.sealedBlobPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return vherrors.Wrap(vherrors.Internal, err, "failed to create sealed key directory").
			WithComponent("crypto").WithOperation("generate_and_seal")
	}

	if err := os.WriteFile(p.sealedBlobPath, key, 0600); err != nil {
		return vherrors.Wrap(vherrors.Internal, err, "failed to write sealed master key blob").
			WithComponent("crypto").WithOperation("generate_and_seal")
	}

	p.masterKey = key
	return nil
}

func (p *MasterKeyProvider) unseal() error {
	data, err := os.ReadFile(p.sealedBlobPath)
	if err != nil {
		return vherrors.Wrap(vherrors.Internal, err, "failed to read sealed master key blob").
			WithComponent("crypto").WithOperation("unseal")
	}
	if len(data) != KeySize {
		return vherrors.New(vherrors.Corruption, "sealed master key blob has unexpected length").
			WithComponent("crypto").WithOperation("unseal").
			WithDetail("blob_len", len(data))
	}
	p.masterKey = data
	return nil
}

// GetMasterKey returns the unsealed master key. It must not be logged or
// serialised by callers.
func (p *MasterKeyProvider) GetMasterKey() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]byte, len(p.masterKey))
	copy(out, p.masterKey)
	return out
}
