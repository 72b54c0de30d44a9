// Package crypto implements Vaulthalla's encryption primitives: AES-256-GCM
// payload encryption, a TPM-sealed-blob master key, and per-vault data key
// wrap/unwrap with rotation support.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/vaulthalla/vaulthalla/pkg/vherrors"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the GCM standard nonce length in bytes.
	IVSize = 12
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
)

// EncryptAESGCM encrypts plaintext under key, generating a fresh random IV.
// It returns ciphertext with the GCM tag appended, and the generated IV.
func EncryptAESGCM(plaintext, key []byte) (ciphertext, iv []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	iv = make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, vherrors.Wrap(vherrors.Internal, err, "failed to generate IV").
			WithComponent("crypto")
	}

	ciphertext = gcm.Seal(nil, iv, plaintext, nil)
	return ciphertext, iv, nil
}

// DecryptAESGCM decrypts ciphertext (with trailing tag) under key and iv. A
// tag mismatch or truncated input is reported as AuthFailure, never as a
// generic error, so callers can distinguish tampering from misuse.
func DecryptAESGCM(ciphertext, key, iv []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(iv) != IVSize {
		return nil, vherrors.New(vherrors.AuthFailure, "invalid IV length").
			WithComponent("crypto").
			WithDetail("iv_len", len(iv))
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, vherrors.Wrap(vherrors.AuthFailure, err, "GCM tag verification failed").
			WithComponent("crypto")
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, vherrors.New(vherrors.Internal, "AES-256 key must be 32 bytes").
			WithComponent("crypto").
			WithDetail("key_len", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, vherrors.Wrap(vherrors.Internal, err, "failed to construct AES cipher").
			WithComponent("crypto")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, vherrors.Wrap(vherrors.Internal, err, "failed to construct GCM mode").
			WithComponent("crypto")
	}
	return gcm, nil
}

// GenerateKey returns a fresh, random AES-256 key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, vherrors.Wrap(vherrors.Internal, err, "failed to generate key").
			WithComponent("crypto")
	}
	return key, nil
}
