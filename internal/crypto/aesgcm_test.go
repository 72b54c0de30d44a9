package crypto

import (
	"bytes"
	"testing"

	"github.com/vaulthalla/vaulthalla/pkg/vherrors"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	plaintext := []byte("vaulthalla test payload")
	ciphertext, iv, err := EncryptAESGCM(plaintext, key)
	if err != nil {
		t.Fatalf("EncryptAESGCM() error = %v", err)
	}
	if len(iv) != IVSize {
		t.Errorf("IV length = %d, want %d", len(iv), IVSize)
	}

	got, err := DecryptAESGCM(ciphertext, key, iv)
	if err != nil {
		t.Fatalf("DecryptAESGCM() error = %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip = %q, want %q", got, plaintext)
	}
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	key, _ := GenerateKey()
	ciphertext, iv, err := EncryptAESGCM([]byte("hello"), key)
	if err != nil {
		t.Fatalf("EncryptAESGCM() error = %v", err)
	}

	tampered := append([]byte(nil), ciphertext...)
	tampered[0] ^= 0xFF

	_, err = DecryptAESGCM(tampered, key, iv)
	if err == nil {
		t.Fatalf("expected tampered ciphertext to fail decryption")
	}
	if vherrors.KindOf(err) != vherrors.AuthFailure {
		t.Errorf("error kind = %v, want AuthFailure", vherrors.KindOf(err))
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	key1, _ := GenerateKey()
	key2, _ := GenerateKey()

	ciphertext, iv, err := EncryptAESGCM([]byte("hello"), key1)
	if err != nil {
		t.Fatalf("EncryptAESGCM() error = %v", err)
	}

	_, err = DecryptAESGCM(ciphertext, key2, iv)
	if vherrors.KindOf(err) != vherrors.AuthFailure {
		t.Errorf("error kind = %v, want AuthFailure", vherrors.KindOf(err))
	}
}

func TestEncryptRejectsWrongKeySize(t *testing.T) {
	_, _, err := EncryptAESGCM([]byte("hello"), []byte("too-short"))
	if err == nil {
		t.Fatalf("expected error for undersized key")
	}
	if vherrors.KindOf(err) != vherrors.Internal {
		t.Errorf("error kind = %v, want Internal", vherrors.KindOf(err))
	}
}

func TestDecryptRejectsWrongIVSize(t *testing.T) {
	key, _ := GenerateKey()
	_, err := DecryptAESGCM([]byte("ciphertext"), key, []byte("short"))
	if vherrors.KindOf(err) != vherrors.AuthFailure {
		t.Errorf("error kind = %v, want AuthFailure", vherrors.KindOf(err))
	}
}
