/*
Package crypto implements Vaulthalla's cryptographic core (C1): AES-256-GCM
payload encryption, a sealed master key, and per-vault data key lifecycle
management including rotation.

# Key hierarchy

	MasterKeyProvider (one sealed blob per host)
	        │ wraps
	        ▼
	VaultKey (one active version per vault, plus retained prior
	          versions while a rotation is in progress)
	        │ encrypts
	        ▼
	object payloads

The master key is sealed to a fixed path on disk (default
/var/lib/vaulthalla/sealed_master.blob), generated on first start and
unsealed on every subsequent one. Per-vault data keys are generated lazily
on first use, wrapped under the master key, and persisted through a
VaultKeyStore. Rotation creates a new active version while the superseded
one is retained in a rotation-in-progress state until the caller confirms
every ciphertext referencing it has been re-wrapped, at which point
CompleteRotation retires it.

# Payload encryption

EncryptAESGCM generates a random 12-byte IV and returns ciphertext with the
16-byte GCM tag appended. DecryptAESGCM rejects any ciphertext whose tag
does not verify with an AuthFailure error, never a generic one, so callers
can distinguish tampering or a wrong key from transport corruption.

No key material is logged or serialised outside its wrapped, on-disk form.
*/
package crypto
