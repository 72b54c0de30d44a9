// Package storage defines the uniform StorageEngine contract (C2) consumed
// by the sync engine, the FUSE adapter, and command handlers. Local and S3
// are the two concrete implementations, in the local and s3 subpackages.
package storage

import (
	"context"

	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
)

// Engine is the uniform read/write/list/delete/stat contract over a vault's
// root. Paths passed to its methods are vault-relative. The local engine
// resolves each path against its root with utils.SecureJoin and rejects only
// a path that resolves outside the root; a ".." component that stays inside
// the root is accepted. The S3 engine trims a leading "/" or "./" to form the
// object key and does not reject ".." components.
type Engine interface {
	// Mkdir creates a directory and all missing ancestors.
	Mkdir(ctx context.Context, rel string) error

	// Write stores bytes at rel. If overwrite is false and an entry already
	// exists at rel, Write fails with vherrors.AlreadyExists.
	Write(ctx context.Context, rel string, data []byte, overwrite bool) error

	// Read returns the full contents at rel, or vherrors.NotFound.
	Read(ctx context.Context, rel string) ([]byte, error)

	// Delete removes the entry at rel, or vherrors.NotFound.
	Delete(ctx context.Context, rel string) error

	// Exists reports whether an entry is present at rel.
	Exists(ctx context.Context, rel string) (bool, error)

	// List returns every entry at rel; if recursive, every entry beneath it.
	List(ctx context.Context, rel string, recursive bool) ([]vaulttypes.ListedFile, error)

	// Stat returns the entry at rel, or vherrors.NotFound.
	Stat(ctx context.Context, rel string) (*vaulttypes.ListedFile, error)

	// Abs returns the absolute backing path (Local) or logical object key
	// (S3) for rel.
	Abs(rel string) string

	// Type reports which VaultType this engine implements.
	Type() vaulttypes.VaultType
}
