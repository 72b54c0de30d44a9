// Package local implements the Local Disk Engine (C3): a StorageEngine
// rooted at a single backing directory on a POSIX-capable filesystem.
package local

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"

	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
	"github.com/vaulthalla/vaulthalla/pkg/utils"
	"github.com/vaulthalla/vaulthalla/pkg/vherrors"
)

// Engine is a StorageEngine rooted at root. Every relative path is resolved
// against root through utils.SecureJoin, which rejects any resolved path
// falling outside of it.
type Engine struct {
	root string
}

// New constructs a Local Disk Engine rooted at the given backing directory.
// The directory is created if it does not already exist.
func New(root string) (*Engine, error) {
	clean := filepath.Clean(root)
	if err := os.MkdirAll(clean, 0755); err != nil {
		return nil, vherrors.Wrap(vherrors.Internal, err, "failed to create backing root").
			WithComponent("storage.local").WithDetail("root", clean)
	}
	return &Engine{root: clean}, nil
}

func (e *Engine) resolve(rel string) (string, error) {
	abs, err := utils.SecureJoin(e.root, rel)
	if err != nil {
		return "", vherrors.Wrap(vherrors.Internal, err, "path escapes backing root").
			WithComponent("storage.local").WithDetail("rel", rel)
	}
	return abs, nil
}

// Mkdir creates a directory and all missing ancestors.
func (e *Engine) Mkdir(ctx context.Context, rel string) error {
	abs, err := e.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return vherrors.Wrap(vherrors.Internal, err, "mkdir failed").
			WithComponent("storage.local").WithOperation("mkdir").WithDetail("path", rel)
	}
	return nil
}

// Write stores data at rel through a create-parents-then-write sequence.
func (e *Engine) Write(ctx context.Context, rel string, data []byte, overwrite bool) error {
	abs, err := e.resolve(rel)
	if err != nil {
		return err
	}

	if !overwrite {
		if _, statErr := os.Stat(abs); statErr == nil {
			return vherrors.New(vherrors.AlreadyExists, "entry already exists").
				WithComponent("storage.local").WithOperation("write").WithDetail("path", rel)
		}
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return vherrors.Wrap(vherrors.Internal, err, "failed to create parent directories").
			WithComponent("storage.local").WithOperation("write").WithDetail("path", rel)
	}

	if err := os.WriteFile(abs, data, 0644); err != nil {
		return vherrors.Wrap(vherrors.Internal, err, "write failed").
			WithComponent("storage.local").WithOperation("write").WithDetail("path", rel)
	}
	return nil
}

// Read returns the full contents at rel.
func (e *Engine) Read(ctx context.Context, rel string) ([]byte, error) {
	abs, err := e.resolve(rel)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vherrors.New(vherrors.NotFound, "entry not found").
				WithComponent("storage.local").WithOperation("read").WithDetail("path", rel)
		}
		return nil, vherrors.Wrap(vherrors.Internal, err, "read failed").
			WithComponent("storage.local").WithOperation("read").WithDetail("path", rel)
	}
	return data, nil
}

// Delete removes rel. Files are removed non-recursively; directories only
// if empty (a non-empty directory fails the delete).
func (e *Engine) Delete(ctx context.Context, rel string) error {
	abs, err := e.resolve(rel)
	if err != nil {
		return err
	}

	info, statErr := os.Stat(abs)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return vherrors.New(vherrors.NotFound, "entry not found").
				WithComponent("storage.local").WithOperation("delete").WithDetail("path", rel)
		}
		return vherrors.Wrap(vherrors.Internal, statErr, "stat failed").
			WithComponent("storage.local").WithOperation("delete").WithDetail("path", rel)
	}

	if info.IsDir() {
		if rmErr := os.Remove(abs); rmErr != nil {
			return vherrors.Wrap(vherrors.Internal, rmErr, "rmdir failed (directory may not be empty)").
				WithComponent("storage.local").WithOperation("delete").WithDetail("path", rel)
		}
		return nil
	}

	if rmErr := os.Remove(abs); rmErr != nil {
		return vherrors.Wrap(vherrors.Internal, rmErr, "delete failed").
			WithComponent("storage.local").WithOperation("delete").WithDetail("path", rel)
	}
	return nil
}

// Exists reports whether an entry is present at rel.
func (e *Engine) Exists(ctx context.Context, rel string) (bool, error) {
	abs, err := e.resolve(rel)
	if err != nil {
		return false, err
	}
	if _, statErr := os.Stat(abs); statErr != nil {
		if os.IsNotExist(statErr) {
			return false, nil
		}
		return false, vherrors.Wrap(vherrors.Internal, statErr, "stat failed").
			WithComponent("storage.local").WithOperation("exists").WithDetail("path", rel)
	}
	return true, nil
}

// List returns every entry directly beneath rel, or beneath it recursively.
func (e *Engine) List(ctx context.Context, rel string, recursive bool) ([]vaulttypes.ListedFile, error) {
	abs, err := e.resolve(rel)
	if err != nil {
		return nil, err
	}

	var out []vaulttypes.ListedFile
	walkErr := filepath.Walk(abs, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == abs {
			return nil
		}

		relPath, relErr := filepath.Rel(e.root, path)
		if relErr != nil {
			return relErr
		}
		relPath = "/" + filepath.ToSlash(relPath)

		kind := vaulttypes.KindFile
		if info.IsDir() {
			kind = vaulttypes.KindDirectory
		}

		var hash string
		if kind == vaulttypes.KindFile {
			hash, relErr = contentHash(path)
			if relErr != nil {
				return relErr
			}
		}

		out = append(out, vaulttypes.ListedFile{
			Path:        relPath,
			Size:        info.Size(),
			Modified:    info.ModTime(),
			Kind:        kind,
			ContentHash: hash,
		})
		if info.IsDir() && !recursive {
			return filepath.SkipDir
		}
		return nil
	})
	if walkErr != nil {
		if os.IsNotExist(walkErr) {
			return nil, vherrors.New(vherrors.NotFound, "directory not found").
				WithComponent("storage.local").WithOperation("list").WithDetail("path", rel)
		}
		return nil, vherrors.Wrap(vherrors.Internal, walkErr, "list failed").
			WithComponent("storage.local").WithOperation("list").WithDetail("path", rel)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Stat returns the entry at rel.
func (e *Engine) Stat(ctx context.Context, rel string) (*vaulttypes.ListedFile, error) {
	abs, err := e.resolve(rel)
	if err != nil {
		return nil, err
	}

	info, statErr := os.Stat(abs)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return nil, vherrors.New(vherrors.NotFound, "entry not found").
				WithComponent("storage.local").WithOperation("stat").WithDetail("path", rel)
		}
		return nil, vherrors.Wrap(vherrors.Internal, statErr, "stat failed").
			WithComponent("storage.local").WithOperation("stat").WithDetail("path", rel)
	}

	kind := vaulttypes.KindFile
	if info.IsDir() {
		kind = vaulttypes.KindDirectory
	}

	var hash string
	if kind == vaulttypes.KindFile {
		hash, err = contentHash(abs)
		if err != nil {
			return nil, err
		}
	}

	return &vaulttypes.ListedFile{
		Path:        rel,
		Size:        info.Size(),
		Modified:    info.ModTime(),
		Kind:        kind,
		ContentHash: hash,
	}, nil
}

// contentHash returns the MD5 digest of the file at abs, hex-encoded. MD5
// is not a security boundary here; it matches the ETag a single-PUT (non
// multipart) S3 upload returns for the same bytes, so decideForBoth can
// treat a local file and its already-synced remote object as identical
// without re-transferring them.
func contentHash(abs string) (string, error) {
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", vherrors.Wrap(vherrors.Internal, err, "failed to hash file contents").
			WithComponent("storage.local").WithOperation("hash").WithDetail("path", abs)
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// Abs returns the absolute backing path for rel.
func (e *Engine) Abs(rel string) string {
	abs, err := e.resolve(rel)
	if err != nil {
		return ""
	}
	return abs
}

// Type reports VaultLocal.
func (e *Engine) Type() vaulttypes.VaultType {
	return vaulttypes.VaultLocal
}
