package local

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
	"github.com/vaulthalla/vaulthalla/pkg/vherrors"
)

func TestWriteReadDelete(t *testing.T) {
	ctx := context.Background()
	e, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := e.Write(ctx, "/docs/report.txt", []byte("hello"), false); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := e.Read(ctx, "/docs/report.txt")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Read() = %q, want %q", data, "hello")
	}

	if err := e.Delete(ctx, "/docs/report.txt"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := e.Read(ctx, "/docs/report.txt"); vherrors.KindOf(err) != vherrors.NotFound {
		t.Errorf("Read() after delete error kind = %v, want NotFound", vherrors.KindOf(err))
	}
}

func TestWriteWithoutOverwriteFailsOnExisting(t *testing.T) {
	ctx := context.Background()
	e, _ := New(t.TempDir())

	if err := e.Write(ctx, "/a.txt", []byte("v1"), false); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	err := e.Write(ctx, "/a.txt", []byte("v2"), false)
	if vherrors.KindOf(err) != vherrors.AlreadyExists {
		t.Errorf("error kind = %v, want AlreadyExists", vherrors.KindOf(err))
	}

	if err := e.Write(ctx, "/a.txt", []byte("v2"), true); err != nil {
		t.Fatalf("overwrite Write() error = %v", err)
	}
	data, _ := e.Read(ctx, "/a.txt")
	if string(data) != "v2" {
		t.Errorf("Read() after overwrite = %q, want %q", data, "v2")
	}
}

func TestReadMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	e, _ := New(t.TempDir())

	_, err := e.Read(ctx, "/missing.txt")
	if vherrors.KindOf(err) != vherrors.NotFound {
		t.Errorf("error kind = %v, want NotFound", vherrors.KindOf(err))
	}
}

func TestDeleteNonEmptyDirectoryFails(t *testing.T) {
	ctx := context.Background()
	e, _ := New(t.TempDir())

	if err := e.Write(ctx, "/dir/file.txt", []byte("x"), false); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if err := e.Delete(ctx, "/dir"); err == nil {
		t.Errorf("expected Delete() of a non-empty directory to fail")
	}
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	e, _ := New(t.TempDir())

	ok, err := e.Exists(ctx, "/x.txt")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if ok {
		t.Errorf("Exists() = true for missing entry")
	}

	if err := e.Write(ctx, "/x.txt", []byte("x"), false); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	ok, err = e.Exists(ctx, "/x.txt")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !ok {
		t.Errorf("Exists() = false for present entry")
	}
}

func TestListRecursiveAndNonRecursive(t *testing.T) {
	ctx := context.Background()
	e, _ := New(t.TempDir())

	for _, p := range []string{"/a.txt", "/sub/b.txt", "/sub/deeper/c.txt"} {
		if err := e.Write(ctx, p, []byte("x"), false); err != nil {
			t.Fatalf("Write(%s) error = %v", p, err)
		}
	}

	flat, err := e.List(ctx, "/", false)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(flat) != 2 { // a.txt and sub/ directory
		t.Errorf("non-recursive List() returned %d entries, want 2", len(flat))
	}

	all, err := e.List(ctx, "/", true)
	if err != nil {
		t.Fatalf("List(recursive) error = %v", err)
	}
	var fileCount int
	for _, f := range all {
		if f.Kind == vaulttypes.KindFile {
			fileCount++
		}
	}
	if fileCount != 3 {
		t.Errorf("recursive List() found %d files, want 3", fileCount)
	}
}

func TestPathEscapeRejected(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	e, _ := New(root)

	_, err := e.Read(ctx, filepath.Join("..", "..", "etc", "passwd"))
	if err == nil {
		t.Errorf("expected path escape to be rejected")
	}
}

func TestListAndStatPopulateContentHash(t *testing.T) {
	ctx := context.Background()
	e, _ := New(t.TempDir())

	if err := e.Write(ctx, "/a.txt", []byte("hello"), false); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := e.Write(ctx, "/dir/b.txt", []byte("hello"), false); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	listed, err := e.List(ctx, "/", true)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	byPath := make(map[string]vaulttypes.ListedFile, len(listed))
	for _, f := range listed {
		byPath[f.Path] = f
	}

	a, ok := byPath["/a.txt"]
	if !ok || a.ContentHash == "" {
		t.Fatalf("List() entry for /a.txt missing ContentHash: %+v", a)
	}
	b, ok := byPath["/dir/b.txt"]
	if !ok || b.ContentHash == "" {
		t.Fatalf("List() entry for /dir/b.txt missing ContentHash: %+v", b)
	}
	if a.ContentHash != b.ContentHash {
		t.Errorf("identical content hashed differently: %q vs %q", a.ContentHash, b.ContentHash)
	}

	dir, ok := byPath["/dir"]
	if !ok {
		t.Fatalf("List() missing directory entry /dir")
	}
	if dir.ContentHash != "" {
		t.Errorf("directory entry has a ContentHash, want empty: %q", dir.ContentHash)
	}

	stat, err := e.Stat(ctx, "/a.txt")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if stat.ContentHash != a.ContentHash {
		t.Errorf("Stat() ContentHash = %q, want %q (must match List())", stat.ContentHash, a.ContentHash)
	}

	if err := e.Write(ctx, "/a.txt", []byte("goodbye"), true); err != nil {
		t.Fatalf("overwrite Write() error = %v", err)
	}
	restat, err := e.Stat(ctx, "/a.txt")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if restat.ContentHash == stat.ContentHash {
		t.Errorf("ContentHash did not change after content changed")
	}
}

func TestAbsAndType(t *testing.T) {
	root := t.TempDir()
	e, _ := New(root)

	if e.Type() != vaulttypes.VaultLocal {
		t.Errorf("Type() = %v, want VaultLocal", e.Type())
	}

	abs := e.Abs("/foo.txt")
	want := filepath.Join(root, "foo.txt")
	if abs != want {
		t.Errorf("Abs() = %q, want %q", abs, want)
	}
}
