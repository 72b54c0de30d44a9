// Package fuseadapter is a thin lowlevel FUSE binding over the hanwen/go-fuse
// raw API. It never maintains its own notion of inode identity: every
// identity question (path<->inode, stable ids, eviction) is delegated to the
// FS Cache (C5), and every byte of file data flows through a storage.Engine
// (C2). The adapter's own job is translating between fuse wire types and
// those two collaborators.
package fuseadapter

import (
	"context"
	"path"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/vaulthalla/vaulthalla/internal/cache"
	"github.com/vaulthalla/vaulthalla/internal/fscache"
	"github.com/vaulthalla/vaulthalla/internal/storage"
	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
	"github.com/vaulthalla/vaulthalla/pkg/utils"
	"github.com/vaulthalla/vaulthalla/pkg/vherrors"
)

// handle tracks an open file's vault-relative path and dirty state, the
// lowlevel-API analogue of the teacher's OpenFile bookkeeping.
type handle struct {
	path  string
	dirty bool
}

// CacheMetricsRecorder is the observability sink an Adapter reports content
// cache hit/miss outcomes to. internal/metrics.Collector implements this; a
// nil Adapter.Metrics is a valid no-op.
type CacheMetricsRecorder interface {
	RecordCacheHit(key string, size int64)
	RecordCacheMiss(key string, size int64)
}

// Adapter implements fuse.RawFileSystem by embedding a default (ENOSYS-
// everywhere) implementation and overriding only the operations the vault
// actually needs, the idiomatic pattern for the lowlevel go-fuse API.
type Adapter struct {
	fuse.RawFileSystem

	fsCache *fscache.Cache
	content *cache.LRUCache
	engine  storage.Engine
	logger  *utils.StructuredLogger

	// Metrics receives content cache hit/miss outcomes, if set. Left nil
	// for deployments with no Prometheus collector configured.
	Metrics CacheMetricsRecorder

	defaultUID  uint32
	defaultGID  uint32
	defaultMode uint32

	mu         sync.Mutex
	nextHandle uint64
	handles    map[uint64]*handle
}

// New constructs an Adapter over cache and engine. uid/gid/mode populate
// Getattr responses since the vault has no real POSIX owner metadata for
// S3-origin entries. content is the whole-object byte cache fronting reads
// and writes; pass nil to disable it and hit the engine on every call.
func New(fsCache *fscache.Cache, engine storage.Engine, content *cache.LRUCache, uid, gid, mode uint32, logger *utils.StructuredLogger) *Adapter {
	if logger == nil {
		logger, _ = utils.NewStructuredLogger(nil)
	}
	return &Adapter{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		fsCache:       fsCache,
		content:       content,
		engine:        engine,
		logger:        logger.WithComponent("fuseadapter"),
		defaultUID:    uid,
		defaultGID:    gid,
		defaultMode:   mode,
		nextHandle:    1,
		handles:       make(map[uint64]*handle),
	}
}

func (a *Adapter) String() string { return "vaulthalla" }

// pathForNode resolves a NodeId to its vault-relative path via the FS
// cache, treating the fuse root id as "/".
func (a *Adapter) pathForNode(nodeID uint64) (string, bool) {
	if nodeID == fuse.FUSE_ROOT_ID {
		return "/", true
	}
	return a.fsCache.ResolvePath(nodeID)
}

func (a *Adapter) childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return path.Join(parent, name)
}

func (a *Adapter) fillAttr(out *fuse.Attr, entry vaulttypes.Entry) {
	out.Uid = a.defaultUID
	out.Gid = a.defaultGID
	if entry.Kind == vaulttypes.KindDirectory {
		out.Mode = syscall.S_IFDIR | a.defaultMode | 0o111
	} else {
		out.Mode = syscall.S_IFREG | a.defaultMode
		out.Size = uint64OrZero(entry.Size)
	}
	ts := entry.ModifiedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	sec := uint64OrZero(ts.Unix())
	out.Mtime, out.Atime, out.Ctime = sec, sec, sec
}

func uint64OrZero(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// Lookup resolves (parentNodeID, name) to a stable inode, assigning one in
// the FS cache on first sight.
func (a *Adapter) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	parent, ok := a.pathForNode(header.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	childPath := a.childPath(parent, name)

	if entry, _, inode, ok := a.fsCache.Lookup(childPath); ok {
		out.NodeId = inode
		a.fillAttr(&out.Attr, entry)
		a.fsCache.IncrementRef(inode)
		return fuse.OK
	}

	stat, err := a.engine.Stat(context.Background(), childPath)
	if err != nil {
		if vherrors.Is(err, vherrors.NotFound) {
			return fuse.ENOENT
		}
		return fuse.EIO
	}

	entry := vaulttypes.Entry{
		Path:        childPath,
		Name:        name,
		Size:        stat.Size,
		Kind:        stat.Kind,
		ContentHash: stat.ContentHash,
		ModifiedAt:  stat.Modified,
	}
	inode := a.fsCache.Cache(entry, a.engine.Abs(childPath))
	out.NodeId = inode
	a.fillAttr(&out.Attr, entry)
	a.fsCache.IncrementRef(inode)
	return fuse.OK
}

// Forget releases nlookup references to nodeID, allowing deferred eviction
// to proceed once the count reaches zero.
func (a *Adapter) Forget(nodeID, nlookup uint64) {
	a.fsCache.DecrementRef(nodeID, nlookup)
}

// GetAttr fills out from the FS cache's entry, or the engine if the cache
// has no record (the root, or a never-looked-up node).
func (a *Adapter) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	p, ok := a.pathForNode(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	if p == "/" {
		out.Mode = syscall.S_IFDIR | a.defaultMode | 0o111
		out.Uid, out.Gid = a.defaultUID, a.defaultGID
		return fuse.OK
	}
	entry, _, ok := a.fsCache.LookupInode(input.NodeId)
	if ok {
		a.fillAttr(&out.Attr, entry)
		return fuse.OK
	}
	stat, err := a.engine.Stat(context.Background(), p)
	if err != nil {
		if vherrors.Is(err, vherrors.NotFound) {
			return fuse.ENOENT
		}
		return fuse.EIO
	}
	a.fillAttr(&out.Attr, vaulttypes.Entry{Path: p, Size: stat.Size, Kind: stat.Kind, ModifiedAt: stat.Modified})
	return fuse.OK
}

// Mkdir creates a directory through the engine and assigns it an inode.
func (a *Adapter) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	parent, ok := a.pathForNode(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	childPath := a.childPath(parent, name)
	if err := a.engine.Mkdir(context.Background(), childPath); err != nil {
		return fuse.EIO
	}
	entry := vaulttypes.Entry{Path: childPath, Name: name, Kind: vaulttypes.KindDirectory, ModifiedAt: time.Now()}
	inode := a.fsCache.Cache(entry, a.engine.Abs(childPath))
	out.NodeId = inode
	a.fillAttr(&out.Attr, entry)
	a.fsCache.IncrementRef(inode)
	return fuse.OK
}

// Unlink removes a file through the engine and evicts it from the cache.
func (a *Adapter) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	parent, ok := a.pathForNode(header.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	childPath := a.childPath(parent, name)
	if err := a.engine.Delete(context.Background(), childPath); err != nil && !vherrors.Is(err, vherrors.NotFound) {
		return fuse.EIO
	}
	a.fsCache.EvictByPath(childPath)
	a.invalidateContent(childPath)
	return fuse.OK
}

// Rmdir removes an (expected-empty) directory the same way Unlink removes a
// file; the engine itself enforces non-empty rejection.
func (a *Adapter) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	parent, ok := a.pathForNode(header.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	childPath := a.childPath(parent, name)
	if err := a.engine.Delete(context.Background(), childPath); err != nil {
		if vherrors.Is(err, vherrors.NotFound) {
			return fuse.ENOENT
		}
		return fuse.ENOTEMPTY
	}
	a.fsCache.EvictByPath(childPath)
	return fuse.OK
}

// Open allocates a file handle for subsequent Read/Write/Release calls.
func (a *Adapter) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	p, ok := a.pathForNode(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	a.mu.Lock()
	fh := a.nextHandle
	a.nextHandle++
	a.handles[fh] = &handle{path: p}
	a.mu.Unlock()
	out.Fh = fh
	return fuse.OK
}

// Read serves a full-object read, satisfying input.Offset and the requested
// buffer size by slicing the result in memory. Vaults are sized for this to
// be acceptable; a future revision may stream ranges. A hit in the content
// cache skips the engine round trip entirely.
func (a *Adapter) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	h, ok := a.handleFor(input.Fh)
	if !ok {
		return nil, fuse.EBADF
	}

	data, cached := a.contentGet(h.path)
	if !cached {
		fetched, err := a.engine.Read(context.Background(), h.path)
		if err != nil {
			if vherrors.Is(err, vherrors.NotFound) {
				return nil, fuse.ENOENT
			}
			return nil, fuse.EIO
		}
		data = fetched
		a.contentPut(h.path, data)
	}

	off := int(input.Offset)
	if off >= len(data) {
		return fuse.ReadResultData(nil), fuse.OK
	}
	end := off + len(buf)
	if end > len(data) {
		end = len(data)
	}
	return fuse.ReadResultData(data[off:end]), fuse.OK
}

// Write rewrites the entire backing object with data spliced in at
// input.Offset. This trades write amplification for correctness without an
// in-process staging buffer: every call reads (or takes from the content
// cache) and rewrites the whole object, so a file written sequentially in k
// chunks costs O(k*n) bytes written in total, not O(n).
func (a *Adapter) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	h, ok := a.handleFor(input.Fh)
	if !ok {
		return 0, fuse.EBADF
	}
	existing, cached := a.contentGet(h.path)
	if !cached {
		fetched, err := a.engine.Read(context.Background(), h.path)
		if err != nil && !vherrors.Is(err, vherrors.NotFound) {
			return 0, fuse.EIO
		}
		existing = fetched
	}
	off := int(input.Offset)
	needed := off + len(data)
	if needed > len(existing) {
		grown := make([]byte, needed)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[off:], data)

	if err := a.engine.Write(context.Background(), h.path, existing, true); err != nil {
		return 0, fuse.EIO
	}
	a.mu.Lock()
	h.dirty = true
	a.mu.Unlock()
	a.contentPut(h.path, existing)

	if stat, err := a.engine.Stat(context.Background(), h.path); err == nil {
		entry := vaulttypes.Entry{Path: h.path, Size: stat.Size, Kind: vaulttypes.KindFile, ContentHash: stat.ContentHash, ModifiedAt: stat.Modified}
		a.fsCache.Cache(entry, a.engine.Abs(h.path))
	}
	return uint32(len(data)), fuse.OK
}

// contentGet consults the whole-object content cache, if one is configured.
func (a *Adapter) contentGet(path string) ([]byte, bool) {
	if a.content == nil {
		return nil, false
	}
	data, ok := a.content.GetFull(path)
	if a.Metrics != nil {
		if ok {
			a.Metrics.RecordCacheHit(path, int64(len(data)))
		} else {
			a.Metrics.RecordCacheMiss(path, 0)
		}
	}
	return data, ok
}

// contentPut refreshes the whole-object content cache after a successful
// engine read or write.
func (a *Adapter) contentPut(path string, data []byte) {
	if a.content == nil {
		return
	}
	a.content.PutFull(path, data)
}

// invalidateContent drops path's cached bytes after delete, since a stale
// hit would otherwise resurrect deleted content on the next read.
func (a *Adapter) invalidateContent(path string) {
	if a.content == nil {
		return
	}
	a.content.InvalidateFull(path)
}

// Release drops a file handle. Dirty writes are already durable (Write is
// synchronous), so Release has nothing left to flush.
func (a *Adapter) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	a.mu.Lock()
	delete(a.handles, input.Fh)
	a.mu.Unlock()
}

func (a *Adapter) handleFor(fh uint64) (*handle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.handles[fh]
	return h, ok
}

// OpenDir allocates a directory handle; directory contents are listed fresh
// on every ReadDir rather than snapshotted at Open time.
func (a *Adapter) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	return a.Open(cancel, input, out)
}

// ReleaseDir mirrors Release for directory handles.
func (a *Adapter) ReleaseDir(input *fuse.ReleaseIn) {
	a.Release(nil, input)
}

// ReadDir lists the engine's children of the handle's path.
func (a *Adapter) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	h, ok := a.handleFor(input.Fh)
	if !ok {
		return fuse.EBADF
	}
	listed, err := a.engine.List(context.Background(), h.path, false)
	if err != nil {
		return fuse.EIO
	}
	for _, f := range listed {
		mode := uint32(syscall.S_IFREG)
		if f.Kind == vaulttypes.KindDirectory {
			mode = syscall.S_IFDIR
		}
		out.AddDirEntry(fuse.DirEntry{Name: path.Base(f.Path), Mode: mode})
	}
	return fuse.OK
}

// StatFs reports generic, non-authoritative filesystem statistics; vaults
// don't map cleanly onto block-device semantics.
func (a *Adapter) StatFs(cancel <-chan struct{}, header *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	out.Bsize = 4096
	out.Blocks = 1 << 30
	out.Bfree = 1 << 29
	out.Bavail = out.Bfree
	out.NameLen = 255
	return fuse.OK
}

// Init wires the server handle back to RawFileSystem's default
// implementation so unimplemented operations still see it.
func (a *Adapter) Init(server *fuse.Server) {
	a.RawFileSystem.Init(server)
}
