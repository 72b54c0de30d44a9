// Package fscache implements the FS Cache (C5): the in-memory inode↔path↔
// entry registry that FUSE and the sync engine both consult as the sole
// authority for inode identity within a mount.
package fscache

import (
	"sync"

	"github.com/vaulthalla/vaulthalla/internal/vaulttypes"
)

// rootInode is reserved for the FUSE mount root and never assigned by Cache.
const rootInode uint64 = 1

// firstAssignableInode is the first inode Cache hands out.
const firstAssignableInode uint64 = 2

// record holds everything the cache knows about one live entry.
type record struct {
	path        string
	entry       vaulttypes.Entry
	absBacking  string
	refCount    uint64
}

// Cache is the shared inode/path/entry registry. All methods are
// concurrency-safe; reads take an RLock and never block one another.
type Cache struct {
	mu        sync.RWMutex
	nextInode uint64
	byPath    map[string]uint64
	byInode   map[uint64]*record
}

// New constructs an empty Cache with inode assignment starting at 2.
func New() *Cache {
	return &Cache{
		nextInode: firstAssignableInode,
		byPath:    make(map[string]uint64),
		byInode:   make(map[uint64]*record),
	}
}

// Cache inserts or replaces entry by path, reusing its inode if the path is
// already assigned one. Returns the inode now associated with entry.
func (c *Cache) Cache(entry vaulttypes.Entry, absBacking string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	inode, ok := c.byPath[entry.Path]
	if !ok {
		inode = c.nextInode
		c.nextInode++
		c.byPath[entry.Path] = inode
	}

	existing := c.byInode[inode]
	refCount := uint64(0)
	if existing != nil {
		refCount = existing.refCount
	}

	entry.Inode = &inode
	c.byInode[inode] = &record{
		path:       entry.Path,
		entry:      entry,
		absBacking: absBacking,
		refCount:   refCount,
	}
	return inode
}

// AssignInode is idempotent: it returns the inode already assigned to path,
// or allocates and registers a new one if path is unseen.
func (c *Cache) AssignInode(path string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if inode, ok := c.byPath[path]; ok {
		return inode
	}

	inode := c.nextInode
	c.nextInode++
	c.byPath[path] = inode
	c.byInode[inode] = &record{path: path}
	return inode
}

// ResolvePath returns the path registered for inode, if any.
func (c *Cache) ResolvePath(inode uint64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.byInode[inode]
	if !ok {
		return "", false
	}
	return rec.path, true
}

// ResolveInode returns the inode registered for path, if any.
func (c *Cache) ResolveInode(path string) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	inode, ok := c.byPath[path]
	return inode, ok
}

// Lookup returns the full record for path: entry, absolute backing path, and
// inode. ok is false if path is not currently cached.
func (c *Cache) Lookup(path string) (entry vaulttypes.Entry, absBacking string, inode uint64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, exists := c.byPath[path]
	if !exists {
		return vaulttypes.Entry{}, "", 0, false
	}
	rec := c.byInode[i]
	return rec.entry, rec.absBacking, i, true
}

// LookupInode is the inode-keyed counterpart of Lookup.
func (c *Cache) LookupInode(inode uint64) (entry vaulttypes.Entry, absBacking string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, exists := c.byInode[inode]
	if !exists {
		return vaulttypes.Entry{}, "", false
	}
	return rec.entry, rec.absBacking, true
}

// EvictByPath removes path (and its inode mapping) from the cache. If the
// entry has outstanding lookup references, the inode entry is kept until
// DecrementRef drops its count to zero.
func (c *Cache) EvictByPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inode, ok := c.byPath[path]
	if !ok {
		return
	}
	c.evictLocked(inode)
}

// EvictByInode is the inode-keyed counterpart of EvictByPath.
func (c *Cache) EvictByInode(inode uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(inode)
}

func (c *Cache) evictLocked(inode uint64) {
	rec, ok := c.byInode[inode]
	if !ok {
		return
	}
	delete(c.byPath, rec.path)

	if rec.refCount > 0 {
		// Deferred: FUSE may still hold lookups against this inode. The
		// path mapping is already gone so it won't resolve from a fresh
		// lookup; the inode entry itself is reaped by DecrementRef.
		return
	}
	delete(c.byInode, inode)
}

// IncrementRef records a FUSE lookup reference against inode.
func (c *Cache) IncrementRef(inode uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.byInode[inode]; ok {
		rec.refCount++
	}
}

// DecrementRef is FUSE forget bookkeeping: it drops nlookup references from
// inode, reaping the inode entry once its count reaches zero and its path
// mapping has already been evicted.
func (c *Cache) DecrementRef(inode uint64, nlookup uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.byInode[inode]
	if !ok {
		return
	}
	if nlookup >= rec.refCount {
		rec.refCount = 0
	} else {
		rec.refCount -= nlookup
	}

	if rec.refCount == 0 {
		if _, stillPathed := c.byPath[rec.path]; !stillPathed {
			delete(c.byInode, inode)
		}
	}
}

// RootInode returns the inode reserved for the FUSE mount root.
func RootInode() uint64 {
	return rootInode
}
