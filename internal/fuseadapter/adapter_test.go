package fuseadapter

import (
	"context"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaulthalla/vaulthalla/internal/cache"
	"github.com/vaulthalla/vaulthalla/internal/fscache"
	"github.com/vaulthalla/vaulthalla/internal/storage/local"
)

func newTestAdapter(t *testing.T) (*Adapter, *local.Engine) {
	t.Helper()
	engine, err := local.New(t.TempDir())
	require.NoError(t, err)
	content := cache.NewLRUCache(&cache.CacheConfig{MaxSize: 1024 * 1024})
	return New(fscache.New(), engine, content, 1000, 1000, 0o644, nil), engine
}

func TestLookupAssignsStableInodeForExistingFile(t *testing.T) {
	a, engine := newTestAdapter(t)
	require.NoError(t, engine.Write(context.Background(), "/a.txt", []byte("hi"), false))

	var out fuse.EntryOut
	status := a.Lookup(nil, &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "a.txt", &out)
	require.Equal(t, fuse.OK, status)
	assert.NotZero(t, out.NodeId)

	var out2 fuse.EntryOut
	status = a.Lookup(nil, &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "a.txt", &out2)
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, out.NodeId, out2.NodeId, "looking up the same path twice must return the same inode")
}

func TestLookupMissingReturnsENOENT(t *testing.T) {
	a, _ := newTestAdapter(t)
	var out fuse.EntryOut
	status := a.Lookup(nil, &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "missing.txt", &out)
	assert.Equal(t, fuse.ENOENT, status)
}

func TestMkdirThenLookupRoundTrips(t *testing.T) {
	a, _ := newTestAdapter(t)
	var mkOut fuse.EntryOut
	status := a.Mkdir(nil, &fuse.MkdirIn{InHeader: fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}}, "docs", &mkOut)
	require.Equal(t, fuse.OK, status)

	var lookupOut fuse.EntryOut
	status = a.Lookup(nil, &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "docs", &lookupOut)
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, mkOut.NodeId, lookupOut.NodeId)
	assert.NotZero(t, lookupOut.Attr.Mode & syscallDirBit())
}

func TestOpenWriteReadRoundTrips(t *testing.T) {
	a, _ := newTestAdapter(t)
	var entryOut fuse.EntryOut
	require.Equal(t, fuse.ENOENT, a.Lookup(nil, &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "b.txt", &entryOut))

	var createOut fuse.EntryOut
	require.Equal(t, fuse.OK, a.engineCreate(t, "/b.txt"))
	require.Equal(t, fuse.OK, a.Lookup(nil, &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "b.txt", &createOut))

	var openOut fuse.OpenOut
	status := a.Open(nil, &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: createOut.NodeId}}, &openOut)
	require.Equal(t, fuse.OK, status)

	written, status := a.Write(nil, &fuse.WriteIn{InHeader: fuse.InHeader{}, Fh: openOut.Fh, Offset: 0}, []byte("hello"))
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, uint32(5), written)

	buf := make([]byte, 64)
	result, status := a.Read(nil, &fuse.ReadIn{Fh: openOut.Fh, Offset: 0}, buf)
	require.Equal(t, fuse.OK, status)
	data, status2 := result.Bytes(buf)
	require.Equal(t, fuse.OK, status2)
	assert.Equal(t, "hello", string(data))

	a.Release(nil, &fuse.ReleaseIn{Fh: openOut.Fh})
}

func TestUnlinkEvictsFromCache(t *testing.T) {
	a, engine := newTestAdapter(t)
	require.NoError(t, engine.Write(context.Background(), "/c.txt", []byte("x"), false))

	var out fuse.EntryOut
	require.Equal(t, fuse.OK, a.Lookup(nil, &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "c.txt", &out))

	status := a.Unlink(nil, &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "c.txt")
	require.Equal(t, fuse.OK, status)

	_, ok := a.fsCache.ResolveInode("/c.txt")
	assert.False(t, ok)
}

func TestForgetDefersToCacheRefCounting(t *testing.T) {
	a, engine := newTestAdapter(t)
	require.NoError(t, engine.Write(context.Background(), "/d.txt", []byte("x"), false))

	var out fuse.EntryOut
	require.Equal(t, fuse.OK, a.Lookup(nil, &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "d.txt", &out))

	a.Forget(out.NodeId, 1)
	_, ok := a.fsCache.ResolvePath(out.NodeId)
	assert.True(t, ok, "forget alone must keep the inode of a path that is still cached; only eviction releases it")
}

func TestReadServesFromContentCacheWithoutRevisitingEngine(t *testing.T) {
	a, engine := newTestAdapter(t)
	require.NoError(t, engine.Write(context.Background(), "/e.txt", []byte("cached"), false))

	var entryOut fuse.EntryOut
	require.Equal(t, fuse.OK, a.Lookup(nil, &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "e.txt", &entryOut))
	var openOut fuse.OpenOut
	require.Equal(t, fuse.OK, a.Open(nil, &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: entryOut.NodeId}}, &openOut))

	buf := make([]byte, 64)
	result, status := a.Read(nil, &fuse.ReadIn{Fh: openOut.Fh, Offset: 0}, buf)
	require.Equal(t, fuse.OK, status)
	data, _ := result.Bytes(buf)
	assert.Equal(t, "cached", string(data))

	// Delete the backing object directly through the engine, bypassing the
	// adapter; a cache hit should still serve the old bytes.
	require.NoError(t, engine.Delete(context.Background(), "/e.txt"))

	result, status = a.Read(nil, &fuse.ReadIn{Fh: openOut.Fh, Offset: 0}, buf)
	require.Equal(t, fuse.OK, status, "a warm content-cache entry must not re-hit the engine")
	data, _ = result.Bytes(buf)
	assert.Equal(t, "cached", string(data))
}

func TestUnlinkInvalidatesContentCache(t *testing.T) {
	a, engine := newTestAdapter(t)
	require.NoError(t, engine.Write(context.Background(), "/f.txt", []byte("stale"), false))

	var entryOut fuse.EntryOut
	require.Equal(t, fuse.OK, a.Lookup(nil, &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "f.txt", &entryOut))
	var openOut fuse.OpenOut
	require.Equal(t, fuse.OK, a.Open(nil, &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: entryOut.NodeId}}, &openOut))

	buf := make([]byte, 64)
	_, status := a.Read(nil, &fuse.ReadIn{Fh: openOut.Fh, Offset: 0}, buf)
	require.Equal(t, fuse.OK, status)

	require.Equal(t, fuse.OK, a.Unlink(nil, &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "f.txt"))

	_, hit := a.content.GetFull("/f.txt")
	assert.False(t, hit, "unlink must drop the content cache entry")
}

// fakeCacheMetricsRecorder records every hit/miss call it receives, for
// asserting an Adapter actually reports content cache outcomes.
type fakeCacheMetricsRecorder struct {
	hits   []string
	misses []string
}

func (f *fakeCacheMetricsRecorder) RecordCacheHit(key string, _ int64) {
	f.hits = append(f.hits, key)
}

func (f *fakeCacheMetricsRecorder) RecordCacheMiss(key string, _ int64) {
	f.misses = append(f.misses, key)
}

func TestReadReportsContentCacheMissThenHitToMetrics(t *testing.T) {
	a, engine := newTestAdapter(t)
	require.NoError(t, engine.Write(context.Background(), "/g.txt", []byte("warm"), false))
	metrics := &fakeCacheMetricsRecorder{}
	a.Metrics = metrics

	var entryOut fuse.EntryOut
	require.Equal(t, fuse.OK, a.Lookup(nil, &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "g.txt", &entryOut))
	var openOut fuse.OpenOut
	require.Equal(t, fuse.OK, a.Open(nil, &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: entryOut.NodeId}}, &openOut))

	buf := make([]byte, 64)
	_, status := a.Read(nil, &fuse.ReadIn{Fh: openOut.Fh, Offset: 0}, buf)
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, []string{"/g.txt"}, metrics.misses, "first read must miss the empty content cache")
	assert.Empty(t, metrics.hits)

	_, status = a.Read(nil, &fuse.ReadIn{Fh: openOut.Fh, Offset: 0}, buf)
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, []string{"/g.txt"}, metrics.hits, "second read must hit the now-warm content cache")
	assert.Len(t, metrics.misses, 1, "the second read must not register another miss")
}

// engineCreate is a test helper that writes an empty file directly through
// the adapter's engine, mirroring what a real Create call would do.
func (a *Adapter) engineCreate(t *testing.T, p string) fuse.Status {
	t.Helper()
	if err := a.engine.Write(context.Background(), p, []byte{}, true); err != nil {
		t.Fatalf("engine.Write: %v", err)
	}
	return fuse.OK
}

func syscallDirBit() uint32 {
	return 0o040000
}
