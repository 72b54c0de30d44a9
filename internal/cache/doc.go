/*
Package cache provides the in-memory content cache backing Vaulthalla's FUSE
read path: a thread-safe, weighted-LRU byte cache keyed by (path, offset,
size) ranges, used to avoid round-tripping to a vault's storage engine for
recently or frequently read data.

# Cache Architecture

	┌─────────────────────────────────────────────┐
	│              FUSE read path                 │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│              LRUCache / WeightedLRUCache     │  ← This package
	│   • range-keyed byte cache                   │
	│   • LRU eviction, plus on-demand weighted    │
	│     eviction (EvictByWeight)                 │
	│   • TTL-based expiry                         │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           StorageEngine (local/S3)           │
	└─────────────────────────────────────────────┘

# Eviction Policies

LRU (Least Recently Used):
  - Traditional recency-only eviction
  - Predictable, low overhead

Weighted LRU:
  - EvictByWeight combines recency, access frequency, and an inverse-size
    factor so small hot ranges survive longer than large cold ones
  - Eviction on Put still follows plain LRU order; weights apply only when
    a caller invokes EvictByWeight
  - cmd/vaulthallad builds one per mounted vault as the FUSE adapter's
    whole-object content cache

# Usage

	config := &cache.CacheConfig{
		MaxSize:        2 * 1024 * 1024 * 1024, // 2GB
		MaxEntries:     100000,
		TTL:            5 * time.Minute,
		EvictionPolicy: "weighted_lru",
	}
	c := cache.NewWeightedLRUCache(config)

	c.Put(path, 0, data)
	if cached := c.Get(path, 0, int64(len(data))); cached != nil {
		// served from cache
	}

	stats := c.Stats()
	fmt.Printf("hit rate: %.2f%%\n", stats.HitRate*100)

The fuseadapter package reads and writes whole objects rather than byte
ranges, so it doesn't know a file's length before the round trip the cache
exists to avoid. GetFull/PutFull/InvalidateFull key on object identity alone
for that caller instead of the (path, offset, size) triple above.

# Thread Safety

A single sync.RWMutex guards the item map and eviction list; reads take the
read lock only for Size(), Stats() and GetKeys(), everything that touches access-order metadata
(Get, Put, Evict) takes the write lock since LRU promotion mutates shared
state even on a read.
*/
package cache
