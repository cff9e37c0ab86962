// Package cache implements the Blockchain Manager's in-memory projections of
// committed state: a bounded block-record cache and a bounded seen-set of
// compact VDF proofs. Both are pure lookup structures guarded by the caller's
// lock; nothing in this package does its own synchronization, matching the
// ownership rule that the Blockchain Manager exclusively owns the cache.
package cache

import (
	"github.com/corpochain-network/beacon-core/consensus/blockrecord"
)

// BlockCache is a {header_hash -> BlockRecord} map plus a {height ->
// set<header_hash>} index used for height-bounded garbage collection. It is
// not an LRU: eviction is driven by height relative to the current peak (see
// PruneToPeak), not by recency.
type BlockCache struct {
	byHash   map[[32]byte]*blockrecord.Record
	byHeight map[uint64]map[[32]byte]struct{}
}

// NewBlockCache returns an empty BlockCache.
func NewBlockCache() *BlockCache {
	return &BlockCache{
		byHash:   make(map[[32]byte]*blockrecord.Record),
		byHeight: make(map[uint64]map[[32]byte]struct{}),
	}
}

// Put inserts or overwrites a record. Records are immutable once created, so
// callers only ever Put a hash once in practice; Put is idempotent either way.
func (c *BlockCache) Put(r *blockrecord.Record) {
	c.byHash[r.HeaderHash] = r
	set, ok := c.byHeight[r.Height]
	if !ok {
		set = make(map[[32]byte]struct{})
		c.byHeight[r.Height] = set
	}
	set[r.HeaderHash] = struct{}{}
}

// Get returns the cached record for hash, or nil if absent.
func (c *BlockCache) Get(hash [32]byte) *blockrecord.Record {
	return c.byHash[hash]
}

// Has reports whether hash is present; used for duplicate detection before
// a block is admitted.
func (c *BlockCache) Has(hash [32]byte) bool {
	_, ok := c.byHash[hash]
	return ok
}

// Remove evicts a single record by hash, used to roll back a tentative insert
// (store.RollbackCacheBlock's in-memory counterpart).
func (c *BlockCache) Remove(hash [32]byte) {
	r, ok := c.byHash[hash]
	if !ok {
		return
	}
	delete(c.byHash, hash)
	if set, ok := c.byHeight[r.Height]; ok {
		delete(set, hash)
		if len(set) == 0 {
			delete(c.byHeight, r.Height)
		}
	}
}

// PruneBelow removes every cached record with height < minHeight.
func (c *BlockCache) PruneBelow(minHeight uint64) {
	for height, set := range c.byHeight {
		if height >= minHeight {
			continue
		}
		for hash := range set {
			delete(c.byHash, hash)
		}
		delete(c.byHeight, height)
	}
}

// PruneToPeak retains only records with height >= peakHeight-cacheSize. If
// peakHeight < cacheSize the whole cache
// is retained (minHeight clamps at 0).
func (c *BlockCache) PruneToPeak(peakHeight, cacheSize uint64) {
	minHeight := uint64(0)
	if peakHeight > cacheSize {
		minHeight = peakHeight - cacheSize
	}
	c.PruneBelow(minHeight)
}

// Len returns the number of cached records, exposed for cache-GC boundary
// tests.
func (c *BlockCache) Len() int {
	return len(c.byHash)
}

// Heights returns the distinct cached heights, exposed for cache-GC boundary
// tests.
func (c *BlockCache) Heights() []uint64 {
	heights := make([]uint64, 0, len(c.byHeight))
	for h := range c.byHeight {
		heights = append(heights, h)
	}
	return heights
}
