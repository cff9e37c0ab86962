package blockchain

import (
	"context"
	"sync"

	"github.com/corpochain-network/beacon-core/consensus/blockrecord"
	"github.com/corpochain-network/beacon-core/consensus/cache"
	"github.com/corpochain-network/beacon-core/consensus/store"
	"github.com/corpochain-network/beacon-core/consensus/types"
)

// chainView is the Blockchain Manager's read-only window over chain state,
// satisfying prevalidation.ChainView, validation.ChainReader and
// difficulty.ChainReader from a single implementation: a tentative overlay
// (for not-yet-committed records) layered over the in-memory cache, falling
// back to the durable store.
//
// bare BlockRecords carry no timestamp, so TimestampAt needs another way to
// recover a transaction block's foliage timestamp. For tentative records
// (inserted via Put during a Pre-Validation Pipeline run) the blocks slice
// lets it correlate each Put call with the FullBlock that produced it, since
// the pipeline's tentative pass calls Put exactly once per input block, in
// order.
// For already-committed records it falls back to reading the full block back
// out of the store.
type chainView struct {
	ctx   context.Context
	store *store.Store
	cache *cache.BlockCache

	mu         sync.RWMutex
	tentative  map[[32]byte]*blockrecord.Record
	timestamps map[[32]byte]int64

	blocks   []*types.FullBlock
	putCount int
}

func newChainView(ctx context.Context, st *store.Store, c *cache.BlockCache, blocks []*types.FullBlock) *chainView {
	return &chainView{
		ctx:        ctx,
		store:      st,
		cache:      c,
		tentative:  make(map[[32]byte]*blockrecord.Record),
		timestamps: make(map[[32]byte]int64),
		blocks:     blocks,
	}
}

// BlockRecord resolves hash against the tentative overlay, then the cache,
// then the durable store.
func (v *chainView) BlockRecord(hash [32]byte) (*blockrecord.Record, bool) {
	v.mu.RLock()
	if r, ok := v.tentative[hash]; ok {
		v.mu.RUnlock()
		return r, true
	}
	v.mu.RUnlock()

	if r := v.cache.Get(hash); r != nil {
		return r, true
	}
	r, err := v.store.GetBlockRecord(v.ctx, hash)
	if err != nil {
		return nil, false
	}
	return r, true
}

// TimestampAt returns the foliage-transaction-block timestamp committed for
// hash, consulting the tentative overlay before round-tripping to the store
// for an already-committed transaction block.
func (v *chainView) TimestampAt(hash [32]byte) (int64, bool) {
	v.mu.RLock()
	if ts, ok := v.timestamps[hash]; ok {
		v.mu.RUnlock()
		return ts, true
	}
	v.mu.RUnlock()

	b, err := v.store.GetFullBlock(v.ctx, hash)
	if err != nil || b.FoliageTransactionBlock == nil {
		return 0, false
	}
	return b.FoliageTransactionBlock.Timestamp, true
}

// RecentTransactionTimestamps walks backward from parent collecting up to n
// transaction-block timestamps, most recent first.
func (v *chainView) RecentTransactionTimestamps(parent [32]byte, n int) ([]int64, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([]int64, 0, n)
	cur := parent
	for len(out) < n {
		rec, ok := v.BlockRecord(cur)
		if !ok {
			break
		}
		if rec.IsTransactionBlock {
			if ts, ok := v.TimestampAt(rec.HeaderHash); ok {
				out = append(out, ts)
			}
		}
		cur = rec.PrevHash
	}
	return out, nil
}

// Put inserts a tentative record, correlating it with the next entry of
// blocks (in call order) to recover its transaction-block timestamp, if any.
func (v *chainView) Put(r *blockrecord.Record) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tentative[r.HeaderHash] = r
	if v.putCount < len(v.blocks) {
		b := v.blocks[v.putCount]
		if r.IsTransactionBlock && b.FoliageTransactionBlock != nil {
			v.timestamps[r.HeaderHash] = b.FoliageTransactionBlock.Timestamp
		}
	}
	v.putCount++
}

// Delete removes a tentative record previously inserted by Put.
func (v *chainView) Delete(hash [32]byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.tentative, hash)
	delete(v.timestamps, hash)
}
