package cache

import (
	"math/big"
	"testing"

	"github.com/corpochain-network/beacon-core/consensus/blockrecord"
)

func recordAt(height uint64, tag byte) *blockrecord.Record {
	return &blockrecord.Record{
		HeaderHash: [32]byte{tag},
		Height:     height,
		Weight:     big.NewInt(int64(height)),
		TotalIters: big.NewInt(int64(height)),
	}
}

func TestBlockCache_PutGetHas(t *testing.T) {
	c := NewBlockCache()
	r := recordAt(10, 1)
	c.Put(r)
	if !c.Has(r.HeaderHash) {
		t.Fatal("expected Has to report true after Put")
	}
	if got := c.Get(r.HeaderHash); got != r {
		t.Fatal("Get did not return the same record")
	}
}

func TestBlockCache_Remove(t *testing.T) {
	c := NewBlockCache()
	r := recordAt(10, 1)
	c.Put(r)
	c.Remove(r.HeaderHash)
	if c.Has(r.HeaderHash) {
		t.Fatal("expected Has to report false after Remove")
	}
	if len(c.Heights()) != 0 {
		t.Fatal("expected the height index entry to be cleaned up after Remove")
	}
}

func TestBlockCache_PruneToPeak(t *testing.T) {
	c := NewBlockCache()
	const cacheSize = 10
	for h := uint64(0); h < 120; h++ {
		c.Put(recordAt(h, byte(h)))
	}
	c.PruneToPeak(119, cacheSize)
	if c.Len() != cacheSize+1 {
		t.Errorf("Len() = %d, want %d (policy: >= peak-cacheSize)", c.Len(), cacheSize+1)
	}
	for _, h := range c.Heights() {
		if h < 119-cacheSize {
			t.Errorf("found height %d below the retention floor", h)
		}
	}
}

func TestBlockCache_PruneToPeak_BelowCacheSize(t *testing.T) {
	c := NewBlockCache()
	c.Put(recordAt(2, 2))
	c.PruneToPeak(2, 10)
	if c.Len() != 1 {
		t.Error("pruning with peak below cacheSize should not evict anything")
	}
}

func TestBlockCache_PruneBelow(t *testing.T) {
	c := NewBlockCache()
	c.Put(recordAt(1, 1))
	c.Put(recordAt(5, 5))
	c.PruneBelow(5)
	if c.Has([32]byte{1}) {
		t.Error("expected height-1 record to be pruned")
	}
	if !c.Has([32]byte{5}) {
		t.Error("expected height-5 record to survive")
	}
}

func TestCompactProofSeenSet_AddAndDedup(t *testing.T) {
	s := NewCompactProofSeenSet(3)
	h := [32]byte{1}
	if seen := s.Add(h); seen {
		t.Fatal("first Add should report not already seen")
	}
	if seen := s.Add(h); !seen {
		t.Fatal("second Add of the same hash should report already seen")
	}
}

func TestCompactProofSeenSet_ClearsAtBound(t *testing.T) {
	s := NewCompactProofSeenSet(2)
	s.Add([32]byte{1})
	s.Add([32]byte{2})
	// Adding a third distinct entry should clear and restart rather than grow.
	s.Add([32]byte{3})
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after bound-triggered clear", s.Len())
	}
	if seen := s.Add([32]byte{1}); seen {
		t.Error("expected [32]byte{1} to have been forgotten after the clear")
	}
}
