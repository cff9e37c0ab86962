package types

import "testing"

func TestSubEpochSummary_HashStable(t *testing.T) {
	iters := uint64(100)
	s := &SubEpochSummary{
		PrevSubEpochSummaryHash: [32]byte{1},
		RewardChainHash:         [32]byte{2},
		NumBlocksOverflow:       3,
		NewSubSlotIters:         &iters,
	}
	h1 := s.Hash()
	h2 := s.Hash()
	if h1 != h2 {
		t.Error("Hash is not stable across calls")
	}
}

func TestSubEpochSummary_HashChangesWithOverflow(t *testing.T) {
	s1 := &SubEpochSummary{NumBlocksOverflow: 1}
	s2 := &SubEpochSummary{NumBlocksOverflow: 2}
	if s1.Hash() == s2.Hash() {
		t.Error("Hash should differ when NumBlocksOverflow differs")
	}
}

func TestFullBlock_Header_ExcludesExecutionPayload(t *testing.T) {
	fb := &FullBlock{
		RewardChainBlock: &RewardChainBlock{Height: 5},
		ExecutionPayload: &ExecutionPayload{BlockNumber: 5},
	}
	hb := fb.Header()
	if hb.RewardChainBlock.Height != 5 {
		t.Error("Header() should preserve the reward-chain block")
	}
}
