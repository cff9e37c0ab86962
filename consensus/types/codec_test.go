package types

import (
	"math/big"
	"reflect"
	"testing"
)

func sampleFullBlock() *FullBlock {
	return &FullBlock{
		FinishedSubSlots: []*EndOfSubSlotBundle{
			{
				ChallengeChain: &ChallengeChainSubSlot{
					ChallengeChainEndOfSlotVDF: &VDFInfo{Challenge: [32]byte{1}, NumberOfIterations: 5},
				},
				RewardChain: &RewardChainSubSlot{
					EndOfSlotVDF:              &VDFInfo{Challenge: [32]byte{2}, NumberOfIterations: 6},
					ChallengeChainSubSlotHash: [32]byte{3},
					Deficit:                   4,
				},
				Proofs: []*VDFProof{{WitnessType: 1, Witness: []byte{9, 9}}},
			},
		},
		RewardChainBlock: &RewardChainBlock{
			Weight:             big.NewInt(1000),
			Height:             42,
			TotalIters:         big.NewInt(99999),
			SignagePointIndex:  3,
			ProofOfSpace:       &ProofOfSpace{Challenge: [32]byte{5}, Size: 32, Proof: []byte{1, 2, 3}},
			IsTransactionBlock: true,
		},
		Foliage: &Foliage{
			PrevBlockHash:   [32]byte{6},
			RewardBlockHash: [32]byte{7},
			FoliageBlockData: &FoliageBlockData{
				UnfinishedRewardBlockHash: [32]byte{8},
			},
			FoliageTransactionBlockHash: &[32]byte{10},
		},
		FoliageTransactionBlock: &FoliageTransactionBlock{
			PrevTransactionBlockHash: [32]byte{11},
			Timestamp:                1234567,
			ExecutionPayloadHash:     [32]byte{12},
		},
		ExecutionPayload: &ExecutionPayload{
			ParentHash:    [32]byte{13},
			FeeRecipient:  [20]byte{14},
			BlockNumber:   7,
			BaseFeePerGas: big.NewInt(77),
			Transactions:  [][]byte{{1, 2}, {3, 4, 5}},
		},
	}
}

func TestFullBlock_RoundTrip(t *testing.T) {
	b := sampleFullBlock()
	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	var out FullBlock
	if err := out.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if !reflect.DeepEqual(b.RewardChainBlock.Weight, out.RewardChainBlock.Weight) {
		t.Errorf("Weight mismatch: got %v, want %v", out.RewardChainBlock.Weight, b.RewardChainBlock.Weight)
	}
	if out.RewardChainBlock.Height != b.RewardChainBlock.Height {
		t.Errorf("Height mismatch: got %d, want %d", out.RewardChainBlock.Height, b.RewardChainBlock.Height)
	}
	if out.Foliage.PrevBlockHash != b.Foliage.PrevBlockHash {
		t.Errorf("Foliage.PrevBlockHash mismatch")
	}
	if len(out.FinishedSubSlots) != 1 || out.FinishedSubSlots[0].RewardChain.Deficit != 4 {
		t.Errorf("FinishedSubSlots round trip failed: %+v", out.FinishedSubSlots)
	}
	if out.ExecutionPayload.BlockNumber != 7 || len(out.ExecutionPayload.Transactions) != 2 {
		t.Errorf("ExecutionPayload round trip failed: %+v", out.ExecutionPayload)
	}
	if out.ExecutionPayload.BaseFeePerGas.Cmp(big.NewInt(77)) != 0 {
		t.Errorf("BaseFeePerGas mismatch: got %v", out.ExecutionPayload.BaseFeePerGas)
	}
}

func TestFullBlock_RoundTrip_NilOptionalFields(t *testing.T) {
	b := &FullBlock{
		RewardChainBlock: &RewardChainBlock{Height: 0},
		Foliage:          &Foliage{},
	}
	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	var out FullBlock
	if err := out.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if out.FoliageTransactionBlock != nil {
		t.Error("expected nil FoliageTransactionBlock to round-trip as nil")
	}
	if out.ExecutionPayload != nil {
		t.Error("expected nil ExecutionPayload to round-trip as nil")
	}
}
