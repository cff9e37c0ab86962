package blockrecord

import (
	"math/big"
	"testing"
)

func sampleRecord() *Record {
	lwi := uint64(7)
	return &Record{
		PrevHash:                    [32]byte{1, 2, 3},
		Height:                      42,
		Weight:                      big.NewInt(1000),
		TotalIters:                  big.NewInt(5_000_000),
		SignagePointIndex:           3,
		RequiredIters:               big.NewInt(123456),
		Deficit:                     2,
		Overflow:                    true,
		FirstInSubSlot:              true,
		IsTransactionBlock:          true,
		SubSlotIters:                1 << 20,
		FinishedChallengeSlotHashes: [][32]byte{{9}, {10}},
		FinishedRewardSlotHashes:    [][32]byte{{11}},
		LastWithdrawalIndex:         &lwi,
		Coinbase:                    [20]byte{0xAA},
		RewardInfusionNewChallenge:  [32]byte{0xBB},
	}
}

func TestComputeHeaderHash_Stable(t *testing.T) {
	r := sampleRecord()
	h1, err := ComputeHeaderHash(r)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := ComputeHeaderHash(r)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Error("ComputeHeaderHash is not stable across calls with identical input")
	}
}

func TestComputeHeaderHash_ChangesWithField(t *testing.T) {
	r := sampleRecord()
	h1, _ := ComputeHeaderHash(r)
	r2 := sampleRecord()
	r2.Height = 43
	h2, _ := ComputeHeaderHash(r2)
	if h1 == h2 {
		t.Error("ComputeHeaderHash did not change when Height changed")
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	r := sampleRecord()
	h, err := ComputeHeaderHash(r)
	if err != nil {
		t.Fatal(err)
	}
	r.HeaderHash = h

	enc, err := r.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var got Record
	if err := got.UnmarshalBinary(enc); err != nil {
		t.Fatal(err)
	}
	if !got.Equal(r) {
		t.Errorf("round trip changed HeaderHash: got %x, want %x", got.HeaderHash, r.HeaderHash)
	}
	if got.Height != r.Height || got.Weight.Cmp(r.Weight) != 0 || got.TotalIters.Cmp(r.TotalIters) != 0 {
		t.Errorf("round trip lost fields: got %+v, want %+v", got, r)
	}
	if *got.LastWithdrawalIndex != *r.LastWithdrawalIndex {
		t.Errorf("round trip lost LastWithdrawalIndex")
	}
	if len(got.FinishedChallengeSlotHashes) != len(r.FinishedChallengeSlotHashes) {
		t.Errorf("round trip lost FinishedChallengeSlotHashes")
	}
}

func TestRecord_RoundTrip_NilOptionalFields(t *testing.T) {
	r := &Record{
		Weight:        big.NewInt(1),
		TotalIters:    big.NewInt(1),
		RequiredIters: big.NewInt(1),
	}
	enc, err := r.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var got Record
	if err := got.UnmarshalBinary(enc); err != nil {
		t.Fatal(err)
	}
	if got.SubEpochSummaryIncluded != nil {
		t.Error("expected nil SubEpochSummaryIncluded to round-trip as nil")
	}
	if got.LastWithdrawalIndex != nil {
		t.Error("expected nil LastWithdrawalIndex to round-trip as nil")
	}
}

func TestRecord_Less_OrdersByWeightThenItersThenHash(t *testing.T) {
	a := &Record{Weight: big.NewInt(1), TotalIters: big.NewInt(1), HeaderHash: [32]byte{1}}
	b := &Record{Weight: big.NewInt(2), TotalIters: big.NewInt(1), HeaderHash: [32]byte{0}}
	if !a.Less(b) {
		t.Error("lower weight should sort first regardless of hash")
	}

	c := &Record{Weight: big.NewInt(1), TotalIters: big.NewInt(2), HeaderHash: [32]byte{0}}
	if !a.Less(c) {
		t.Error("equal weight, lower total_iters should sort first")
	}

	d := &Record{Weight: big.NewInt(1), TotalIters: big.NewInt(1), HeaderHash: [32]byte{2}}
	if !a.Less(d) {
		t.Error("equal weight and total_iters should tie-break on header hash")
	}
}

func TestRecord_Equal_ByHeaderHashOnly(t *testing.T) {
	a := &Record{HeaderHash: [32]byte{1}, Height: 5}
	b := &Record{HeaderHash: [32]byte{1}, Height: 999}
	if !a.Equal(b) {
		t.Error("records with the same HeaderHash should be Equal regardless of other fields")
	}
	c := &Record{HeaderHash: [32]byte{2}, Height: 5}
	if a.Equal(c) {
		t.Error("records with different HeaderHash should not be Equal")
	}
}
