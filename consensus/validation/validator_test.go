package validation

import (
	"math/big"
	"testing"
	"time"

	"github.com/corpochain-network/beacon-core/consensus/blockrecord"
	"github.com/corpochain-network/beacon-core/consensus/params"
	"github.com/corpochain-network/beacon-core/consensus/types"
)

type fakeChain struct {
	records    map[[32]byte]*blockrecord.Record
	timestamps map[[32]byte][]int64
}

func (f *fakeChain) BlockRecord(hash [32]byte) (*blockrecord.Record, bool) {
	r, ok := f.records[hash]
	return r, ok
}

func (f *fakeChain) RecentTransactionTimestamps(parent [32]byte, n int) ([]int64, error) {
	ts := f.timestamps[parent]
	if len(ts) > n {
		ts = ts[:n]
	}
	return ts, nil
}

type fakePoSpace struct {
	quality []byte
	ok      bool
}

func (f *fakePoSpace) VerifyAndGetQualityString(pos *types.ProofOfSpace, constants *params.Constants, challenge, ccSPHash [32]byte) ([]byte, bool) {
	return f.quality, f.ok
}

type fakeIterations struct {
	value *big.Int
}

func (f *fakeIterations) CalculateIterationsQuality(difficultyConstantFactor *big.Int, qualityString []byte, size uint8, difficulty uint64, ccSPHash [32]byte) *big.Int {
	return f.value
}

type fakeVDF struct {
	ok bool
}

func (f *fakeVDF) Verify(info *types.VDFInfo, proof *types.VDFProof) bool {
	return f.ok
}

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

func validHeader(genesisChallenge [32]byte) *types.HeaderBlock {
	return &types.HeaderBlock{
		RewardChainBlock: &types.RewardChainBlock{
			SignagePointIndex:   0,
			ProofOfSpace:        &types.ProofOfSpace{Size: 32},
			ChallengeChainIPVDF: &types.VDFInfo{},
			RewardChainIPVDF:    &types.VDFInfo{},
			IsTransactionBlock:  false,
		},
		ChallengeChainIPProof: &types.VDFProof{},
		RewardChainIPProof:    &types.VDFProof{},
		Foliage: &types.Foliage{
			PrevBlockHash: genesisChallenge,
			FoliageBlockData: &types.FoliageBlockData{
				UnfinishedRewardBlockHash: [32]byte{9},
			},
			RewardBlockHash: [32]byte{9},
		},
	}
}

func newTestValidator(posOK bool, vdfOK bool, iters *big.Int) *Validator {
	c := params.Mainnet()
	return New(c, &fakePoSpace{quality: []byte{1, 2, 3}, ok: posOK}, &fakeIterations{value: iters}, &fakeVDF{ok: vdfOK}, nil, fixedClock{t: time.Unix(1000, 0)})
}

func TestValidate_HappyPath(t *testing.T) {
	v := newTestValidator(true, true, big.NewInt(42))
	header := validHeader(v.Constants.GenesisChallenge)
	chain := &fakeChain{records: map[[32]byte]*blockrecord.Record{}}

	iters, err := Validate(v, chain, header, v.Constants.DifficultyStarting, v.Constants.SubSlotItersStarting, false)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if iters.Cmp(big.NewInt(42)) != 0 {
		t.Errorf("required_iters = %v, want 42", iters)
	}
}

func TestValidate_UnknownPrevBlockFails(t *testing.T) {
	v := newTestValidator(true, true, big.NewInt(42))
	header := validHeader(v.Constants.GenesisChallenge)
	header.Foliage.PrevBlockHash = [32]byte{0xAB}
	chain := &fakeChain{records: map[[32]byte]*blockrecord.Record{}}

	_, err := Validate(v, chain, header, v.Constants.DifficultyStarting, v.Constants.SubSlotItersStarting, false)
	if err == nil || err.Code != CodeLinkage {
		t.Fatalf("expected CodeLinkage, got %v", err)
	}
}

func TestValidate_ProofOfSpaceFailureShortCircuits(t *testing.T) {
	v := newTestValidator(false, true, big.NewInt(42))
	header := validHeader(v.Constants.GenesisChallenge)
	chain := &fakeChain{records: map[[32]byte]*blockrecord.Record{}}

	_, err := Validate(v, chain, header, v.Constants.DifficultyStarting, v.Constants.SubSlotItersStarting, false)
	if err == nil || err.Code != CodeProofOfSpace {
		t.Fatalf("expected CodeProofOfSpace, got %v", err)
	}
}

func TestValidate_InfusionPointVDFFailure(t *testing.T) {
	v := newTestValidator(true, false, big.NewInt(42))
	header := validHeader(v.Constants.GenesisChallenge)
	chain := &fakeChain{records: map[[32]byte]*blockrecord.Record{}}

	_, err := Validate(v, chain, header, v.Constants.DifficultyStarting, v.Constants.SubSlotItersStarting, false)
	if err == nil || err.Code != CodeInfusionPointVDF {
		t.Fatalf("expected CodeInfusionPointVDF, got %v", err)
	}
}

func TestValidate_NonPositiveRequiredIters(t *testing.T) {
	v := newTestValidator(true, true, big.NewInt(0))
	header := validHeader(v.Constants.GenesisChallenge)
	chain := &fakeChain{records: map[[32]byte]*blockrecord.Record{}}

	_, err := Validate(v, chain, header, v.Constants.DifficultyStarting, v.Constants.SubSlotItersStarting, false)
	if err == nil || err.Code != CodeRequiredIters {
		t.Fatalf("expected CodeRequiredIters, got %v", err)
	}
}

func TestValidate_TimestampTooFarInFuture(t *testing.T) {
	v := newTestValidator(true, true, big.NewInt(42))
	header := validHeader(v.Constants.GenesisChallenge)
	header.RewardChainBlock.IsTransactionBlock = true
	header.FoliageTransactionBlock = &types.FoliageTransactionBlock{
		Timestamp: 1000 + int64(v.Constants.MaxFutureTime) + 10,
	}
	header.Foliage.FoliageTransactionBlockHash = &[32]byte{1}
	chain := &fakeChain{records: map[[32]byte]*blockrecord.Record{}}

	_, err := Validate(v, chain, header, v.Constants.DifficultyStarting, v.Constants.SubSlotItersStarting, false)
	if err == nil || err.Code != CodeTimestamp {
		t.Fatalf("expected CodeTimestamp, got %v", err)
	}
}

func TestValidate_TimestampNotGreaterThanMean(t *testing.T) {
	v := newTestValidator(true, true, big.NewInt(42))
	header := validHeader(v.Constants.GenesisChallenge)
	header.RewardChainBlock.IsTransactionBlock = true
	header.FoliageTransactionBlock = &types.FoliageTransactionBlock{
		Timestamp: 500,
	}
	header.Foliage.FoliageTransactionBlockHash = &[32]byte{1}
	chain := &fakeChain{
		records:    map[[32]byte]*blockrecord.Record{},
		timestamps: map[[32]byte][]int64{v.Constants.GenesisChallenge: {600, 700}},
	}

	_, err := Validate(v, chain, header, v.Constants.DifficultyStarting, v.Constants.SubSlotItersStarting, false)
	if err == nil || err.Code != CodeTimestamp {
		t.Fatalf("expected CodeTimestamp, got %v", err)
	}
}

func TestValidate_FoliageTransactionBlockMismatch(t *testing.T) {
	v := newTestValidator(true, true, big.NewInt(42))
	header := validHeader(v.Constants.GenesisChallenge)
	header.RewardChainBlock.IsTransactionBlock = true
	// FoliageTransactionBlock left nil: presence mismatch with IsTransactionBlock.
	chain := &fakeChain{records: map[[32]byte]*blockrecord.Record{}}

	_, err := Validate(v, chain, header, v.Constants.DifficultyStarting, v.Constants.SubSlotItersStarting, false)
	if err == nil || err.Code != CodeFoliage {
		t.Fatalf("expected CodeFoliage, got %v", err)
	}
}

func TestCode_StringMapping(t *testing.T) {
	cases := map[Code]string{
		CodeLinkage:         "INVALID_PREV_BLOCK_HASH",
		CodeProofOfSpace:    "INVALID_POSPACE",
		CodeSubEpochSummary: "INVALID_SUB_EPOCH_SUMMARY",
		CodeNone:            "NONE",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("Code(%d).String() = %q, want %q", code, got, want)
		}
	}
}
