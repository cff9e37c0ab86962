package prevalidation

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/corpochain-network/beacon-core/consensus/blockrecord"
	"github.com/corpochain-network/beacon-core/consensus/params"
	"github.com/corpochain-network/beacon-core/consensus/types"
	"github.com/corpochain-network/beacon-core/consensus/validation"
)

type memView struct {
	records    map[[32]byte]*blockrecord.Record
	timestamps map[[32]byte]int64
}

func newMemView() *memView {
	return &memView{records: map[[32]byte]*blockrecord.Record{}, timestamps: map[[32]byte]int64{}}
}

func (m *memView) BlockRecord(hash [32]byte) (*blockrecord.Record, bool) {
	r, ok := m.records[hash]
	return r, ok
}

func (m *memView) TimestampAt(hash [32]byte) (int64, bool) {
	ts, ok := m.timestamps[hash]
	return ts, ok
}

func (m *memView) RecentTransactionTimestamps(parent [32]byte, n int) ([]int64, error) {
	return nil, nil
}

func (m *memView) Put(r *blockrecord.Record) {
	m.records[r.HeaderHash] = r
}

func (m *memView) Delete(hash [32]byte) {
	delete(m.records, hash)
}

type fakePoSpace struct{ ok bool }

func (f *fakePoSpace) VerifyAndGetQualityString(pos *types.ProofOfSpace, constants *params.Constants, challenge, ccSPHash [32]byte) ([]byte, bool) {
	return []byte{1, 2, 3}, f.ok
}

type fakeIterations struct{ v *big.Int }

func (f *fakeIterations) CalculateIterationsQuality(dcf *big.Int, qualityString []byte, size uint8, difficulty uint64, ccSPHash [32]byte) *big.Int {
	return f.v
}

type fakeVDF struct{ ok bool }

func (f *fakeVDF) Verify(info *types.VDFInfo, proof *types.VDFProof) bool { return f.ok }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func genesisChildBlock(constants *params.Constants) *types.FullBlock {
	return &types.FullBlock{
		RewardChainBlock: &types.RewardChainBlock{
			Height:              1,
			SignagePointIndex:   0,
			ProofOfSpace:        &types.ProofOfSpace{Size: 32},
			ChallengeChainIPVDF: &types.VDFInfo{},
			RewardChainIPVDF:    &types.VDFInfo{},
		},
		ChallengeChainIPProof: &types.VDFProof{},
		RewardChainIPProof:    &types.VDFProof{},
		Foliage: &types.Foliage{
			PrevBlockHash: constants.GenesisChallenge,
			FoliageBlockData: &types.FoliageBlockData{
				UnfinishedRewardBlockHash: [32]byte{7},
			},
			RewardBlockHash: [32]byte{7},
		},
	}
}

func newTestPipeline(posOK, vdfOK bool) *Pipeline {
	c := params.Mainnet()
	return &Pipeline{
		Constants: c,
		Collaborators: Collaborators{
			PoSpace:    &fakePoSpace{ok: posOK},
			Iterations: &fakeIterations{v: big.NewInt(7)},
			VDF:        &fakeVDF{ok: vdfOK},
			Clock:      fixedClock{t: time.Unix(1000, 0)},
		},
		Workers:   1,
		BatchSize: 1,
	}
}

func TestPipeline_Validate_HappyPath(t *testing.T) {
	p := newTestPipeline(true, true)
	view := newMemView()
	blocks := []*types.FullBlock{genesisChildBlock(p.Constants)}

	results, err := p.Validate(context.Background(), view, blocks)
	if err != nil {
		t.Fatalf("unexpected pipeline error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("unexpected validation failure: %v", results[0].Err)
	}
	if results[0].RequiredIters.Cmp(big.NewInt(7)) != 0 {
		t.Errorf("required_iters = %v, want 7", results[0].RequiredIters)
	}
}

func TestPipeline_Validate_PoSpaceFailureIsSideEffectFree(t *testing.T) {
	p := newTestPipeline(false, true)
	view := newMemView()
	blocks := []*types.FullBlock{genesisChildBlock(p.Constants)}

	_, err := p.Validate(context.Background(), view, blocks)
	if err == nil {
		t.Fatal("expected the tentative proof-of-space failure to short-circuit")
	}
	verr, ok := err.(*validation.Error)
	if !ok || verr.Code != validation.CodeProofOfSpace {
		t.Fatalf("expected CodeProofOfSpace, got %v", err)
	}
	if len(view.records) != 0 {
		t.Errorf("expected no tentative records left behind, found %d", len(view.records))
	}
}

func TestPipeline_Validate_BatchFailureRollsBackTentativeRecords(t *testing.T) {
	p := newTestPipeline(true, false) // proof of space ok, VDF fails in the worker pass
	view := newMemView()
	blocks := []*types.FullBlock{genesisChildBlock(p.Constants)}

	results, err := p.Validate(context.Background(), view, blocks)
	if err != nil {
		t.Fatalf("unexpected pipeline-level error: %v", err)
	}
	if results[0].Err == nil {
		t.Fatal("expected a per-block validation failure from the worker pass")
	}
	if len(view.records) != 0 {
		t.Errorf("expected rollback of tentative records after a per-block failure, found %d", len(view.records))
	}
}

func TestPipeline_WorkerCount_CapsAtPlatformLimit(t *testing.T) {
	p := &Pipeline{Workers: 1000}
	if got := p.workerCount(); got != maxWorkers {
		t.Errorf("workerCount() = %d, want cap of %d", got, maxWorkers)
	}
}

func TestPartition_SplitsIntoBatches(t *testing.T) {
	blocks := make([]*types.FullBlock, 5)
	for i := range blocks {
		blocks[i] = &types.FullBlock{}
	}
	batches := partition(blocks, 2)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if len(batches[0]) != 2 || len(batches[1]) != 2 || len(batches[2]) != 1 {
		t.Errorf("unexpected batch sizes: %v", []int{len(batches[0]), len(batches[1]), len(batches[2])})
	}
}
