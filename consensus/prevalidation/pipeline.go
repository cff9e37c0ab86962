// Package prevalidation batch-parallelizes header validation across
// many candidate blocks before the serial, locked insertion step the
// Blockchain Manager performs. Workers are pure: they consult a read-only
// recent-window view and never share mutable state with the caller or each
// other.
package prevalidation

import (
	"context"
	"math/big"
	"runtime"

	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/errgroup"

	"github.com/corpochain-network/beacon-core/consensus/blockrecord"
	"github.com/corpochain-network/beacon-core/consensus/difficulty"
	"github.com/corpochain-network/beacon-core/consensus/params"
	"github.com/corpochain-network/beacon-core/consensus/types"
	"github.com/corpochain-network/beacon-core/consensus/validation"
)

// maxWorkers caps the bounded pool regardless of host core count (the
// smallest platform limit on waitable handles across supported hosts).
const maxWorkers = 61

// reservedCores is subtracted from runtime.NumCPU() when sizing the default pool,
// leaving headroom for the writer goroutine and I/O.
const reservedCores = 2

// Result is the per-block outcome of pre-validation: either a computed
// required_iters or a validation Error.
type Result struct {
	RequiredIters *big.Int
	Err           *validation.Error
}

// ChainView is the tentative, in-memory working view of block_records the
// pipeline reads from and writes tentative records into. The
// Blockchain Manager supplies an implementation backed by its persistent
// store layered under an overlay of not-yet-committed records; tests supply
// a plain map.
type ChainView interface {
	difficulty.ChainReader
	validation.ChainReader
	// Put inserts a tentative record so later blocks in the same batch can
	// resolve it as their parent.
	Put(r *blockrecord.Record)
	// Delete removes a tentative record previously inserted by Put. Used to
	// unwind the tentative pass's side effects on any failure path.
	Delete(hash [32]byte)
}

// Collaborators bundles the pure verifier contracts the Header Validator
// needs; see consensus/validation for their semantics.
type Collaborators struct {
	PoSpace         validation.PoSpaceVerifier
	Iterations      validation.IterationsCalculator
	VDF             validation.VDFVerifier
	SubEpochSummary validation.SubEpochSummaryComputer
	Clock           validation.Clock
}

// Pipeline pre-validates candidate blocks in order: a sequential tentative
// pass that resolves parents and proofs of space, then a batched parallel
// pass running the full Header Validator.
type Pipeline struct {
	Constants     *params.Constants
	Collaborators Collaborators
	// Workers bounds the worker pool; zero means derive it from
	// runtime.NumCPU() (max(cpu_count - reserved_cores, 1), capped at
	// maxWorkers). Setting it to 1 runs the batches one at a time. Each batch
	// still runs on an errgroup goroutine; there is no inline executor that
	// runs batches on the calling goroutine.
	Workers int
	// BatchSize bounds how many blocks are handed to a single worker
	// invocation; zero means one block per worker call.
	BatchSize int
}

// workerCount resolves the effective pool size.
func (p *Pipeline) workerCount() int {
	if p.Workers > 0 {
		if p.Workers > maxWorkers {
			return maxWorkers
		}
		return p.Workers
	}
	n := runtime.NumCPU() - reservedCores
	if n < 1 {
		n = 1
	}
	if n > maxWorkers {
		n = maxWorkers
	}
	return n
}

// Validate pre-validates blocks, in order, against view.
// On any failure the pipeline is side-effect-free: all tentative records it
// inserted into view are removed before returning.
func (p *Pipeline) Validate(ctx context.Context, view ChainView, blocks []*types.FullBlock) ([]Result, error) {
	inserted := make([][32]byte, 0, len(blocks))
	rollback := func() {
		for _, h := range inserted {
			view.Delete(h)
		}
	}

	// Tentative pass: sequentially compute records so later blocks in this
	// call can resolve their parents, short-circuiting on the first
	// proof-of-space failure.
	for _, b := range blocks {
		rec, err := p.tentativeRecord(view, b)
		if err != nil {
			rollback()
			return nil, err
		}
		view.Put(rec)
		inserted = append(inserted, rec.HeaderHash)
	}

	// Partition into batches and dispatch to a bounded worker pool.
	batches := partition(blocks, p.batchSize())
	results := make([]Result, len(blocks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workerCount())

	offset := 0
	for _, batch := range batches {
		batch := batch
		start := offset
		offset += len(batch)
		g.Go(func() error {
			return p.validateBatch(gctx, view, batch, results[start:start+len(batch)])
		})
	}

	if err := g.Wait(); err != nil {
		rollback()
		return nil, err
	}

	// On any per-block validation failure (captured as a Result, not a Go
	// error), the pipeline still must not leave tentative records behind:
	// remove every record this call inserted, regardless of individual
	// outcome.
	anyFailed := false
	for _, r := range results {
		if r.Err != nil {
			anyFailed = true
			break
		}
	}
	if anyFailed {
		rollback()
	}

	return results, nil
}

func (p *Pipeline) batchSize() int {
	if p.BatchSize > 0 {
		return p.BatchSize
	}
	return 1
}

// tentativeRecord runs the tentative pass for a single block: resolve
// (sub_slot_iters, difficulty), derive the challenge, verify proof of space
// to obtain required_iters, and synthesize a tentative BlockRecord. This
// deliberately stops short of the full ten-check Header Validator, which
// runs per block in the worker pool, so a tentative PoSpace failure
// short-circuits the whole call immediately.
func (p *Pipeline) tentativeRecord(view ChainView, b *types.FullBlock) (*blockrecord.Record, *validation.Error) {
	header := b.Header()

	var parent *blockrecord.Record
	if header.Foliage.PrevBlockHash != p.Constants.GenesisChallenge {
		pr, ok := view.BlockRecord(header.Foliage.PrevBlockHash)
		if !ok {
			return nil, &validation.Error{Code: validation.CodeLinkage, Msg: "pre-validation: parent not found in recent window"}
		}
		parent = pr
	}

	subSlotIters, diff, err := difficulty.Next(p.Constants, true, parent, view)
	if err != nil {
		return nil, &validation.Error{Code: validation.CodeRequiredIters, Msg: err.Error()}
	}

	challenge, ccSPHash, derr := validation.DeriveChallenge(p.Constants, view, header)
	if derr != nil {
		return nil, derr
	}

	pos := header.RewardChainBlock.ProofOfSpace
	if pos == nil {
		return nil, &validation.Error{Code: validation.CodeProofOfSpace, Msg: "pre-validation: missing proof of space"}
	}
	qualityString, ok := p.Collaborators.PoSpace.VerifyAndGetQualityString(pos, p.Constants, challenge, ccSPHash)
	if !ok {
		return nil, &validation.Error{Code: validation.CodeProofOfSpace, Msg: "pre-validation: tentative proof of space failed verification"}
	}

	requiredIters := p.Collaborators.Iterations.CalculateIterationsQuality(p.Constants.DifficultyConstantFactor, qualityString, pos.Size, diff, ccSPHash)
	if requiredIters == nil || requiredIters.Sign() <= 0 {
		return nil, &validation.Error{Code: validation.CodeRequiredIters, Msg: "pre-validation: tentative required_iters is non-positive"}
	}

	return BuildBlockRecord(b, parent, requiredIters, subSlotIters, diff)
}

// validateBatch runs the full header
// validator for each block in one batch (workers re-derive everything from the shared
// read-only view rather than trusting the tentative pass, which only needs
// to resolve parent linkage quickly and may run with relaxed checks in a
// future revision).
func (p *Pipeline) validateBatch(ctx context.Context, view ChainView, batch []*types.FullBlock, out []Result) error {
	for i, b := range batch {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		header := b.Header()
		var parent *blockrecord.Record
		if header.Foliage.PrevBlockHash != p.Constants.GenesisChallenge {
			pr, ok := view.BlockRecord(header.Foliage.PrevBlockHash)
			if !ok {
				out[i] = Result{Err: &validation.Error{Code: validation.CodeLinkage, Msg: "worker: parent not found"}}
				continue
			}
			parent = pr
		}

		subSlotIters, diff, err := difficulty.Next(p.Constants, true, parent, view)
		if err != nil {
			out[i] = Result{Err: &validation.Error{Code: validation.CodeRequiredIters, Msg: err.Error()}}
			continue
		}

		v := validation.New(p.Constants, p.Collaborators.PoSpace, p.Collaborators.Iterations, p.Collaborators.VDF, p.Collaborators.SubEpochSummary, p.Collaborators.Clock)
		requiredIters, verr := validation.Validate(v, view, header, diff, subSlotIters, false)
		if verr != nil {
			out[i] = Result{Err: verr}
			continue
		}
		out[i] = Result{RequiredIters: requiredIters}
	}
	return nil
}

// BuildBlockRecord synthesizes a BlockRecord from a candidate block and its
// (possibly nil, for genesis) parent. Exported so the Blockchain Manager can
// rebuild the same record deterministically in ReceiveBlock rather than
// duplicating this derivation.
func BuildBlockRecord(b *types.FullBlock, parent *blockrecord.Record, requiredIters *big.Int, subSlotIters uint64, difficulty uint64) (*blockrecord.Record, *validation.Error) {
	rcb := b.RewardChainBlock
	if rcb == nil {
		return nil, &validation.Error{Code: validation.CodeFoliage, Msg: "pre-validation: missing reward chain block"}
	}

	weight := new(big.Int)
	totalIters := new(big.Int)
	deficit := uint8(0)
	if parent != nil {
		weight.Add(parent.Weight, new(big.Int).SetUint64(difficulty))
		totalIters.Add(parent.TotalIters, requiredIters)
		deficit = parent.Deficit
	} else {
		weight.SetUint64(difficulty)
		totalIters.Set(requiredIters)
	}

	var subEpochHash *blockrecord.SubEpochSummaryHash
	var challengeSlotHashes, rewardSlotHashes [][32]byte
	for _, ss := range b.FinishedSubSlots {
		if ss.ChallengeChain != nil && ss.ChallengeChain.SubEpochSummaryHash != nil {
			h := blockrecord.SubEpochSummaryHash(*ss.ChallengeChain.SubEpochSummaryHash)
			subEpochHash = &h
		}
		if ss.ChallengeChain != nil && ss.ChallengeChain.ChallengeChainEndOfSlotVDF != nil {
			challengeSlotHashes = append(challengeSlotHashes, sha3.Sum256(ss.ChallengeChain.ChallengeChainEndOfSlotVDF.Output[:]))
		}
		if ss.RewardChain != nil && ss.RewardChain.EndOfSlotVDF != nil {
			rewardSlotHashes = append(rewardSlotHashes, sha3.Sum256(ss.RewardChain.EndOfSlotVDF.Output[:]))
		}
	}

	// lastWithdrawalIndex records the last withdrawal index already emitted
	// before this block's own batch. A transaction block's batch ends on its
	// own reserved coinbase index, height+1 (index 0 is the prefarm credit,
	// index h+1 is height h's coinbase), so a block whose parent is a
	// transaction block picks up parent.Height+1; a block whose parent is
	// not carries the parent's value forward unchanged. Genesis has none:
	// nothing precedes its batch, which is what puts the prefarm credit at
	// index 0. consensus/execution.DeriveWithdrawals seeds each batch from
	// this field, so consecutive batches chain contiguously.
	var lastWithdrawalIndex *uint64
	if parent != nil {
		if parent.IsTransactionBlock {
			v := parent.Height + 1
			lastWithdrawalIndex = &v
		} else if parent.LastWithdrawalIndex != nil {
			v := *parent.LastWithdrawalIndex
			lastWithdrawalIndex = &v
		}
	}

	rec := &blockrecord.Record{
		PrevHash:                    b.Foliage.PrevBlockHash,
		Height:                      rcb.Height,
		Weight:                      weight,
		TotalIters:                  totalIters,
		SignagePointIndex:           rcb.SignagePointIndex,
		RequiredIters:               requiredIters,
		Deficit:                     deficit,
		Overflow:                    false,
		FirstInSubSlot:              len(b.FinishedSubSlots) > 0,
		IsTransactionBlock:          rcb.IsTransactionBlock,
		SubSlotIters:                subSlotIters,
		SubEpochSummaryIncluded:     subEpochHash,
		FinishedChallengeSlotHashes: challengeSlotHashes,
		FinishedRewardSlotHashes:    rewardSlotHashes,
		LastWithdrawalIndex:         lastWithdrawalIndex,
		Coinbase:                    coinbaseFromFarmerReward(b),
		RewardInfusionNewChallenge:  deriveNextChallenge(b),
	}

	h, err := blockrecord.ComputeHeaderHash(rec)
	if err != nil {
		return nil, &validation.Error{Code: validation.CodeFoliage, Msg: "pre-validation: could not compute header hash: " + err.Error()}
	}
	rec.HeaderHash = h
	return rec, nil
}

// coinbaseFromFarmerReward derives the execution-layer reward address from
// the farmer's 32-byte reward puzzle hash, taking its low 20 bytes as the
// corresponding EVM-style address, the same width Ethereum itself derives
// an address from the low bytes of a public key hash.
func coinbaseFromFarmerReward(b *types.FullBlock) [20]byte {
	var out [20]byte
	if b.Foliage == nil || b.Foliage.FoliageBlockData == nil {
		return out
	}
	copy(out[:], b.Foliage.FoliageBlockData.FarmerRewardPuzzleHash[12:32])
	return out
}

// deriveNextChallenge computes the reward-chain output this block infuses as
// the next challenge; a pure function of the block's reward-chain VDF
// output.
func deriveNextChallenge(b *types.FullBlock) [32]byte {
	var out [32]byte
	if b.RewardChainBlock == nil || b.RewardChainBlock.RewardChainIPVDF == nil {
		return out
	}
	copy(out[:], b.RewardChainBlock.RewardChainIPVDF.Output[:32])
	return out
}

func partition(blocks []*types.FullBlock, batchSize int) [][]*types.FullBlock {
	if batchSize <= 0 {
		batchSize = 1
	}
	var batches [][]*types.FullBlock
	for i := 0; i < len(blocks); i += batchSize {
		end := i + batchSize
		if end > len(blocks) {
			end = len(blocks)
		}
		batches = append(batches, blocks[i:end])
	}
	return batches
}
