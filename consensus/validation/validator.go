// Package validation implements the Header Validator: verification of a
// block's PoST structure independent of its execution payload. VDF
// arithmetic, BLS verification and PoSpace quality computation are pure
// collaborator contracts injected into Validator rather than implemented
// here; they belong to the farmer/timelord/plotting subsystems.
package validation

import (
	"math/big"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/corpochain-network/beacon-core/consensus/blockrecord"
	"github.com/corpochain-network/beacon-core/consensus/params"
	"github.com/corpochain-network/beacon-core/consensus/types"
)

// ChainReader is the minimal read-only view over prior block records the
// validator needs to resolve challenges, sub-epoch summaries, and recent
// transaction-block timestamps.
type ChainReader interface {
	BlockRecord(hash [32]byte) (*blockrecord.Record, bool)
	// RecentTransactionTimestamps returns up to n timestamps of the most
	// recent transaction blocks at or before parent, most recent first.
	RecentTransactionTimestamps(parent [32]byte, n int) ([]int64, error)
}

// PoSpaceVerifier extracts the quality string from a submitted proof of
// space, or reports failure. Its internals (plot filter, quality-string
// derivation) are a pure collaborator contract.
type PoSpaceVerifier interface {
	VerifyAndGetQualityString(pos *types.ProofOfSpace, constants *params.Constants, challenge [32]byte, ccSPHash [32]byte) (qualityString []byte, ok bool)
}

// IterationsCalculator computes required_iters from a quality string; a pure
// collaborator contract (no internal state, no I/O).
type IterationsCalculator interface {
	CalculateIterationsQuality(difficultyConstantFactor *big.Int, qualityString []byte, size uint8, difficulty uint64, ccSPHash [32]byte) *big.Int
}

// VDFVerifier checks a VDFProof against its claimed VDFInfo; a pure
// collaborator contract delegating to the timelord's VDF arithmetic.
type VDFVerifier interface {
	Verify(info *types.VDFInfo, proof *types.VDFProof) bool
}

// SubEpochSummaryComputer computes the expected SubEpochSummary hash a
// sub-epoch-boundary-crossing block must commit to; a pure collaborator
// contract delegating to the weight-proof subsystem's summary-construction
// logic, per this module's stated boundary with that subsystem. Optional:
// a Validator with no SubEpochSummaryComputer configured only checks that a
// claimed hash is not the zero value, not that it is the correct one.
type SubEpochSummaryComputer interface {
	ComputeSubEpochSummaryHash(chain ChainReader, header *types.HeaderBlock) (*[32]byte, bool)
}

// Clock abstracts wall-clock "now" so timestamp validation is deterministic
// in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production Clock implementation.
var SystemClock Clock = systemClock{}

// Validator runs the ten ordered header checks.
type Validator struct {
	Constants  *params.Constants
	PoSpace    PoSpaceVerifier
	Iterations IterationsCalculator
	VDF        VDFVerifier
	Clock      Clock

	// SubEpochSummary resolves check 10's expected hash; nil is a valid
	// zero value (see SubEpochSummaryComputer's doc comment).
	SubEpochSummary SubEpochSummaryComputer

	// UnfinishedMode is set by the Blockchain Manager's
	// ValidateUnfinishedBlock, which runs header validation against an
	// UnfinishedHeaderBlock that by definition has no infusion-point VDFs
	// yet. In this mode checkInfusionPointVDFs is a no-op rather than a
	// failure.
	UnfinishedMode bool
}

// New constructs a Validator from its collaborators. Clock defaults to
// SystemClock if nil. ses may be nil; see SubEpochSummaryComputer's doc
// comment for the fallback behavior.
func New(constants *params.Constants, pos PoSpaceVerifier, iters IterationsCalculator, vdf VDFVerifier, ses SubEpochSummaryComputer, clock Clock) *Validator {
	if clock == nil {
		clock = SystemClock
	}
	return &Validator{Constants: constants, PoSpace: pos, Iterations: iters, VDF: vdf, SubEpochSummary: ses, Clock: clock}
}

// checkState threads the intermediate values successive checks need (the
// derived challenge, the signage-point hash, the quality string) without a
// long positional parameter list.
type checkState struct {
	header               *types.HeaderBlock
	chain                ChainReader
	expectedDifficulty   uint64
	expectedSubSlotIters uint64
	skipOverflowLastSS   bool

	challenge     [32]byte
	ccSPHash      [32]byte
	qualityString []byte
	requiredIters *big.Int
}

// Validate runs the ten ordered checks against header, returning
// the computed required_iters on success or the first failing check's Error.
func Validate(
	v *Validator,
	chain ChainReader,
	header *types.HeaderBlock,
	expectedDifficulty, expectedSubSlotIters uint64,
	skipOverflowLastSSValidation bool,
) (*big.Int, *Error) {
	st := &checkState{
		header:               header,
		chain:                chain,
		expectedDifficulty:   expectedDifficulty,
		expectedSubSlotIters: expectedSubSlotIters,
		skipOverflowLastSS:   skipOverflowLastSSValidation,
	}

	checks := []func(*Validator, *checkState) *Error{
		checkLinkage,
		checkFinishedSubSlots,
		checkChallenge,
		checkProofOfSpace,
		checkRequiredIters,
		checkSignagePointVDFs,
		checkInfusionPointVDFs,
		checkFoliage,
		checkTimestamp,
		checkSubEpochSummary,
	}
	for _, check := range checks {
		if err := check(v, st); err != nil {
			return nil, err
		}
	}
	return st.requiredIters, nil
}

// checkLinkage is check 1: prev_header_hash exists or equals GenesisChallenge.
func checkLinkage(v *Validator, st *checkState) *Error {
	prevHash := st.header.Foliage.PrevBlockHash
	if prevHash == v.Constants.GenesisChallenge {
		return nil
	}
	if _, ok := st.chain.BlockRecord(prevHash); !ok {
		return newError(CodeLinkage, "prev_header_hash %x not found and is not GENESIS_CHALLENGE", prevHash)
	}
	return nil
}

// checkFinishedSubSlots is check 2: each sub-slot's challenge and reward VDFs
// compose consistently; the infused-challenge chain is present iff
// deficit < MinBlocksPerChallengeBlock.
func checkFinishedSubSlots(v *Validator, st *checkState) *Error {
	for i, ss := range st.header.FinishedSubSlots {
		if ss.ChallengeChain == nil || ss.RewardChain == nil {
			return newError(CodeFinishedSubSlots, "sub-slot %d missing challenge or reward chain", i)
		}
		if ss.ChallengeChain.ChallengeChainEndOfSlotVDF == nil || ss.RewardChain.EndOfSlotVDF == nil {
			return newError(CodeFinishedSubSlots, "sub-slot %d missing end-of-slot VDF output", i)
		}
		wantICC := ss.RewardChain.Deficit < uint8(v.Constants.MinBlocksPerChallengeBlock)
		hasICC := ss.InfusedChallengeChain != nil && ss.InfusedChallengeChain.InfusedChallengeChainEndOfSlotVDF != nil
		if wantICC != hasICC {
			return newError(CodeFinishedSubSlots, "sub-slot %d infused-challenge-chain presence %v does not match deficit %d < %d", i, hasICC, ss.RewardChain.Deficit, v.Constants.MinBlocksPerChallengeBlock)
		}
		for _, proof := range proofsForSubSlot(ss) {
			if proof.info != nil && !v.VDF.Verify(proof.info, proof.proof) {
				return newError(CodeFinishedSubSlots, "sub-slot %d %s VDF failed verification", i, proof.name)
			}
		}
	}
	return nil
}

type namedVDF struct {
	name  string
	info  *types.VDFInfo
	proof *types.VDFProof
}

func proofsForSubSlot(ss *types.EndOfSubSlotBundle) []namedVDF {
	out := make([]namedVDF, 0, 3)
	if len(ss.Proofs) > 0 {
		out = append(out, namedVDF{"challenge-chain", ss.ChallengeChain.ChallengeChainEndOfSlotVDF, ss.Proofs[0]})
	}
	if len(ss.Proofs) > 1 {
		out = append(out, namedVDF{"reward-chain", ss.RewardChain.EndOfSlotVDF, ss.Proofs[1]})
	}
	if ss.InfusedChallengeChain != nil && len(ss.Proofs) > 2 {
		out = append(out, namedVDF{"infused-challenge-chain", ss.InfusedChallengeChain.InfusedChallengeChainEndOfSlotVDF, ss.Proofs[2]})
	}
	return out
}

// checkChallenge is check 3: derive the challenge for this block from either
// GenesisChallenge (first block) or the last finished sub-slot's
// reward-chain output, adjusted for overflow.
func checkChallenge(v *Validator, st *checkState) *Error {
	challenge, ccSPHash, err := DeriveChallenge(v.Constants, st.chain, st.header)
	if err != nil {
		return err
	}
	st.challenge = challenge
	st.ccSPHash = ccSPHash
	return nil
}

// DeriveChallenge computes the challenge and challenge-chain signage-point
// hash a block's proof of space must satisfy (check 3). It is
// exported so the Pre-Validation Pipeline's tentative pass (PoSpace
// verification) can derive the same challenge without running the full
// ordered check sequence.
func DeriveChallenge(constants *params.Constants, chain ChainReader, header *types.HeaderBlock) (challenge, ccSPHash [32]byte, err *Error) {
	if len(header.FinishedSubSlots) == 0 {
		if header.Foliage.PrevBlockHash == constants.GenesisChallenge {
			challenge = constants.GenesisChallenge
			return challenge, challenge, nil
		}
		parent, ok := chain.BlockRecord(header.Foliage.PrevBlockHash)
		if !ok {
			return challenge, ccSPHash, newError(CodeChallenge, "cannot derive challenge: parent not found")
		}
		challenge = parent.RewardInfusionNewChallenge
		ccSPHash = deriveSPHash(challenge, header.RewardChainBlock.SignagePointIndex, isOverflow(header.RewardChainBlock.SignagePointIndex, constants))
		return challenge, ccSPHash, nil
	}
	last := header.FinishedSubSlots[len(header.FinishedSubSlots)-1]
	challenge = sha3.Sum256(last.RewardChain.EndOfSlotVDF.Output[:])
	ccSPHash = deriveSPHash(challenge, header.RewardChainBlock.SignagePointIndex, isOverflow(header.RewardChainBlock.SignagePointIndex, constants))
	return challenge, ccSPHash, nil
}

func isOverflow(spIndex uint8, constants *params.Constants) bool {
	return uint64(spIndex) >= constants.NumSPsSubSlot-constants.NumSPIntervalsExtra
}

// deriveSPHash folds the signage-point index and overflow flag into the base
// challenge to get the per-signage-point challenge-chain hash a farmer's
// proof of space must be checked against.
func deriveSPHash(challenge [32]byte, spIndex uint8, overflow bool) [32]byte {
	out := challenge
	out[31] ^= spIndex
	if overflow {
		out[30] ^= 0xFF
	}
	return out
}

// checkProofOfSpace is check 4.
func checkProofOfSpace(v *Validator, st *checkState) *Error {
	pos := st.header.RewardChainBlock.ProofOfSpace
	if pos == nil {
		return newError(CodeProofOfSpace, "missing proof of space")
	}
	qStr, ok := v.PoSpace.VerifyAndGetQualityString(pos, v.Constants, st.challenge, st.ccSPHash)
	if !ok {
		return newError(CodeProofOfSpace, "proof of space failed verification for challenge %x", st.challenge)
	}
	st.qualityString = qStr
	return nil
}

// checkRequiredIters is check 5.
func checkRequiredIters(v *Validator, st *checkState) *Error {
	pos := st.header.RewardChainBlock.ProofOfSpace
	st.requiredIters = v.Iterations.CalculateIterationsQuality(
		v.Constants.DifficultyConstantFactor,
		st.qualityString,
		pos.Size,
		st.expectedDifficulty,
		st.ccSPHash,
	)
	if st.requiredIters == nil || st.requiredIters.Sign() <= 0 {
		return newError(CodeRequiredIters, "calculated required_iters is non-positive")
	}
	return nil
}

// checkSignagePointVDFs is check 6: the cc_sp and rc_sp VDF proofs are
// verified by the VDF collaborator; skipped at signage-point index 0.
// expectedSubSlotIters is not consulted here.
func checkSignagePointVDFs(v *Validator, st *checkState) *Error {
	rcb := st.header.RewardChainBlock
	if rcb.SignagePointIndex == 0 {
		// The first signage point of a sub-slot has no separate SP proof;
		// the sub-slot's own end-of-slot VDF stands in for it.
		return nil
	}
	if rcb.POSSignagePointCCVDF == nil || st.header.ChallengeChainSPProof == nil {
		if st.skipOverflowLastSS && isOverflow(rcb.SignagePointIndex, v.Constants) {
			return nil
		}
		return newError(CodeSignagePointVDF, "missing challenge-chain signage-point VDF/proof")
	}
	if !v.VDF.Verify(rcb.POSSignagePointCCVDF, st.header.ChallengeChainSPProof) {
		return newError(CodeSignagePointVDF, "challenge-chain signage-point VDF failed verification")
	}
	if rcb.RewardChainSPVDF == nil || st.header.RewardChainSPProof == nil {
		return newError(CodeSignagePointVDF, "missing reward-chain signage-point VDF/proof")
	}
	if !v.VDF.Verify(rcb.RewardChainSPVDF, st.header.RewardChainSPProof) {
		return newError(CodeSignagePointVDF, "reward-chain signage-point VDF failed verification")
	}
	return nil
}

// checkInfusionPointVDFs is check 7: cc_ip, rc_ip, optional icc_ip verified.
// A no-op in UnfinishedMode: an UnfinishedHeaderBlock has not been infused
// yet and carries no infusion-point VDFs to check.
func checkInfusionPointVDFs(v *Validator, st *checkState) *Error {
	if v.UnfinishedMode {
		return nil
	}
	rcb := st.header.RewardChainBlock
	if rcb.ChallengeChainIPVDF == nil || st.header.ChallengeChainIPProof == nil {
		return newError(CodeInfusionPointVDF, "missing challenge-chain infusion-point VDF/proof")
	}
	if !v.VDF.Verify(rcb.ChallengeChainIPVDF, st.header.ChallengeChainIPProof) {
		return newError(CodeInfusionPointVDF, "challenge-chain infusion-point VDF failed verification")
	}
	if rcb.RewardChainIPVDF == nil || st.header.RewardChainIPProof == nil {
		return newError(CodeInfusionPointVDF, "missing reward-chain infusion-point VDF/proof")
	}
	if !v.VDF.Verify(rcb.RewardChainIPVDF, st.header.RewardChainIPProof) {
		return newError(CodeInfusionPointVDF, "reward-chain infusion-point VDF failed verification")
	}
	if rcb.InfusedChallengeChainIPVDF != nil {
		if st.header.InfusedChallengeChainIPProof == nil {
			return newError(CodeInfusionPointVDF, "missing infused-challenge-chain infusion-point proof")
		}
		if !v.VDF.Verify(rcb.InfusedChallengeChainIPVDF, st.header.InfusedChallengeChainIPProof) {
			return newError(CodeInfusionPointVDF, "infused-challenge-chain infusion-point VDF failed verification")
		}
	}
	return nil
}

// checkFoliage is check 8.
func checkFoliage(v *Validator, st *checkState) *Error {
	f := st.header.Foliage
	if f == nil {
		return newError(CodeFoliage, "missing foliage")
	}
	if f.FoliageBlockData == nil {
		return newError(CodeFoliage, "missing foliage block data")
	}
	if f.RewardBlockHash != f.FoliageBlockData.UnfinishedRewardBlockHash {
		return newError(CodeFoliage, "foliage reward-block hash does not match committed unfinished-reward-block hash")
	}
	isTxBlock := st.header.FoliageTransactionBlock != nil
	if isTxBlock != st.header.RewardChainBlock.IsTransactionBlock {
		return newError(CodeFoliage, "foliage-transaction-block presence %v does not match is_transaction_block %v", isTxBlock, st.header.RewardChainBlock.IsTransactionBlock)
	}
	if isTxBlock && f.FoliageTransactionBlockHash == nil {
		return newError(CodeFoliage, "transaction block missing foliage-transaction-block hash commitment")
	}
	return nil
}

// checkTimestamp is check 9: for transaction blocks, timestamp must be
// strictly greater than the mean of the previous NumberOfTimestamps
// transaction-block timestamps, and at most MaxFutureTime seconds ahead of
// local clock.
func checkTimestamp(v *Validator, st *checkState) *Error {
	ftb := st.header.FoliageTransactionBlock
	if ftb == nil {
		return nil
	}
	now := v.Clock.Now().Unix()
	if ftb.Timestamp > now+int64(v.Constants.MaxFutureTime) {
		return newError(CodeTimestamp, "timestamp %d too far in the future (now=%d, max_future=%d)", ftb.Timestamp, now, v.Constants.MaxFutureTime)
	}
	prevTimestamps, err := st.chain.RecentTransactionTimestamps(st.header.Foliage.PrevBlockHash, int(v.Constants.NumberOfTimestamps))
	if err != nil {
		return newError(CodeTimestamp, "could not load recent transaction-block timestamps: %v", err)
	}
	if len(prevTimestamps) == 0 {
		return nil
	}
	var sum int64
	for _, ts := range prevTimestamps {
		sum += ts
	}
	mean := sum / int64(len(prevTimestamps))
	if ftb.Timestamp <= mean {
		return newError(CodeTimestamp, "timestamp %d not strictly greater than mean of last %d transaction-block timestamps (%d)", ftb.Timestamp, len(prevTimestamps), mean)
	}
	return nil
}

// checkSubEpochSummary is check 10: if this block crosses the sub-epoch
// boundary, its committed hash must match the computed expected value. With
// no SubEpochSummaryComputer configured, the check only confirms a claimed
// hash is present and non-zero, since there is nothing here to compare it
// against (weight-proof summary construction is out of this module's
// boundary; see SubEpochSummaryComputer).
func checkSubEpochSummary(v *Validator, st *checkState) *Error {
	for _, ss := range st.header.FinishedSubSlots {
		claimed := ss.ChallengeChain.SubEpochSummaryHash
		if claimed == nil {
			continue
		}
		if v.SubEpochSummary == nil {
			var zero [32]byte
			if *claimed == zero {
				return newError(CodeSubEpochSummary, "sub-epoch summary hash is the zero value")
			}
			continue
		}
		expected, ok := v.SubEpochSummary.ComputeSubEpochSummaryHash(st.chain, st.header)
		if !ok || expected == nil {
			return newError(CodeSubEpochSummary, "sub-epoch summary present but none expected at this height")
		}
		if *claimed != *expected {
			return newError(CodeSubEpochSummary, "sub-epoch summary hash %x does not match expected %x", *claimed, *expected)
		}
	}
	return nil
}
