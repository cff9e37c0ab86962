// Package difficulty computes the next epoch's difficulty and sub-slot
// iteration count: a pure function of the chain's recent wall-clock history,
// consulted by both header validation and pre-validation when synthesizing
// tentative block records.
package difficulty

import (
	"math/bits"

	"github.com/corpochain-network/beacon-core/consensus/blockrecord"
	"github.com/corpochain-network/beacon-core/consensus/params"
)

// ChainReader is the minimal read-only view over prior block records the
// engine needs to recompute difficulty across an epoch window. The
// Blockchain Manager and the Pre-Validation Pipeline each supply their own
// implementation (persisted store + cache, or a tentative in-memory map).
type ChainReader interface {
	BlockRecord(hash [32]byte) (*blockrecord.Record, bool)
	// TimestampAt returns the foliage-transaction-block timestamp recorded
	// for the block with the given header hash (ok=false if it is unknown or
	// not a transaction block), used to measure elapsed wall-clock time
	// across an epoch window.
	TimestampAt(hash [32]byte) (int64, bool)
}

// Next computes the next sub-slot iterations and difficulty: for height <= 2
// it returns the starting constants;
// otherwise, at epoch boundaries, it recomputes from the elapsed wall-clock
// time across the epoch window, clamps the change to
// DifficultyChangeMaxFactor, floors sub_slot_iters at
// SubSlotItersHardMin, and zeroes trailing bits below SignificantBits for
// determinism. Away from an epoch boundary it returns the previous block's
// own (sub_slot_iters, difficulty) unchanged.
func Next(
	constants *params.Constants,
	newSlotBoundary bool,
	prev *blockrecord.Record,
	chain ChainReader,
) (subSlotIters uint64, difficulty uint64, err error) {
	if prev == nil || prev.Height <= 2 {
		return constants.SubSlotItersStarting, constants.DifficultyStarting, nil
	}

	if !atEpochBoundary(prev.Height, constants) || !newSlotBoundary {
		return prev.SubSlotIters, prev.RequiredIters.Uint64(), nil
	}

	oldSSI := prev.SubSlotIters
	oldDifficulty := currentDifficulty(prev)

	elapsed, iters, err := epochWindow(prev, chain, constants)
	if err != nil {
		return 0, 0, err
	}
	if elapsed <= 0 {
		elapsed = 1
	}

	targetSeconds := int64(constants.EpochBlocks / constants.SlotsBlocksTarget * constants.SubSlotTimeTarget)
	if targetSeconds <= 0 {
		targetSeconds = 1
	}

	// Sub-slot iterations track the observed iteration rate: the iterations
	// the epoch actually produced, re-normalized to the target window.
	// Difficulty tracks the wall-clock ratio alone.
	newSSI := clampFactor(oldSSI, mulDiv(uint64(iters), uint64(targetSeconds), uint64(elapsed)), constants.DifficultyChangeMaxFactor)
	newDifficulty := clampFactor(oldDifficulty, mulDiv(oldDifficulty, uint64(targetSeconds), uint64(elapsed)), constants.DifficultyChangeMaxFactor)

	if newSSI < constants.SubSlotItersHardMin {
		newSSI = constants.SubSlotItersHardMin
	}

	newSSI = zeroTrailingBits(newSSI, constants.SignificantBits)
	newDifficulty = zeroTrailingBits(newDifficulty, constants.SignificantBits)
	if newDifficulty == 0 {
		newDifficulty = 1
	}

	return newSSI, newDifficulty, nil
}

func currentDifficulty(prev *blockrecord.Record) uint64 {
	if prev.RequiredIters == nil {
		return 0
	}
	return prev.RequiredIters.Uint64()
}

func atEpochBoundary(height uint64, constants *params.Constants) bool {
	if constants.EpochBlocks == 0 {
		return false
	}
	return height%constants.EpochBlocks == 0
}

// epochWindow walks back from prev across one epoch's worth of blocks,
// summing the claimed VDF iterations (a proxy for elapsed iterations) and
// measuring the wall-clock span via the timestamps the chain reader exposes.
// Returns (elapsedSeconds, totalIterations).
func epochWindow(prev *blockrecord.Record, chain ChainReader, constants *params.Constants) (int64, int64, error) {
	cur := prev
	startIters := prev.TotalIters.Int64()
	var startTime, endTime int64
	found := false

	steps := constants.EpochBlocks
	for i := uint64(0); i < steps; i++ {
		if ts, ok := chain.TimestampAt(cur.HeaderHash); ok {
			if !found {
				endTime = ts
				found = true
			}
			startTime = ts
		}
		parent, ok := chain.BlockRecord(cur.PrevHash)
		if !ok {
			break
		}
		cur = parent
	}

	elapsed := endTime - startTime
	totalIters := startIters - cur.TotalIters.Int64()
	return elapsed, totalIters, nil
}

// clampFactor bounds proposal to [old/maxFactor, old*maxFactor] so a single
// epoch can never move either value by more than the configured factor.
func clampFactor(old, proposal, maxFactor uint64) uint64 {
	if old == 0 {
		old = 1
	}
	upperBound := old * maxFactor
	lowerBound := old / maxFactor
	if lowerBound == 0 {
		lowerBound = 1
	}
	if proposal > upperBound {
		return upperBound
	}
	if proposal < lowerBound {
		return lowerBound
	}
	return proposal
}

func mulDiv(a, b, c uint64) uint64 {
	if c == 0 {
		return a
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		// Overflow beyond what the 128-bit division can represent for this
		// divisor; saturate rather than wrap, since callers only use this
		// for scaling by small ratios of elapsed vs target seconds.
		return ^uint64(0)
	}
	q, _ := bits.Div64(hi, lo, c)
	return q
}

// zeroTrailingBits clears the low `bits` bits of v, keeping the
// "zero trailing bits below SIGNIFICANT_BITS for determinism" rule.
func zeroTrailingBits(v uint64, bits uint64) uint64 {
	if bits == 0 || bits >= 64 {
		return v
	}
	mask := ^uint64(0) << bits
	return v & mask
}
