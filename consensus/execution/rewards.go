// Package execution implements the Execution Client Adapter: the
// policy layer sitting atop consensus/execution/engineapi's JSON-RPC
// transport. It covers withdrawal derivation, the block-reward schedule, and the
// body-validation outcome table that consumes engine responses.
package execution

import (
	"math/big"

	"github.com/corpochain-network/beacon-core/consensus/params"
)

// gwei is the unit the reward schedule and withdrawal amounts are expressed
// in (10^9 base-subunits), matching the Engine API withdrawal "amount"
// field.
var gwei = big.NewInt(1_000_000_000)

// rewardTier is one (years bound, reward fraction) breakpoint of the
// schedule, checked in order; the first tier whose years*BlocksPerYear bound
// exceeds the target height wins.
type rewardTier struct {
	years       uint64
	numerator   int64
	denominator int64
}

// rewardSchedule lists the halving breakpoints in years-since-genesis,
// each paired with the reward as a fraction of one whole unit
// (numerator/denominator * 10^9 gwei). A tier matches when height is still
// within its Years*BlocksPerYear bound.
var rewardSchedule = []rewardTier{
	{years: 3, numerator: 2, denominator: 1},
	{years: 6, numerator: 1, denominator: 1},
	{years: 9, numerator: 1, denominator: 2},
	{years: 12, numerator: 1, denominator: 4},
	{years: 15, numerator: 1, denominator: 8},
}

// RewardAt returns the coinbase reward due at height, in gwei (10^9
// base-subunits), by year-boundary:
// <3Y -> 2, <6Y -> 1, <9Y -> 0.5, <12Y -> 0.25, <15Y -> 0.125, else 0, where
// Y = BlocksPerYear (4608 * 2 * 365 on Mainnet).
func RewardAt(height uint64, constants *params.Constants) *big.Int {
	blocksPerYear := constants.BlocksPerYear
	if blocksPerYear == 0 {
		blocksPerYear = 1
	}
	for _, tier := range rewardSchedule {
		if height < tier.years*blocksPerYear {
			reward := new(big.Int).Mul(gwei, big.NewInt(tier.numerator))
			return reward.Div(reward, big.NewInt(tier.denominator))
		}
	}
	return new(big.Int)
}

// PrefarmAmountGwei returns the one-time prefarm withdrawal amount, in gwei,
// emitted alongside height 0's own coinbase reward.
func PrefarmAmountGwei(constants *params.Constants) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(constants.PrefarmAmount), gwei)
}
