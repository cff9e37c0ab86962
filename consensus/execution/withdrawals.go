package execution

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/corpochain-network/beacon-core/consensus/blockrecord"
	"github.com/corpochain-network/beacon-core/consensus/execution/engineapi"
	"github.com/corpochain-network/beacon-core/consensus/params"
)

// WithdrawalType distinguishes the one-time prefarm credit from the
// recurring per-block coinbase reward.
type WithdrawalType uint8

const (
	WithdrawalTypePrefarm WithdrawalType = 0
	WithdrawalTypeReward  WithdrawalType = 1
)

// Withdrawal is a credit instruction destined for the execution layer,
// carrying the bookkeeping Type the core needs to explain each entry before
// it is flattened into an engineapi.Withdrawal for the wire.
type Withdrawal struct {
	Index      uint64
	Type       WithdrawalType
	Address    [20]byte
	AmountGwei *big.Int
}

// ChainReader is the minimal read-only view over prior block records
// DeriveWithdrawals needs to walk backward from a transaction block to the
// one before it (or to genesis).
type ChainReader interface {
	BlockRecord(hash [32]byte) (*blockrecord.Record, bool)
}

// ToEngineWithdrawals flattens the bookkeeping Type field out, leaving the
// plain index/address/amount shape the Engine API wire format expects.
// ValidatorIndex has no analogue in this consensus model and is always zero.
func ToEngineWithdrawals(ws []Withdrawal) []engineapi.Withdrawal {
	out := make([]engineapi.Withdrawal, len(ws))
	for i, w := range ws {
		out[i] = engineapi.Withdrawal{
			Index:      w.Index,
			Address:    w.Address,
			AmountGwei: w.AmountGwei.Uint64(),
		}
	}
	return out
}

// DeriveWithdrawals enumerates the withdrawals due at the fork-choice update
// that connects prevTxBlock: one coinbase-reward withdrawal per block from
// the block right after the prior transaction block up to (and including)
// prevTxBlock itself, plus the one-time prefarm credit when prevTxBlock is
// the genesis block.
//
// The starting index is prevTxBlock's own committed LastWithdrawalIndex plus
// one (zero when it is nil): that field records the
// last index emitted before this block's batch, so consecutive batches chain
// contiguously. Rewards are assigned in height-ascending order, so every
// block's coinbase lands on the index reserved for it when its record was
// built.
func DeriveWithdrawals(prevTxBlock *blockrecord.Record, records ChainReader, constants *params.Constants) ([]Withdrawal, error) {
	if prevTxBlock == nil {
		return nil, errors.New("execution: DeriveWithdrawals requires a non-nil previous transaction block")
	}

	nextIndex := uint64(0)
	if prevTxBlock.LastWithdrawalIndex != nil {
		nextIndex = *prevTxBlock.LastWithdrawalIndex + 1
	}

	var withdrawals []Withdrawal
	if prevTxBlock.Height == 0 {
		withdrawals = append(withdrawals, Withdrawal{
			Index:      nextIndex,
			Type:       WithdrawalTypePrefarm,
			Address:    constants.PrefarmAddress,
			AmountGwei: PrefarmAmountGwei(constants),
		})
		nextIndex++
	}

	span := []*blockrecord.Record{prevTxBlock}
	cur := prevTxBlock
	for cur.PrevHash != constants.GenesisChallenge {
		parent, ok := records.BlockRecord(cur.PrevHash)
		if !ok {
			return nil, errors.Errorf("execution: DeriveWithdrawals: parent %x of block at height %d not found", cur.PrevHash, cur.Height)
		}
		if parent.IsTransactionBlock {
			break
		}
		span = append(span, parent)
		cur = parent
	}

	for i := len(span) - 1; i >= 0; i-- {
		withdrawals = append(withdrawals, Withdrawal{
			Index:      nextIndex,
			Type:       WithdrawalTypeReward,
			Address:    span[i].Coinbase,
			AmountGwei: RewardAt(span[i].Height, constants),
		})
		nextIndex++
	}

	return withdrawals, nil
}
