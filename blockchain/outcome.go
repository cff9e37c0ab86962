package blockchain

import "github.com/corpochain-network/beacon-core/consensus/blockrecord"

// Outcome is the result classification ReceiveBlock returns.
type Outcome int

const (
	OutcomeNewPeak Outcome = iota
	OutcomeAddedAsOrphan
	OutcomeInvalidBlock
	OutcomeAlreadyHaveBlock
	OutcomeDisconnectedBlock
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNewPeak:
		return "NEW_PEAK"
	case OutcomeAddedAsOrphan:
		return "ADDED_AS_ORPHAN"
	case OutcomeInvalidBlock:
		return "INVALID_BLOCK"
	case OutcomeAlreadyHaveBlock:
		return "ALREADY_HAVE_BLOCK"
	case OutcomeDisconnectedBlock:
		return "DISCONNECTED_BLOCK"
	default:
		return "UNKNOWN"
	}
}

// StateChangeSummary describes what changed on a successful ReceiveBlock
// call: the newly-committed record and the height the fork (if any)
// diverged from.
type StateChangeSummary struct {
	Record     *blockrecord.Record
	ForkHeight uint64
}
