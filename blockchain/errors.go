package blockchain

import (
	"github.com/pkg/errors"

	"github.com/corpochain-network/beacon-core/consensus/execution"
)

// Structural errors returned by ReceiveBlock before any chain state is
// touched.
var (
	ErrInvalidPrevBlockHash   = errors.New("blockchain: invalid prev block hash")
	ErrInvalidHeight          = errors.New("blockchain: invalid height")
	ErrInvalidPoSpace         = errors.New("blockchain: invalid proof of space")
	ErrInvalidSubEpochSummary = errors.New("blockchain: invalid sub epoch summary")
)

// Execution-family errors are the same sentinels consensus/execution
// defines; aliased here so callers of this package only need one import for
// the full error taxonomy.
var (
	ErrPayloadInvalidated  = execution.ErrPayloadInvalidated
	ErrPayloadNotValidated = execution.ErrPayloadNotValidated
	ErrUnknown             = execution.ErrUnknown
)
