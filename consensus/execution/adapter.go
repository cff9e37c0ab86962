package execution

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/corpochain-network/beacon-core/consensus/blockrecord"
	"github.com/corpochain-network/beacon-core/consensus/execution/engineapi"
	"github.com/corpochain-network/beacon-core/consensus/params"
	"github.com/corpochain-network/beacon-core/consensus/types"
)

// executionBlockCacheSize bounds the recency-based execution-block lookup
// cache; historical execution blocks are immutable once built, so a plain
// LRU (unlike the height-relative BlockCache in consensus/cache) is the
// right eviction policy here.
const executionBlockCacheSize = 256

var log = logrus.WithField("prefix", "execution")

// Phase distinguishes the two block-ingestion points that consult the
// body-validation policy table: an unfinished block (farmer-proposed,
// pre-infusion) only ever calls new_payload; a full block (already infused)
// calls both new_payload and forkchoice_update.
type Phase int

const (
	PhaseUnfinishedBlock Phase = iota
	PhaseFullBlock
)

// BodyOutcome is the result of consulting the body-validation policy table.
type BodyOutcome int

const (
	BodyAccept BodyOutcome = iota
	BodyReject
)

// ValidateBody resolves engine responses through the body-validation policy
// table:
//
//	Unfinished block, new_payload VALID                       -> accept
//	Unfinished block, new_payload INVALID/INVALID_BLOCK_HASH   -> reject PAYLOAD_INVALIDATED
//	Unfinished block, new_payload SYNCING/ACCEPTED              -> reject PAYLOAD_NOT_VALIDATED
//	Full block, new_payload VALID, forkchoice VALID              -> accept
//	Full block, new_payload any bad                               -> reject PAYLOAD_INVALIDATED
//	Full block, new_payload good, forkchoice SYNCING/ACCEPTED      -> accept iff optimisticImport, else PAYLOAD_NOT_VALIDATED
//	Full block, new_payload good, forkchoice INVALID               -> reject PAYLOAD_INVALIDATED
//	anything else                                                   -> reject UNKNOWN
//
// fcuStatus is ignored (and may be StatusUnknown) when phase is
// PhaseUnfinishedBlock, since an unfinished block never drives a
// fork-choice update.
func ValidateBody(phase Phase, payloadStatus, fcuStatus engineapi.PayloadStatus, optimisticImport bool) (BodyOutcome, error) {
	switch phase {
	case PhaseUnfinishedBlock:
		switch payloadStatus {
		case engineapi.StatusValid:
			return BodyAccept, nil
		case engineapi.StatusInvalid, engineapi.StatusInvalidBlockHash:
			return BodyReject, ErrPayloadInvalidated
		case engineapi.StatusSyncing, engineapi.StatusAccepted:
			return BodyReject, ErrPayloadNotValidated
		default:
			return BodyReject, ErrUnknown
		}

	case PhaseFullBlock:
		switch payloadStatus {
		case engineapi.StatusValid:
			switch fcuStatus {
			case engineapi.StatusValid:
				return BodyAccept, nil
			case engineapi.StatusSyncing, engineapi.StatusAccepted:
				if optimisticImport {
					return BodyAccept, nil
				}
				return BodyReject, ErrPayloadNotValidated
			case engineapi.StatusInvalid:
				return BodyReject, ErrPayloadInvalidated
			default:
				return BodyReject, ErrUnknown
			}
		case engineapi.StatusInvalid, engineapi.StatusInvalidBlockHash, engineapi.StatusSyncing, engineapi.StatusAccepted:
			return BodyReject, ErrPayloadInvalidated
		default:
			return BodyReject, ErrUnknown
		}

	default:
		return BodyReject, ErrUnknown
	}
}

// Adapter wraps an engineapi.Client with the consensus-side policy layer:
// body-validation outcomes and withdrawal-bearing fork-choice updates.
// Constructed directly rather than via functional options since it has only
// one required collaborator and no optional knobs beyond OptimisticImport,
// which callers set as a plain field.
type Adapter struct {
	Client           *engineapi.Client
	Constants        *params.Constants
	OptimisticImport bool

	execBlocks *lru.Cache
}

// NewAdapter constructs an Adapter around an already-dialed engineapi.Client.
func NewAdapter(client *engineapi.Client, constants *params.Constants, optimisticImport bool) *Adapter {
	execBlocks, err := lru.New(executionBlockCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// executionBlockCacheSize never is.
		panic(err)
	}
	return &Adapter{Client: client, Constants: constants, OptimisticImport: optimisticImport, execBlocks: execBlocks}
}

// ExecutionBlockByHash looks up a historical execution block, consulting the
// recency-based cache before round-tripping to the execution client.
func (a *Adapter) ExecutionBlockByHash(ctx context.Context, hash [32]byte) (*engineapi.ExecutionBlock, error) {
	if v, ok := a.execBlocks.Get(hash); ok {
		return v.(*engineapi.ExecutionBlock), nil
	}
	blk, err := a.Client.ExecutionBlockByHash(ctx, hash)
	if err != nil {
		return nil, errors.Wrap(err, "execution: execution block lookup failed")
	}
	a.execBlocks.Add(hash, blk)
	return blk, nil
}

// ValidateUnfinishedBody runs the unfinished-block path: submit the
// payload via new_payload only, and resolve the outcome against the policy
// table.
func (a *Adapter) ValidateUnfinishedBody(ctx context.Context, payload *types.ExecutionPayload) (BodyOutcome, error) {
	resp, err := a.Client.NewPayload(ctx, payload)
	if err != nil {
		return BodyReject, errors.Wrap(err, "execution: new_payload call failed")
	}
	outcome, verr := ValidateBody(PhaseUnfinishedBlock, resp.Status, engineapi.StatusUnknown, a.OptimisticImport)
	if verr != nil {
		log.WithField("status", resp.Status).Debug("unfinished block payload rejected")
	}
	return outcome, verr
}

// ValidateFullBody runs the full-block path: submit the payload via
// new_payload, then (iff new_payload was VALID) drive a fork-choice update
// to the new head, carrying the withdrawals DeriveWithdrawals computes for
// prevTxBlock, resolving the outcome against the policy table.
func (a *Adapter) ValidateFullBody(
	ctx context.Context,
	payload *types.ExecutionPayload,
	newHead *blockrecord.Record,
	prevTxBlock *blockrecord.Record,
	records ChainReader,
	feeRecipient [20]byte,
) (BodyOutcome, error) {
	payloadResp, err := a.Client.NewPayload(ctx, payload)
	if err != nil {
		return BodyReject, errors.Wrap(err, "execution: new_payload call failed")
	}
	if payloadResp.Status != engineapi.StatusValid {
		_, verr := ValidateBody(PhaseFullBlock, payloadResp.Status, engineapi.StatusUnknown, a.OptimisticImport)
		return BodyReject, verr
	}

	var withdrawals []Withdrawal
	if prevTxBlock != nil {
		withdrawals, err = DeriveWithdrawals(prevTxBlock, records, a.Constants)
		if err != nil {
			return BodyReject, errors.Wrap(err, "execution: deriving withdrawals")
		}
	}

	fcuResp, err := a.Client.ForkchoiceUpdated(ctx, &engineapi.ForkchoiceState{
		HeadBlockHash: newHead.HeaderHash,
	}, &engineapi.PayloadAttributes{
		Timestamp:             payload.Timestamp,
		PrevRandao:            payload.PrevRandao,
		SuggestedFeeRecipient: feeRecipient,
		Withdrawals:           ToEngineWithdrawals(withdrawals),
	})
	if err != nil {
		return BodyReject, errors.Wrap(err, "execution: forkchoice_update call failed")
	}

	outcome, verr := ValidateBody(PhaseFullBlock, payloadResp.Status, fcuResp.PayloadStatus.Status, a.OptimisticImport)
	if verr != nil {
		log.WithFields(logrus.Fields{
			"new_payload_status": payloadResp.Status,
			"forkchoice_status":  fcuResp.PayloadStatus.Status,
			"optimistic_import":  a.OptimisticImport,
		}).Debug("full block payload rejected")
	}
	return outcome, verr
}

// IdlePoll learns the execution engine's latest known hash on startup.
func (a *Adapter) IdlePoll(ctx context.Context) (*engineapi.ExecutionBlock, error) {
	blk, err := a.Client.LatestExecutionBlock(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "execution: idle-state poll failed")
	}
	return blk, nil
}
