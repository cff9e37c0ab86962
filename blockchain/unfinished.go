package blockchain

import (
	"context"

	"github.com/pkg/errors"

	"github.com/corpochain-network/beacon-core/consensus/blockrecord"
	"github.com/corpochain-network/beacon-core/consensus/difficulty"
	"github.com/corpochain-network/beacon-core/consensus/execution"
	"github.com/corpochain-network/beacon-core/consensus/types"
	"github.com/corpochain-network/beacon-core/consensus/validation"
)

// ValidateUnfinishedBlock runs header validation against ub's
// UnfinishedHeaderBlock view (in UnfinishedMode, so the absent infusion-point
// VDFs are not treated as a failure) and, when ub carries an execution
// payload, the unfinished-body path of the Execution Adapter's policy table.
// It does not touch chain state: this is the read path the farmer/full-node
// propagation logic calls before a block has an infusion point, not part of
// the receive procedure.
func (s *Service) ValidateUnfinishedBlock(ctx context.Context, ub *types.UnfinishedBlock) (*validation.Error, execution.BodyOutcome, error) {
	view := newChainView(ctx, s.cfg.Store, s.cache, nil)

	var parent *blockrecord.Record
	if ub.Foliage.PrevBlockHash != s.cfg.Constants.GenesisChallenge {
		p, ok := view.BlockRecord(ub.Foliage.PrevBlockHash)
		if !ok {
			return nil, execution.BodyReject, ErrInvalidPrevBlockHash
		}
		parent = p
	}

	subSlotIters, diff, err := difficulty.Next(s.cfg.Constants, true, parent, view)
	if err != nil {
		return nil, execution.BodyReject, errors.Wrap(err, "blockchain: resolving difficulty for unfinished block")
	}

	collab := s.cfg.PreValidator.Collaborators
	v := validation.New(s.cfg.Constants, collab.PoSpace, collab.Iterations, collab.VDF, collab.SubEpochSummary, s.cfg.Clock)
	v.UnfinishedMode = true

	_, verr := validation.Validate(v, view, ub.AsHeaderBlock(), diff, subSlotIters, false)
	if verr != nil {
		return verr, execution.BodyReject, nil
	}

	if ub.ExecutionPayload == nil {
		return nil, execution.BodyAccept, nil
	}

	outcome, berr := s.cfg.Execution.ValidateUnfinishedBody(ctx, ub.ExecutionPayload)
	return nil, outcome, berr
}
