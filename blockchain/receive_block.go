package blockchain

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/corpochain-network/beacon-core/consensus/blockrecord"
	"github.com/corpochain-network/beacon-core/consensus/difficulty"
	"github.com/corpochain-network/beacon-core/consensus/execution"
	"github.com/corpochain-network/beacon-core/consensus/prevalidation"
	"github.com/corpochain-network/beacon-core/consensus/store"
	"github.com/corpochain-network/beacon-core/consensus/types"
)

// ReceiveBlock runs the Blockchain Manager's full receive procedure under
// the writer lock: linkage/height checks, adopting the pre-validation
// result, building the BlockRecord, body validation against the execution
// engine, and (inside one Block Store writer transaction) committing the
// block and reconsidering the peak.
//
// The BlockRecord is built before the duplicate check rather than after it:
// its HeaderHash is a digest of fields (weight, total_iters, required_iters)
// that only exist once the parent has been resolved and the pre-validation
// result adopted, so there is nothing to check a cache or store against
// until that point. Everything ahead of the duplicate check is cheap
// in-memory work; the engine round-trips and the writer transaction still
// run strictly after it.
func (s *Service) ReceiveBlock(
	ctx context.Context,
	block *types.FullBlock,
	preVal prevalidation.Result,
	forkHint *uint64,
) (Outcome, error, *StateChangeSummary) {
	start := time.Now()
	defer func() { receiveBlockLatency.Observe(time.Since(start).Seconds()) }()

	s.lock.Lock()
	s.lockHeld.Store(true)
	defer func() {
		s.lockHeld.Store(false)
		s.lock.Unlock()
	}()
	s.mustHoldLock()

	header := block.Header()
	if header.Foliage == nil {
		return OutcomeInvalidBlock, errors.New("blockchain: block missing foliage"), nil
	}

	view := newChainView(ctx, s.cfg.Store, s.cache, nil)

	var parent *blockrecord.Record
	if header.Foliage.PrevBlockHash != s.cfg.Constants.GenesisChallenge {
		p, ok := view.BlockRecord(header.Foliage.PrevBlockHash)
		if !ok {
			return OutcomeDisconnectedBlock, ErrInvalidPrevBlockHash, nil
		}
		parent = p
	}

	wantHeight := uint64(0)
	if parent != nil {
		wantHeight = parent.Height + 1
	}
	if header.RewardChainBlock == nil || header.RewardChainBlock.Height != wantHeight {
		return OutcomeInvalidBlock, ErrInvalidHeight, nil
	}

	if preVal.Err != nil {
		return OutcomeInvalidBlock, preVal.Err, nil
	}

	subSlotIters, diff, err := difficulty.Next(s.cfg.Constants, true, parent, view)
	if err != nil {
		return OutcomeInvalidBlock, errors.Wrap(err, "blockchain: resolving difficulty"), nil
	}

	rec, verr := prevalidation.BuildBlockRecord(block, parent, preVal.RequiredIters, subSlotIters, diff)
	if verr != nil {
		return OutcomeInvalidBlock, verr, nil
	}

	if s.cache.Has(rec.HeaderHash) {
		return OutcomeAlreadyHaveBlock, nil, nil
	}
	if _, err := s.cfg.Store.GetBlockRecord(ctx, rec.HeaderHash); err == nil {
		return OutcomeAlreadyHaveBlock, nil, nil
	} else if errors.Cause(err) != store.ErrNotFound {
		return OutcomeInvalidBlock, errors.Wrap(err, "blockchain: checking for duplicate block"), nil
	}

	if block.ExecutionPayload != nil {
		var prevTxBlock *blockrecord.Record
		if rec.IsTransactionBlock {
			prevTxBlock = rec
		}
		outcome, berr := s.cfg.Execution.ValidateFullBody(ctx, block.ExecutionPayload, rec, prevTxBlock, view, block.ExecutionPayload.FeeRecipient)
		if berr != nil {
			return OutcomeInvalidBlock, berr, nil
		}
		if outcome != execution.BodyAccept {
			return OutcomeInvalidBlock, ErrUnknown, nil
		}
	}

	var outcome Outcome
	var summary *StateChangeSummary
	txErr := s.cfg.Store.Writer(ctx, func(w *store.Writer) error {
		if err := w.AddFullBlock(rec.HeaderHash, block, rec); err != nil {
			return err
		}

		o, applied, rawForkHeight, sum, err := s.reconsiderPeak(w, rec, forkHint)
		if err != nil {
			s.cache.Remove(rec.HeaderHash)
			s.cfg.Store.RollbackCacheBlock(rec.HeaderHash)
			return err
		}
		outcome = o
		summary = sum

		if err := s.applyCommit(outcome, rec, applied, rawForkHeight); err != nil {
			s.cache.Remove(rec.HeaderHash)
			s.cfg.Store.RollbackCacheBlock(rec.HeaderHash)
			return err
		}
		return nil
	})
	if txErr != nil {
		return OutcomeInvalidBlock, txErr, nil
	}

	// The peak cursor is published only after the transaction has
	// committed, so concurrent readers never observe a peak that is absent
	// from persistence.
	if outcome == OutcomeNewPeak {
		s.cacheMu.Lock()
		s.peakRecord = rec
		s.cache.PruneToPeak(rec.Height, s.cfg.MaxCacheSize)
		s.cacheMu.Unlock()
		peakHeightGauge.Set(float64(rec.Height))
	}
	if err := s.cfg.HeightMap.MaybeFlush(); err != nil {
		log.WithError(err).Warn("height map flush failed")
	}

	return outcome, nil, summary
}

// reconsiderPeak implements the peak-reconsideration half of ReceiveBlock:
// genesis adoption, orphan detection, fork-point resolution, and replaying
// the newly-canonical segment into the Block Store. rawForkHeight is the
// unclamped fork height (-1 signals a full reorg with no common ancestor,
// not even genesis), needed by applyCommit to pick between a partial and a
// full height-map rollback; StateChangeSummary.ForkHeight is always
// max(rawForkHeight, 0) per the public contract.
func (s *Service) reconsiderPeak(
	w *store.Writer,
	rec *blockrecord.Record,
	forkHint *uint64,
) (outcome Outcome, applied []*blockrecord.Record, rawForkHeight int64, summary *StateChangeSummary, err error) {
	s.mustHoldLock()

	s.cacheMu.RLock()
	peak := s.peakRecord
	s.cacheMu.RUnlock()

	if peak == nil {
		if err = w.SetInChain([][32]byte{rec.HeaderHash}); err != nil {
			return 0, nil, 0, nil, err
		}
		if err = w.SetPeak(rec.HeaderHash); err != nil {
			return 0, nil, 0, nil, err
		}
		return OutcomeNewPeak, []*blockrecord.Record{rec}, 0, &StateChangeSummary{Record: rec, ForkHeight: 0}, nil
	}

	if rec.Weight.Cmp(peak.Weight) <= 0 {
		return OutcomeAddedAsOrphan, nil, 0, nil, nil
	}

	switch {
	case rec.PrevHash == peak.HeaderHash:
		rawForkHeight = int64(peak.Height)
	case forkHint != nil:
		rawForkHeight = int64(*forkHint)
	default:
		fh, ferr := s.findForkPointInChain(rec)
		if ferr != nil {
			return 0, nil, 0, nil, ferr
		}
		rawForkHeight = fh
	}

	view := newChainView(context.Background(), s.cfg.Store, s.cache, nil)

	var collected []*blockrecord.Record
	cur := rec
	for {
		collected = append(collected, cur)

		if rawForkHeight >= 0 {
			canonicalHash, ok, herr := s.cfg.HeightMap.GetHash(uint64(rawForkHeight))
			if herr != nil {
				return 0, nil, 0, nil, herr
			}
			if ok && cur.HeaderHash == canonicalHash {
				collected = collected[:len(collected)-1]
				break
			}
		}
		if cur.PrevHash == s.cfg.Constants.GenesisChallenge {
			break
		}
		parent, ok := view.BlockRecord(cur.PrevHash)
		if !ok {
			return 0, nil, 0, nil, errors.Errorf("blockchain: reconsiderPeak: missing ancestor %x", cur.PrevHash)
		}
		cur = parent
	}

	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}

	if rawForkHeight < 0 {
		if err = w.RollbackAll(); err != nil {
			return 0, nil, 0, nil, err
		}
	} else if err = w.Rollback(uint64(rawForkHeight)); err != nil {
		return 0, nil, 0, nil, err
	}

	hashes := make([][32]byte, len(collected))
	for i, r := range collected {
		hashes[i] = r.HeaderHash
	}
	if err = w.SetInChain(hashes); err != nil {
		return 0, nil, 0, nil, err
	}
	if err = w.SetPeak(rec.HeaderHash); err != nil {
		return 0, nil, 0, nil, err
	}

	effectiveForkHeight := rawForkHeight
	if effectiveForkHeight < 0 {
		effectiveForkHeight = 0
	}
	return OutcomeNewPeak, collected, rawForkHeight, &StateChangeSummary{Record: rec, ForkHeight: uint64(effectiveForkHeight)}, nil
}

// findForkPointInChain walks backward from rec via the height map's
// canonical-hash index to find the highest ancestor still marked canonical,
// returning -1 if no common ancestor is found all the way down to genesis.
func (s *Service) findForkPointInChain(rec *blockrecord.Record) (int64, error) {
	view := newChainView(context.Background(), s.cfg.Store, s.cache, nil)
	cur := rec
	for {
		if cur.PrevHash == s.cfg.Constants.GenesisChallenge {
			return -1, nil
		}
		parent, ok := view.BlockRecord(cur.PrevHash)
		if !ok {
			return -1, nil
		}
		canonicalHash, ok, err := s.cfg.HeightMap.GetHash(parent.Height)
		if err != nil {
			return 0, err
		}
		if ok && canonicalHash == parent.HeaderHash {
			return int64(parent.Height), nil
		}
		cur = parent
	}
}

// applyCommit updates the in-memory cache and height-map projections on a
// successful reconsiderPeak outcome: these structures are the committed-state
// view and are only ever mutated on this path. The peak cursor itself is
// deliberately NOT updated here; ReceiveBlock publishes it only once the
// surrounding transaction has committed.
func (s *Service) applyCommit(outcome Outcome, rec *blockrecord.Record, applied []*blockrecord.Record, rawForkHeight int64) error {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache.Put(rec)

	if outcome != OutcomeNewPeak {
		return nil
	}

	var err error
	if rawForkHeight < 0 {
		err = s.cfg.HeightMap.RollbackAll()
	} else {
		err = s.cfg.HeightMap.Rollback(uint64(rawForkHeight))
	}
	if err != nil {
		return err
	}

	for _, r := range applied {
		var ses *[32]byte
		if r.SubEpochSummaryIncluded != nil {
			h := [32]byte(*r.SubEpochSummaryIncluded)
			ses = &h
		}
		s.cfg.HeightMap.UpdateHeight(r.Height, r.HeaderHash, ses)
	}
	return nil
}
