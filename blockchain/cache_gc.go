package blockchain

import (
	"context"
	"math/big"
)

// RewardChallenge is one entry of the recent-reward-challenges list handed to
// the farmer/timelord subsystems: a challenge together with the total_iters
// at which it became active, so they can be ordered and diffed against
// in-flight signage points.
type RewardChallenge struct {
	Challenge  [32]byte
	TotalIters *big.Int
}

// RecentRewardChallenges walks backward from the current peak collecting the
// reward-infusion challenges of recent blocks, plus the finished
// reward-chain sub-slot challenges of any sub-slots they start, up to
// 2*MaxSubSlotBlocks entries: enough history for the farmer to evaluate
// signage points against every challenge still eligible for a block.
func (s *Service) RecentRewardChallenges(ctx context.Context) ([]RewardChallenge, error) {
	peak := s.Peak()
	if peak == nil {
		return nil, nil
	}

	limit := 2 * int(s.cfg.Constants.MaxSubSlotBlocks)
	view := newChainView(ctx, s.cfg.Store, s.cache, nil)

	out := make([]RewardChallenge, 0, limit)
	cur := peak
	for len(out) < limit {
		out = append(out, RewardChallenge{
			Challenge:  cur.RewardInfusionNewChallenge,
			TotalIters: cur.TotalIters,
		})
		if cur.FirstInSubSlot {
			for _, h := range cur.FinishedRewardSlotHashes {
				if len(out) >= limit {
					break
				}
				out = append(out, RewardChallenge{Challenge: h, TotalIters: cur.TotalIters})
			}
		}
		if cur.PrevHash == s.cfg.Constants.GenesisChallenge {
			break
		}
		parent, ok := view.BlockRecord(cur.PrevHash)
		if !ok {
			break
		}
		cur = parent
	}
	return out, nil
}

// cleanBlockRecords evicts cached BlockRecords more than MaxCacheSize below
// the current peak. It is safe
// to call at any time; it only ever narrows the in-memory projection, never
// the durable store.
func (s *Service) cleanBlockRecords() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.peakRecord == nil {
		return
	}
	s.cache.PruneToPeak(s.peakRecord.Height, s.cfg.MaxCacheSize)
}

// cleanBlockRecord evicts cached BlockRecords below minHeight outright,
// independent of the current peak. Used when a caller (e.g. weight-proof
// sync) knows a height below which no reorg can plausibly reach.
func (s *Service) cleanBlockRecord(minHeight uint64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.PruneBelow(minHeight)
}
