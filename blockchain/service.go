// Package blockchain implements the Blockchain Manager: the single writer of
// chain state, serializing every mutation through one writer lock over the
// Block Store, the height-index, and an in-memory cache of recent
// BlockRecords.
package blockchain

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/corpochain-network/beacon-core/consensus/blockrecord"
	"github.com/corpochain-network/beacon-core/consensus/cache"
	"github.com/corpochain-network/beacon-core/consensus/prevalidation"
	"github.com/corpochain-network/beacon-core/consensus/types"
	"github.com/corpochain-network/beacon-core/consensus/validation"
)

// Service is the Blockchain Manager. Constructed via NewService and a set of
// functional Options.
type Service struct {
	cfg *config

	// lock is the writer lock: every code path that mutates chain state
	// acquires it first. ReceiveBlock holds it for its whole duration.
	lock     sync.Mutex
	lockHeld atomic.Bool

	// compactProofLock guards compactProofs independently of the writer
	// lock, since compact-proof deduplication is unrelated to chain
	// mutation and must not serialize behind it.
	compactProofLock sync.Mutex
	compactProofs    *cache.CompactProofSeenSet

	// cacheMu guards cache and peakRecord: the writer lock already
	// serializes ReceiveBlock end to end, but cacheMu lets read-only
	// accessors (Peak, RecentRewardChallenges) run concurrently with each
	// other without waiting on an in-flight ReceiveBlock.
	cacheMu    sync.RWMutex
	cache      *cache.BlockCache
	peakRecord *blockrecord.Record
}

// NewService validates the supplied Options, restores the cached peak window
// from the Block Store, and returns a ready-to-use Service.
func NewService(ctx context.Context, opts ...Option) (*Service, error) {
	cfg := &config{
		OptimisticImport: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch {
	case cfg.Store == nil:
		return nil, errors.New("blockchain: WithBlockStore is required")
	case cfg.HeightMap == nil:
		return nil, errors.New("blockchain: WithHeightMap is required")
	case cfg.Execution == nil:
		return nil, errors.New("blockchain: WithExecutionEngine is required")
	case cfg.Constants == nil:
		return nil, errors.New("blockchain: WithConstants is required")
	case cfg.PreValidator == nil:
		return nil, errors.New("blockchain: WithPreValidator is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = validation.SystemClock
	}
	if cfg.MaxCacheSize == 0 {
		cfg.MaxCacheSize = cfg.Constants.BlocksCacheSize
	}
	if cfg.WorkerCount > 0 {
		cfg.PreValidator.Workers = cfg.WorkerCount
	}
	if cfg.BatchSize > 0 {
		cfg.PreValidator.BatchSize = cfg.BatchSize
	}

	s := &Service{
		cfg:           cfg,
		cache:         cache.NewBlockCache(),
		compactProofs: cache.NewCompactProofSeenSet(cache.DefaultCompactProofSeenSetSize),
	}
	if err := s.restorePeak(ctx); err != nil {
		return nil, errors.Wrap(err, "blockchain: restoring peak on startup")
	}
	return s, nil
}

// restorePeak loads the most recent MaxCacheSize+1 block records (and the
// peak pointer) from the Block Store into the in-memory cache, so a restart
// resumes with the same committed-state projection it had before shutdown.
func (s *Service) restorePeak(ctx context.Context) error {
	window := int(s.cfg.MaxCacheSize) + 1
	records, peakHash, err := s.cfg.Store.GetBlockRecordsCloseToPeak(ctx, window)
	if err != nil {
		return err
	}
	for _, r := range records {
		s.cache.Put(r)
	}
	if peakHash == nil {
		return nil
	}
	peak, ok := records[*peakHash]
	if !ok {
		peak, err = s.cfg.Store.GetBlockRecord(ctx, *peakHash)
		if err != nil {
			return err
		}
	}
	s.peakRecord = peak
	peakHeightGauge.Set(float64(peak.Height))
	return nil
}

// Peak returns the current canonical tip, or nil if the chain is empty.
func (s *Service) Peak() *blockrecord.Record {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.peakRecord
}

// PreValidateBlocks runs the Pre-Validation Pipeline over blocks against the
// current committed view, under the writer lock so no chain mutation can
// shift the recent window out from under the workers. The returned Results
// are what callers hand back to ReceiveBlock, one per input block in order.
func (s *Service) PreValidateBlocks(ctx context.Context, blocks []*types.FullBlock) ([]prevalidation.Result, error) {
	start := time.Now()
	defer func() { preValidationBatchLatency.Observe(time.Since(start).Seconds()) }()

	s.lock.Lock()
	s.lockHeld.Store(true)
	defer func() {
		s.lockHeld.Store(false)
		s.lock.Unlock()
	}()

	view := newChainView(ctx, s.cfg.Store, s.cache, blocks)
	return s.cfg.PreValidator.Validate(ctx, view, blocks)
}

// AddSeenCompactProof records a compact VDF proof as seen, guarded by its own
// lock independent of chain mutation. Returns whether it was already seen.
func (s *Service) AddSeenCompactProof(proofHash [32]byte) bool {
	s.compactProofLock.Lock()
	defer s.compactProofLock.Unlock()
	return s.compactProofs.Add(proofHash)
}
