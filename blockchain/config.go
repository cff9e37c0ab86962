package blockchain

import (
	"github.com/corpochain-network/beacon-core/consensus/execution"
	"github.com/corpochain-network/beacon-core/consensus/heightmap"
	"github.com/corpochain-network/beacon-core/consensus/params"
	"github.com/corpochain-network/beacon-core/consensus/prevalidation"
	"github.com/corpochain-network/beacon-core/consensus/store"
	"github.com/corpochain-network/beacon-core/consensus/validation"
)

// config bundles every collaborator a Service needs, assembled by Option
// functions passed to NewService.
type config struct {
	Store     *store.Store
	HeightMap *heightmap.Map
	Execution *execution.Adapter
	Constants *params.Constants

	PreValidator *prevalidation.Pipeline
	Clock        validation.Clock

	OptimisticImport bool
	MaxCacheSize     uint64
	BatchSize        int
	WorkerCount      int
}

// Option configures a Service under construction.
type Option func(*config)

// WithBlockStore sets the durable Block Store. Required.
func WithBlockStore(s *store.Store) Option {
	return func(c *config) { c.Store = s }
}

// WithHeightMap sets the canonical height-index. Required.
func WithHeightMap(m *heightmap.Map) Option {
	return func(c *config) { c.HeightMap = m }
}

// WithExecutionEngine sets the Engine API adapter. Required.
func WithExecutionEngine(e *execution.Adapter) Option {
	return func(c *config) { c.Execution = e }
}

// WithConstants sets the network's consensus constants. Required.
func WithConstants(p *params.Constants) Option {
	return func(c *config) { c.Constants = p }
}

// WithPreValidator sets the Pre-Validation Pipeline. Required: NewService
// builds no default pipeline and fails without one.
func WithPreValidator(p *prevalidation.Pipeline) Option {
	return func(c *config) { c.PreValidator = p }
}

// WithClock overrides the wall-clock source used by header validation.
// Defaults to validation.SystemClock.
func WithClock(clock validation.Clock) Option {
	return func(c *config) { c.Clock = clock }
}

// WithOptimisticImport sets whether a full block whose fork-choice update
// comes back SYNCING/ACCEPTED is still accepted. Defaults to true.
func WithOptimisticImport(enabled bool) Option {
	return func(c *config) { c.OptimisticImport = enabled }
}

// WithMaxCacheSize overrides the block-record cache's retention window.
// Defaults to Constants.BlocksCacheSize.
func WithMaxCacheSize(n uint64) Option {
	return func(c *config) { c.MaxCacheSize = n }
}

// WithBatchSize overrides the per-worker batch size of the pipeline supplied
// via WithPreValidator; zero leaves the pipeline's own setting.
func WithBatchSize(n int) Option {
	return func(c *config) { c.BatchSize = n }
}

// WithWorkerCount overrides the worker pool size of the pipeline supplied
// via WithPreValidator; zero leaves the pipeline's own setting.
func WithWorkerCount(n int) Option {
	return func(c *config) { c.WorkerCount = n }
}
