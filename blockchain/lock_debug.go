//go:build debug

package blockchain

// mustHoldLock panics if the caller has not acquired Service.lock. Compiled
// in only under the debug build tag; production builds use the no-op in
// lock_nodebug.go.
func (s *Service) mustHoldLock() {
	if !s.lockHeld.Load() {
		panic("blockchain: mustHoldLock called without holding Service.lock")
	}
}
