//go:build !debug

package blockchain

// mustHoldLock is a no-op in production builds; see lock_debug.go for the
// debug-tagged assertion.
func (s *Service) mustHoldLock() {}
