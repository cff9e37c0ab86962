package cache

// CompactProofSeenSet is a bounded seen-set of compact VDF proofs: cleared wholesale once it exceeds maxEntries rather than evicted
// piecemeal, since the only purpose of the set is deduplicating recently
// re-broadcast compact proofs, not long-term membership tracking.
type CompactProofSeenSet struct {
	seen       map[[32]byte]struct{}
	maxEntries int
}

// DefaultCompactProofSeenSetSize bounds the seen-set at 10 000 entries
// before it is cleared.
const DefaultCompactProofSeenSetSize = 10_000

// NewCompactProofSeenSet returns an empty set bounded at maxEntries.
func NewCompactProofSeenSet(maxEntries int) *CompactProofSeenSet {
	return &CompactProofSeenSet{
		seen:       make(map[[32]byte]struct{}),
		maxEntries: maxEntries,
	}
}

// Add records proofHash as seen, clearing the whole set first if it has
// grown past the bound. Returns whether proofHash was already present.
func (s *CompactProofSeenSet) Add(proofHash [32]byte) (alreadySeen bool) {
	if _, ok := s.seen[proofHash]; ok {
		return true
	}
	if len(s.seen) >= s.maxEntries {
		s.seen = make(map[[32]byte]struct{})
	}
	s.seen[proofHash] = struct{}{}
	return false
}

// Len reports the current number of tracked entries.
func (s *CompactProofSeenSet) Len() int {
	return len(s.seen)
}
