package upload

const (
	// FallbackChunkSize is the smallest transport fragment the sizer will use.
	FallbackChunkSize = 18
	// MTUReadyChunkSize is the optimistic starting fragment size.
	MTUReadyChunkSize = 509
	// UnusableWriteLimit is the write limit at or below which the profile fallback seeds the sizer.
	UnusableWriteLimit = 20
)

// ChunkSizer tracks the transport fragment size, halving it after write failures.
type ChunkSizer struct {
	size int
}

// NewChunkSizer seeds a sizer from a baseline write limit. Baselines at or below the
// fallback start optimistic at MTUReadyChunkSize.
func NewChunkSizer(baseline int) *ChunkSizer {
	if baseline <= FallbackChunkSize {
		return &ChunkSizer{size: MTUReadyChunkSize}
	}
	return &ChunkSizer{size: min(baseline, MTUReadyChunkSize)}
}

// Size returns the current fragment size.
func (s *ChunkSizer) Size() int {
	return s.size
}

// ReduceOnFailure halves the size, flooring at FallbackChunkSize. It returns false
// when already at the floor.
func (s *ChunkSizer) ReduceOnFailure() bool {
	if s.size <= FallbackChunkSize {
		return false
	}
	s.size = max(s.size/2, FallbackChunkSize)
	return true
}
