package pipeline

import (
	"math/rand"
	"time"
)

// SeedSequence owns the per-invocation randomness: one seed per
// frozen-phonon run, drawn up front so sequential and parallel execution
// see the same sequence.
type SeedSequence struct {
	rng *rand.Rand
}

// NewSeedSequence seeds the sequence. A zero seed falls back to wall-clock
// entropy, giving run-to-run sample-configuration variation.
func NewSeedSequence(seed int64) *SeedSequence {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SeedSequence{rng: rand.New(rand.NewSource(seed))}
}

// Take draws the next n seeds.
func (s *SeedSequence) Take(n int) []int64 {
	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = s.rng.Int63()
	}
	return seeds
}
