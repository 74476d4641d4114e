package quant

import "math/rand/v2"

// Sampler draws uniform pseudo-random integers in [0, n). Tests pin a
// deterministic Sampler so one-bit/adaptive sampling is reproducible, while
// production code uses DefaultSampler seeded from process entropy.
type Sampler interface {
	IntN(n int) int
}

// DefaultSampler returns a Sampler backed by math/rand/v2's PCG generator,
// seeded with the two supplied 64-bit words. Callers that need
// reproducibility across runs pass fixed seeds; production call sites
// typically derive them from a per-process nonce.
func DefaultSampler(seed1, seed2 uint64) Sampler {
	return rand.New(rand.NewPCG(seed1, seed2))
}
