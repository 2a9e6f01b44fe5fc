// Package sampling holds the randomised building blocks shared by the
// indices: the per-worker random generator, uniform draw helpers, an
// in-place selection algorithm, and the 1-D dyadic range sampler.
package sampling

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// New returns a PCG-backed generator seeded from OS entropy. Each worker owns
// its own generator; none of the sampling code assumes a particular seed.
func New() *rand.Rand {
	var seed [16]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// Entropy read failures are not recoverable at this layer; fall back
		// to a fixed seed rather than abort a sampling call.
		return rand.New(rand.NewPCG(0x9e3779b97f4a7c15, 0xbf58476d1ce4e5b9))
	}
	return rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(seed[:8]),
		binary.LittleEndian.Uint64(seed[8:]),
	))
}
