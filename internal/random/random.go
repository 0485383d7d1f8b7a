// Package random provides seed generation and the injectable random source
// used for stone collapse and heuristic decisions.
//
// Every consumer draws through the Source interface so games can be replayed
// deterministically in tests with a seeded source.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// Source is the randomness contract for the engine and the heuristic
// opponent. *math/rand.Rand satisfies it.
type Source interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
	// Intn returns a uniform value in [0, n).
	Intn(n int) int
}

// NewSource returns a deterministic source for the given seed.
func NewSource(seed int64) Source {
	return rand.New(rand.NewSource(seed))
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
