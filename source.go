package guuid

import (
	cryptorand "crypto/rand"
	mathrand "math/rand/v2"
)

// Source is a bound uniform pseudo-random 64-bit generator. It is the
// external collaborator spec.md assigns the core's randomness to: the
// Generator never questions its quality or seeding, only its output.
type Source interface {
	// Uint64 returns a uniformly distributed random 64-bit value. It must
	// not fail — Generator.Generate is a total function and relies on that.
	Uint64() uint64
}

// chacha8Source is the default Source, backed by math/rand/v2's ChaCha8
// stream cipher, seeded once from crypto/rand. Unlike reading crypto/rand
// directly on every call, ChaCha8 cannot return an I/O error, which is what
// lets Generate be error-free while still starting from a cryptographically
// sound seed.
type chacha8Source struct {
	r *mathrand.ChaCha8
}

// newDefaultSource constructs a chacha8Source seeded from crypto/rand.
func newDefaultSource() *chacha8Source {
	var seed [32]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		// crypto/rand on a supported platform does not fail; if the host
		// entropy source is broken there is nothing sensible left to do.
		panic("guuid: failed to seed random source: " + err.Error())
	}
	return &chacha8Source{r: mathrand.NewChaCha8(seed)}
}

// Uint64 implements Source.
func (s *chacha8Source) Uint64() uint64 {
	return s.r.Uint64()
}

// fillRandomBlock fills dst (len(dst) <= 16) with random bytes drawn from
// src. It draws one uint64 at a time and consumes its 8 bytes low-byte
// first, drawing a fresh uint64 every 8 bytes — this exact byte order is
// what determines which bits become the seeded sequence counter on the
// fresh branch of Generator.Generate, so it must not be "simplified" to a
// memcpy of the word.
func fillRandomBlock(dst []byte, src Source) {
	var word uint64
	for i := range dst {
		if i%8 == 0 {
			word = src.Uint64()
		}
		dst[i] = byte(word >> (uint(i%8) * 8))
	}
}
