package guuid

import "time"

// maxSequenceCounter is the largest value the 18-bit monotonicity counter
// may hold before it must roll over into the timestamp domain.
const maxSequenceCounter = 0x3FFFF

// Generator produces UUIDv7 values with strict intra-instance monotonic
// ordering. A Generator is a plain value: it takes no lock and performs no
// synchronization of its own, and is therefore only safe for use by one
// goroutine at a time. Ownership across goroutines is the caller's
// responsibility — the package-level New/NewString functions get this for
// free from the pooling scheme in pool.go.
type Generator struct {
	src   Source
	clock Clock

	prevTimestamp   uint64
	sequenceCounter uint32
}

// NewGenerator constructs a Generator. A nil src uses the default
// crypto/rand-seeded ChaCha8 source; a nil clock uses the system clock.
// Passing explicit values is primarily useful for deterministic testing.
func NewGenerator(src Source, clock Clock) *Generator {
	if src == nil {
		src = newDefaultSource()
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &Generator{src: src, clock: clock}
}

// Generate produces one UUIDv7. It never fails: any defect in the clock or
// random source is the responsibility of those collaborators, not this
// method. Generate is not reentrant on the same Generator.
func (g *Generator) Generate() UUID {
	var u UUID

	now := g.clock.NowMillis()

	if now > g.prevTimestamp {
		// Fresh branch: the wall clock has advanced. Seed a new counter
		// from randomness and remember this millisecond.
		fillRandomBlock(u[6:16], g.src)

		// Reserve the counter's MSB as rollover headroom: even if all 17
		// remaining bits of the seed are set (seed 0x1FFFF), at least
		// 0x20000 increments remain before the counter rolls over.
		u[6] &^= 0x08

		g.sequenceCounter = (uint32(u[6]&0x0F) << 14) |
			(uint32(u[7]) << 6) |
			(uint32(u[8]) & 0x3F)
		g.prevTimestamp = now
	} else {
		// Stalled branch: the wall clock has not advanced past the last
		// emitted timestamp. Increment the counter; on overflow, borrow a
		// millisecond from the timestamp domain rather than blocking.
		g.sequenceCounter++
		if g.sequenceCounter > maxSequenceCounter {
			g.sequenceCounter = 0
			g.prevTimestamp++
		}
		now = g.prevTimestamp

		fillRandomBlock(u[8:16], g.src)
		u[6] = byte(g.sequenceCounter >> 14)
		u[7] = byte(g.sequenceCounter >> 6)
		u[8] = byte(g.sequenceCounter & 0x3F)
	}

	// unix_ts_ms: 48 bits, big-endian, written byte-wise (endianness-neutral,
	// no host-endian pun involved).
	u[0] = byte(now >> 40)
	u[1] = byte(now >> 32)
	u[2] = byte(now >> 24)
	u[3] = byte(now >> 16)
	u[4] = byte(now >> 8)
	u[5] = byte(now)

	u[6] = (u[6] & 0x0F) | 0x70 // ver = 0111
	u[8] = (u[8] & 0x3F) | 0x80 // var = 10

	return u
}

// GenerateString renders Generate's output as 32 lowercase hex characters
// with no separators. This is intentionally not the canonical
// 8-4-4-4-12 form — see UUID.String for that.
func (g *Generator) GenerateString() string {
	return g.Generate().EncodeToHex()
}

// Timestamp extracts the Unix timestamp (in milliseconds) embedded in a
// UUIDv7. Returns 0 for any UUID that is not version 7.
func (u UUID) Timestamp() int64 {
	if u.Version() != VersionTimeSorted {
		return 0
	}
	ts := uint64(u[0])<<40 |
		uint64(u[1])<<32 |
		uint64(u[2])<<24 |
		uint64(u[3])<<16 |
		uint64(u[4])<<8 |
		uint64(u[5])
	return int64(ts)
}

// Time returns the embedded timestamp of a UUIDv7 as a time.Time. Returns
// the zero time for any UUID that is not version 7.
func (u UUID) Time() time.Time {
	if u.Version() != VersionTimeSorted {
		return time.Time{}
	}
	ms := u.Timestamp()
	return time.UnixMilli(ms)
}
