package fec

// defaultSeed replaces a zero seed, which would otherwise lock xorshift at zero.
const defaultSeed uint32 = 0xDEADBEEF

// XorShift32 is the 32-bit xorshift generator (13, 17, 5) shared by encoder
// and decoder. Its output must stay bit-identical across implementations.
type XorShift32 struct {
	state uint32
}

func NewXorShift32(seed uint32) *XorShift32 {
	if seed == 0 {
		seed = defaultSeed
	}
	return &XorShift32{state: seed}
}

// Next advances the state and returns it.
func (x *XorShift32) Next() uint32 {
	s := x.state
	s ^= s << 13
	s ^= s >> 17
	s ^= s << 5
	x.state = s
	return s
}

// Uniform returns Next()/2^32 in [0, 1).
func (x *XorShift32) Uniform() float64 {
	return float64(x.Next()) / 4294967296.0
}

// RandInt returns a value in [a, b] as a + Next() mod (b-a+1).
func (x *XorShift32) RandInt(a, b int) int {
	span := uint32(b - a + 1)
	return a + int(x.Next()%span)
}

// warmupRounds is the number of outputs discarded after seeding a symbol
// generator. Per-symbol seeds differ only in their low bits, and the first
// outputs of xorshift32 for such seeds are nearly equal, which collapses the
// sampled degrees onto one or two values.
const warmupRounds = 8

// SymbolSeed derives the per-symbol seed from the session seed, the symbol
// index and K.
func SymbolSeed(fecSeed, index uint32, k int) uint32 {
	return fecSeed ^ index ^ (uint32(k) << 16)
}

// NewSymbolRNG returns the fresh, warmed-up generator used for symbol index.
//
// The warm-up breaks compatibility with QS1 producers that sample the degree
// straight from the seeded generator: plain LT frames from such a producer
// decode to the wrong chunks here. Do not remove it; without it every symbol
// of a small session gets the same degree (seed 0x12345678, K=10: all 4).
func NewSymbolRNG(fecSeed, index uint32, k int) *XorShift32 {
	x := NewXorShift32(SymbolSeed(fecSeed, index, k))
	for n := 0; n < warmupRounds; n++ {
		x.Next()
	}
	return x
}
