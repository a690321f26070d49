package fec

import "sort"

// Symbol is one LT-encoded symbol. Indices is implied by (fec seed, Index, K)
// and never needs to travel; Degree does.
type Symbol struct {
	Index   uint32
	Degree  int
	Indices []int
	Data    []byte
}

// LTEncoder derives symbols on demand from a ChunkSet. It holds no per-symbol
// state and is safe for concurrent use.
//
// A systematic encoder emits chunk i unchanged (degree 1) for i < K and LT
// symbols from K on, so one complete loop always decodes.
type LTEncoder struct {
	chunks     *ChunkSet
	cdf        []float64
	seed       uint32
	systematic bool
}

func NewLTEncoder(cs *ChunkSet, fecSeed uint32, systematic bool) *LTEncoder {
	return &LTEncoder{chunks: cs, cdf: RobustSolitonCDF(cs.K), seed: fecSeed, systematic: systematic}
}

// K returns the number of source chunks.
func (e *LTEncoder) K() int { return e.chunks.K }

// Symbol generates symbol i.
func (e *LTEncoder) Symbol(i uint32) Symbol {
	k := e.chunks.K
	if e.systematic && int64(i) < int64(k) {
		return Symbol{Index: i, Degree: 1, Indices: []int{int(i)}, Data: append([]byte(nil), e.chunks.Chunks[i]...)}
	}
	rng := NewSymbolRNG(e.seed, i, k)
	d := SampleDegree(e.cdf, rng)
	d = max(1, min(k, d))
	idxs := SymbolIndices(rng, k, d)
	out := make([]byte, e.chunks.Size)
	for _, j := range idxs {
		xorBytes(out, e.chunks.Chunks[j])
	}
	return Symbol{Index: i, Degree: d, Indices: idxs, Data: out}
}

// rejectionDraws bounds the rejection sampler before it falls back to a
// partial shuffle of the indices not yet chosen.
func rejectionDraws(k int) int { return 16 * k }

// SymbolIndices draws d distinct chunk indices in [0, k) from rng and returns
// them sorted ascending. The rng must already have been used to sample the
// degree (or have that draw skipped identically on both ends).
func SymbolIndices(rng *XorShift32, k, d int) []int {
	return symbolIndices(rng, k, d, rejectionDraws(k))
}

func symbolIndices(rng *XorShift32, k, d, maxDraws int) []int {
	if d > k {
		d = k
	}
	chosen := make(map[int]struct{}, d)
	for draws := 0; len(chosen) < d && draws < maxDraws; draws++ {
		chosen[rng.RandInt(0, k-1)] = struct{}{}
	}
	if len(chosen) < d {
		rest := make([]int, 0, k-len(chosen))
		for j := 0; j < k; j++ {
			if _, ok := chosen[j]; !ok {
				rest = append(rest, j)
			}
		}
		need := d - len(chosen)
		for n := 0; n < need; n++ {
			m := n + rng.RandInt(0, len(rest)-1-n)
			rest[n], rest[m] = rest[m], rest[n]
			chosen[rest[n]] = struct{}{}
		}
	}
	idxs := make([]int, 0, d)
	for j := range chosen {
		idxs = append(idxs, j)
	}
	sort.Ints(idxs)
	return idxs
}
