package fec

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkPadsLastChunk(t *testing.T) {
	payload := []byte("abcdefghij")
	cs, err := Chunk(payload, 4)
	require.NoError(t, err)
	require.Equal(t, 3, cs.K)
	require.Equal(t, 4, cs.Size)
	assert.Equal(t, []byte("abcd"), cs.Chunks[0])
	assert.Equal(t, []byte("efgh"), cs.Chunks[1])
	assert.Equal(t, []byte{'i', 'j', 0, 0}, cs.Chunks[2])
	assert.Equal(t, payload, cs.Join(len(payload)))
}

func TestChunkShortPayloadUsesPayloadLength(t *testing.T) {
	cs, err := Chunk([]byte("xyz"), 512)
	require.NoError(t, err)
	require.Equal(t, 1, cs.K)
	require.Equal(t, 3, cs.Size)
}

func TestChunkEmptyPayload(t *testing.T) {
	cs, err := Chunk(nil, 100)
	require.NoError(t, err)
	require.Equal(t, 1, cs.K)
	require.Equal(t, [][]byte{{0}}, cs.Chunks)
	require.Empty(t, cs.Join(0))
}

func TestChunkRejectsBadSize(t *testing.T) {
	_, err := Chunk([]byte("x"), 0)
	require.True(t, errors.Is(err, ErrConfig))
}

func TestXorShift32KnownOutputs(t *testing.T) {
	x := NewXorShift32(1)
	assert.Equal(t, uint32(270369), x.Next())
	assert.Equal(t, uint32(67634689), x.Next())
	assert.Equal(t, uint32(2647435461), x.Next())

	// zero seed falls back to 0xDEADBEEF
	assert.Equal(t, uint32(1199382711), NewXorShift32(0).Next())
	assert.Equal(t, NewXorShift32(0xDEADBEEF).Next(), NewXorShift32(0).Next())
}

func TestXorShift32Ranges(t *testing.T) {
	x := NewXorShift32(42)
	for n := 0; n < 10000; n++ {
		u := x.Uniform()
		require.True(t, u >= 0 && u < 1, "uniform %v", u)
		v := x.RandInt(3, 7)
		require.True(t, v >= 3 && v <= 7, "randint %d", v)
	}
}

func TestSymbolSeed(t *testing.T) {
	assert.Equal(t, uint32(0x123e567b), SymbolSeed(0x12345678, 3, 10))
}

func TestRobustSolitonCDF(t *testing.T) {
	assert.Equal(t, []float64{0, 1}, RobustSolitonCDF(1))

	want := []float64{0.0, 0.155897182097, 0.584614432862, 0.740511614959, 0.824955921928,
		0.879519935661, 0.918494231186, 0.948188932537, 0.971851897677, 0.991339045439, 1.0}
	cdf := RobustSolitonCDF(10)
	require.Len(t, cdf, 11)
	for d := range want {
		assert.InDelta(t, want[d], cdf[d], 1e-9, "cdf[%d]", d)
	}

	for _, k := range []int{2, 7, 64, 500} {
		cdf := RobustSolitonCDF(k)
		require.Len(t, cdf, k+1)
		require.Equal(t, 0.0, cdf[0])
		require.Equal(t, 1.0, cdf[k])
		for d := 1; d <= k; d++ {
			require.GreaterOrEqual(t, cdf[d], cdf[d-1], "k=%d d=%d", k, d)
		}
	}
}

func TestSampleDegreeFollowsCDF(t *testing.T) {
	const k, draws = 100, 20000
	cdf := RobustSolitonCDF(k)
	ones := 0
	for i := uint32(0); i < draws; i++ {
		d := SampleDegree(cdf, NewSymbolRNG(99, i, k))
		require.True(t, d >= 1 && d <= k)
		if d == 1 {
			ones++
		}
	}
	// cdf[1] ~= 0.046 for K=100
	assert.InDelta(t, cdf[1], float64(ones)/draws, 0.01)
}

func TestSymbolIndicesDistinctAndSorted(t *testing.T) {
	for _, tc := range []struct{ k, d int }{{1, 1}, {4, 4}, {10, 3}, {50, 50}, {300, 299}} {
		idxs := SymbolIndices(NewXorShift32(5), tc.k, tc.d)
		require.Len(t, idxs, tc.d)
		for n := 1; n < len(idxs); n++ {
			require.Less(t, idxs[n-1], idxs[n])
		}
		require.GreaterOrEqual(t, idxs[0], 0)
		require.Less(t, idxs[len(idxs)-1], tc.k)
	}
}

func TestSymbolIndicesShuffleFallback(t *testing.T) {
	for _, tc := range []struct{ k, d, draws int }{{50, 40, 5}, {50, 50, 0}, {300, 299, 100}, {7, 3, 1}} {
		a, b := NewXorShift32(11), NewXorShift32(11)
		idxs := symbolIndices(a, tc.k, tc.d, tc.draws)
		require.Len(t, idxs, tc.d)
		for n := 1; n < len(idxs); n++ {
			require.Less(t, idxs[n-1], idxs[n])
		}
		require.GreaterOrEqual(t, idxs[0], 0)
		require.Less(t, idxs[len(idxs)-1], tc.k)

		// the other end replays the same draws and stays in lockstep
		require.Equal(t, idxs, symbolIndices(b, tc.k, tc.d, tc.draws))
		require.Equal(t, a.Next(), b.Next())
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, symbolIndices(NewXorShift32(3), 5, 5, 0))
}

// Degrees drawn straight from the seeded generator collapse onto one value;
// the warm-up in NewSymbolRNG is what spreads them.
func TestSymbolRNGWarmup(t *testing.T) {
	cdf := RobustSolitonCDF(10)
	var cold, warm []int
	for i := uint32(0); i < 12; i++ {
		cold = append(cold, SampleDegree(cdf, NewXorShift32(SymbolSeed(0x12345678, i, 10))))
		warm = append(warm, SampleDegree(cdf, NewSymbolRNG(0x12345678, i, 10)))
	}
	assert.Equal(t, []int{4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4}, cold)
	assert.Equal(t, []int{2, 2, 1, 2, 2, 2, 2, 1, 2, 9, 4, 3}, warm)
}

func TestLTEncoderGoldenSymbols(t *testing.T) {
	cs, err := Chunk(make([]byte, 1000), 100)
	require.NoError(t, err)
	enc := NewLTEncoder(cs, 8, false)
	golden := []struct {
		degree  int
		indices []int
	}{
		{2, []int{0, 3}},
		{2, []int{2, 8}},
		{1, []int{1}},
		{2, []int{2, 3}},
		{2, []int{1, 3}},
		{2, []int{2, 3}},
		{2, []int{6, 7}},
		{1, []int{8}},
		{3, []int{1, 3, 6}},
		{6, []int{1, 4, 5, 6, 7, 9}},
		{5, []int{1, 2, 4, 8, 9}},
		{3, []int{4, 6, 8}},
	}
	for i, g := range golden {
		s := enc.Symbol(uint32(i))
		assert.Equal(t, g.degree, s.Degree, "symbol %d", i)
		assert.Equal(t, g.indices, s.Indices, "symbol %d", i)
		assert.Equal(t, g.indices, ReplayIndices(8, uint32(i), 10, s.Degree, false), "replay %d", i)
	}
}

func TestLTEncoderDeterministic(t *testing.T) {
	payload := randomPayload(t, 7, 5000)
	cs1, err := Chunk(payload, 128)
	require.NoError(t, err)
	cs2, err := Chunk(append([]byte(nil), payload...), 128)
	require.NoError(t, err)
	a := NewLTEncoder(cs1, 0xC0FFEE, false)
	b := NewLTEncoder(cs2, 0xC0FFEE, false)
	for i := uint32(0); i < 200; i++ {
		sa, sb := a.Symbol(i), b.Symbol(i)
		require.Equal(t, sa.Degree, sb.Degree)
		require.Equal(t, sa.Indices, sb.Indices)
		require.True(t, bytes.Equal(sa.Data, sb.Data))

		want := make([]byte, cs1.Size)
		for _, j := range sa.Indices {
			xorBytes(want, cs1.Chunks[j])
		}
		require.Equal(t, want, sa.Data)
	}
}

func TestSystematicPrefix(t *testing.T) {
	payload := randomPayload(t, 1, 640)
	cs, err := Chunk(payload, 64)
	require.NoError(t, err)
	enc := NewLTEncoder(cs, 3, true)
	for i := 0; i < cs.K; i++ {
		s := enc.Symbol(uint32(i))
		require.Equal(t, 1, s.Degree)
		require.Equal(t, []int{i}, s.Indices)
		require.Equal(t, cs.Chunks[i], s.Data)
	}
	// repair symbols follow the plain LT rule
	plain := NewLTEncoder(cs, 3, false)
	require.Equal(t, plain.Symbol(uint32(cs.K+4)), enc.Symbol(uint32(cs.K+4)))
}

func TestLTDecoderPeelsOneLoop(t *testing.T) {
	// seed 8 with K=10 decodes from the first 12 symbols
	payload := randomPayload(t, 11, 1000)
	cs, err := Chunk(payload, 100)
	require.NoError(t, err)
	enc := NewLTEncoder(cs, 8, false)
	dec, err := NewLTDecoder(cs.K, cs.Size, 8, false)
	require.NoError(t, err)
	for i := uint32(0); i < 12; i++ {
		s := enc.Symbol(i)
		_, err := dec.AddSymbol(i, s.Degree, s.Data)
		require.NoError(t, err)
	}
	require.True(t, dec.Complete())
	require.Zero(t, dec.Pending())
	out, err := dec.Payload(len(payload))
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

func TestLTDecoderOrderIndependent(t *testing.T) {
	payload := randomPayload(t, 12, 1000)
	cs, err := Chunk(payload, 100)
	require.NoError(t, err)
	enc := NewLTEncoder(cs, 8, false)
	rng := rand.New(rand.NewSource(4))
	for trial := 0; trial < 20; trial++ {
		dec, err := NewLTDecoder(cs.K, cs.Size, 8, false)
		require.NoError(t, err)
		for _, i := range rng.Perm(12) {
			s := enc.Symbol(uint32(i))
			_, err := dec.AddSymbol(s.Index, s.Degree, s.Data)
			require.NoError(t, err)
		}
		require.True(t, dec.Complete(), "trial %d", trial)
		out, err := dec.Payload(len(payload))
		require.NoError(t, err)
		require.Equal(t, payload, out)
	}
}

func TestLTDecoderStallsBelowK(t *testing.T) {
	cs, err := Chunk(make([]byte, 1000), 100)
	require.NoError(t, err)
	for _, systematic := range []bool{false, true} {
		enc := NewLTEncoder(cs, 8, systematic)
		dec, err := NewLTDecoder(cs.K, cs.Size, 8, systematic)
		require.NoError(t, err)
		for i := uint32(0); i < 9; i++ {
			s := enc.Symbol(i)
			_, err := dec.AddSymbol(i, s.Degree, s.Data)
			require.NoError(t, err)
		}
		require.False(t, dec.Complete())
		require.Less(t, dec.Solved(), cs.K)
		_, err = dec.Payload(1000)
		require.Error(t, err)
	}
}

func TestLTDecoderRecoversUnderLoss(t *testing.T) {
	const k = 60
	payload := randomPayload(t, 21, k*50-7)
	cs, err := Chunk(payload, 50)
	require.NoError(t, err)
	require.Equal(t, k, cs.K)
	rng := rand.New(rand.NewSource(9))
	seed := rng.Uint32()
	enc := NewLTEncoder(cs, seed, true)
	dec, err := NewLTDecoder(cs.K, cs.Size, seed, true)
	require.NoError(t, err)
	// lose 30% of an unbounded stream; the decoder must finish well within 6K symbols
	var i uint32
	for ; !dec.Complete() && i < 6*k; i++ {
		if rng.Float64() < 0.3 {
			continue
		}
		s := enc.Symbol(i)
		_, err := dec.AddSymbol(i, s.Degree, s.Data)
		require.NoError(t, err)
	}
	require.True(t, dec.Complete(), "stalled at %d/%d after %d symbols", dec.Solved(), k, i)
	out, err := dec.Payload(len(payload))
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

func TestLTDecoderRejectsMalformed(t *testing.T) {
	dec, err := NewLTDecoder(10, 100, 8, true)
	require.NoError(t, err)
	_, err = dec.AddSymbol(12, 0, make([]byte, 100))
	require.True(t, errors.Is(err, ErrSymbol))
	_, err = dec.AddSymbol(12, 11, make([]byte, 100))
	require.True(t, errors.Is(err, ErrSymbol))
	_, err = dec.AddSymbol(12, 2, make([]byte, 99))
	require.True(t, errors.Is(err, ErrSymbol))
	_, err = dec.AddSymbol(3, 2, make([]byte, 100))
	require.True(t, errors.Is(err, ErrSymbol))

	_, err = NewLTDecoder(0, 100, 8, false)
	require.True(t, errors.Is(err, ErrConfig))
}

func TestLTDecoderIgnoresAfterComplete(t *testing.T) {
	cs, err := Chunk([]byte("payload"), 4)
	require.NoError(t, err)
	enc := NewLTEncoder(cs, 1, true)
	dec, err := NewLTDecoder(cs.K, cs.Size, 1, true)
	require.NoError(t, err)
	for i := uint32(0); i < uint32(cs.K); i++ {
		s := enc.Symbol(i)
		progress, err := dec.AddSymbol(i, s.Degree, s.Data)
		require.NoError(t, err)
		require.True(t, progress)
	}
	s := enc.Symbol(0)
	progress, err := dec.AddSymbol(0, s.Degree, s.Data)
	require.NoError(t, err)
	require.False(t, progress)
}

func TestRobustSolitonNoNaN(t *testing.T) {
	for k := 1; k < 300; k++ {
		for _, v := range RobustSolitonCDF(k) {
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "k=%d", k)
		}
	}
}

func randomPayload(t *testing.T, seed int64, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}
