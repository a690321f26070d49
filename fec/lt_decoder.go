package fec

import (
	"github.com/pkg/errors"
)

// ErrSymbol reports a symbol that cannot belong to the decoder's session.
var ErrSymbol = errors.New("fec: malformed symbol")

// ReplayIndices regenerates the chunk index set of symbol i given its degree.
// The degree draw is consumed but not evaluated, so the decoder never depends
// on floating point agreement with the encoder.
func ReplayIndices(fecSeed, i uint32, k, degree int, systematic bool) []int {
	if systematic && int64(i) < int64(k) {
		return []int{int(i)}
	}
	rng := NewSymbolRNG(fecSeed, i, k)
	rng.Next()
	return SymbolIndices(rng, k, degree)
}

// pendingSymbol is an unresolved symbol: the chunks it still depends on and
// the XOR of those chunks.
type pendingSymbol struct {
	unknown []int
	data    []byte
	done    bool
}

func (p *pendingSymbol) drop(j int) {
	for n, u := range p.unknown {
		if u == j {
			p.unknown[n] = p.unknown[len(p.unknown)-1]
			p.unknown = p.unknown[:len(p.unknown)-1]
			return
		}
	}
}

// LTDecoder is the peeling (belief propagation) decoder. Chunks live in a
// fixed arena addressed by index; pending symbols reference arena slots.
// It is not safe for concurrent use.
type LTDecoder struct {
	k, size    int
	seed       uint32
	systematic bool

	solved  [][]byte // nil until known
	nSolved int
	waiting [][]*pendingSymbol // chunk index -> symbols still depending on it
	ripe    []*pendingSymbol
	pending int
}

func NewLTDecoder(k, size int, fecSeed uint32, systematic bool) (*LTDecoder, error) {
	if k < 1 || size < 1 {
		return nil, errors.Wrapf(ErrConfig, "decoder k=%d size=%d", k, size)
	}
	return &LTDecoder{
		k:          k,
		size:       size,
		seed:       fecSeed,
		systematic: systematic,
		solved:     make([][]byte, k),
		waiting:    make([][]*pendingSymbol, k),
	}, nil
}

// AddSymbol feeds symbol i with its explicit degree. It reports whether at
// least one new chunk was solved. Duplicate filtering is the caller's job;
// a repeated symbol is harmless but wasted work.
func (d *LTDecoder) AddSymbol(i uint32, degree int, data []byte) (bool, error) {
	if degree < 1 || degree > d.k {
		return false, errors.Wrapf(ErrSymbol, "degree %d outside [1,%d]", degree, d.k)
	}
	if d.systematic && int64(i) < int64(d.k) && degree != 1 {
		return false, errors.Wrapf(ErrSymbol, "systematic symbol %d with degree %d", i, degree)
	}
	if len(data) != d.size {
		return false, errors.Wrapf(ErrSymbol, "payload %d bytes, want %d", len(data), d.size)
	}
	if d.Complete() {
		return false, nil
	}
	p := &pendingSymbol{data: append([]byte(nil), data...)}
	for _, j := range ReplayIndices(d.seed, i, d.k, degree, d.systematic) {
		if c := d.solved[j]; c != nil {
			xorBytes(p.data, c)
			continue
		}
		p.unknown = append(p.unknown, j)
	}
	switch len(p.unknown) {
	case 0:
		return false, nil
	case 1:
		d.ripe = append(d.ripe, p)
	default:
		for _, j := range p.unknown {
			d.waiting[j] = append(d.waiting[j], p)
		}
		d.pending++
		return false, nil
	}
	before := d.nSolved
	d.peel()
	return d.nSolved > before, nil
}

// peel drains the ripe queue, cascading every newly solved chunk into the
// symbols that still reference it.
func (d *LTDecoder) peel() {
	for len(d.ripe) > 0 {
		p := d.ripe[len(d.ripe)-1]
		d.ripe = d.ripe[:len(d.ripe)-1]
		if p.done || len(p.unknown) != 1 {
			continue
		}
		p.done = true
		j := p.unknown[0]
		if d.solved[j] != nil {
			continue
		}
		d.solved[j] = p.data
		d.nSolved++
		for _, q := range d.waiting[j] {
			// a symbol already in the ripe queue has nothing left to learn
			if q.done || len(q.unknown) < 2 {
				continue
			}
			xorBytes(q.data, p.data)
			q.drop(j)
			switch len(q.unknown) {
			case 0:
				q.done = true
				d.pending--
			case 1:
				d.pending--
				d.ripe = append(d.ripe, q)
			}
		}
		d.waiting[j] = nil
	}
}

// Complete reports whether all K chunks are solved.
func (d *LTDecoder) Complete() bool { return d.nSolved == d.k }

// Solved returns the number of solved chunks.
func (d *LTDecoder) Solved() int { return d.nSolved }

// Pending returns the number of buffered symbols with two or more unknowns.
func (d *LTDecoder) Pending() int { return d.pending }

// K returns the number of source chunks.
func (d *LTDecoder) K() int { return d.k }

// Payload joins the solved chunks truncated to n bytes. It fails until the
// decoder is complete.
func (d *LTDecoder) Payload(n int) ([]byte, error) {
	if !d.Complete() {
		return nil, errors.Errorf("fec: %d of %d chunks solved", d.nSolved, d.k)
	}
	cs := &ChunkSet{K: d.k, Size: d.size, Chunks: d.solved}
	return cs.Join(n), nil
}
