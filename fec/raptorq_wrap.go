package fec

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	rqq "github.com/xssnick/raptorq"
)

// RaptorQEncoder wraps systematic RaptorQ as an alternative to the LT code.
// The whole padded ChunkSet (K*cs bytes) is one source block with symbol size cs,
// so symbols 0..K-1 are the chunks themselves and K.. are repair symbols.
type RaptorQEncoder struct {
	K int
	L int

	mu sync.Mutex
	e  *rqq.Encoder
}

func NewRaptorQEncoder(cs *ChunkSet) (*RaptorQEncoder, error) {
	if cs.K <= 0 || cs.Size <= 0 {
		return nil, errors.Wrap(ErrConfig, "bad K or L")
	}
	rq := rqq.NewRaptorQ(uint32(cs.Size))
	enc, err := rq.CreateEncoder(cs.Join(cs.K * cs.Size))
	if err != nil {
		return nil, errors.Wrap(err, "raptorq encoder")
	}
	return &RaptorQEncoder{K: cs.K, L: cs.Size, e: enc}, nil
}

// Symbol returns symbol id. Degree is 0: RaptorQ symbols carry no LT degree.
func (e *RaptorQEncoder) Symbol(id uint32) Symbol {
	e.mu.Lock()
	data := append([]byte(nil), e.e.GenSymbol(id)...)
	e.mu.Unlock()
	return Symbol{Index: id, Data: data}
}

// RaptorQDecoder exposes the library decoder through the same AddSymbol
// surface as LTDecoder.
type RaptorQDecoder struct {
	k, size int
	added   int
	d       *rqq.Decoder
	out     []byte
}

func NewRaptorQDecoder(k, size int) (*RaptorQDecoder, error) {
	if k < 1 || size < 1 || uint64(k)*uint64(size) > math.MaxUint32 {
		return nil, errors.Wrapf(ErrConfig, "decoder k=%d size=%d", k, size)
	}
	rq := rqq.NewRaptorQ(uint32(size))
	dec, err := rq.CreateDecoder(uint32(k * size))
	if err != nil {
		return nil, errors.Wrap(err, "raptorq decoder")
	}
	return &RaptorQDecoder{k: k, size: size, d: dec}, nil
}

// AddSymbol feeds one symbol and attempts a decode once the library reports
// enough symbols. The degree argument is ignored.
func (d *RaptorQDecoder) AddSymbol(id uint32, _ int, data []byte) (bool, error) {
	if d.out != nil {
		return false, nil
	}
	if len(data) != d.size {
		return false, errors.Wrapf(ErrSymbol, "payload %d bytes, want %d", len(data), d.size)
	}
	canTry, err := d.d.AddSymbol(id, data)
	if err != nil {
		return false, errors.Wrap(ErrSymbol, err.Error())
	}
	d.added++
	if !canTry {
		return false, nil
	}
	ok, out, err := d.d.Decode()
	if err != nil || !ok {
		// need more symbols
		return false, nil
	}
	d.out = out
	return true, nil
}

func (d *RaptorQDecoder) Complete() bool { return d.out != nil }

// Solved approximates progress as the number of distinct symbols fed, capped at K.
func (d *RaptorQDecoder) Solved() int {
	if d.out != nil {
		return d.k
	}
	return min(d.added, d.k)
}

func (d *RaptorQDecoder) K() int { return d.k }

func (d *RaptorQDecoder) Payload(n int) ([]byte, error) {
	if d.out == nil {
		return nil, errors.New("fec: raptorq block not decoded")
	}
	if n < len(d.out) {
		return d.out[:n], nil
	}
	return d.out, nil
}
