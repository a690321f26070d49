package qrstream

import (
	"context"
	"crypto/sha256"
	"math"
	"runtime"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sharediffs/qrstream/fec"
	"github.com/sharediffs/qrstream/internal/fecwire"
)

// Defaults
const (
	DefaultChunkSize = 512
	DefaultOverhead  = 0.12
)

// Options control Encode.
type Options struct {
	ChunkSize  int     // bytes per source chunk (cs upper bound)
	Overhead   float64 // extra symbols per loop, N = ceil(K*(1+Overhead))
	Scheme     fecwire.Scheme
	Format     fecwire.Format
	AttachHash bool // carry SHA-256 of the payload in every frame
	Workers    int  // frame derivation goroutines; <=0 uses NumCPU

	// Fits, when set, is called with every rendered frame text and must
	// return ErrCapacityExceeded if it does not fit the barcode.
	Fits func(text string) error

	Logger logrus.FieldLogger
}

// DefaultOptions returns the systematic LT scheme with the original chunk
// size, overhead and JSON frames.
func DefaultOptions() Options {
	return Options{
		ChunkSize:  DefaultChunkSize,
		Overhead:   DefaultOverhead,
		Scheme:     fecwire.SchemeSystematicLT,
		Format:     fecwire.FormatJSON,
		AttachHash: true,
	}
}

func (o *Options) validate() error {
	if o.ChunkSize < 1 || o.ChunkSize > fecwire.MaxChunkSize {
		return errors.Wrapf(ErrConfig, "chunk size %d", o.ChunkSize)
	}
	if math.IsNaN(o.Overhead) || math.IsInf(o.Overhead, 0) || o.Overhead < 0 {
		return errors.Wrapf(ErrConfig, "overhead %v", o.Overhead)
	}
	if o.Scheme > fecwire.SchemeRaptorQ {
		return errors.Wrapf(ErrConfig, "scheme %d", o.Scheme)
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return nil
}

// symbolSource is implemented by the LT and RaptorQ encoders.
type symbolSource interface {
	Symbol(i uint32) fec.Symbol
}

// Encoder derives frames of one session on demand. Frame generation is
// stateless per index, so the sender stores nothing but the chunks.
type Encoder struct {
	session *Session
	opts    Options
	src     symbolSource
	n       int
}

// NewEncoder chunks payload and prepares the symbol source for opts.Scheme.
func NewEncoder(payload []byte, opts Options) (*Encoder, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	cs, err := fec.Chunk(payload, opts.ChunkSize)
	if err != nil {
		return nil, err
	}
	if cs.K > fecwire.MaxK {
		return nil, errors.Wrapf(ErrConfig, "K=%d exceeds %d", cs.K, fecwire.MaxK)
	}
	s, err := NewSession(cs, len(payload), opts.Scheme)
	if err != nil {
		return nil, err
	}
	if opts.AttachHash {
		sum := sha256.Sum256(payload)
		s.Hash = sum[:]
	}

	var src symbolSource
	switch opts.Scheme {
	case fecwire.SchemeRaptorQ:
		rq, err := fec.NewRaptorQEncoder(cs)
		if err != nil {
			return nil, err
		}
		src = rq
	default:
		src = fec.NewLTEncoder(cs, s.FECSeed, opts.Scheme == fecwire.SchemeSystematicLT)
	}

	e := &Encoder{session: s, opts: opts, src: src, n: s.FrameCount(opts.Overhead)}
	opts.Logger.WithFields(logrus.Fields{
		"session": s.ID,
		"k":       s.K,
		"cs":      s.ChunkSize,
		"n":       e.n,
		"scheme":  s.Scheme,
	}).Info("encoder ready")
	return e, nil
}

func (e *Encoder) Session() *Session { return e.session }

// FrameCount returns N, the number of frames in one loop.
func (e *Encoder) FrameCount() int { return e.n }

// Frame renders the frame with index i. Indices past N are valid and yield
// fresh symbols; the stream player relies on that.
func (e *Encoder) Frame(i uint32) (string, error) {
	f, err := e.session.frame(e.src.Symbol(i))
	if err != nil {
		return "", err
	}
	text, err := fecwire.Marshal(f, e.opts.Format)
	if err != nil {
		return "", err
	}
	if e.opts.Fits != nil {
		if err := e.opts.Fits(text); err != nil {
			return "", errors.Wrapf(err, "frame %d", i)
		}
	}
	return text, nil
}

// Frames derives the N frames of one loop in parallel.
func (e *Encoder) Frames(ctx context.Context) ([]string, error) {
	return e.FrameRange(ctx, 0, e.n)
}

// FrameRange derives frames [start, start+count) in parallel.
func (e *Encoder) FrameRange(ctx context.Context, start uint32, count int) ([]string, error) {
	out := make([]string, count)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for j := 0; j < count; j++ {
		j := j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			text, err := e.Frame(start + uint32(j))
			if err != nil {
				return err
			}
			out[j] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Encode builds one loop of frames for payload.
func Encode(payload []byte, opts Options) (*Session, []string, error) {
	e, err := NewEncoder(payload, opts)
	if err != nil {
		return nil, nil, err
	}
	frames, err := e.Frames(context.Background())
	if err != nil {
		return nil, nil, err
	}
	return e.session, frames, nil
}
