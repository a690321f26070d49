package fecwire

import (
	"encoding/base64"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Scheme identifies the erasure code a frame belongs to.
type Scheme uint8

const (
	SchemeLT           Scheme = 0 // plain LT: every index is a sampled LT symbol
	SchemeSystematicLT Scheme = 1 // indices < K carry source chunks, the rest LT
	SchemeRaptorQ      Scheme = 2
)

func (s Scheme) String() string {
	switch s {
	case SchemeLT:
		return "lt"
	case SchemeSystematicLT:
		return "slt"
	case SchemeRaptorQ:
		return "raptorq"
	default:
		return "unknown"
	}
}

// ParseScheme maps a configuration name to a Scheme.
func ParseScheme(name string) (Scheme, error) {
	switch strings.ToLower(name) {
	case "lt":
		return SchemeLT, nil
	case "slt", "systematic", "":
		return SchemeSystematicLT, nil
	case "raptorq", "rq":
		return SchemeRaptorQ, nil
	}
	return 0, errors.Errorf("unknown scheme %q", name)
}

// Format selects the text representation of a frame.
type Format uint8

const (
	FormatJSON   Format = iota // "QS1|" + compact JSON
	FormatBinary               // "QS2|" + base64url protobuf-wire record
)

func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "json", "":
		return FormatJSON, nil
	case "binary", "bin":
		return FormatBinary, nil
	}
	return 0, errors.Errorf("unknown frame format %q", name)
}

const (
	Version = 1

	prefixJSON   = "QS1|"
	prefixBinary = "QS2|"

	// upper bounds applied to untrusted headers before anything is allocated
	MaxK         = 1 << 20
	MaxChunkSize = 1 << 16
	hashLen      = 32

	// MaxRaptorQK is the largest source block the RaptorQ parameter table
	// covers. A RaptorQ block is also addressed with a uint32 byte length.
	MaxRaptorQK = 56403
)

// ErrFrameCorrupt is returned for any frame that cannot be parsed or whose
// header is inconsistent. Such frames are dropped without touching decode state.
var ErrFrameCorrupt = errors.New("fecwire: corrupt frame")

var b64 = base64.RawURLEncoding

// Frame is one symbol plus the session header it belongs to.
type Frame struct {
	Version   int
	Scheme    Scheme
	SessionID string
	TotalLen  int // L: original payload length
	K         int
	ChunkSize int // cs
	Index     uint32
	FECSeed   uint32
	Degree    int // 0 for RaptorQ
	Payload   []byte
	Salt      []byte // anti-cache nonce, no semantic role
	Hash      []byte // optional SHA-256 of the payload
}

// Marshal renders f as transport text in the given format.
func Marshal(f *Frame, format Format) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	switch format {
	case FormatJSON:
		b, err := marshalJSON(f)
		if err != nil {
			return "", errors.Wrap(err, "marshal frame")
		}
		return prefixJSON + string(b), nil
	case FormatBinary:
		return prefixBinary + b64.EncodeToString(appendBinary(nil, f)), nil
	}
	return "", errors.Errorf("unknown frame format %d", format)
}

// Unmarshal parses transport text produced by Marshal in either format.
func Unmarshal(text string) (*Frame, error) {
	text = strings.TrimSpace(text)
	var (
		f   *Frame
		err error
	)
	switch {
	case strings.HasPrefix(text, prefixJSON):
		f, err = unmarshalJSON([]byte(text[len(prefixJSON):]))
	case strings.HasPrefix(text, prefixBinary):
		raw, derr := b64.DecodeString(text[len(prefixBinary):])
		if derr != nil {
			return nil, errors.Wrap(ErrFrameCorrupt, derr.Error())
		}
		f, err = parseBinary(raw)
	default:
		return nil, errors.Wrap(ErrFrameCorrupt, "unknown prefix")
	}
	if err != nil {
		return nil, errors.Wrap(ErrFrameCorrupt, err.Error())
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks header consistency.
func (f *Frame) Validate() error {
	switch {
	case f.Version != Version:
		return errors.Wrapf(ErrFrameCorrupt, "version %d", f.Version)
	case f.Scheme > SchemeRaptorQ:
		return errors.Wrapf(ErrFrameCorrupt, "scheme %d", f.Scheme)
	case f.SessionID == "":
		return errors.Wrap(ErrFrameCorrupt, "empty session id")
	case f.K < 1 || f.K > MaxK:
		return errors.Wrapf(ErrFrameCorrupt, "K=%d", f.K)
	case f.ChunkSize < 1 || f.ChunkSize > MaxChunkSize:
		return errors.Wrapf(ErrFrameCorrupt, "cs=%d", f.ChunkSize)
	case f.TotalLen < 0 || int64(f.TotalLen) > int64(f.K)*int64(f.ChunkSize):
		return errors.Wrapf(ErrFrameCorrupt, "len=%d exceeds K*cs", f.TotalLen)
	case len(f.Payload) != f.ChunkSize:
		return errors.Wrapf(ErrFrameCorrupt, "payload %d bytes, cs=%d", len(f.Payload), f.ChunkSize)
	case len(f.Hash) != 0 && len(f.Hash) != hashLen:
		return errors.Wrapf(ErrFrameCorrupt, "hash %d bytes", len(f.Hash))
	}
	if f.Scheme == SchemeRaptorQ {
		if f.K > MaxRaptorQK {
			return errors.Wrapf(ErrFrameCorrupt, "raptorq K=%d above %d", f.K, MaxRaptorQK)
		}
		if uint64(f.K)*uint64(f.ChunkSize) > math.MaxUint32 {
			return errors.Wrapf(ErrFrameCorrupt, "raptorq block %d*%d bytes", f.K, f.ChunkSize)
		}
		if f.Degree != 0 {
			return errors.Wrapf(ErrFrameCorrupt, "raptorq frame with degree %d", f.Degree)
		}
		return nil
	}
	if f.Degree < 1 || f.Degree > f.K {
		return errors.Wrapf(ErrFrameCorrupt, "degree %d outside [1,%d]", f.Degree, f.K)
	}
	return nil
}
