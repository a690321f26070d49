package qrstream

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"math"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sharediffs/qrstream/fec"
	"github.com/sharediffs/qrstream/internal/fecwire"
)

// Session is the header shared by every frame of one transfer.
type Session struct {
	ID        string
	FECSeed   uint32
	K         int
	ChunkSize int
	TotalLen  int
	Hash      []byte // SHA-256 of the payload, optional
	Scheme    fecwire.Scheme
}

// NewSession creates a session for cs with a fresh random id and fec seed.
func NewSession(cs *fec.ChunkSet, totalLen int, scheme fecwire.Scheme) (*Session, error) {
	id := uuid.New()
	var seed [4]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, errors.Wrap(err, "fec seed")
	}
	return &Session{
		ID:        base64.RawURLEncoding.EncodeToString(id[:]),
		FECSeed:   binary.BigEndian.Uint32(seed[:]),
		K:         cs.K,
		ChunkSize: cs.Size,
		TotalLen:  totalLen,
		Scheme:    scheme,
	}, nil
}

func sessionFromFrame(f *fecwire.Frame) *Session {
	return &Session{
		ID:        f.SessionID,
		FECSeed:   f.FECSeed,
		K:         f.K,
		ChunkSize: f.ChunkSize,
		TotalLen:  f.TotalLen,
		Hash:      f.Hash,
		Scheme:    f.Scheme,
	}
}

// FrameCount is N = ceil(K*(1+overhead)), the number of frames in one loop.
func (s *Session) FrameCount(overhead float64) int {
	return int(math.Ceil(float64(s.K) * (1.0 + overhead)))
}

// Verify checks payload against the session hash. Sessions without a hash
// accept any payload.
func (s *Session) Verify(payload []byte) error {
	if len(s.Hash) == 0 {
		return nil
	}
	sum := sha256.Sum256(payload)
	if string(sum[:]) != string(s.Hash) {
		return errors.Wrapf(ErrIntegrity, "session %s", s.ID)
	}
	return nil
}

// frame builds the wire frame for one symbol with a random two-byte salt.
func (s *Session) frame(sym fec.Symbol) (*fecwire.Frame, error) {
	salt := make([]byte, 2)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "salt")
	}
	return &fecwire.Frame{
		Version:   fecwire.Version,
		Scheme:    s.Scheme,
		SessionID: s.ID,
		TotalLen:  s.TotalLen,
		K:         s.K,
		ChunkSize: s.ChunkSize,
		Index:     sym.Index,
		FECSeed:   s.FECSeed,
		Degree:    sym.Degree,
		Payload:   sym.Data,
		Salt:      salt,
		Hash:      s.Hash,
	}, nil
}
