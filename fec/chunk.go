package fec

import (
	"github.com/pkg/errors"
)

// ErrConfig reports a caller contract violation such as a non-positive chunk size.
var ErrConfig = errors.New("fec: invalid configuration")

// ChunkSet is a payload split into K equal-length source chunks.
// Only the last chunk carries zero padding.
type ChunkSet struct {
	K      int
	Size   int // cs: bytes per chunk
	Chunks [][]byte
}

// Chunk splits payload into ceil(len/chunkSize) chunks and pads them to the
// longest chunk length. An empty payload yields a single one-byte zero chunk
// so that K >= 1 always holds.
func Chunk(payload []byte, chunkSize int) (*ChunkSet, error) {
	if chunkSize < 1 {
		return nil, errors.Wrapf(ErrConfig, "chunk size %d", chunkSize)
	}
	if len(payload) == 0 {
		return &ChunkSet{K: 1, Size: 1, Chunks: [][]byte{{0}}}, nil
	}
	k := (len(payload) + chunkSize - 1) / chunkSize
	size := chunkSize
	if k == 1 {
		size = len(payload)
	}
	chunks := make([][]byte, k)
	for i := 0; i < k; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		c := make([]byte, size)
		copy(c, payload[start:end])
		chunks[i] = c
	}
	return &ChunkSet{K: k, Size: size, Chunks: chunks}, nil
}

// Join concatenates the chunks and truncates the result to n bytes.
func (cs *ChunkSet) Join(n int) []byte {
	out := make([]byte, 0, cs.K*cs.Size)
	for _, c := range cs.Chunks {
		out = append(out, c...)
	}
	if n < len(out) {
		out = out[:n]
	}
	return out
}

func xorBytes(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}
