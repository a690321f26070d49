package qrstream

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sharediffs/qrstream/internal/fecwire"
)

func TestEncodeRejectsBadOptions(t *testing.T) {
	for name, mut := range map[string]func(o *Options){
		"zero chunk":   func(o *Options) { o.ChunkSize = 0 },
		"huge chunk":   func(o *Options) { o.ChunkSize = fecwire.MaxChunkSize + 1 },
		"neg overhead": func(o *Options) { o.Overhead = -0.1 },
		"nan overhead": func(o *Options) { o.Overhead = math.NaN() },
		"scheme":       func(o *Options) { o.Scheme = 9 },
	} {
		opts := testOptions(100)
		mut(&opts)
		_, _, err := Encode([]byte("x"), opts)
		require.ErrorIs(t, err, ErrConfig, name)
	}
}

func TestEncodeFrameHeaders(t *testing.T) {
	payload := randomBytes(t, 31, 2500)
	opts := testOptions(300)
	opts.Format = fecwire.FormatBinary
	s, frames, err := Encode(payload, opts)
	require.NoError(t, err)
	require.Equal(t, 9, s.K)
	require.Len(t, frames, 11)

	for i, text := range frames {
		f, err := fecwire.Unmarshal(text)
		require.NoError(t, err)
		require.Equal(t, uint32(i), f.Index)
		require.Equal(t, s.ID, f.SessionID)
		require.Equal(t, s.FECSeed, f.FECSeed)
		require.Equal(t, 2500, f.TotalLen)
		require.Equal(t, 300, f.ChunkSize)
		require.Len(t, f.Salt, 2)
		require.Len(t, f.Hash, 32)
		if i < s.K {
			require.Equal(t, 1, f.Degree)
			end := min((i+1)*300, len(payload))
			require.Equal(t, payload[i*300:end], f.Payload[:end-i*300])
		}
	}
}

func TestEncodeWithoutHash(t *testing.T) {
	opts := testOptions(100)
	opts.AttachHash = false
	s, frames, err := Encode([]byte("no digest"), opts)
	require.NoError(t, err)
	require.Nil(t, s.Hash)
	f, err := fecwire.Unmarshal(frames[0])
	require.NoError(t, err)
	require.Nil(t, f.Hash)
}

func TestEncodeCapacityExceeded(t *testing.T) {
	r := NewRenderer()
	r.Version = 10
	opts := testOptions(512)
	opts.Fits = r.Fits
	_, _, err := Encode(randomBytes(t, 32, 2048), opts)
	require.ErrorIs(t, err, ErrCapacityExceeded)

	// a small chunk fits the same version
	opts.ChunkSize = 16
	opts.AttachHash = false
	_, _, err = Encode(randomBytes(t, 32, 64), opts)
	require.NoError(t, err)
}

func TestFramesHonoursCancel(t *testing.T) {
	enc, err := NewEncoder(randomBytes(t, 33, 4096), testOptions(64))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = enc.Frames(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
