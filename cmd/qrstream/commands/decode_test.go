package commands

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/sharediffs/qrstream/internal/config"
	"github.com/sharediffs/qrstream/internal/crypt"
	"github.com/sharediffs/qrstream/qrstream"
)

func encodeLines(t *testing.T, payload []byte) []string {
	t.Helper()
	l, _ := test.NewNullLogger()
	opts := qrstream.DefaultOptions()
	opts.ChunkSize = 64
	opts.Logger = l
	_, frames, err := qrstream.Encode(payload, opts)
	require.NoError(t, err)
	return frames
}

func testReceiver(c qrstream.Consumer) *qrstream.Receiver {
	l, _ := test.NewNullLogger()
	return qrstream.NewReceiver(qrstream.ReceiverOptions{Logger: l, Consumer: c})
}

func TestFileConsumerOpensAndWrites(t *testing.T) {
	keys, err := crypt.GenerateKeyPair()
	require.NoError(t, err)
	sealed, err := keys.Seal([]byte("diff --git a/x b/x"))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.patch")
	c := &fileConsumer{keys: keys, out: out}
	require.NoError(t, c.Consume(&qrstream.Session{ID: "s"}, sealed))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "diff --git a/x b/x", string(got))
	require.Equal(t, out, c.written)

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file left behind")
}

func TestFileConsumerRejectsTamperedPayload(t *testing.T) {
	keys, err := crypt.GenerateKeyPair()
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "out")
	c := &fileConsumer{keys: keys, out: out}
	require.Error(t, c.Consume(&qrstream.Session{ID: "s"}, []byte("plain bytes, not a sealed box")))
	_, err = os.Stat(out)
	require.True(t, os.IsNotExist(err))
}

func TestDecodeStreamRecoversPayload(t *testing.T) {
	cfg = config.Default()
	payload := make([]byte, 1000)
	rand.New(rand.NewSource(3)).Read(payload)
	frames := encodeLines(t, payload)

	input := "garbage\n\n" + strings.Join(frames, "\n") + "\n"
	out := filepath.Join(t.TempDir(), "payload.bin")
	c := &fileConsumer{out: out}
	done, err := decodeStream(context.Background(), testReceiver(c), strings.NewReader(input))
	require.NoError(t, err)
	require.True(t, done)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestDecodeStreamReportsIncompleteInput(t *testing.T) {
	cfg = config.Default()
	frames := encodeLines(t, make([]byte, 1000))

	rx := testReceiver(&fileConsumer{out: filepath.Join(t.TempDir(), "x")})
	done, err := decodeStream(context.Background(), rx, strings.NewReader(strings.Join(frames[:3], "\n")))
	require.NoError(t, err)
	require.False(t, done)

	state, solved, k := rx.Progress()
	require.Equal(t, qrstream.StateActive, state)
	require.Equal(t, 3, solved)
	require.Equal(t, 16, k)
}
