package dropper

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBernoulliBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	require.False(t, New(0, rng).Drop())
	require.True(t, New(1, rng).Drop())

	b := New(0.25, rng)
	drops := 0
	for i := 0; i < 10000; i++ {
		if b.Drop() {
			drops++
		}
	}
	require.InDelta(t, 2500, drops, 250)
}

func frames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

func TestChannelLossless(t *testing.T) {
	in := frames(50)
	require.Equal(t, in, NewChannel(ChannelOptions{}).Pass(in))
}

func TestChannelDeterministicPerSeed(t *testing.T) {
	o := ChannelOptions{Loss: 0.3, Dup: 0.2, Window: 4, Seed: 9}
	a := NewChannel(o).Pass(frames(200))
	b := NewChannel(o).Pass(frames(200))
	require.Equal(t, a, b)
	require.Less(t, len(a), 200)
}

func TestChannelReorderStaysInWindow(t *testing.T) {
	out := NewChannel(ChannelOptions{Window: 5, Seed: 3}).Pass(frames(20))
	require.Len(t, out, 20)
	for i, f := range out {
		n, err := strconv.Atoi(f)
		require.NoError(t, err)
		require.Equal(t, i/5, n/5)
	}
}
