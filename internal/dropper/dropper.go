package dropper

import (
	"math/rand"
)

// Bernoulli implements a simple u<p drop decision.
type Bernoulli struct {
	p   float64
	rng *rand.Rand
}

func New(p float64, rng *rand.Rand) *Bernoulli { return &Bernoulli{p: p, rng: rng} }

func (b *Bernoulli) Drop() bool {
	if b.p <= 0 {
		return false
	}
	if b.p >= 1 {
		return true
	}
	return b.rng.Float64() < b.p
}

// Channel models a camera watching a looping display: frames are missed
// (Loss), caught twice (Dup) and reordered within a small window (Window).
type Channel struct {
	loss   *Bernoulli
	dup    *Bernoulli
	window int
	rng    *rand.Rand
}

// ChannelOptions configure NewChannel. Seed 0 is a valid fixed seed.
type ChannelOptions struct {
	Loss   float64
	Dup    float64
	Window int // reorder window; <=1 keeps order
	Seed   int64
}

func NewChannel(o ChannelOptions) *Channel {
	rng := rand.New(rand.NewSource(o.Seed))
	return &Channel{loss: New(o.Loss, rng), dup: New(o.Dup, rng), window: o.Window, rng: rng}
}

// Pass returns what the receiver sees of frames.
func (c *Channel) Pass(frames []string) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		if c.loss.Drop() {
			continue
		}
		out = append(out, f)
		if c.dup.Drop() {
			out = append(out, f)
		}
	}
	if c.window > 1 {
		for start := 0; start < len(out); start += c.window {
			end := min(start+c.window, len(out))
			seg := out[start:end]
			c.rng.Shuffle(len(seg), func(i, j int) { seg[i], seg[j] = seg[j], seg[i] })
		}
	}
	return out
}
