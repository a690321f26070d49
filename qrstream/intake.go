package qrstream

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultIntakeRing is the default ring capacity.
const DefaultIntakeRing = 1024

// Intake decouples scanners from the receiver. Any number of goroutines may
// Offer frames without blocking; a single Run loop feeds them to the
// Receiver in arrival order. A full ring drops the frame, which the
// fountain code tolerates like any other loss.
type Intake struct {
	rx      *Receiver
	ring    *mpscRing
	metrics *Metrics
}

func NewIntake(rx *Receiver, capacity int) *Intake {
	if capacity <= 0 {
		capacity = DefaultIntakeRing
	}
	return &Intake{rx: rx, ring: newRing(capacity), metrics: rx.metrics}
}

// Offer enqueues a frame and reports false if the ring was full.
func (in *Intake) Offer(frame string) bool {
	if !in.ring.tryPush(frame) {
		in.metrics.IntakeDrops.Inc()
		return false
	}
	return true
}

// Len approximates the number of queued frames.
func (in *Intake) Len() int { return in.ring.len() }

// Run feeds queued frames to the receiver until ctx is done or onOutcome
// returns false. It must be called from one goroutine only.
func (in *Intake) Run(ctx context.Context, onOutcome func(Outcome) bool) error {
	const batch = 64
	buf := make([]string, batch)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n := in.ring.tryPopBatch(buf)
		if n == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		for i := 0; i < n; i++ {
			out := in.rx.Feed(buf[i])
			buf[i] = ""
			if onOutcome != nil && !onOutcome(out) {
				return nil
			}
		}
	}
}

// mpscRing is a bounded multi-producer single-consumer queue. Each slot
// carries a sequence number so the consumer never reads a slot whose
// producer has claimed it but not yet written it.
type mpscRing struct {
	buf  []ringSlot
	mask uint64
	head atomic.Uint64 // consumer index
	tail atomic.Uint64 // producer index
}

type ringSlot struct {
	seq atomic.Uint64
	v   string
}

func newRing(capacity int) *mpscRing {
	// round up to power of two
	n := 1
	for n < capacity {
		n <<= 1
	}
	r := &mpscRing{buf: make([]ringSlot, n), mask: uint64(n - 1)}
	for i := range r.buf {
		r.buf[i].seq.Store(uint64(i))
	}
	return r
}

func (r *mpscRing) tryPush(x string) bool {
	for {
		tail := r.tail.Load()
		s := &r.buf[tail&r.mask]
		seq := s.seq.Load()
		switch {
		case seq == tail:
			if r.tail.CompareAndSwap(tail, tail+1) {
				s.v = x
				s.seq.Store(tail + 1)
				return true
			}
		case seq < tail:
			return false // full
		}
		// another producer moved tail; retry
	}
}

// tryPopBatch fills dst with up to len(dst) items; caller is the single consumer.
func (r *mpscRing) tryPopBatch(dst []string) int {
	head := r.head.Load()
	n := 0
	for n < len(dst) {
		s := &r.buf[head&r.mask]
		if s.seq.Load() != head+1 {
			break
		}
		dst[n] = s.v
		s.v = ""
		s.seq.Store(head + uint64(len(r.buf)))
		head++
		n++
	}
	r.head.Store(head)
	return n
}

func (r *mpscRing) len() int {
	n := int(r.tail.Load() - r.head.Load())
	if n < 0 {
		return 0
	}
	if n > len(r.buf) {
		return len(r.buf)
	}
	return n
}
