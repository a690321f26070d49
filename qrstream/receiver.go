package qrstream

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sharediffs/qrstream/fec"
	"github.com/sharediffs/qrstream/internal/fecwire"
)

// Status is the result of feeding one frame.
type Status int

const (
	// Pending: the frame was accepted, dropped as a duplicate, or could not
	// advance decoding yet. More frames are needed.
	Pending Status = iota
	// Complete: the payload was reconstructed and verified.
	Complete
	// IntegrityFailure: the payload was reconstructed but failed the hash
	// check and was discarded.
	IntegrityFailure
	// FrameCorrupt: the frame could not be parsed and was dropped.
	FrameCorrupt
	// Finished: the frame belongs to a session already delivered.
	Finished
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Complete:
		return "complete"
	case IntegrityFailure:
		return "integrity_failure"
	case FrameCorrupt:
		return "corrupt"
	case Finished:
		return "finished"
	}
	return "unknown"
}

// State describes the receiver's current session.
type State int

const (
	StateIdle State = iota // no session in progress
	StateActive            // fewer than K distinct symbols received
	StateStalled           // at least K distinct symbols and still unsolved
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateStalled:
		return "stalled"
	}
	return "unknown"
}

// Outcome reports what Feed did with a frame.
type Outcome struct {
	Status    Status
	SessionID string
	Index     uint32
	Solved    int
	K         int
	Session   *Session // set on Complete and IntegrityFailure
	Payload   []byte   // set on Complete
	Err       error    // parse, integrity or consumer error
}

// Consumer receives verified payloads, e.g. to decrypt and write them.
type Consumer interface {
	Consume(s *Session, payload []byte) error
}

// Recorder persists accepted frames so an interrupted scan can be replayed.
type Recorder interface {
	Record(sessionID string, index uint32, frame string) error
	Forget(sessionID string) error
}

// decoder is satisfied by fec.LTDecoder and fec.RaptorQDecoder.
type decoder interface {
	AddSymbol(index uint32, degree int, data []byte) (bool, error)
	Complete() bool
	Solved() int
	K() int
	Payload(n int) ([]byte, error)
}

type rxSession struct {
	sess    *Session
	dec     decoder
	seen    map[uint32]struct{}
	started time.Time
}

// finishedCap bounds how many delivered session ids are remembered.
const finishedCap = 16

// ReceiverOptions configures a Receiver. All fields are optional.
type ReceiverOptions struct {
	Logger   logrus.FieldLogger
	Metrics  *Metrics
	Consumer Consumer
	Recorder Recorder
}

// Receiver is the session manager: it owns at most one in-flight decode,
// de-duplicates frames per session, resets on a session switch and checks
// integrity before delivery. It is safe for concurrent use; Feed calls are
// serialized.
type Receiver struct {
	log      logrus.FieldLogger
	metrics  *Metrics
	consumer Consumer
	recorder Recorder

	mu       sync.Mutex
	cur      *rxSession
	finished map[string]struct{}
	order    []string
}

func NewReceiver(opts ReceiverOptions) *Receiver {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	return &Receiver{
		log:      opts.Logger,
		metrics:  opts.Metrics,
		consumer: opts.Consumer,
		recorder: opts.Recorder,
		finished: make(map[string]struct{}),
	}
}

// Feed processes one scanned frame text. It never blocks on I/O other than
// the optional Recorder and Consumer.
func (r *Receiver) Feed(text string) Outcome {
	f, err := fecwire.Unmarshal(text)
	if err != nil {
		r.metrics.frame(FrameCorrupt.String())
		r.log.WithError(err).Debug("dropping corrupt frame")
		return Outcome{Status: FrameCorrupt, Err: err}
	}

	r.mu.Lock()
	out := r.feedLocked(f, text)
	r.mu.Unlock()

	if out.Status == Complete && r.consumer != nil {
		if err := r.consumer.Consume(out.Session, out.Payload); err != nil {
			r.log.WithError(err).WithField("session", out.SessionID).Error("consumer failed")
			out.Err = err
		}
	}
	return out
}

func (r *Receiver) feedLocked(f *fecwire.Frame, text string) Outcome {
	out := Outcome{SessionID: f.SessionID, Index: f.Index}
	if _, ok := r.finished[f.SessionID]; ok {
		r.metrics.frame(Finished.String())
		out.Status = Finished
		return out
	}

	if r.cur == nil || r.cur.sess.ID != f.SessionID {
		// the old session survives a frame whose decoder cannot be built
		s, err := r.start(f)
		if err != nil {
			r.metrics.frame(FrameCorrupt.String())
			r.log.WithError(err).WithField("session", f.SessionID).Debug("dropping frame of unusable session")
			return r.progress(out, FrameCorrupt, err)
		}
		if r.cur != nil {
			r.log.WithFields(logrus.Fields{
				"session": r.cur.sess.ID,
				"solved":  r.cur.dec.Solved(),
				"k":       r.cur.dec.K(),
			}).WithError(errors.Wrapf(ErrSessionMismatch, "incoming %s", f.SessionID)).Warn("resetting session")
			r.metrics.session("reset")
			r.forget(r.cur.sess.ID)
		}
		r.announce(s.sess)
		r.cur = s
	}
	cur := r.cur

	if !cur.sess.sameHeader(f) {
		// same id, different parameters: not ours to trust
		r.metrics.frame(FrameCorrupt.String())
		r.log.WithField("session", f.SessionID).Debug("dropping frame with inconsistent header")
		return r.progress(out, FrameCorrupt, errors.Wrap(ErrFrameCorrupt, "inconsistent session header"))
	}
	if _, dup := cur.seen[f.Index]; dup {
		r.metrics.frame("duplicate")
		return r.progress(out, Pending, nil)
	}

	advanced, err := cur.dec.AddSymbol(f.Index, f.Degree, f.Payload)
	if err != nil {
		r.metrics.frame(FrameCorrupt.String())
		r.log.WithError(err).WithField("index", f.Index).Debug("dropping malformed symbol")
		return r.progress(out, FrameCorrupt, errors.Wrap(ErrFrameCorrupt, err.Error()))
	}
	cur.seen[f.Index] = struct{}{}
	if advanced {
		r.metrics.frame("progress")
	} else {
		r.metrics.frame("buffered")
	}
	r.metrics.Solved.Set(float64(cur.dec.Solved()))
	if r.recorder != nil && !cur.dec.Complete() {
		if err := r.recorder.Record(f.SessionID, f.Index, text); err != nil {
			r.log.WithError(err).Warn("recording frame")
		}
	}

	if !cur.dec.Complete() {
		return r.progress(out, Pending, nil)
	}
	return r.finish(out)
}

// newDecoder builds the decode state for a session header.
var newDecoder = func(s *Session) (decoder, error) {
	if s.Scheme == fecwire.SchemeRaptorQ {
		return fec.NewRaptorQDecoder(s.K, s.ChunkSize)
	}
	return fec.NewLTDecoder(s.K, s.ChunkSize, s.FECSeed, s.Scheme == fecwire.SchemeSystematicLT)
}

func (r *Receiver) start(f *fecwire.Frame) (*rxSession, error) {
	s := sessionFromFrame(f)
	dec, err := newDecoder(s)
	if err != nil {
		return nil, errors.Wrap(ErrFrameCorrupt, err.Error())
	}
	return &rxSession{sess: s, dec: dec, seen: make(map[uint32]struct{}, s.K), started: time.Now()}, nil
}

func (r *Receiver) announce(s *Session) {
	r.metrics.session("started")
	r.log.WithFields(logrus.Fields{
		"session": s.ID,
		"k":       s.K,
		"len":     s.TotalLen,
		"scheme":  s.Scheme,
	}).Info("session started")
}

func (r *Receiver) finish(out Outcome) Outcome {
	cur := r.cur
	r.cur = nil
	r.forget(cur.sess.ID)
	r.metrics.Solved.Set(0)
	out.Session = cur.sess
	out.Solved, out.K = cur.dec.K(), cur.dec.K()

	payload, err := cur.dec.Payload(cur.sess.TotalLen)
	if err == nil && len(payload) != cur.sess.TotalLen {
		err = errors.Wrapf(ErrIntegrity, "reconstructed %d bytes, want %d", len(payload), cur.sess.TotalLen)
	}
	if err == nil {
		err = cur.sess.Verify(payload)
	}
	if err != nil {
		r.metrics.session("integrity_failure")
		r.log.WithError(err).WithField("session", cur.sess.ID).Warn("discarding reconstructed payload")
		out.Status = IntegrityFailure
		out.Err = err
		return out
	}

	r.finished[cur.sess.ID] = struct{}{}
	r.order = append(r.order, cur.sess.ID)
	if len(r.order) > finishedCap {
		delete(r.finished, r.order[0])
		r.order = r.order[1:]
	}
	r.metrics.session("completed")
	r.log.WithFields(logrus.Fields{
		"session": cur.sess.ID,
		"frames":  len(cur.seen),
		"k":       cur.sess.K,
		"elapsed": time.Since(cur.started).Round(time.Millisecond),
	}).Info("session complete")
	out.Status = Complete
	out.Payload = payload
	return out
}

func (r *Receiver) progress(out Outcome, st Status, err error) Outcome {
	out.Status = st
	out.Err = err
	if r.cur != nil {
		out.Solved, out.K = r.cur.dec.Solved(), r.cur.dec.K()
	}
	return out
}

func (r *Receiver) forget(id string) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Forget(id); err != nil {
		r.log.WithError(err).WithField("session", id).Warn("forgetting recorded frames")
	}
}

// Progress reports the state of the session in progress.
func (r *Receiver) Progress() (state State, solved, k int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return StateIdle, 0, 0
	}
	solved, k = r.cur.dec.Solved(), r.cur.dec.K()
	if len(r.cur.seen) >= k {
		return StateStalled, solved, k
	}
	return StateActive, solved, k
}

// Reset drops the session in progress. Delivered sessions stay remembered.
func (r *Receiver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur != nil {
		r.forget(r.cur.sess.ID)
		r.cur = nil
	}
}

func (s *Session) sameHeader(f *fecwire.Frame) bool {
	return s.Scheme == f.Scheme &&
		s.TotalLen == f.TotalLen &&
		s.K == f.K &&
		s.ChunkSize == f.ChunkSize &&
		s.FECSeed == f.FECSeed &&
		string(s.Hash) == string(f.Hash)
}
