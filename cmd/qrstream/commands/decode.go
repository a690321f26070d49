package commands

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sharediffs/qrstream/internal/config"
	"github.com/sharediffs/qrstream/internal/crypt"
	"github.com/sharediffs/qrstream/internal/store"
	"github.com/sharediffs/qrstream/qrstream"
)

var (
	decOut     string
	decKeyDir  string
	decNoSeal  bool
	decStore   string
	decNoStore bool
)

func init() {
	decodeCmd.Flags().StringVarP(&decOut, "out", "o", "", "output file (default <session>.bin)")
	decodeCmd.Flags().StringVarP(&decKeyDir, "keys", "k", "", "key directory holding private.key (default from config)")
	decodeCmd.Flags().BoolVar(&decNoSeal, "no-seal", false, "payload was sent unencrypted")
	decodeCmd.Flags().StringVar(&decStore, "store", "", "frame store for resuming (default from config)")
	decodeCmd.Flags().BoolVar(&decNoStore, "no-store", false, "do not persist scanned frames")
}

// fileConsumer opens a sealed payload and writes it next to its final
// name before renaming, so a crash never leaves a partial file.
type fileConsumer struct {
	keys    *crypt.KeyPair // nil when the payload is not sealed
	out     string
	written string
}

func (c *fileConsumer) Consume(s *qrstream.Session, payload []byte) error {
	if c.keys != nil {
		var err error
		if payload, err = c.keys.Open(payload); err != nil {
			return err
		}
	}
	out := c.out
	if out == "" {
		out = s.ID + ".bin"
	}
	tmp, err := os.CreateTemp(filepath.Dir(out), ".qrstream-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "write payload")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "rename payload")
	}
	c.written = out
	return nil
}

var decodeCmd = &cobra.Command{
	Use:   "decode [file|-]",
	Short: "Decode scanned frame texts (one per line) back into the payload",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := io.Reader(os.Stdin)
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		consumer := &fileConsumer{out: decOut}
		if !decNoSeal {
			dir, err := keyDir(decKeyDir)
			if err != nil {
				return err
			}
			if consumer.keys, err = crypt.Load(dir, true); err != nil {
				return errors.Wrap(err, "load private key (run keygen or pass --no-seal)")
			}
		}

		opts := qrstream.ReceiverOptions{Logger: log, Consumer: consumer}
		var fs *store.FrameStore
		if !decNoStore {
			p := cfg.Receiver.StorePath
			if decStore != "" {
				p = decStore
			}
			p, err := config.Path(p)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
				return err
			}
			if fs, err = store.Open(p); err != nil {
				return err
			}
			defer fs.Close()
			opts.Recorder = fs
		}
		rx := qrstream.NewReceiver(opts)

		done, err := replay(rx, fs)
		if err != nil {
			return err
		}
		if !done {
			if done, err = decodeStream(cmd.Context(), rx, in); err != nil {
				return err
			}
		}

		state, solved, k := rx.Progress()
		if !done {
			log.WithFields(logrus.Fields{"state": state, "solved": solved, "k": k}).
				Warn("input ended before the payload was recovered; scan more frames")
			return errors.New("incomplete")
		}
		log.WithField("file", consumer.written).Info("payload recovered")
		return nil
	},
}

// replay feeds frames stored by an earlier run.
func replay(rx *qrstream.Receiver, fs *store.FrameStore) (bool, error) {
	if fs == nil {
		return false, nil
	}
	var done bool
	n := 0
	err := fs.Replay(func(frame string) error {
		if done {
			return nil
		}
		n++
		out := rx.Feed(frame)
		if out.Status == qrstream.Complete {
			done = true
			return out.Err
		}
		return nil
	})
	if n > 0 {
		log.WithField("frames", n).Info("replayed stored frames")
	}
	return done, err
}

// decodeStream scans lines into an Intake and runs it until a payload is
// delivered or the input is exhausted.
func decodeStream(ctx context.Context, rx *qrstream.Receiver, in io.Reader) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	intake := qrstream.NewIntake(rx, cfg.Receiver.IntakeRing)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for sc.Scan() {
			line := sc.Text()
			if line == "" {
				continue
			}
			for !intake.Offer(line) {
				select {
				case <-ctx.Done():
					scanErr <- nil
					return
				case <-time.After(time.Millisecond):
				}
			}
		}
		for intake.Len() > 0 && ctx.Err() == nil {
			time.Sleep(time.Millisecond)
		}
		scanErr <- sc.Err()
		cancel()
	}()

	var done bool
	var consumeErr error
	err := intake.Run(ctx, func(out qrstream.Outcome) bool {
		switch out.Status {
		case qrstream.Complete:
			done, consumeErr = true, out.Err
			return false
		case qrstream.IntegrityFailure:
			log.WithError(out.Err).WithField("session", out.SessionID).Warn("integrity check failed; restarting")
		}
		return true
	})
	cancel()
	if done {
		// the scanner may still be blocked on an open stdin
		return true, consumeErr
	}
	select {
	case serr := <-scanErr:
		if serr != nil {
			return false, errors.Wrap(serr, "read frames")
		}
	default:
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return false, err
	}
	return false, nil
}
