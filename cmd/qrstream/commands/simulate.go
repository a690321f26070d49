package commands

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sharediffs/qrstream/internal/dropper"
	"github.com/sharediffs/qrstream/qrstream"
)

var (
	simFlags  encodeFlags
	simLoss   float64
	simDup    float64
	simWindow int
	simSeed   int64
	simLoops  int
	simStream bool
)

func init() {
	simFlags.register(simulateCmd.Flags(), false)
	f := simulateCmd.Flags()
	f.Float64Var(&simLoss, "loss", 0.2, "probability a displayed frame is missed")
	f.Float64Var(&simDup, "dup", 0.1, "probability a frame is scanned twice")
	f.IntVar(&simWindow, "window", 4, "reorder window in frames")
	f.Int64Var(&simSeed, "seed", 1, "channel random seed")
	f.IntVar(&simLoops, "loops", 50, "give up after this many loops")
	f.BoolVar(&simStream, "stream", false, "every loop carries fresh symbol indices")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <file>",
	Short: "Play a file through a lossy camera model and report what the receiver needed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enc, _, err := simFlags.newEncoder(cmd.Flags(), args[0])
		if err != nil {
			return err
		}
		want, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		ch := dropper.NewChannel(dropper.ChannelOptions{Loss: simLoss, Dup: simDup, Window: simWindow, Seed: simSeed})
		rx := qrstream.NewReceiver(qrstream.ReceiverOptions{Logger: log})
		n := enc.FrameCount()
		k := enc.Session().K

		loop, err := enc.Frames(cmd.Context())
		if err != nil {
			return err
		}
		fed := 0
		for l := 0; l < simLoops; l++ {
			if simStream && l > 0 {
				if loop, err = enc.FrameRange(cmd.Context(), uint32(l*n), n); err != nil {
					return err
				}
			}
			for _, text := range ch.Pass(loop) {
				fed++
				out := rx.Feed(text)
				if out.Status == qrstream.IntegrityFailure {
					return out.Err
				}
				if out.Status != qrstream.Complete {
					continue
				}
				if !bytes.Equal(out.Payload, want) {
					return errors.New("recovered payload differs from input")
				}
				log.WithFields(logrus.Fields{
					"k":        k,
					"frames":   n,
					"scanned":  fed,
					"loops":    l + 1,
					"overhead": float64(fed)/float64(k) - 1,
				}).Info("recovered")
				return nil
			}
		}
		state, solved, _ := rx.Progress()
		log.WithFields(logrus.Fields{"state": state, "solved": solved, "k": k, "scanned": fed}).
			Warn("not recovered")
		return errors.Errorf("payload not recovered after %d loops", simLoops)
	},
}
