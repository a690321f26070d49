package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sharediffs/qrstream/internal/crypt"
	"github.com/sharediffs/qrstream/qrstream"
)

// encodeFlags are shared by encode, serve and simulate. They override the
// config file only when set on the command line.
type encodeFlags struct {
	chunkSize int
	overhead  float64
	scheme    string
	format    string
	noHash    bool
	noSeal    bool
	keyDir    string
	level     string
	version   int
	size      int
}

func (f *encodeFlags) register(fs *pflag.FlagSet, sealing bool) {
	fs.IntVar(&f.chunkSize, "chunk-size", qrstream.DefaultChunkSize, "bytes per source chunk")
	fs.Float64Var(&f.overhead, "overhead", qrstream.DefaultOverhead, "extra symbols per loop")
	fs.StringVar(&f.scheme, "scheme", "slt", "erasure code: lt, slt (systematic LT), raptorq")
	fs.StringVar(&f.format, "format", "json", "frame format: json (QS1) or binary (QS2)")
	fs.BoolVar(&f.noHash, "no-hash", false, "do not attach the payload SHA-256 to frames")
	if sealing {
		fs.BoolVar(&f.noSeal, "no-seal", false, "send the payload unencrypted")
		fs.StringVarP(&f.keyDir, "keys", "k", "", "key directory holding public.key (default from config)")
	} else {
		f.noSeal = true
	}
	fs.StringVar(&f.level, "ecc", "M", "QR error correction level: L, M, Q, H")
	fs.IntVar(&f.version, "qr-version", qrstream.DefaultQRVersion, "fixed QR version")
	fs.IntVar(&f.size, "size", qrstream.DefaultImageSize, "image edge in pixels")
}

func (f *encodeFlags) apply(fs *pflag.FlagSet) {
	if fs.Changed("chunk-size") {
		cfg.Encode.ChunkSize = f.chunkSize
	}
	if fs.Changed("overhead") {
		cfg.Encode.Overhead = f.overhead
	}
	if fs.Changed("scheme") {
		cfg.Encode.Scheme = f.scheme
	}
	if fs.Changed("format") {
		cfg.Encode.Format = f.format
	}
	if fs.Changed("no-hash") {
		cfg.Encode.AttachHash = !f.noHash
	}
	if fs.Changed("ecc") {
		cfg.QR.Level = f.level
	}
	if fs.Changed("qr-version") {
		cfg.QR.Version = f.version
	}
	if fs.Changed("size") {
		cfg.QR.ImageSize = f.size
	}
}

// newEncoder reads path, seals it unless disabled and prepares an encoder
// whose frames are checked against the QR capacity.
func (f *encodeFlags) newEncoder(fs *pflag.FlagSet, path string) (*qrstream.Encoder, *qrstream.Renderer, error) {
	f.apply(fs)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	opts, err := cfg.EncodeOptions()
	if err != nil {
		return nil, nil, err
	}
	r, err := cfg.Renderer()
	if err != nil {
		return nil, nil, err
	}
	opts.Fits = r.Fits
	opts.Logger = log

	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read payload")
	}
	if !f.noSeal {
		dir, err := keyDir(f.keyDir)
		if err != nil {
			return nil, nil, err
		}
		kp, err := crypt.Load(dir, false)
		if err != nil {
			return nil, nil, errors.Wrap(err, "load public key (run keygen or pass --no-seal)")
		}
		if payload, err = kp.Seal(payload); err != nil {
			return nil, nil, err
		}
	}
	enc, err := qrstream.NewEncoder(payload, opts)
	if err != nil {
		return nil, nil, err
	}
	return enc, r, nil
}

var (
	encFlags  encodeFlags
	encOutDir string
	encGIF    bool
	encPNG    bool
	encFPS    float64
)

func init() {
	encFlags.register(encodeCmd.Flags(), true)
	encodeCmd.Flags().StringVarP(&encOutDir, "out", "o", ".", "output directory")
	encodeCmd.Flags().BoolVar(&encGIF, "gif", false, "also write loop.gif")
	encodeCmd.Flags().BoolVar(&encPNG, "png", false, "also write one PNG per frame")
	encodeCmd.Flags().Float64Var(&encFPS, "fps", qrstream.DefaultFPS, "GIF frame rate")
}

var encodeCmd = &cobra.Command{
	Use:   "encode <file>",
	Short: "Encode a file into one loop of frames (frames.txt, optional GIF/PNGs)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enc, r, err := encFlags.newEncoder(cmd.Flags(), args[0])
		if err != nil {
			return err
		}
		frames, err := enc.Frames(context.Background())
		if err != nil {
			return err
		}
		if err := os.MkdirAll(encOutDir, 0o755); err != nil {
			return err
		}
		if err := writeLines(filepath.Join(encOutDir, "frames.txt"), frames); err != nil {
			return err
		}
		if encPNG {
			for i, text := range frames {
				b, err := r.PNG(text)
				if err != nil {
					return err
				}
				if err := os.WriteFile(filepath.Join(encOutDir, fmt.Sprintf("frame-%04d.png", i)), b, 0o644); err != nil {
					return err
				}
			}
		}
		if encGIF {
			if cmd.Flags().Changed("fps") {
				cfg.Player.FPS = encFPS
			}
			out, err := os.Create(filepath.Join(encOutDir, "loop.gif"))
			if err != nil {
				return err
			}
			if err := r.WriteGIF(out, frames, cfg.Player.FPS); err != nil {
				_ = out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
		s := enc.Session()
		log.WithFields(logrus.Fields{
			"session": s.ID,
			"frames":  len(frames),
			"k":       s.K,
			"out":     encOutDir,
		}).Info("encoded")
		return nil
	},
}

func writeLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := w.WriteString(l + "\n"); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
