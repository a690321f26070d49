package commands

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/sharediffs/qrstream/qrstream"
)

var (
	serveFlags  encodeFlags
	serveAddr   string
	serveFPS    float64
	serveStream bool
	serveTLS    bool
)

func init() {
	serveFlags.register(serveCmd.Flags(), true)
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "listen address (default from config)")
	serveCmd.Flags().Float64Var(&serveFPS, "fps", qrstream.DefaultFPS, "frames per second shown by the page")
	serveCmd.Flags().BoolVar(&serveStream, "stream", false, "serve fresh symbol indices instead of repeating one loop")
	serveCmd.Flags().BoolVar(&serveTLS, "tls", false, "serve HTTPS with a self-signed certificate")
}

var serveCmd = &cobra.Command{
	Use:   "serve <file>",
	Short: "Play the frames of a file in the browser as a looping QR animation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := cmd.Flags()
		if fs.Changed("addr") {
			cfg.Player.Addr = serveAddr
		}
		if fs.Changed("fps") {
			cfg.Player.FPS = serveFPS
		}
		if fs.Changed("stream") {
			cfg.Player.Stream = serveStream
		}
		if fs.Changed("tls") {
			cfg.Player.TLS = serveTLS
		}
		enc, r, err := serveFlags.newEncoder(fs, args[0])
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		p := qrstream.NewPlayer(enc, qrstream.PlayerOptions{
			FPS:      cfg.Player.FPS,
			Stream:   cfg.Player.Stream,
			Renderer: r,
			Metrics:  qrstream.NewMetrics(reg),
			Gatherer: reg,
			Logger:   log,
		})

		return p.Serve(cmd.Context(), cfg.Player.Addr, cfg.Player.TLS)
	},
}
