package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sharediffs/qrstream/internal/config"
)

var log = logrus.StandardLogger()

var (
	configPath string
	logLevel   string
	cpuProfile string

	cfg         *config.Config
	stopProfile = func() {}
)

var rootCmd = &cobra.Command{
	Use:           "qrstream",
	Short:         "Move payloads across an air gap as a looping stream of QR frames",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		lvl, _ := logrus.ParseLevel(cfg.LogLevel)
		log.SetLevel(lvl)
		if cpuProfile != "" {
			f, err := os.Create(cpuProfile)
			if err != nil {
				return errors.Wrap(err, "cpuprofile")
			}
			if err := pprof.StartCPUProfile(f); err != nil {
				_ = f.Close()
				return errors.Wrap(err, "cpuprofile")
			}
			stopProfile = func() {
				pprof.StopCPUProfile()
				_ = f.Close()
			}
		}
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		stopProfile()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", filepath.Join(config.DefaultDir, "config.json"), "config file; missing file means defaults")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&cpuProfile, "cpuprofile", "", "write CPU profile to file")

	rootCmd.AddCommand(
		keygenCmd,
		configCmd,
		encodeCmd,
		serveCmd,
		decodeCmd,
		simulateCmd,
	)
}

// Execute executes root CLI command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		stopProfile()
		log.WithError(err).Error("qrstream failed")
		os.Exit(1)
	}
}

func keyDir(flagValue string) (string, error) {
	if flagValue == "" {
		flagValue = cfg.KeyDir
	}
	return config.Path(flagValue)
}
