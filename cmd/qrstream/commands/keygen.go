package commands

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sharediffs/qrstream/internal/config"
	"github.com/sharediffs/qrstream/internal/crypt"
)

var (
	keygenDir     string
	keygenReplace bool
	configReplace bool
)

func init() {
	keygenCmd.Flags().StringVarP(&keygenDir, "dir", "d", "", "key directory (default from config)")
	keygenCmd.Flags().BoolVarP(&keygenReplace, "replace", "r", false, "overwrite an existing key pair")
	configCmd.Flags().BoolVarP(&configReplace, "replace", "r", false, "overwrite an existing config file")
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the receiver key pair (public.key, private.key)",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		dir, err := keyDir(keygenDir)
		if err != nil {
			return err
		}
		if _, err := os.Stat(filepath.Join(dir, crypt.PrivateKeyFile)); err == nil && !keygenReplace {
			return errors.Errorf("%s already holds a key pair; use --replace", dir)
		}
		kp, err := crypt.GenerateKeyPair()
		if err != nil {
			return err
		}
		if err := kp.Save(dir); err != nil {
			return err
		}
		log.WithField("dir", dir).Info("key pair written; copy public.key to the sending machine")
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "gen-config",
	Short: "Write the effective configuration to the config path",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		p, err := config.Path(configPath)
		if err != nil {
			return err
		}
		if _, err := os.Stat(p); err == nil && !configReplace {
			return errors.Errorf("%s exists; use --replace", p)
		}
		if err := cfg.Write(p); err != nil {
			return err
		}
		log.WithField("path", p).Info("config written")
		return nil
	},
}
