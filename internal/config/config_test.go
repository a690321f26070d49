package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sharediffs/qrstream/internal/fecwire"
	"github.com/sharediffs/qrstream/qrstream"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	opts, err := c.EncodeOptions()
	require.NoError(t, err)
	require.Equal(t, 512, opts.ChunkSize)
	require.Equal(t, 0.12, opts.Overhead)
	require.Equal(t, fecwire.SchemeSystematicLT, opts.Scheme)
	require.True(t, opts.AttachHash)
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	require.Equal(t, Default(), c)
}

func TestWriteLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	c := Default()
	c.Encode.Scheme = "raptorq"
	c.Player.Stream = true
	require.NoError(t, c.Write(path))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, c, got)

	// partial files keep defaults for omitted fields
	require.NoError(t, os.WriteFile(path, []byte(`{"encode":{"chunk_size":64}}`), 0o600))
	got, err = Load(path)
	require.NoError(t, err)
	require.Equal(t, 64, got.Encode.ChunkSize)
	require.Equal(t, "M", got.QR.Level)
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"encode":`), 0o600))
	_, err := Load(path)
	require.ErrorIs(t, err, qrstream.ErrConfig)
}

func TestValidate(t *testing.T) {
	for name, mut := range map[string]func(c *Config){
		"scheme":   func(c *Config) { c.Encode.Scheme = "polar" },
		"format":   func(c *Config) { c.Encode.Format = "xml" },
		"chunk":    func(c *Config) { c.Encode.ChunkSize = 0 },
		"overhead": func(c *Config) { c.Encode.Overhead = -1 },
		"level":    func(c *Config) { c.QR.Level = "Z" },
		"version":  func(c *Config) { c.QR.Version = 0 },
		"size":     func(c *Config) { c.QR.ImageSize = 0 },
		"fps":      func(c *Config) { c.Player.FPS = 0 },
		"log":      func(c *Config) { c.LogLevel = "loud" },
	} {
		c := Default()
		mut(c)
		require.ErrorIs(t, c.Validate(), qrstream.ErrConfig, name)
	}
}

func TestPathExpandsHome(t *testing.T) {
	p, err := Path("~/x")
	require.NoError(t, err)
	require.NotContains(t, p, "~")
	require.Equal(t, "x", filepath.Base(p))
}
