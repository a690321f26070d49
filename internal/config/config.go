// Package config holds the qrstream CLI configuration file.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sharediffs/qrstream/internal/fecwire"
	"github.com/sharediffs/qrstream/qrstream"
)

// DefaultDir is where keys, the frame store and the config file live.
const DefaultDir = "~/.qrstream"

// Config defines the encoder, renderer, player and receiver settings.
type Config struct {
	Encode struct {
		ChunkSize  int     `json:"chunk_size"`
		Overhead   float64 `json:"overhead"`
		Scheme     string  `json:"scheme"` // lt, slt, raptorq
		Format     string  `json:"format"` // json, binary
		AttachHash bool    `json:"attach_hash"`
		Workers    int     `json:"workers"`
	} `json:"encode"`

	QR struct {
		Level     string `json:"level"` // L, M, Q, H
		Version   int    `json:"version"`
		ImageSize int    `json:"image_size"`
	} `json:"qr"`

	Player struct {
		Addr   string  `json:"addr"`
		FPS    float64 `json:"fps"`
		Stream bool    `json:"stream"`
		TLS    bool    `json:"tls"`
	} `json:"player"`

	Receiver struct {
		StorePath  string `json:"store_path"`
		IntakeRing int    `json:"intake_ring"`
	} `json:"receiver"`

	KeyDir   string `json:"key_dir"`
	LogLevel string `json:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	c := &Config{}
	c.Encode.ChunkSize = qrstream.DefaultChunkSize
	c.Encode.Overhead = qrstream.DefaultOverhead
	c.Encode.Scheme = fecwire.SchemeSystematicLT.String()
	c.Encode.Format = "json"
	c.Encode.AttachHash = true

	c.QR.Level = "M"
	c.QR.Version = qrstream.DefaultQRVersion
	c.QR.ImageSize = qrstream.DefaultImageSize

	c.Player.Addr = "127.0.0.1:8443"
	c.Player.FPS = qrstream.DefaultFPS

	c.Receiver.StorePath = filepath.Join(DefaultDir, "frames.db")
	c.Receiver.IntakeRing = qrstream.DefaultIntakeRing

	c.KeyDir = filepath.Join(DefaultDir, "keys")
	c.LogLevel = "info"
	return c
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	p, err := homedir.Expand(path)
	if err != nil {
		return nil, errors.Wrap(err, "expand config path")
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(c); err != nil {
		return nil, errors.Wrapf(qrstream.ErrConfig, "decode %s: %v", p, err)
	}
	return c, nil
}

// Write stores c as indented JSON, creating parent directories.
func (c *Config) Write(path string) error {
	p, err := homedir.Expand(path)
	if err != nil {
		return errors.Wrap(err, "expand config path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return errors.Wrap(err, "config dir")
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, append(b, '\n'), 0o600)
}

// Validate checks every field and returns an ErrConfig-wrapped error.
func (c *Config) Validate() error {
	if _, err := c.EncodeOptions(); err != nil {
		return err
	}
	if _, err := c.Renderer(); err != nil {
		return err
	}
	if c.Player.FPS <= 0 {
		return errors.Wrapf(qrstream.ErrConfig, "fps %v", c.Player.FPS)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(qrstream.ErrConfig, "log level %q", c.LogLevel)
	}
	return nil
}

// EncodeOptions converts the encode section. Logger and Fits are left to the caller.
func (c *Config) EncodeOptions() (qrstream.Options, error) {
	scheme, err := fecwire.ParseScheme(c.Encode.Scheme)
	if err != nil {
		return qrstream.Options{}, errors.Wrap(qrstream.ErrConfig, err.Error())
	}
	format, err := fecwire.ParseFormat(c.Encode.Format)
	if err != nil {
		return qrstream.Options{}, errors.Wrap(qrstream.ErrConfig, err.Error())
	}
	if c.Encode.ChunkSize < 1 || c.Encode.ChunkSize > fecwire.MaxChunkSize {
		return qrstream.Options{}, errors.Wrapf(qrstream.ErrConfig, "chunk size %d", c.Encode.ChunkSize)
	}
	if c.Encode.Overhead < 0 {
		return qrstream.Options{}, errors.Wrapf(qrstream.ErrConfig, "overhead %v", c.Encode.Overhead)
	}
	return qrstream.Options{
		ChunkSize:  c.Encode.ChunkSize,
		Overhead:   c.Encode.Overhead,
		Scheme:     scheme,
		Format:     format,
		AttachHash: c.Encode.AttachHash,
		Workers:    c.Encode.Workers,
	}, nil
}

// Renderer builds the QR renderer from the qr section.
func (c *Config) Renderer() (*qrstream.Renderer, error) {
	level, err := qrstream.ParseLevel(c.QR.Level)
	if err != nil {
		return nil, err
	}
	if c.QR.Version < 1 || c.QR.Version > 40 {
		return nil, errors.Wrapf(qrstream.ErrConfig, "qr version %d", c.QR.Version)
	}
	if c.QR.ImageSize < 1 {
		return nil, errors.Wrapf(qrstream.ErrConfig, "image size %d", c.QR.ImageSize)
	}
	return &qrstream.Renderer{Level: level, Version: c.QR.Version, Size: c.QR.ImageSize}, nil
}

// Path expands a leading ~ in p.
func Path(p string) (string, error) {
	out, err := homedir.Expand(p)
	return out, errors.Wrapf(err, "expand %s", p)
}
