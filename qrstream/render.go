package qrstream

import (
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"strings"

	"github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"
)

// Renderer defaults. Version 25 at level M holds a JSON frame of a 512-byte chunk.
const (
	DefaultQRVersion = 25
	DefaultImageSize = 900
)

// ParseLevel maps L/M/Q/H to a QR error correction level.
func ParseLevel(name string) (qrcode.RecoveryLevel, error) {
	switch strings.ToUpper(name) {
	case "L":
		return qrcode.Low, nil
	case "M", "":
		return qrcode.Medium, nil
	case "Q":
		return qrcode.High, nil
	case "H":
		return qrcode.Highest, nil
	}
	return 0, errors.Wrapf(ErrConfig, "error correction level %q", name)
}

// Renderer turns frame text into QR images at a fixed version, so every
// frame of a loop has the same module grid.
type Renderer struct {
	Level   qrcode.RecoveryLevel
	Version int // fixed QR version, 1..40
	Size    int // output image edge in pixels
}

func NewRenderer() *Renderer {
	return &Renderer{Level: qrcode.Medium, Version: DefaultQRVersion, Size: DefaultImageSize}
}

func (r *Renderer) code(text string) (*qrcode.QRCode, error) {
	if r.Version < 1 || r.Version > 40 {
		return nil, errors.Wrapf(ErrConfig, "qr version %d", r.Version)
	}
	q, err := qrcode.NewWithForcedVersion(text, r.Version, r.Level)
	if err != nil {
		return nil, errors.Wrapf(ErrCapacityExceeded, "%d bytes at version %d: %v", len(text), r.Version, err)
	}
	return q, nil
}

// Fits returns ErrCapacityExceeded when text does not fit the configured
// version and level. It is meant for Options.Fits.
func (r *Renderer) Fits(text string) error {
	_, err := r.code(text)
	return err
}

// Image renders text as a black-on-white paletted image.
func (r *Renderer) Image(text string) (*image.Paletted, error) {
	q, err := r.code(text)
	if err != nil {
		return nil, err
	}
	src := q.Image(r.Size)
	dst := image.NewPaletted(src.Bounds(), bwPalette)
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst, nil
}

// PNG renders text as PNG bytes.
func (r *Renderer) PNG(text string) ([]byte, error) {
	q, err := r.code(text)
	if err != nil {
		return nil, err
	}
	return q.PNG(r.Size)
}

// bwPalette is a strict two-colour palette; scanners dislike dithering.
var bwPalette = color.Palette{color.Black, color.White}

// WriteGIF writes frames as an endlessly looping animation at fps.
func (r *Renderer) WriteGIF(w io.Writer, frames []string, fps float64) error {
	if len(frames) == 0 {
		return errors.Wrap(ErrConfig, "no frames")
	}
	if fps <= 0 {
		return errors.Wrapf(ErrConfig, "fps %v", fps)
	}
	delay := int(100/fps + 0.5) // centiseconds
	if delay < 1 {
		delay = 1
	}
	anim := &gif.GIF{LoopCount: 0}
	for i, text := range frames {
		img, err := r.Image(text)
		if err != nil {
			return errors.Wrapf(err, "frame %d", i)
		}
		anim.Image = append(anim.Image, img)
		anim.Delay = append(anim.Delay, delay)
		anim.Disposal = append(anim.Disposal, gif.DisposalBackground)
	}
	return gif.EncodeAll(w, anim)
}
