// Package capture grabs the primary display as a compressed still image.
package capture

import (
	"bytes"
	"image"
	"image/png"
	"log/slog"

	"github.com/kbinani/screenshot"
	"golang.org/x/image/draw"
)

// Screen captures the primary display, downscaled to a resolution ceiling
// and encoded as PNG.
type Screen struct {
	MaxWidth  int
	MaxHeight int
}

// New creates a capture provider with the given resolution ceiling.
func New(maxWidth, maxHeight int) *Screen {
	return &Screen{MaxWidth: maxWidth, MaxHeight: maxHeight}
}

// Capture returns the primary display as PNG bytes, or nil when no
// capturable display exists or the captured frame is empty. Absence of an
// image is not an error; the caller decides how to treat it.
func (s *Screen) Capture() []byte {
	if screenshot.NumActiveDisplays() == 0 {
		slog.Warn("screen capture: no active displays")
		return nil
	}

	bounds := screenshot.GetDisplayBounds(0)
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		slog.Warn("screen capture: primary display has empty bounds")
		return nil
	}

	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		slog.Warn("screen capture failed", "error", err)
		return nil
	}

	scaled := scaleToFit(img, s.MaxWidth, s.MaxHeight)

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		slog.Warn("screen capture: png encode failed", "error", err)
		return nil
	}
	return buf.Bytes()
}

// scaleToFit downscales img to fit within maxW x maxH, preserving aspect
// ratio. Images already within the ceiling are returned unchanged; the
// ceiling never upscales.
func scaleToFit(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxW <= 0 || maxH <= 0 || (w <= maxW && h <= maxH) {
		return img
	}

	tw, th := fit(w, h, maxW, maxH)
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// fit computes the largest dimensions within maxW x maxH with the same
// aspect ratio as w x h.
func fit(w, h, maxW, maxH int) (int, int) {
	rw := float64(maxW) / float64(w)
	rh := float64(maxH) / float64(h)
	r := rw
	if rh < r {
		r = rh
	}
	tw := int(float64(w) * r)
	th := int(float64(h) * r)
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	return tw, th
}
