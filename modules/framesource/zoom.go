package framesource

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// ApplyZoom crops the centre 1/factor of img and scales it back to the
// original bounds. factor <= 1 returns img unchanged.
func ApplyZoom(img image.Image, factor float64) image.Image {
	if factor <= 1.0 {
		return img
	}

	b := img.Bounds()
	cw := int(float64(b.Dx()) / factor)
	ch := int(float64(b.Dy()) / factor)
	if cw < 1 {
		cw = 1
	}
	if ch < 1 {
		ch = 1
	}

	x0 := b.Min.X + (b.Dx()-cw)/2
	y0 := b.Min.Y + (b.Dy()-ch)/2
	crop := image.Rect(x0, y0, x0+cw, y0+ch)

	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.ApproxBiLinear.Scale(out, out.Bounds(), img, crop, xdraw.Src, nil)
	return out
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("framesource: encode png: %w", err)
	}
	return buf.Bytes(), nil
}
