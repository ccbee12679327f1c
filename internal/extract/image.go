package extract

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

type normalizedImage struct {
	data          []byte
	width, height int
	resized       bool
}

// normalizeImage decodes path, shrinks it to fit maxDim x maxDim keeping the
// aspect ratio, flattens any transparency onto white so the result is plain
// RGB, and re-encodes it as a compressed PNG.
func normalizeImage(path string, maxDim int) (*normalizedImage, error) {
	src, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	out := &normalizedImage{}
	b := src.Bounds()
	if b.Dx() > maxDim || b.Dy() > maxDim {
		src = imaging.Fit(src, maxDim, maxDim, imaging.Lanczos)
		out.resized = true
	}

	b = src.Bounds()
	flat := imaging.Overlay(imaging.New(b.Dx(), b.Dy(), color.White), src, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return nil, err
	}

	out.data = buf.Bytes()
	out.width, out.height = b.Dx(), b.Dy()
	return out, nil
}
