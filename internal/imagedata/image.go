// Package imagedata decodes source images into per-pixel CIE Lab
// samples for the histogram stage, and re-encodes a remapped lightness
// channel back into an output TIFF for the equalisation stage.
package imagedata

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/tiff"

	"github.com/histeq/cluster/internal/histogram"
)

// Image holds a decoded picture's per-pixel Lab channels. L drives the
// histogram and mapping algorithms; A and B are retained so an
// equalised L can be converted back to RGB without a hue shift.
type Image struct {
	Bounds image.Rectangle
	L      []float64
	A      []float64
	B      []float64
}

// Decode reads an image in any format the standard library (plus the
// registered GIF/JPEG/PNG decoders) recognises and converts every
// pixel to CIE Lab. filename is used only to annotate a DecodeError.
func Decode(filename string, r io.Reader) (*Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, &DecodeError{Filename: filename, Err: err}
	}

	bounds := img.Bounds()
	n := bounds.Dx() * bounds.Dy()
	out := &Image{
		Bounds: bounds,
		L:      make([]float64, n),
		A:      make([]float64, n),
		B:      make([]float64, n),
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r32, g32, b32, _ := img.At(x, y).RGBA()
			l, a, b := rgbToLab(to8(r32), to8(g32), to8(b32))
			out.L[i] = l
			out.A[i] = a
			out.B[i] = b
			i++
		}
	}
	return out, nil
}

func to8(v uint32) uint8 {
	return uint8(v >> 8)
}

// Histogram builds the proportional lightness histogram over every
// pixel in the image.
func (img *Image) Histogram() histogram.Histogram {
	return histogram.Build(img.L)
}

// Equalise applies m to every pixel's L channel in place.
func (img *Image) Equalise(m histogram.Mapping) {
	for i, l := range img.L {
		img.L[i] = m.Apply(l)
	}
}

// EncodeTIFF reconstructs RGB from the image's current Lab channels
// and writes it as an uncompressed TIFF.
func (img *Image) EncodeTIFF() ([]byte, error) {
	rect := image.Rect(0, 0, img.Bounds.Dx(), img.Bounds.Dy())
	rgba := image.NewRGBA(rect)

	i := 0
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			r, g, b := labToRGB(img.L[i], img.A[i], img.B[i])
			rgba.Set(x, y, colorRGBA{r, g, b, 255})
			i++
		}
	}

	var buf bytes.Buffer
	if err := tiff.Encode(&buf, rgba, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type colorRGBA struct {
	r, g, b, a uint8
}

func (c colorRGBA) RGBA() (r, g, b, a uint32) {
	r = uint32(c.r)
	r |= r << 8
	g = uint32(c.g)
	g |= g << 8
	b = uint32(c.b)
	b |= b << 8
	a = uint32(c.a)
	a |= a << 8
	return
}
