package imagedata

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/histeq/cluster/internal/histogram"
)

func encodeTestPNG(t *testing.T, w, h int, fill func(x, y int) color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill(x, y))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeProducesOnePixelPerSample(t *testing.T) {
	data := encodeTestPNG(t, 4, 3, func(x, y int) color.Color {
		return color.Gray{Y: uint8((x + y) * 20)}
	})

	img, err := Decode("test.png", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, img.L, 12)
	assert.Len(t, img.A, 12)
	assert.Len(t, img.B, 12)
}

func TestDecodeInvalidDataReturnsDecodeError(t *testing.T) {
	_, err := Decode("garbage.png", bytes.NewReader([]byte("not an image")))
	require.Error(t, err)

	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "garbage.png", decodeErr.Filename)
}

func TestGrayscaleRoundTripPreservesApproximateLightness(t *testing.T) {
	data := encodeTestPNG(t, 2, 2, func(x, y int) color.Color {
		return color.Gray{Y: 128}
	})
	img, err := Decode("gray.png", bytes.NewReader(data))
	require.NoError(t, err)

	for _, l := range img.L {
		assert.Greater(t, l, 0.3)
		assert.Less(t, l, 0.7)
	}
}

func TestEqualiseIdentityPreservesLightness(t *testing.T) {
	data := encodeTestPNG(t, 3, 3, func(x, y int) color.Color {
		return color.Gray{Y: uint8(x * 30)}
	})
	img, err := Decode("id.png", bytes.NewReader(data))
	require.NoError(t, err)

	before := append([]float64{}, img.L...)
	img.Equalise(histogram.Identity())

	for i := range before {
		assert.InDelta(t, before[i], img.L[i], 1.0/float64(histogram.Segments))
	}
}

func TestEncodeTIFFProducesNonEmptyOutput(t *testing.T) {
	data := encodeTestPNG(t, 4, 4, func(x, y int) color.Color {
		return color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 128, A: 255}
	})
	img, err := Decode("rgb.png", bytes.NewReader(data))
	require.NoError(t, err)

	out, err := img.EncodeTIFF()
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
