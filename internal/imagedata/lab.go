package imagedata

import "math"

// RGB values are first linearised from sRGB, converted to CIE XYZ under
// the D65 illuminant, then to CIE Lab. Only the L channel drives the
// histogram/equalisation algorithm; a and b are kept so a remapped L
// can be converted back to RGB without disturbing hue or saturation.

const (
	whiteX = 0.95047
	whiteY = 1.0
	whiteZ = 1.08883
)

func srgbToLinear(c float64) float64 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

func linearToSRGB(c float64) float64 {
	if c <= 0.0031308 {
		return c * 12.92
	}
	return 1.055*math.Pow(c, 1/2.4) - 0.055
}

func labF(t float64) float64 {
	const delta = 6.0 / 29.0
	if t > delta*delta*delta {
		return math.Cbrt(t)
	}
	return t/(3*delta*delta) + 4.0/29.0
}

func labFInv(t float64) float64 {
	const delta = 6.0 / 29.0
	if t > delta {
		return t * t * t
	}
	return 3 * delta * delta * (t - 4.0/29.0)
}

// rgbToLab converts 8-bit sRGB channels to CIE Lab, returning L
// normalised to [0,1] (rather than the conventional [0,100]) so it can
// be used directly as a histogram.Bin input.
func rgbToLab(r, g, b uint8) (l, a, bb float64) {
	rl := srgbToLinear(float64(r) / 255)
	gl := srgbToLinear(float64(g) / 255)
	bl := srgbToLinear(float64(b) / 255)

	x := (0.4124564*rl + 0.3575761*gl + 0.1804375*bl) / whiteX
	y := (0.2126729*rl + 0.7151522*gl + 0.0721750*bl) / whiteY
	z := (0.0193339*rl + 0.1191920*gl + 0.9503041*bl) / whiteZ

	fx, fy, fz := labF(x), labF(y), labF(z)

	l = (116*fy - 16) / 100
	a = 500 * (fx - fy)
	bb = 200 * (fy - fz)
	return l, a, bb
}

// labToRGB is the inverse of rgbToLab, given an L in [0,1].
func labToRGB(l, a, b float64) (r, g, bl uint8) {
	fy := (l*100 + 16) / 116
	fx := fy + a/500
	fz := fy - b/200

	x := labFInv(fx) * whiteX
	y := labFInv(fy) * whiteY
	z := labFInv(fz) * whiteZ

	rl := 3.2404542*x - 1.5371385*y - 0.4985314*z
	gl := -0.9692660*x + 1.8760108*y + 0.0415560*z
	bll := 0.0556434*x - 0.2040259*y + 1.0572252*z

	return toByte(linearToSRGB(rl)), toByte(linearToSRGB(gl)), toByte(linearToSRGB(bll))
}

func toByte(c float64) uint8 {
	if c <= 0 {
		return 0
	}
	if c >= 1 {
		return 255
	}
	return uint8(math.Round(c * 255))
}
