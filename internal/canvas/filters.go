package canvas

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// FilterKind identifies one named pixel adjustment.
type FilterKind string

const (
	FilterBrightness FilterKind = "brightness"
	FilterContrast   FilterKind = "contrast"
	FilterSaturate   FilterKind = "saturate"
	FilterHueRotate  FilterKind = "hue-rotate"
	FilterBlur       FilterKind = "blur"
	FilterGrayscale  FilterKind = "grayscale"
	FilterSepia      FilterKind = "sepia"
	FilterInvert     FilterKind = "invert"
)

// FilterOp is one adjustment in an ordered filter chain.
type FilterOp struct {
	Kind      FilterKind
	Magnitude float64
}

// FilterChain is an ordered, composable list of pixel adjustments. The zero
// value is the identity chain.
type FilterChain []FilterOp

// String serializes the chain to its canonical space-joined expression,
// e.g. "brightness(1.10) contrast(0.90) hue-rotate(15deg) blur(2px)".
func (c FilterChain) String() string {
	if len(c) == 0 {
		return ""
	}
	parts := make([]string, 0, len(c))
	for _, op := range c {
		switch op.Kind {
		case FilterHueRotate:
			parts = append(parts, fmt.Sprintf("%s(%gdeg)", op.Kind, op.Magnitude))
		case FilterBlur:
			parts = append(parts, fmt.Sprintf("%s(%gpx)", op.Kind, op.Magnitude))
		default:
			parts = append(parts, fmt.Sprintf("%s(%g)", op.Kind, op.Magnitude))
		}
	}
	return strings.Join(parts, " ")
}

// Identity reports whether applying the chain would leave pixels unchanged.
func (c FilterChain) Identity() bool {
	for _, op := range c {
		switch op.Kind {
		case FilterBrightness, FilterContrast, FilterSaturate:
			if op.Magnitude != 1 {
				return false
			}
		default:
			if op.Magnitude != 0 {
				return false
			}
		}
	}
	return true
}

// Apply runs every adjustment in order over img, in place.
func (c FilterChain) Apply(img *image.RGBA) {
	for _, op := range c {
		switch op.Kind {
		case FilterBrightness:
			applyLinear(img, func(v float64) float64 { return v * op.Magnitude })
		case FilterContrast:
			k := op.Magnitude
			applyLinear(img, func(v float64) float64 { return (v-128)*k + 128 })
		case FilterSaturate:
			applySaturate(img, op.Magnitude)
		case FilterGrayscale:
			applySaturate(img, 1-clamp01(op.Magnitude))
		case FilterSepia:
			applySepia(img, clamp01(op.Magnitude))
		case FilterInvert:
			k := clamp01(op.Magnitude)
			applyLinear(img, func(v float64) float64 { return v*(1-2*k) + 255*k })
		case FilterHueRotate:
			applyHueRotate(img, op.Magnitude)
		case FilterBlur:
			applyBoxBlur(img, int(math.Round(op.Magnitude)))
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

func applyLinear(img *image.RGBA, f func(float64) float64) {
	p := img.Pix
	for i := 0; i < len(p); i += 4 {
		p[i] = clampByte(f(float64(p[i])))
		p[i+1] = clampByte(f(float64(p[i+1])))
		p[i+2] = clampByte(f(float64(p[i+2])))
	}
}

// applySaturate interpolates each pixel between its luminance (k=0) and its
// original color (k=1); k>1 oversaturates.
func applySaturate(img *image.RGBA, k float64) {
	p := img.Pix
	for i := 0; i < len(p); i += 4 {
		r := float64(p[i])
		g := float64(p[i+1])
		b := float64(p[i+2])
		lum := 0.2126*r + 0.7152*g + 0.0722*b
		p[i] = clampByte(lum + (r-lum)*k)
		p[i+1] = clampByte(lum + (g-lum)*k)
		p[i+2] = clampByte(lum + (b-lum)*k)
	}
}

func applySepia(img *image.RGBA, k float64) {
	p := img.Pix
	for i := 0; i < len(p); i += 4 {
		r := float64(p[i])
		g := float64(p[i+1])
		b := float64(p[i+2])
		sr := 0.393*r + 0.769*g + 0.189*b
		sg := 0.349*r + 0.686*g + 0.168*b
		sb := 0.272*r + 0.534*g + 0.131*b
		p[i] = clampByte(r + (sr-r)*k)
		p[i+1] = clampByte(g + (sg-g)*k)
		p[i+2] = clampByte(b + (sb-b)*k)
	}
}

// applyHueRotate rotates pixel hues by deg degrees using the standard
// luminance-preserving rotation matrix.
func applyHueRotate(img *image.RGBA, deg float64) {
	rad := deg * math.Pi / 180
	cosA := math.Cos(rad)
	sinA := math.Sin(rad)

	m := [9]float64{
		0.213 + cosA*0.787 - sinA*0.213, 0.715 - cosA*0.715 - sinA*0.715, 0.072 - cosA*0.072 + sinA*0.928,
		0.213 - cosA*0.213 + sinA*0.143, 0.715 + cosA*0.285 + sinA*0.140, 0.072 - cosA*0.072 - sinA*0.283,
		0.213 - cosA*0.213 - sinA*0.787, 0.715 - cosA*0.715 + sinA*0.715, 0.072 + cosA*0.928 + sinA*0.072,
	}

	p := img.Pix
	for i := 0; i < len(p); i += 4 {
		r := float64(p[i])
		g := float64(p[i+1])
		b := float64(p[i+2])
		p[i] = clampByte(m[0]*r + m[1]*g + m[2]*b)
		p[i+1] = clampByte(m[3]*r + m[4]*g + m[5]*b)
		p[i+2] = clampByte(m[6]*r + m[7]*g + m[8]*b)
	}
}

// applyBoxBlur runs a separable box blur of the given radius in pixels.
func applyBoxBlur(img *image.RGBA, radius int) {
	if radius <= 0 {
		return
	}
	b := img.Bounds()
	w := b.Dx()
	h := b.Dy()
	if w == 0 || h == 0 {
		return
	}

	tmp := make([]uint8, len(img.Pix))

	// Horizontal pass into tmp, vertical pass back into img.
	blurAxis(img.Pix, tmp, w, h, img.Stride, radius, true)
	blurAxis(tmp, img.Pix, w, h, img.Stride, radius, false)
}

func blurAxis(src, dst []uint8, w, h, stride, radius int, horizontal bool) {
	limit := w
	other := h
	if !horizontal {
		limit = h
		other = w
	}

	for o := 0; o < other; o++ {
		for i := 0; i < limit; i++ {
			var sr, sg, sb, n int
			for d := -radius; d <= radius; d++ {
				j := i + d
				if j < 0 || j >= limit {
					continue
				}
				var idx int
				if horizontal {
					idx = o*stride + j*4
				} else {
					idx = j*stride + o*4
				}
				sr += int(src[idx])
				sg += int(src[idx+1])
				sb += int(src[idx+2])
				n++
			}
			var idx int
			if horizontal {
				idx = o*stride + i*4
			} else {
				idx = i*stride + o*4
			}
			dst[idx] = uint8(sr / n)
			dst[idx+1] = uint8(sg / n)
			dst[idx+2] = uint8(sb / n)
			dst[idx+3] = src[idx+3]
		}
	}
}
