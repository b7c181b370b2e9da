// Package canvas provides the in-memory 2D drawing surface the effect stack
// composites into, along with filter, blend, and scaling primitives.
package canvas

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/nfnt/resize"
)

// BlendMode selects how a drawn image combines with existing surface pixels.
type BlendMode int

const (
	BlendSourceOver BlendMode = iota
	BlendScreen
	BlendOverlay
)

// Surface is a fixed-size RGBA composition target. It is not safe for
// concurrent use; the scheduler guarantees a single drawer at a time.
type Surface struct {
	img *image.RGBA
}

func NewSurface(w, h int) *Surface {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &Surface{img: image.NewRGBA(image.Rect(0, 0, w, h))}
}

func (s *Surface) Width() int  { return s.img.Bounds().Dx() }
func (s *Surface) Height() int { return s.img.Bounds().Dy() }

// Image returns the backing image. Callers must not retain it across draws.
func (s *Surface) Image() *image.RGBA { return s.img }

// Resize reallocates the surface when dimensions change. Contents are
// discarded; the next composite clears and redraws everything anyway.
func (s *Surface) Resize(w, h int) {
	if w == s.Width() && h == s.Height() {
		return
	}
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	s.img = image.NewRGBA(image.Rect(0, 0, w, h))
}

// Clear fills the surface with opaque black.
func (s *Surface) Clear() {
	draw.Draw(s.img, s.img.Bounds(), image.NewUniform(color.RGBA{A: 255}), image.Point{}, draw.Src)
}

// Snapshot returns an independent copy of the current surface pixels.
func (s *Surface) Snapshot() *image.RGBA {
	out := image.NewRGBA(s.img.Bounds())
	copy(out.Pix, s.img.Pix)
	return out
}

// DrawRegion draws the src rectangle (sx,sy,sw,sh) scaled into the
// destination rectangle (dx,dy,dw,dh), applying filters to the scaled pixels
// first. Zero-area source or destination rectangles are no-ops.
func (s *Surface) DrawRegion(src *image.RGBA, sx, sy, sw, sh float64, dx, dy, dw, dh int, filters FilterChain) {
	if src == nil || sw <= 0 || sh <= 0 || dw <= 0 || dh <= 0 {
		return
	}

	b := src.Bounds()
	r := image.Rect(
		b.Min.X+int(math.Floor(sx)),
		b.Min.Y+int(math.Floor(sy)),
		b.Min.X+int(math.Ceil(sx+sw)),
		b.Min.Y+int(math.Ceil(sy+sh)),
	).Intersect(b)
	if r.Empty() {
		return
	}

	region := src.SubImage(r)
	scaled := toRGBA(resize.Resize(uint(dw), uint(dh), region, resize.Bilinear))
	if !filters.Identity() {
		filters.Apply(scaled)
	}

	draw.Draw(s.img, image.Rect(dx, dy, dx+dw, dy+dh), scaled, scaled.Bounds().Min, draw.Src)
}

// DrawImage composites img over the full surface with the given blend mode
// and alpha in [0,1]. The image is scaled to surface size when it differs
// (nearest neighbor, matching the procedural-noise upscale contract).
func (s *Surface) DrawImage(img *image.RGBA, mode BlendMode, alpha float64) {
	if img == nil || alpha <= 0 || s.Width() == 0 || s.Height() == 0 {
		return
	}
	if alpha > 1 {
		alpha = 1
	}

	top := img
	if img.Bounds().Dx() != s.Width() || img.Bounds().Dy() != s.Height() {
		top = toRGBA(resize.Resize(uint(s.Width()), uint(s.Height()), img, resize.NearestNeighbor))
	}

	dst := s.img.Pix
	srcPix := top.Pix
	for y := 0; y < s.Height(); y++ {
		di := s.img.PixOffset(0, y)
		si := top.PixOffset(top.Bounds().Min.X, top.Bounds().Min.Y+y)
		for x := 0; x < s.Width(); x++ {
			for c := 0; c < 3; c++ {
				base := float64(dst[di+c])
				over := float64(srcPix[si+c])
				blended := blendChannel(mode, base, over)
				dst[di+c] = clampByte(base + (blended-base)*alpha)
			}
			dst[di+3] = 255
			di += 4
			si += 4
		}
	}
}

func blendChannel(mode BlendMode, base, over float64) float64 {
	switch mode {
	case BlendScreen:
		return 255 - (255-base)*(255-over)/255
	case BlendOverlay:
		if base < 128 {
			return 2 * base * over / 255
		}
		return 255 - 2*(255-base)*(255-over)/255
	default:
		return over
	}
}

// FillRadialGradient fills the whole surface with a radial gradient centered
// at (cx,cy): fully transparent inside innerR, the given color at and beyond
// outerR, linearly interpolated between.
func (s *Surface) FillRadialGradient(cx, cy, innerR, outerR float64, c color.RGBA) {
	if outerR <= innerR || s.Width() == 0 || s.Height() == 0 {
		return
	}
	maxA := float64(c.A)
	p := s.img.Pix
	for y := 0; y < s.Height(); y++ {
		i := s.img.PixOffset(0, y)
		for x := 0; x < s.Width(); x++ {
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			var a float64
			switch {
			case d <= innerR:
				a = 0
			case d >= outerR:
				a = maxA
			default:
				a = maxA * (d - innerR) / (outerR - innerR)
			}
			if a > 0 {
				k := a / 255
				p[i] = clampByte(float64(p[i])*(1-k) + float64(c.R)*k)
				p[i+1] = clampByte(float64(p[i+1])*(1-k) + float64(c.G)*k)
				p[i+2] = clampByte(float64(p[i+2])*(1-k) + float64(c.B)*k)
			}
			i += 4
		}
	}
}

// FillRoundedRect fills a rounded rectangle blended over the surface with the
// color's alpha scaled by alpha.
func (s *Surface) FillRoundedRect(x, y, w, h, radius int, c color.RGBA, alpha float64) {
	if w <= 0 || h <= 0 || alpha <= 0 {
		return
	}
	if alpha > 1 {
		alpha = 1
	}
	if radius > w/2 {
		radius = w / 2
	}
	if radius > h/2 {
		radius = h / 2
	}
	k := float64(c.A) / 255 * alpha

	for py := y; py < y+h; py++ {
		if py < 0 || py >= s.Height() {
			continue
		}
		for px := x; px < x+w; px++ {
			if px < 0 || px >= s.Width() {
				continue
			}
			if !insideRounded(px-x, py-y, w, h, radius) {
				continue
			}
			i := s.img.PixOffset(px, py)
			p := s.img.Pix
			p[i] = clampByte(float64(p[i])*(1-k) + float64(c.R)*k)
			p[i+1] = clampByte(float64(p[i+1])*(1-k) + float64(c.G)*k)
			p[i+2] = clampByte(float64(p[i+2])*(1-k) + float64(c.B)*k)
		}
	}
}

func insideRounded(x, y, w, h, r int) bool {
	if r <= 0 {
		return true
	}
	cx, cy := -1, -1
	if x < r && y < r {
		cx, cy = r, r
	} else if x >= w-r && y < r {
		cx, cy = w-r-1, r
	} else if x < r && y >= h-r {
		cx, cy = r, h-r-1
	} else if x >= w-r && y >= h-r {
		cx, cy = w-r-1, h-r-1
	}
	if cx < 0 {
		return true
	}
	dx := float64(x - cx)
	dy := float64(y - cy)
	return dx*dx+dy*dy <= float64(r*r)
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	out := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}
