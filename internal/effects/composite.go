package effects

import (
	"image"
	"image/color"
	"math"

	"github.com/nfnt/resize"

	"github.com/cloudcut/cloudcut-engine/internal/canvas"
	"github.com/cloudcut/cloudcut-engine/internal/geometry"
)

// DefaultOverlayText is drawn when the overlay is shown with an empty label.
const DefaultOverlayText = "CloudCut"

// Composite draws one frame through the full effect stack onto the surface.
// Steps always run in order: clear, filtered stabilized crop draw, sharpen,
// noise, grain, vignette, overlay. Gated steps with zero strength are
// skipped entirely and leave pixels untouched.
func Composite(s *canvas.Surface, frame *image.RGBA, p Params, geom geometry.CropGeometry, q Quality) {
	if s == nil || frame == nil {
		return
	}
	if geom.OutputWidth <= 0 || geom.OutputHeight <= 0 {
		return
	}

	s.Resize(geom.OutputWidth, geom.OutputHeight)
	s.Clear()

	drawStabilized(s, frame, p, geom)

	if a := p.EffectiveSharpen(q); a > 0 {
		sharpen(s, a)
	}
	if a := p.EffectiveNoise(q); a > 0 {
		s.DrawImage(noiseField(s.Width(), s.Height()), canvas.BlendScreen, a)
	}
	if a := p.EffectiveGrain(q); a > 0 {
		s.DrawImage(noiseField(s.Width(), s.Height()), canvas.BlendOverlay, a)
	}
	if p.Vignette {
		vignette(s)
	}
	if p.ShowOverlay {
		overlay(s, p)
	}
}

// drawStabilized draws the crop region scaled by the stabilization zoom,
// centered, with the filter chain applied to the drawn pixels only.
func drawStabilized(s *canvas.Surface, frame *image.RGBA, p Params, geom geometry.CropGeometry) {
	scale := p.StabilizeScale()
	dw := int(math.Round(float64(geom.OutputWidth) * scale))
	dh := int(math.Round(float64(geom.OutputHeight) * scale))
	dx := (geom.OutputWidth - dw) / 2
	dy := (geom.OutputHeight - dh) / 2

	s.DrawRegion(frame,
		geom.SourceX, geom.SourceY, geom.SourceCropWidth, geom.SourceCropHeight,
		dx, dy, dw, dh, p.Filters)
}

// sharpen convolves a half-resolution copy of the composite with a 3x3
// kernel (center 1+4a, edge neighbors -a, corners 0) and draws it back over
// the surface at alpha min(1,a). Convolving at half resolution bounds the
// per-frame 9-tap cost.
func sharpen(s *canvas.Surface, amount float64) {
	w := s.Width() / 2
	h := s.Height() / 2
	if w < 2 || h < 2 {
		return
	}

	small := toRGBA(resize.Resize(uint(w), uint(h), s.Image(), resize.Bilinear))
	out := image.NewRGBA(small.Bounds())
	copy(out.Pix, small.Pix)

	center := 1 + 4*amount
	side := -amount

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := small.PixOffset(x, y)
			up := small.PixOffset(x, y-1)
			down := small.PixOffset(x, y+1)
			left := small.PixOffset(x-1, y)
			right := small.PixOffset(x+1, y)
			for c := 0; c < 3; c++ {
				v := center*float64(small.Pix[i+c]) +
					side*(float64(small.Pix[up+c])+float64(small.Pix[down+c])+
						float64(small.Pix[left+c])+float64(small.Pix[right+c]))
				out.Pix[i+c] = clampByte(v)
			}
			out.Pix[i+3] = 255
		}
	}

	alpha := amount
	if alpha > 1 {
		alpha = 1
	}
	s.DrawImage(out, canvas.BlendSourceOver, alpha)
}

// noiseField generates per-frame luminance noise at quarter resolution. The
// caller's DrawImage upscales it nearest-neighbor to surface size. No
// temporal coherence: a fresh field is produced every call.
func noiseField(w, h int) *image.RGBA {
	nw := w / 4
	nh := h / 4
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, nw, nh))
	state := noiseSeed()
	for i := 0; i < len(img.Pix); i += 4 {
		state = state*6364136223846793005 + 1442695040888963407
		v := uint8(state >> 56)
		img.Pix[i] = v
		img.Pix[i+1] = v
		img.Pix[i+2] = v
		img.Pix[i+3] = 255
	}
	return img
}

// vignetteAlpha is 45% opacity at the gradient's outer edge.
const vignetteAlpha = 115

func vignette(s *canvas.Surface) {
	w := float64(s.Width())
	h := float64(s.Height())
	inner := 0.2 * math.Min(w, h)
	outer := 0.7 * math.Max(w, h)
	s.FillRadialGradient(w/2, h/2, inner, outer, color.RGBA{A: vignetteAlpha})
}

func overlay(s *canvas.Surface, p Params) {
	text := p.OverlayText
	if text == "" {
		text = DefaultOverlayText
	}
	opacity := clamp01(p.OverlayOpacity)
	if opacity == 0 {
		return
	}

	fontH := int(math.Round(float64(s.Height()) * 0.045))
	if fontH < 8 {
		fontH = 8
	}
	padX := fontH / 2
	padY := fontH / 3
	boxW := int(float64(fontH)*0.62*float64(len(text))) + 2*padX
	boxH := fontH + 2*padY
	x := s.Width() / 20
	y := s.Height() / 20

	s.FillRoundedRect(x, y, boxW, boxH, boxH/4, color.RGBA{16, 16, 20, 200}, opacity)
	s.DrawText(text, x+padX, y+padY, fontH, color.RGBA{240, 240, 245, 255}, opacity)
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	out := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	for y := 0; y < out.Bounds().Dy(); y++ {
		for x := 0; x < out.Bounds().Dx(); x++ {
			out.Set(x, y, img.At(img.Bounds().Min.X+x, img.Bounds().Min.Y+y))
		}
	}
	return out
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
