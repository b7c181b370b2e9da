package canvas

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DrawText renders text with its baseline-left origin at (x,y), scaled so the
// glyph height is approximately pixelHeight, blended at the given alpha.
// The bitmap face is rasterized once at its native size and scaled up, which
// is adequate for preview overlays.
func (s *Surface) DrawText(text string, x, y, pixelHeight int, c color.RGBA, alpha float64) {
	if text == "" || pixelHeight <= 0 || alpha <= 0 {
		return
	}
	if alpha > 1 {
		alpha = 1
	}

	face := basicfont.Face7x13
	nativeH := face.Height
	nativeW := font.MeasureString(face, text).Ceil()
	if nativeW == 0 {
		return
	}

	stamp := image.NewRGBA(image.Rect(0, 0, nativeW, nativeH))
	d := font.Drawer{
		Dst:  stamp,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(text)

	scale := float64(pixelHeight) / float64(nativeH)
	outW := int(float64(nativeW) * scale)
	if outW < 1 {
		outW = 1
	}
	scaled := toRGBA(resize.Resize(uint(outW), uint(pixelHeight), stamp, resize.NearestNeighbor))

	// Blend the stamp over the surface honoring per-glyph coverage.
	dst := s.img
	for sy := 0; sy < pixelHeight; sy++ {
		py := y + sy
		if py < 0 || py >= s.Height() {
			continue
		}
		for sx := 0; sx < outW; sx++ {
			px := x + sx
			if px < 0 || px >= s.Width() {
				continue
			}
			si := scaled.PixOffset(sx, sy)
			cov := float64(scaled.Pix[si+3]) / 255 * alpha
			if cov <= 0 {
				continue
			}
			di := dst.PixOffset(px, py)
			for ch := 0; ch < 3; ch++ {
				dst.Pix[di+ch] = clampByte(float64(dst.Pix[di+ch])*(1-cov) + float64(scaled.Pix[si+ch])*cov)
			}
		}
	}
}
