package effects

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/cloudcut/cloudcut-engine/internal/canvas"
	"github.com/cloudcut/cloudcut-engine/internal/geometry"
)

func testFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / w), uint8(y * 255 / h), 128, 255})
		}
	}
	return img
}

func compositePixels(p Params, q Quality) []uint8 {
	frame := testFrame(64, 48)
	geom := geometry.Resolve(64, 48, p.TargetAspect)
	s := canvas.NewSurface(geom.OutputWidth, geom.OutputHeight)
	Composite(s, frame, p, geom, q)
	return append([]uint8(nil), s.Image().Pix...)
}

func TestComposite_ZeroAmountsMatchSkippedSteps(t *testing.T) {
	base := Params{}
	gated := Params{SharpenAmount: 0, NoiseAmount: 0, GrainAmount: 0}

	a := compositePixels(base, QualityFull)
	b := compositePixels(gated, QualityFull)

	if !bytes.Equal(a, b) {
		t.Error("zero-amount gated steps are not byte-identical to skipped steps")
	}
}

func TestComposite_NegativeAmountsMatchZero(t *testing.T) {
	a := compositePixels(Params{SharpenAmount: -1, NoiseAmount: -0.5, GrainAmount: -2}, QualityFull)
	b := compositePixels(Params{}, QualityFull)
	if !bytes.Equal(a, b) {
		t.Error("negative amounts should behave as zero")
	}
}

func TestEffectiveAmounts_PreviewNeverExceedsFull(t *testing.T) {
	sliders := []float64{0, 0.1, 0.3, 0.5, 0.8, 1.0}
	for _, v := range sliders {
		p := Params{SharpenAmount: v, NoiseAmount: v, GrainAmount: v}
		if p.EffectiveSharpen(QualityPreview) > p.EffectiveSharpen(QualityFull) {
			t.Errorf("sharpen preview > full at slider %f", v)
		}
		if p.EffectiveNoise(QualityPreview) > p.EffectiveNoise(QualityFull) {
			t.Errorf("noise preview > full at slider %f", v)
		}
		if p.EffectiveGrain(QualityPreview) > p.EffectiveGrain(QualityFull) {
			t.Errorf("grain preview > full at slider %f", v)
		}
	}
}

func TestEffectiveAmounts_RegimesDiffer(t *testing.T) {
	p := Params{SharpenAmount: 1, NoiseAmount: 1, GrainAmount: 1}

	if p.EffectiveSharpen(QualityPreview) != 0.2 {
		t.Errorf("preview sharpen = %f, want 0.2", p.EffectiveSharpen(QualityPreview))
	}
	if p.EffectiveSharpen(QualityFull) != 0.6 {
		t.Errorf("full sharpen = %f, want 0.6", p.EffectiveSharpen(QualityFull))
	}
	if p.EffectiveNoise(QualityPreview) == p.EffectiveNoise(QualityFull) {
		t.Error("noise regimes must differ")
	}
	if p.EffectiveGrain(QualityPreview) == p.EffectiveGrain(QualityFull) {
		t.Error("grain regimes must differ")
	}
}

func TestStabilizeScale(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0, 1}, {1, 1.04}, {0.5, 1.02}, {2, 1.04}, {-1, 1},
	}
	for _, c := range cases {
		p := Params{StabilizeAmount: c.in}
		if got := p.StabilizeScale(); got != c.want {
			t.Errorf("StabilizeScale(%f) = %f, want %f", c.in, got, c.want)
		}
	}
}

func TestComposite_SharpenChangesOutput(t *testing.T) {
	a := compositePixels(Params{}, QualityFull)
	b := compositePixels(Params{SharpenAmount: 0.6}, QualityFull)
	if bytes.Equal(a, b) {
		t.Error("sharpen pass had no effect")
	}
}

func TestComposite_VignetteDarkensCorners(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for i := 0; i < len(frame.Pix); i += 4 {
		frame.Pix[i], frame.Pix[i+1], frame.Pix[i+2], frame.Pix[i+3] = 200, 200, 200, 255
	}
	geom := geometry.Resolve(64, 48, 0)

	s := canvas.NewSurface(64, 48)
	Composite(s, frame, Params{Vignette: true}, geom, QualityFull)
	corner := s.Image().Pix[s.Image().PixOffset(0, 0)]

	s2 := canvas.NewSurface(64, 48)
	Composite(s2, frame, Params{}, geom, QualityFull)
	corner2 := s2.Image().Pix[s2.Image().PixOffset(0, 0)]

	if corner >= corner2 {
		t.Errorf("vignette corner %d not darker than plain %d", corner, corner2)
	}
}

func TestComposite_OverlayDraws(t *testing.T) {
	p := Params{ShowOverlay: true, OverlayOpacity: 1}
	a := compositePixels(p, QualityFull)
	b := compositePixels(Params{}, QualityFull)
	if bytes.Equal(a, b) {
		t.Error("overlay pass had no effect")
	}

	// Empty text falls back to the default label rather than skipping.
	p.OverlayText = ""
	c := compositePixels(p, QualityFull)
	if bytes.Equal(c, b) {
		t.Error("empty overlay text should still draw the fallback label")
	}
}

func TestComposite_NoiseRegeneratedPerFrame(t *testing.T) {
	p := Params{NoiseAmount: 1}
	a := compositePixels(p, QualityFull)
	b := compositePixels(p, QualityFull)
	if bytes.Equal(a, b) {
		t.Error("noise fields of consecutive frames are identical")
	}
}

func TestComposite_AspectConstrainedOutputSize(t *testing.T) {
	frame := testFrame(64, 48)
	geom := geometry.Resolve(64, 48, 1)
	s := canvas.NewSurface(0, 0)

	Composite(s, frame, Params{TargetAspect: 1}, geom, QualityFull)

	if s.Width() != 48 || s.Height() != 48 {
		t.Errorf("surface = %dx%d, want 48x48", s.Width(), s.Height())
	}
}

func TestComposite_NilInputsNoop(t *testing.T) {
	// Must not panic on nil surface or frame.
	Composite(nil, testFrame(4, 4), Params{}, geometry.Resolve(4, 4, 0), QualityFull)
	s := canvas.NewSurface(4, 4)
	Composite(s, nil, Params{}, geometry.Resolve(4, 4, 0), QualityFull)
}
