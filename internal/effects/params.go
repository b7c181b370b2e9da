// Package effects implements the per-frame composition pipeline: filtered
// crop draw with stabilization zoom, half-resolution sharpen convolution,
// procedural noise and grain passes, vignette, and the label overlay.
package effects

import "github.com/cloudcut/cloudcut-engine/internal/canvas"

// Quality selects the effect strength regime. Live preview caps the
// expensive passes to keep frame rate; paused frames and export capture run
// at full strength.
type Quality int

const (
	QualityPreview Quality = iota
	QualityFull
)

// Params is the immutable per-frame parameter set. It is rebuilt from the
// current editing state before every composite.
type Params struct {
	Filters         canvas.FilterChain
	Vignette        bool
	TargetAspect    float64 // <=0 means unconstrained
	SharpenAmount   float64 // 0..1
	NoiseAmount     float64 // 0..1
	StabilizeAmount float64 // 0..1
	GrainAmount     float64 // 0..1
	OverlayText     string
	OverlayOpacity  float64 // 0..1
	ShowOverlay     bool
}

// Preview/full strength caps. Sharpen is clamped, noise and grain scale the
// slider value.
const (
	previewSharpenCap = 0.2
	fullSharpenCap    = 0.6
	previewNoiseScale = 0.08
	fullNoiseScale    = 0.20
	previewGrainScale = 0.12
	fullGrainScale    = 0.30
)

// EffectiveSharpen returns the sharpen strength for the given regime.
func (p Params) EffectiveSharpen(q Quality) float64 {
	a := clamp01(p.SharpenAmount)
	cap := fullSharpenCap
	if q == QualityPreview {
		cap = previewSharpenCap
	}
	if a > cap {
		return cap
	}
	return a
}

// EffectiveNoise returns the noise pass strength for the given regime.
func (p Params) EffectiveNoise(q Quality) float64 {
	if q == QualityPreview {
		return clamp01(p.NoiseAmount) * previewNoiseScale
	}
	return clamp01(p.NoiseAmount) * fullNoiseScale
}

// EffectiveGrain returns the grain pass strength for the given regime.
func (p Params) EffectiveGrain(q Quality) float64 {
	if q == QualityPreview {
		return clamp01(p.GrainAmount) * previewGrainScale
	}
	return clamp01(p.GrainAmount) * fullGrainScale
}

// StabilizeScale returns the uniform zoom factor simulating shake reduction.
func (p Params) StabilizeScale() float64 {
	return 1 + clamp01(p.StabilizeAmount)*0.04
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
