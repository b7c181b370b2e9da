// Package geometry computes crop rectangles that map a source frame onto a
// target aspect ratio. All functions are pure.
package geometry

import "math"

// CropGeometry describes the source rectangle selected from a frame and the
// output surface dimensions it maps to.
type CropGeometry struct {
	OutputWidth      int
	OutputHeight     int
	SourceX          float64
	SourceY          float64
	SourceCropWidth  float64
	SourceCropHeight float64
}

// Identity reports whether the crop selects the full source frame.
func (g CropGeometry) Identity(sourceW, sourceH int) bool {
	return g.SourceX == 0 && g.SourceY == 0 &&
		g.SourceCropWidth == float64(sourceW) &&
		g.SourceCropHeight == float64(sourceH)
}

// Resolve computes the centered crop window of a sourceW x sourceH frame that
// satisfies targetAspect, and the output dimensions of the cropped region.
// A targetAspect <= 0 means unconstrained: the full frame passes through.
// Non-positive source dimensions resolve to a zero-area geometry; callers
// must not draw with a zero-area output.
func Resolve(sourceW, sourceH int, targetAspect float64) CropGeometry {
	if sourceW <= 0 || sourceH <= 0 {
		return CropGeometry{}
	}

	w := float64(sourceW)
	h := float64(sourceH)

	if targetAspect <= 0 {
		return CropGeometry{
			OutputWidth:      sourceW,
			OutputHeight:     sourceH,
			SourceCropWidth:  w,
			SourceCropHeight: h,
		}
	}

	cropW := w
	cropH := h
	if w/h > targetAspect {
		// Source is relatively wider than the target: trim the sides.
		cropW = h * targetAspect
	} else {
		cropH = w / targetAspect
	}

	return CropGeometry{
		OutputWidth:      int(math.Round(cropW)),
		OutputHeight:     int(math.Round(cropH)),
		SourceX:          (w - cropW) / 2,
		SourceY:          (h - cropH) / 2,
		SourceCropWidth:  cropW,
		SourceCropHeight: cropH,
	}
}
