// Package timeline models trimmed clips, the ordered sequence composing them
// into one virtual timeline, the trim/loop boundary controller, and the
// sequencer that drives clip switches during playback.
package timeline

import (
	"math"

	"github.com/google/uuid"
)

// TrimRange is the in/out sub-interval of a clip's source actually played.
// Invariant: 0 <= In < Out <= source duration.
type TrimRange struct {
	In  float64 `json:"in"`
	Out float64 `json:"out"`
}

func (r TrimRange) Duration() float64 {
	return r.Out - r.In
}

// MinGap is the enforced minimum distance between in and out points when a
// range is adjusted interactively.
func MinGap(sourceDuration float64) float64 {
	return math.Min(0.5, 0.02*sourceDuration)
}

// AdjustIn moves the in point, clamped to keep the minimum gap to Out.
func (r TrimRange) AdjustIn(t, sourceDuration float64) TrimRange {
	gap := MinGap(sourceDuration)
	if t < 0 {
		t = 0
	}
	if t > r.Out-gap {
		t = r.Out - gap
	}
	if t < 0 {
		t = 0
	}
	r.In = t
	return r
}

// AdjustOut moves the out point, clamped to keep the minimum gap to In.
func (r TrimRange) AdjustOut(t, sourceDuration float64) TrimRange {
	gap := MinGap(sourceDuration)
	if t > sourceDuration {
		t = sourceDuration
	}
	if t < r.In+gap {
		t = r.In + gap
	}
	if t > sourceDuration {
		t = sourceDuration
	}
	r.Out = t
	return r
}

// Clip is one trimmed entry in the sequence.
type Clip struct {
	ID        string    `json:"id"`
	SourceRef string    `json:"source_ref"`
	Label     string    `json:"label"`
	Trim      TrimRange `json:"trim"`
	Color     string    `json:"color"`
}

// Duration is the played length of the clip.
func (c *Clip) Duration() float64 {
	return c.Trim.Duration()
}

var clipColors = []string{"#4f8ef7", "#f7a24f", "#5fc98e", "#c95f8e", "#8e5fc9", "#c9b85f"}

// NewClip creates a clip spanning the full source duration.
func NewClip(sourceRef, label string, sourceDuration float64, ordinal int) *Clip {
	return &Clip{
		ID:        uuid.NewString(),
		SourceRef: sourceRef,
		Label:     label,
		Trim:      TrimRange{In: 0, Out: sourceDuration},
		Color:     clipColors[ordinal%len(clipColors)],
	}
}
