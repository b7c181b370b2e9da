package assets

import (
	"fmt"
	"strings"
)

// Gravity selects the focus region the remote transform service crops
// around.
type Gravity string

const (
	GravityAuto   Gravity = "auto"
	GravityCenter Gravity = "center"
)

// uploadMarker is the path segment transform descriptors are inserted after.
const uploadMarker = "/upload/"

// SmartCropURL rewrites a playable URL with a fill-crop transform descriptor
// embedded in its path. Aspect is expressed as W:H; a non-positive pair
// returns the URL unchanged.
func SmartCropURL(playableURL string, aspectW, aspectH int, gravity Gravity) string {
	if aspectW <= 0 || aspectH <= 0 {
		return playableURL
	}
	descriptor := fmt.Sprintf("c_fill,ar_%d:%d,g_%s", aspectW, aspectH, gravity)

	if idx := strings.Index(playableURL, uploadMarker); idx >= 0 {
		head := playableURL[:idx+len(uploadMarker)]
		tail := playableURL[idx+len(uploadMarker):]
		return head + descriptor + "/" + tail
	}

	// No upload marker: insert the descriptor before the final path segment.
	if slash := strings.LastIndex(playableURL, "/"); slash > strings.Index(playableURL, "//")+1 {
		return playableURL[:slash] + "/" + descriptor + playableURL[slash:]
	}
	return playableURL
}

// FallbackStep is the action the caller takes after a smart-crop video
// failed to load.
type FallbackStep struct {
	// Gravity to retry with; meaningful only when UseLocal is false.
	Gravity Gravity
	// UseLocal means the ladder is exhausted: crop locally from now on.
	UseLocal bool
	// Message is the human-readable description surfaced upward.
	Message string
}

// FallbackLadder walks the recovery sequence for remote transform failures:
// retry with a simpler gravity first, then abandon the remote transform for
// local cropping. The zero position means smart cropping with GravityAuto.
type FallbackLadder struct {
	step int
}

// Current returns the gravity to use, false once local cropping took over.
func (l *FallbackLadder) Current() (Gravity, bool) {
	switch l.step {
	case 0:
		return GravityAuto, true
	case 1:
		return GravityCenter, true
	default:
		return "", false
	}
}

// Advance moves to the next recovery step after a load failure.
func (l *FallbackLadder) Advance() FallbackStep {
	l.step++
	switch l.step {
	case 1:
		return FallbackStep{
			Gravity: GravityCenter,
			Message: "smart crop failed to load, retrying with center gravity",
		}
	default:
		return FallbackStep{
			UseLocal: true,
			Message:  "remote crop unavailable, falling back to local cropping",
		}
	}
}

// Reset returns the ladder to the smart-crop start, used when the user
// re-enables smart cropping or switches assets.
func (l *FallbackLadder) Reset() {
	l.step = 0
}
