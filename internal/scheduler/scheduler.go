// Package scheduler owns the two callback-driven loops the engine runs
// against one media source: a render loop that drives the effect stack at
// frame cadence, and a publish loop that reports playback time to observers
// at a fixed wall-clock cadence. The loops are independent, individually
// cancelable, and idempotent to cancel.
package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cloudcut/cloudcut-engine/internal/media"
)

const (
	// IdleEpsilon is the minimum position advance (seconds) between ticks
	// before a tick is considered a new frame worth compositing.
	IdleEpsilon = 0.0005

	// DrawInterval throttles composites to roughly 30 per second.
	DrawInterval = 33 * time.Millisecond

	// PublishInterval paces time publication to roughly 30 per second.
	PublishInterval = 33 * time.Millisecond

	// MinPublishDelta is the minimum reported-time change (seconds) worth
	// publishing.
	MinPublishDelta = 0.002

	// fallbackTick is the wake-up cadence when the source has no
	// frame-accurate callback support.
	fallbackTick = 16 * time.Millisecond
)

// Handle controls one running loop. Cancel is safe to call repeatedly and
// from any goroutine.
type Handle struct {
	mu      sync.Mutex
	stop    func()
	stopped bool
}

func (h *Handle) Cancel() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	stop := h.stop
	h.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (h *Handle) canceled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// RenderConfig wires a render loop to its owner.
type RenderConfig struct {
	Source media.Source

	// Live re-validates ownership each tick: it must return false as soon
	// as the transport has swapped the source or left the playing state, so
	// a stale loop never draws against a replaced source.
	Live func() bool

	// Draw invokes the effect stack for the current frame.
	Draw func()

	Logger *slog.Logger
}

// StartRender begins the render loop. It wakes on the source's frame
// callback when supported, otherwise on a timer; behavior is identical on
// either path, only wake-up precision differs.
func StartRender(cfg RenderConfig) *Handle {
	h := &Handle{}
	st := &renderState{cfg: cfg, handle: h}

	if cfg.Source.SupportsFrameCallback() {
		cancel := cfg.Source.OnFrame(st.tick)
		h.mu.Lock()
		h.stop = func() { cancel() }
		h.mu.Unlock()
		return h
	}

	done := make(chan struct{})
	h.mu.Lock()
	h.stop = func() { close(done) }
	h.mu.Unlock()

	go func() {
		ticker := time.NewTicker(fallbackTick)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				st.tick()
			}
		}
	}()
	return h
}

type renderState struct {
	cfg    RenderConfig
	handle *Handle

	mu       sync.Mutex
	lastPos  float64
	hasPos   bool
	lastDraw time.Time
}

func (st *renderState) tick() {
	if st.handle.canceled() {
		return
	}
	if !st.cfg.Live() {
		// Owner state became inconsistent; stop rescheduling ourselves.
		st.handle.Cancel()
		return
	}

	pos := st.cfg.Source.CurrentTime()

	st.mu.Lock()
	if st.hasPos && pos-st.lastPos < IdleEpsilon && pos >= st.lastPos {
		// Decoder has not produced a new frame; skip without drawing.
		st.mu.Unlock()
		return
	}
	st.lastPos = pos
	st.hasPos = true

	now := time.Now()
	if !st.lastDraw.IsZero() && now.Sub(st.lastDraw) < DrawInterval {
		st.mu.Unlock()
		return
	}
	st.lastDraw = now
	st.mu.Unlock()

	st.cfg.Draw()
}

// PublishConfig wires a publish loop to its owner.
type PublishConfig struct {
	// Now reads the authoritative playback time (forced time included).
	Now func() float64

	// Live re-validates ownership each tick, as in RenderConfig.
	Live func() bool

	// Publish pushes a new time to observers.
	Publish func(t float64)

	Logger *slog.Logger
}

// StartPublish begins the state-publish loop.
func StartPublish(cfg PublishConfig) *Handle {
	h := &Handle{}
	done := make(chan struct{})
	h.mu.Lock()
	h.stop = func() { close(done) }
	h.mu.Unlock()

	go func() {
		ticker := time.NewTicker(PublishInterval)
		defer ticker.Stop()

		var last float64
		var has bool
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if h.canceled() {
					return
				}
				if !cfg.Live() {
					h.Cancel()
					return
				}
				t := cfg.Now()
				if has && absFloat(t-last) < MinPublishDelta {
					continue
				}
				last = t
				has = true
				cfg.Publish(t)
			}
		}
	}()
	return h
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
