package timeline

import (
	"log/slog"
	"sync"
)

const (
	// boundaryEpsilon is the tolerance for detecting the trim-out crossing.
	boundaryEpsilon = 0.01

	// jitterEpsilon bounds the backward time jump still treated as decoder
	// jitter (forward progress at the jittered value) rather than a rewind.
	// Heuristic carried from field behavior; pinned by tests.
	jitterEpsilon = 0.02
)

// PlaybackCommander is the command surface the controller drives. The
// transport satisfies it; the controller never touches the media source
// directly.
type PlaybackCommander interface {
	Scrub(t float64)
	PauseAt(t float64)
	Play()
	Playing() bool
}

// TrimLoopController watches published playback time against an active trim
// range and either loops back to the in point or pauses exactly at the out
// point, signaling the boundary exactly once.
type TrimLoopController struct {
	cmd    PlaybackCommander
	logger *slog.Logger

	mu       sync.Mutex
	active   bool
	trim     TrimRange
	loop     bool
	fired    bool // one-shot boundary lock, cleared on play or scrub
	lastTime float64
	hasLast  bool

	nextSub      int
	boundarySubs map[int]func(at float64)
}

func NewTrimLoopController(cmd PlaybackCommander, logger *slog.Logger) *TrimLoopController {
	return &TrimLoopController{
		cmd:          cmd,
		logger:       logger,
		boundarySubs: make(map[int]func(float64)),
	}
}

// SetRange activates boundary watching for the given trim range.
func (c *TrimLoopController) SetRange(trim TrimRange, loop bool) {
	c.mu.Lock()
	c.active = true
	c.trim = trim
	c.loop = loop
	c.fired = false
	c.hasLast = false
	c.mu.Unlock()
}

// Clear deactivates boundary watching.
func (c *TrimLoopController) Clear() {
	c.mu.Lock()
	c.active = false
	c.hasLast = false
	c.mu.Unlock()
}

// SetLoop flips loop mode without resetting the range.
func (c *TrimLoopController) SetLoop(loop bool) {
	c.mu.Lock()
	c.loop = loop
	c.mu.Unlock()
}

// Range returns the active trim range and whether one is set.
func (c *TrimLoopController) Range() (TrimRange, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trim, c.active
}

// OnBoundary registers a boundary-reached observer.
func (c *TrimLoopController) OnBoundary(fn func(at float64)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.boundarySubs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.boundarySubs, id)
		c.mu.Unlock()
	}
}

// HandlePlayState resets the one-shot lock when playback (re)starts.
func (c *TrimLoopController) HandlePlayState(playing bool) {
	if playing {
		c.mu.Lock()
		c.fired = false
		c.hasLast = false
		c.mu.Unlock()
	}
}

// HandleScrub clears the boundary lock; an explicit seek always re-arms.
func (c *TrimLoopController) HandleScrub(float64) {
	c.mu.Lock()
	c.fired = false
	c.hasLast = false
	c.mu.Unlock()
}

// HandleEnded maps natural end-of-media onto the armed boundary. Observe
// cannot see the end tick (the transport has already left Playing), so the
// ended signal is the crossing: loop mode restarts from the in point,
// otherwise the boundary fires through the same one-shot lock.
func (c *TrimLoopController) HandleEnded() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	if c.loop {
		in := c.trim.In
		c.mu.Unlock()
		c.cmd.Scrub(in)
		c.cmd.Play()
		return
	}
	if c.fired {
		c.mu.Unlock()
		return
	}
	c.fired = true
	out := c.trim.Out
	cbs := make([]func(float64), 0, len(c.boundarySubs))
	for _, fn := range c.boundarySubs {
		cbs = append(cbs, fn)
	}
	c.mu.Unlock()

	for _, fn := range cbs {
		fn(out)
	}
}

// Observe processes one published time. Called on every publish-loop tick
// while the transport is playing.
func (c *TrimLoopController) Observe(t float64) {
	c.mu.Lock()
	if !c.active || !c.cmd.Playing() {
		c.mu.Unlock()
		return
	}

	if c.hasLast && t < c.lastTime {
		if c.lastTime-t >= jitterEpsilon {
			// Genuine rewind (loop restart, scrub); re-anchor and keep
			// watching from here.
			c.lastTime = t
			c.mu.Unlock()
			return
		}
		// Smaller backward jumps are decoder jitter: fall through and treat
		// t as forward progress at the jittered value.
	}
	c.lastTime = t
	c.hasLast = true

	if t < c.trim.Out-boundaryEpsilon {
		c.mu.Unlock()
		return
	}

	if c.loop {
		in := c.trim.In
		c.mu.Unlock()
		c.cmd.Scrub(in)
		return
	}

	if c.fired {
		c.mu.Unlock()
		return
	}
	c.fired = true
	out := c.trim.Out
	cbs := make([]func(float64), 0, len(c.boundarySubs))
	for _, fn := range c.boundarySubs {
		cbs = append(cbs, fn)
	}
	c.mu.Unlock()

	c.cmd.PauseAt(out)
	for _, fn := range cbs {
		fn(out)
	}
}
