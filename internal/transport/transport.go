// Package transport implements the playback state machine. It is the single
// owner of play/pause/seek commands against the media source and the single
// writer of the forced-time cell that stays authoritative while a seek is in
// flight. It also owns the lifecycle of both scheduler loops.
package transport

import (
	"log/slog"
	"math"
	"sync"

	"github.com/cloudcut/cloudcut-engine/internal/media"
	"github.com/cloudcut/cloudcut-engine/internal/scheduler"
)

// State is the transport lifecycle state.
type State int

const (
	StateIdle State = iota
	StateReady
	StatePlaying
	StatePaused
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// ConvergeEpsilon is the tolerance (seconds) within which the real media
// position is considered converged with a forced seek target.
const ConvergeEpsilon = 0.02

// LoadIntent carries a queued seek target and play request applied once the
// newly loaded source's metadata is ready. Seeking before metadata load is
// unsafe, so the intent waits.
type LoadIntent struct {
	SeekTo   float64
	HasSeek  bool
	AutoPlay bool
}

// Transport drives one media source at a time.
type Transport struct {
	logger *slog.Logger

	mu       sync.Mutex
	source   media.Source
	gen      int // bumped on every source swap; loops validate against it
	state    State
	forced   float64
	hasForce bool
	intent   *LoadIntent

	renderLoop  *scheduler.Handle
	publishLoop *scheduler.Handle
	detach      []media.CancelFunc

	draw func() // render-loop composite hook, injected by the engine

	nextSub   int
	timeSubs  map[int]func(float64)
	stateSubs map[int]func(bool)
	readySubs map[int]func()
	endSubs   map[int]func()
	scrubSubs map[int]func(float64)
	msgSubs   map[int]func(string)
}

func New(logger *slog.Logger) *Transport {
	return &Transport{
		logger:    logger,
		state:     StateIdle,
		timeSubs:  make(map[int]func(float64)),
		stateSubs: make(map[int]func(bool)),
		readySubs: make(map[int]func()),
		endSubs:   make(map[int]func()),
		scrubSubs: make(map[int]func(float64)),
		msgSubs:   make(map[int]func(string)),
	}
}

// SetDrawFunc injects the render-loop composite callback. Must be set before
// the first play.
func (t *Transport) SetDrawFunc(draw func()) {
	t.mu.Lock()
	t.draw = draw
	t.mu.Unlock()
}

// OnTime registers an observer for published playback times.
func (t *Transport) OnTime(fn func(float64)) media.CancelFunc {
	return t.subscribe(func(id int) { t.timeSubs[id] = fn }, func(id int) { delete(t.timeSubs, id) })
}

// OnPlayState registers an observer for playing/paused flips.
func (t *Transport) OnPlayState(fn func(bool)) media.CancelFunc {
	return t.subscribe(func(id int) { t.stateSubs[id] = fn }, func(id int) { delete(t.stateSubs, id) })
}

// OnReady registers an observer fired when a loaded source's metadata is
// available.
func (t *Transport) OnReady(fn func()) media.CancelFunc {
	return t.subscribe(func(id int) { t.readySubs[id] = fn }, func(id int) { delete(t.readySubs, id) })
}

// OnEnded registers an observer for natural end-of-media.
func (t *Transport) OnEnded(fn func()) media.CancelFunc {
	return t.subscribe(func(id int) { t.endSubs[id] = fn }, func(id int) { delete(t.endSubs, id) })
}

// OnScrub registers an observer fired on every explicit scrub; boundary
// locks are cleared on it.
func (t *Transport) OnScrub(fn func(float64)) media.CancelFunc {
	return t.subscribe(func(id int) { t.scrubSubs[id] = fn }, func(id int) { delete(t.scrubSubs, id) })
}

// OnMessage registers an observer for human-readable fault messages.
func (t *Transport) OnMessage(fn func(string)) media.CancelFunc {
	return t.subscribe(func(id int) { t.msgSubs[id] = fn }, func(id int) { delete(t.msgSubs, id) })
}

func (t *Transport) subscribe(add func(int), del func(int)) media.CancelFunc {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	add(id)
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		del(id)
		t.mu.Unlock()
	}
}

// Load resets all derived state, releases the previous source, and assigns
// the new one. A non-nil intent is applied once metadata is ready.
func (t *Transport) Load(src media.Source, intent *LoadIntent) {
	t.mu.Lock()
	t.cancelLoopsLocked()
	for _, c := range t.detach {
		c()
	}
	t.detach = nil
	if t.source != nil {
		t.source.Close()
	}

	t.source = src
	t.gen++
	t.state = StateIdle
	t.hasForce = false
	t.intent = intent

	if src != nil {
		t.detach = append(t.detach,
			src.OnSeeked(t.handleSeeked),
			src.OnEnded(t.handleEnded),
		)
		if src.Ready() {
			t.mu.Unlock()
			t.handleMetadata()
			return
		}
		t.detach = append(t.detach, src.OnMetadata(t.handleMetadata))
	}
	t.mu.Unlock()
}

func (t *Transport) handleMetadata() {
	t.mu.Lock()
	if t.source == nil || t.state != StateIdle {
		t.mu.Unlock()
		return
	}
	t.state = StateReady
	intent := t.intent
	t.intent = nil
	// A pre-seekable scrub left its target in the forced cell; replay it now
	// that seeking is safe.
	if t.hasForce && intent == nil {
		intent = &LoadIntent{SeekTo: t.forced, HasSeek: true}
	}
	readyCbs := snapshotFns(t.readySubs)
	t.mu.Unlock()

	for _, fn := range readyCbs {
		fn()
	}

	if intent != nil {
		if intent.HasSeek {
			t.Scrub(intent.SeekTo)
		}
		if intent.AutoPlay {
			t.play()
		}
	}
}

func (t *Transport) handleSeeked() {
	t.mu.Lock()
	if t.source == nil {
		t.mu.Unlock()
		return
	}
	var published float64
	publish := false
	if t.hasForce {
		actual := t.source.CurrentTime()
		if math.Abs(actual-t.forced) <= ConvergeEpsilon {
			// Converged: the media clock takes back time authority.
			t.hasForce = false
			published = actual
			publish = true
		}
		// Not converged yet: keep reporting the forced value rather than the
		// transient real one.
	} else {
		published = t.source.CurrentTime()
		publish = true
	}
	cbs := snapshotTimeFns(t.timeSubs)
	t.mu.Unlock()

	if publish {
		for _, fn := range cbs {
			fn(published)
		}
	}
}

func (t *Transport) handleEnded() {
	t.mu.Lock()
	if t.state != StatePlaying {
		t.mu.Unlock()
		return
	}
	t.state = StateEnded
	t.cancelLoopsLocked()
	endCbs := snapshotFns(t.endSubs)
	stateCbs := snapshotBoolFns(t.stateSubs)
	timeCbs := snapshotTimeFns(t.timeSubs)
	final := t.currentTimeLocked()
	t.mu.Unlock()

	for _, fn := range timeCbs {
		fn(final)
	}
	for _, fn := range stateCbs {
		fn(false)
	}
	for _, fn := range endCbs {
		fn()
	}
}

// TogglePlayback flips between playing and paused. A rejected play request
// leaves the state paused and surfaces a message.
func (t *Transport) TogglePlayback() {
	t.mu.Lock()
	playing := t.state == StatePlaying
	t.mu.Unlock()

	if playing {
		t.pause()
	} else {
		t.play()
	}
}

// Play starts playback when paused, ready, or ended. No-op while playing.
func (t *Transport) Play() {
	if !t.Playing() {
		t.play()
	}
}

// Pause stops playback. No-op unless playing.
func (t *Transport) Pause() {
	t.pause()
}

func (t *Transport) play() {
	t.mu.Lock()
	if t.source == nil || t.state == StatePlaying || t.state == StateIdle {
		t.mu.Unlock()
		return
	}
	src := t.source
	t.hasForce = false
	t.mu.Unlock()

	if err := src.Play(); err != nil {
		if t.logger != nil {
			t.logger.Warn("play request rejected", "error", err)
		}
		t.mu.Lock()
		t.state = StatePaused
		msgCbs := snapshotStringFns(t.msgSubs)
		t.mu.Unlock()
		for _, fn := range msgCbs {
			fn("playback could not start: " + err.Error())
		}
		return
	}

	t.mu.Lock()
	if t.source != src {
		// Source swapped while the play request was in flight.
		src.Pause()
		t.mu.Unlock()
		return
	}
	t.state = StatePlaying
	t.startLoopsLocked()
	stateCbs := snapshotBoolFns(t.stateSubs)
	t.mu.Unlock()

	for _, fn := range stateCbs {
		fn(true)
	}
}

func (t *Transport) pause() {
	t.mu.Lock()
	if t.source == nil || t.state != StatePlaying {
		t.mu.Unlock()
		return
	}
	t.source.Pause()
	t.state = StatePaused
	t.cancelLoopsLocked()
	stateCbs := snapshotBoolFns(t.stateSubs)
	t.mu.Unlock()

	for _, fn := range stateCbs {
		fn(false)
	}
}

// PauseAt clamps target to the media range, forces the position there,
// pauses, and republishes the target immediately. Used for exact boundary
// stops.
func (t *Transport) PauseAt(target float64) {
	t.mu.Lock()
	if t.source == nil {
		t.mu.Unlock()
		return
	}
	if target < 0 {
		target = 0
	}
	if d := t.source.Duration(); d > 0 && target > d {
		target = d
	}

	t.forced = target
	t.hasForce = true
	src := t.source
	src.Pause()
	if t.state != StateIdle {
		t.state = StatePaused
	}
	t.cancelLoopsLocked()
	stateCbs := snapshotBoolFns(t.stateSubs)
	timeCbs := snapshotTimeFns(t.timeSubs)
	t.mu.Unlock()

	// Seek after releasing the lock; the seeked callback re-enters.
	_ = src.Seek(target)

	for _, fn := range stateCbs {
		fn(false)
	}
	for _, fn := range timeCbs {
		fn(target)
	}
}

// Scrub sets the playback position without changing play state. A seek that
// fails because the source is not yet seekable records the target as forced
// time so reads reflect intent until the seek can be replayed.
func (t *Transport) Scrub(target float64) {
	t.mu.Lock()
	if t.source == nil {
		t.mu.Unlock()
		return
	}
	if target < 0 {
		target = 0
	}
	if d := t.source.Duration(); d > 0 && target > d {
		target = d
	}
	src := t.source
	t.forced = target
	t.hasForce = true
	scrubCbs := snapshotTimeFns(t.scrubSubs)
	timeCbs := snapshotTimeFns(t.timeSubs)
	t.mu.Unlock()

	_ = src.Seek(target)

	for _, fn := range scrubCbs {
		fn(target)
	}
	for _, fn := range timeCbs {
		fn(target)
	}
}

// CurrentTime reports the authoritative playback position: the forced value
// while a seek is in flight, the media clock otherwise.
func (t *Transport) CurrentTime() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentTimeLocked()
}

func (t *Transport) currentTimeLocked() float64 {
	if t.hasForce {
		return t.forced
	}
	if t.source == nil {
		return 0
	}
	return t.source.CurrentTime()
}

// Duration reports the loaded media duration, 0 until metadata is ready.
func (t *Transport) Duration() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.source == nil {
		return 0
	}
	return t.source.Duration()
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) Playing() bool {
	return t.State() == StatePlaying
}

// Source returns the currently loaded source, nil when idle.
func (t *Transport) Source() media.Source {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.source
}

// Teardown cancels both loops and releases the source unconditionally.
func (t *Transport) Teardown() {
	t.mu.Lock()
	t.cancelLoopsLocked()
	for _, c := range t.detach {
		c()
	}
	t.detach = nil
	if t.source != nil {
		t.source.Close()
		t.source = nil
	}
	t.state = StateIdle
	t.hasForce = false
	t.mu.Unlock()
}

// startLoopsLocked starts both scheduler loops bound to the current source
// generation. Caller holds t.mu.
func (t *Transport) startLoopsLocked() {
	t.cancelLoopsLocked()
	gen := t.gen
	src := t.source
	draw := t.draw
	if draw == nil {
		draw = func() {}
	}

	t.renderLoop = scheduler.StartRender(scheduler.RenderConfig{
		Source: src,
		Live: func() bool {
			t.mu.Lock()
			defer t.mu.Unlock()
			return t.gen == gen && t.source == src
		},
		Draw:   draw,
		Logger: t.logger,
	})
	t.publishLoop = scheduler.StartPublish(scheduler.PublishConfig{
		Now: t.CurrentTime,
		Live: func() bool {
			t.mu.Lock()
			defer t.mu.Unlock()
			return t.gen == gen && t.state == StatePlaying
		},
		Publish: t.publishTime,
		Logger:  t.logger,
	})
}

func (t *Transport) publishTime(at float64) {
	t.mu.Lock()
	cbs := snapshotTimeFns(t.timeSubs)
	t.mu.Unlock()
	for _, fn := range cbs {
		fn(at)
	}
}

func (t *Transport) cancelLoopsLocked() {
	if t.renderLoop != nil {
		t.renderLoop.Cancel()
		t.renderLoop = nil
	}
	if t.publishLoop != nil {
		t.publishLoop.Cancel()
		t.publishLoop = nil
	}
}

func snapshotFns(m map[int]func()) []func() {
	out := make([]func(), 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}

func snapshotTimeFns(m map[int]func(float64)) []func(float64) {
	out := make([]func(float64), 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}

func snapshotBoolFns(m map[int]func(bool)) []func(bool) {
	out := make([]func(bool), 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}

func snapshotStringFns(m map[int]func(string)) []func(string) {
	out := make([]func(string), 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}
