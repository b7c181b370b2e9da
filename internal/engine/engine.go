// Package engine wires the editing core together: transport, sequencer,
// trim/loop controller, effect state, crop mode, and the export capturer.
// The host UI talks to the engine surface only, never to the parts.
package engine

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/cloudcut/cloudcut-engine/internal/assets"
	"github.com/cloudcut/cloudcut-engine/internal/canvas"
	"github.com/cloudcut/cloudcut-engine/internal/effects"
	"github.com/cloudcut/cloudcut-engine/internal/export"
	"github.com/cloudcut/cloudcut-engine/internal/geometry"
	"github.com/cloudcut/cloudcut-engine/internal/logging"
	"github.com/cloudcut/cloudcut-engine/internal/media"
	"github.com/cloudcut/cloudcut-engine/internal/timeline"
	"github.com/cloudcut/cloudcut-engine/internal/transport"
)

// CropMode selects where aspect cropping happens.
type CropMode string

const (
	// CropModeLocal crops in the local composite pipeline.
	CropModeLocal CropMode = "local"
	// CropModeSmart delegates cropping to the remote transform service,
	// falling back to local when it fails.
	CropModeSmart CropMode = "smart"
)

// maxMessages bounds the retained fault/notice backlog.
const maxMessages = 20

// Config carries the engine's collaborators.
type Config struct {
	Logger          *slog.Logger
	Store           assets.Store
	Signer          *assets.Signer
	SourceFactory   timeline.SourceFactory
	RecorderFactory export.RecorderFactory
}

// CropState is the crop-mode snapshot surfaced to the host UI.
type CropState struct {
	Mode     CropMode       `json:"mode"`
	Gravity  assets.Gravity `json:"gravity,omitempty"`
	UseLocal bool           `json:"use_local"`
	SmartURL string         `json:"smart_url,omitempty"`
}

// Status is the engine snapshot surfaced to the host UI.
type Status struct {
	State        string        `json:"state"`
	Playing      bool          `json:"playing"`
	CurrentTime  float64       `json:"current_time"`
	Duration     float64       `json:"duration"`
	GlobalTime   float64       `json:"global_time"`
	TotalTime    float64       `json:"total_time"`
	ActiveClipID string        `json:"active_clip_id,omitempty"`
	Crop         CropState     `json:"crop"`
	Export       export.Status `json:"export"`
	Messages     []string      `json:"messages,omitempty"`
}

// Engine owns the editing session.
type Engine struct {
	logger    *slog.Logger
	tr        *transport.Transport
	seq       *timeline.Sequence
	sequencer *timeline.Sequencer
	trimLoop  *timeline.TrimLoopController
	capturer  *export.Capturer
	store     assets.Store
	signer    *assets.Signer
	factory   timeline.SourceFactory

	mu        sync.Mutex
	surface   *canvas.Surface
	params    effects.Params
	loop      bool
	trimmed   bool
	cropMode  CropMode
	ladder    assets.FallbackLadder
	activeRef string
	messages  []string
	detach    []media.CancelFunc
	torndown  bool
}

func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil || cfg.Signer == nil || cfg.SourceFactory == nil {
		return nil, fmt.Errorf("engine: store, signer and source factory are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tr := transport.New(logging.WithComponent(logger, "transport"))
	seq := timeline.NewSequence()
	sequencer := timeline.NewSequencer(seq, tr, cfg.SourceFactory, logging.WithComponent(logger, "sequencer"))
	trimLoop := timeline.NewTrimLoopController(tr, logging.WithComponent(logger, "trimloop"))

	e := &Engine{
		logger:    logging.WithComponent(logger, "engine"),
		tr:        tr,
		seq:       seq,
		sequencer: sequencer,
		trimLoop:  trimLoop,
		store:     cfg.Store,
		signer:    cfg.Signer,
		factory:   cfg.SourceFactory,
		surface:   canvas.NewSurface(1, 1),
		params:    effects.Params{OverlayOpacity: 1},
		cropMode:  CropModeLocal,
	}
	e.capturer = export.NewCapturer(tr, e.FullFrame, cfg.RecorderFactory, cfg.Store, cfg.Signer,
		logging.WithComponent(logger, "export"))

	tr.SetDrawFunc(func() { e.renderFrame(effects.QualityPreview) })

	e.detach = append(e.detach,
		tr.OnTime(e.handleTime),
		tr.OnPlayState(trimLoop.HandlePlayState),
		tr.OnScrub(trimLoop.HandleScrub),
		tr.OnEnded(trimLoop.HandleEnded),
		tr.OnMessage(e.pushMessage),
	)
	trimLoop.OnBoundary(func(at float64) {
		// The capturer owns the transport for the duration of an export
		// run; clip advancing resumes afterwards.
		if e.capturer.Status().State == export.StateExporting {
			return
		}
		sequencer.HandleBoundary(at)
	})
	sequencer.OnSwitch(e.handleClipSwitch)
	e.capturer.OnStatus(e.handleExportStatus)

	return e, nil
}

// handleClipSwitch re-arms the boundary watcher with the new active clip's
// trim range. A user-armed trim and its loop flag belong to the clip it was
// set on and do not carry across a switch.
func (e *Engine) handleClipSwitch(clip *timeline.Clip) {
	e.trimLoop.SetRange(clip.Trim, false)
	e.mu.Lock()
	e.activeRef = clip.SourceRef
	e.trimmed = false
	e.loop = false
	e.mu.Unlock()
}

// handleExportStatus reapplies the user loop flag once the capturer releases
// the transport.
func (e *Engine) handleExportStatus(st export.Status) {
	if st.State != export.StateExporting {
		e.syncLoop()
	}
}

func (e *Engine) syncLoop() {
	e.mu.Lock()
	loop := e.loop
	e.mu.Unlock()
	e.trimLoop.SetLoop(loop)
}

// handleTime fans published time into the trim/loop controller and, while
// paused, redraws the still frame at full quality.
func (e *Engine) handleTime(t float64) {
	e.trimLoop.Observe(t)
	if !e.tr.Playing() {
		e.renderFrame(effects.QualityFull)
	}
}

// renderFrame composites the current source frame through the effect stack
// onto the preview surface.
func (e *Engine) renderFrame(q effects.Quality) {
	src := e.tr.Source()
	if src == nil {
		return
	}
	frame := src.Frame()
	if frame == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.params
	aspect := p.TargetAspect
	if !e.cropLocallyLocked() {
		// The remote transform service delivers pre-cropped frames.
		aspect = 0
	}
	geom := geometry.Resolve(src.Width(), src.Height(), aspect)
	effects.Composite(e.surface, frame, p, geom, q)
}

// cropLocallyLocked reports whether aspect cropping runs in the local
// pipeline for the current mode and ladder position.
func (e *Engine) cropLocallyLocked() bool {
	if e.cropMode == CropModeLocal {
		return true
	}
	_, remote := e.ladder.Current()
	return !remote
}

// FullFrame composites and returns the current frame at full quality. Used
// by the export capturer.
func (e *Engine) FullFrame() *image.RGBA {
	e.renderFrame(effects.QualityFull)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.surface.Snapshot()
}

// PreviewFrame returns the last composited frame.
func (e *Engine) PreviewFrame() *image.RGBA {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.surface.Snapshot()
}

// --- playback -------------------------------------------------------------

func (e *Engine) TogglePlayback() { e.tr.TogglePlayback() }
func (e *Engine) Play()           { e.tr.Play() }
func (e *Engine) Pause()          { e.tr.Pause() }

// Scrub seeks within the active clip's media time.
func (e *Engine) Scrub(t float64) { e.tr.Scrub(t) }

// PauseAt parks playback exactly at the target media time.
func (e *Engine) PauseAt(t float64) { e.tr.PauseAt(t) }

// Stop pauses and parks at the start of the active clip.
func (e *Engine) Stop() { e.tr.PauseAt(0) }

// SeekGlobal maps a virtual-timeline position onto the owning clip.
func (e *Engine) SeekGlobal(t float64) error {
	return e.sequencer.SeekGlobal(t, e.tr.Playing())
}

// --- effect state ---------------------------------------------------------

// Params returns the current effect parameter set.
func (e *Engine) Params() effects.Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// SetParams replaces the whole effect parameter set and redraws when paused.
func (e *Engine) SetParams(p effects.Params) {
	e.mu.Lock()
	e.params = p
	e.mu.Unlock()
	e.redrawIfPaused()
}

// UpdateParams applies a mutation to the effect parameter set.
func (e *Engine) UpdateParams(mutate func(*effects.Params)) {
	e.mu.Lock()
	mutate(&e.params)
	e.mu.Unlock()
	e.redrawIfPaused()
}

func (e *Engine) SetFilters(chain canvas.FilterChain) {
	e.UpdateParams(func(p *effects.Params) { p.Filters = chain })
}

func (e *Engine) SetTargetAspect(aspect float64) {
	e.UpdateParams(func(p *effects.Params) { p.TargetAspect = aspect })
}

func (e *Engine) redrawIfPaused() {
	if !e.tr.Playing() {
		e.renderFrame(effects.QualityFull)
	}
}

// --- crop mode ------------------------------------------------------------

// SetCropMode switches between local and smart cropping. Entering smart
// mode resets the fallback ladder.
func (e *Engine) SetCropMode(mode CropMode) {
	e.mu.Lock()
	e.cropMode = mode
	if mode == CropModeSmart {
		e.ladder.Reset()
	}
	e.mu.Unlock()
	e.redrawIfPaused()
}

// ReportSmartCropFailure is called when a smart-cropped video failed to
// load. It advances the fallback ladder and surfaces the step message.
func (e *Engine) ReportSmartCropFailure() CropState {
	e.mu.Lock()
	if e.cropMode != CropModeSmart {
		st := e.cropStateLocked()
		e.mu.Unlock()
		return st
	}
	step := e.ladder.Advance()
	st := e.cropStateLocked()
	e.mu.Unlock()

	e.pushMessage(step.Message)
	e.redrawIfPaused()
	return st
}

// CropState reports the current crop mode, gravity, and smart URL.
func (e *Engine) CropState() CropState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cropStateLocked()
}

func (e *Engine) cropStateLocked() CropState {
	st := CropState{Mode: e.cropMode, UseLocal: true}
	if e.cropMode != CropModeSmart {
		return st
	}
	gravity, remote := e.ladder.Current()
	if !remote {
		return st
	}
	st.Gravity = gravity
	st.UseLocal = false
	if e.activeRef != "" && e.params.TargetAspect > 0 {
		w, h := aspectRatioParts(e.params.TargetAspect)
		st.SmartURL = assets.SmartCropURL(e.activeRef, w, h, gravity)
	}
	return st
}

// aspectRatioParts renders a float aspect as a small W:H integer pair for
// the transform descriptor.
func aspectRatioParts(aspect float64) (int, int) {
	known := [][2]int{{16, 9}, {9, 16}, {4, 3}, {3, 4}, {1, 1}, {21, 9}}
	for _, k := range known {
		if abs(aspect-float64(k[0])/float64(k[1])) < 0.001 {
			return k[0], k[1]
		}
	}
	return int(aspect*1000 + 0.5), 1000
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// --- trim & loop ----------------------------------------------------------

// SetTrim applies a trim range to the active clip and arms the boundary
// watcher.
func (e *Engine) SetTrim(in, out float64, loop bool) error {
	clip := e.sequencer.ActiveClip()
	if clip == nil {
		return fmt.Errorf("engine: no active clip")
	}
	dur := e.tr.Duration()
	if dur <= 0 {
		dur = clip.Trim.Out
	}
	if in < 0 {
		in = 0
	}
	if out > dur {
		out = dur
	}
	if in >= out {
		return fmt.Errorf("engine: trim in %v must precede out %v", in, out)
	}

	trim := timeline.TrimRange{In: in, Out: out}
	e.seq.SetTrim(clip.ID, trim)
	e.trimLoop.SetRange(trim, loop)
	e.mu.Lock()
	e.loop = loop
	e.trimmed = true
	e.mu.Unlock()
	return nil
}

// SetLoop flips loop mode on the armed trim range. While an export run owns
// the transport the flag is recorded but applied only once it finishes.
func (e *Engine) SetLoop(loop bool) {
	e.mu.Lock()
	e.loop = loop
	e.mu.Unlock()
	if loop && e.capturer.Status().State == export.StateExporting {
		return
	}
	e.trimLoop.SetLoop(loop)
}

// ClearTrim disarms the user trim. The boundary watcher falls back to the
// active clip's own range so sequencing keeps working.
func (e *Engine) ClearTrim() {
	e.mu.Lock()
	e.trimmed = false
	e.loop = false
	e.mu.Unlock()
	if clip := e.sequencer.ActiveClip(); clip != nil {
		e.trimLoop.SetRange(clip.Trim, false)
	} else {
		e.trimLoop.Clear()
	}
}

// Trim reports the armed range, loop flag, and whether a user trim is set.
func (e *Engine) Trim() (timeline.TrimRange, bool, bool) {
	trim, _ := e.trimLoop.Range()
	e.mu.Lock()
	defer e.mu.Unlock()
	return trim, e.loop, e.trimmed
}

// --- timeline -------------------------------------------------------------

// AddClip appends a clip for the referenced source and selects it when it
// is the first one.
func (e *Engine) AddClip(sourceRef, label string, sourceDuration float64) (*timeline.Clip, error) {
	clip := timeline.NewClip(sourceRef, label, sourceDuration, e.seq.Len())
	e.seq.Add(clip)
	if e.seq.Len() == 1 {
		if err := e.SelectClip(clip.ID); err != nil {
			return clip, err
		}
	}
	e.logger.Info("clip added", "clip_id", clip.ID, "source_ref", sourceRef, "duration", sourceDuration)
	return clip, nil
}

// SplitClip cuts a clip at the offset into its trimmed range.
func (e *Engine) SplitClip(id string, offset float64) (*timeline.Clip, error) {
	second, ok := e.seq.Split(id, offset)
	if !ok {
		return nil, fmt.Errorf("engine: cannot split clip %s at %v", id, offset)
	}
	e.logger.Info("clip split", "clip_id", id, "new_clip_id", second.ID, "offset", offset)
	return second, nil
}

// DeleteClip removes a clip; removing the active clip advances playback.
func (e *Engine) DeleteClip(id string) error {
	if !e.seq.Delete(id) {
		return fmt.Errorf("engine: unknown clip %s", id)
	}
	e.sequencer.HandleClipRemoved(id)
	return nil
}

// SelectClip makes a clip active without starting playback.
func (e *Engine) SelectClip(id string) error {
	if e.seq.Clip(id) == nil {
		return fmt.Errorf("engine: unknown clip %s", id)
	}
	return e.sequencer.SelectClip(id, false)
}

// Clips lists the timeline in order.
func (e *Engine) Clips() []*timeline.Clip {
	return e.seq.Clips()
}

// --- export ---------------------------------------------------------------

// Export records the user-trimmed range (or the whole clip) and uploads it.
// Loop mode is suspended for the run so the boundary watcher cannot rewind
// the capture; handleExportStatus restores it.
func (e *Engine) Export(ctx context.Context, title, folder string) error {
	e.mu.Lock()
	trimmed := e.trimmed
	e.mu.Unlock()

	var start, end float64
	if trimmed {
		if trim, active := e.trimLoop.Range(); active {
			start, end = trim.In, trim.Out
		}
	}

	e.trimLoop.SetLoop(false)
	err := e.capturer.Export(ctx, export.Request{
		Title:  title,
		Folder: folder,
		Start:  start,
		End:    end,
	})
	if err != nil {
		e.syncLoop()
	}
	return err
}

func (e *Engine) ExportStatus() export.Status { return e.capturer.Status() }
func (e *Engine) AbortExport()                { e.capturer.Abort() }

// --- observers & snapshot -------------------------------------------------

// OnTime registers a published-time observer.
func (e *Engine) OnTime(fn func(float64)) media.CancelFunc { return e.tr.OnTime(fn) }

// OnPlayState registers a playing/paused observer.
func (e *Engine) OnPlayState(fn func(bool)) media.CancelFunc { return e.tr.OnPlayState(fn) }

// OnMessage registers a fault/notice observer.
func (e *Engine) OnMessage(fn func(string)) media.CancelFunc { return e.tr.OnMessage(fn) }

func (e *Engine) pushMessage(msg string) {
	e.mu.Lock()
	e.messages = append(e.messages, msg)
	if len(e.messages) > maxMessages {
		e.messages = e.messages[len(e.messages)-maxMessages:]
	}
	e.mu.Unlock()
	e.logger.Info("engine notice", "message", msg)
}

// Messages returns the retained notice backlog, newest last.
func (e *Engine) Messages() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.messages))
	copy(out, e.messages)
	return out
}

// Status assembles the full engine snapshot.
func (e *Engine) Status() Status {
	current := e.tr.CurrentTime()
	global, _ := e.sequencer.GlobalTime(current)
	st := Status{
		State:        e.tr.State().String(),
		Playing:      e.tr.Playing(),
		CurrentTime:  current,
		Duration:     e.tr.Duration(),
		GlobalTime:   global,
		TotalTime:    e.seq.Duration(),
		ActiveClipID: e.sequencer.ActiveID(),
		Crop:         e.CropState(),
		Export:       e.capturer.Status(),
		Messages:     e.Messages(),
	}
	return st
}

// Transport exposes the underlying transport for tests and the demo binary.
func (e *Engine) Transport() *transport.Transport { return e.tr }

// Teardown stops loops, the recorder, and releases the source. Idempotent.
func (e *Engine) Teardown() {
	e.mu.Lock()
	if e.torndown {
		e.mu.Unlock()
		return
	}
	e.torndown = true
	detach := e.detach
	e.detach = nil
	e.mu.Unlock()

	e.capturer.Abort()
	for _, c := range detach {
		c()
	}
	e.tr.Teardown()
	e.logger.Info("engine torn down")
}
