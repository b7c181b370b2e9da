package export

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/cloudcut/cloudcut-engine/internal/assets"
	"github.com/cloudcut/cloudcut-engine/internal/media"
)

// State of the export capturer.
type State string

const (
	StateIdle      State = "idle"
	StateExporting State = "exporting"
	StateDone      State = "done"
	StateError     State = "error"
)

// mediaProgressShare splits the progress bar: capture owns 0-70, upload
// owns the remaining 70-100.
const mediaProgressShare = 70.0

// captureFrameInterval is the media-time spacing between captured frames,
// roughly 30fps.
const captureFrameInterval = 1.0 / 30.0

// captureDoneEpsilon is the tolerance for treating a published time as
// having reached the end of the capture range.
const captureDoneEpsilon = 0.01

// resetDelay is how long a finished export stays visible before the
// capturer returns to idle.
const resetDelay = 1500 * time.Millisecond

// PlaybackDriver is the slice of the transport the capturer drives.
type PlaybackDriver interface {
	CurrentTime() float64
	Duration() float64
	Playing() bool
	Play()
	Pause()
	Scrub(target float64)
	PauseAt(target float64)
	OnTime(fn func(float64)) media.CancelFunc
	OnEnded(fn func()) media.CancelFunc
}

// FrameFunc returns the current full-quality composited frame.
type FrameFunc func() *image.RGBA

// Request describes one export run.
type Request struct {
	Title  string
	Folder string
	// Start and End bound the captured media range. End <= Start means the
	// whole duration.
	Start float64
	End   float64
}

// Status is a snapshot of the capturer for observers.
type Status struct {
	State    State   `json:"state"`
	Percent  float64 `json:"percent"`
	Message  string  `json:"message,omitempty"`
	AssetURL string  `json:"asset_url,omitempty"`
	MimeType string  `json:"mime_type,omitempty"`
}

// Capturer records the trimmed range through the transport, encodes it, and
// uploads the blob with signed parameters.
type Capturer struct {
	driver  PlaybackDriver
	frames  FrameFunc
	factory RecorderFactory
	store   assets.Store
	signer  *assets.Signer
	logger  *slog.Logger
	now     func() time.Time
	// resetDelay overrides how long a finished export stays visible.
	resetDelay time.Duration

	mu            sync.Mutex
	state         State
	percent       float64
	message       string
	assetURL      string
	mimeType      string
	recorder      Recorder
	req           Request
	rangeStart    float64
	rangeEnd      float64
	lastCaptured  float64
	resumeTime    float64
	resumePlaying bool
	restored      bool
	finishing     bool
	aborted       bool
	ctx           context.Context
	cancelTime    media.CancelFunc
	cancelEnded   media.CancelFunc
	resetTimer    *time.Timer
	onStatus      func(Status)
}

func NewCapturer(driver PlaybackDriver, frames FrameFunc, factory RecorderFactory, store assets.Store, signer *assets.Signer, logger *slog.Logger) *Capturer {
	return &Capturer{
		driver:     driver,
		frames:     frames,
		factory:    factory,
		store:      store,
		signer:     signer,
		logger:     logger,
		now:        time.Now,
		state:      StateIdle,
		resetDelay: resetDelay,
	}
}

// OnStatus registers the single status observer. Fired outside the lock.
func (c *Capturer) OnStatus(fn func(Status)) {
	c.mu.Lock()
	c.onStatus = fn
	c.mu.Unlock()
}

func (c *Capturer) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Capturer) statusLocked() Status {
	return Status{
		State:    c.state,
		Percent:  c.percent,
		Message:  c.message,
		AssetURL: c.assetURL,
		MimeType: c.mimeType,
	}
}

// Export starts recording the requested range. A second call while an
// export is in flight is a no-op.
func (c *Capturer) Export(ctx context.Context, req Request) error {
	c.mu.Lock()
	if c.state == StateExporting {
		c.mu.Unlock()
		return nil
	}

	mime, ok := PickMimeType(c.factory)
	if !ok {
		c.state = StateError
		c.percent = 0
		c.message = "recording is not supported in this environment"
		status := c.statusLocked()
		c.mu.Unlock()
		c.fireStatus(status)
		return ErrUnsupported
	}

	rec, err := c.factory.New(mime)
	if err != nil {
		c.state = StateError
		c.message = err.Error()
		status := c.statusLocked()
		c.mu.Unlock()
		c.fireStatus(status)
		return err
	}
	if err := rec.Start(); err != nil {
		c.state = StateError
		c.message = err.Error()
		status := c.statusLocked()
		c.mu.Unlock()
		c.fireStatus(status)
		return err
	}

	start, end := req.Start, req.End
	if end <= start {
		start, end = 0, c.driver.Duration()
	}
	if end <= start {
		end = start + captureFrameInterval
	}

	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}

	c.state = StateExporting
	c.percent = 0
	c.message = ""
	c.assetURL = ""
	c.mimeType = mime
	c.recorder = rec
	c.req = req
	c.rangeStart = start
	c.rangeEnd = end
	c.lastCaptured = math.Inf(-1)
	c.resumeTime = c.driver.CurrentTime()
	c.resumePlaying = c.driver.Playing()
	c.restored = false
	c.finishing = false
	c.aborted = false
	c.ctx = ctx

	c.cancelTime = c.driver.OnTime(c.handleTick)
	c.cancelEnded = c.driver.OnEnded(func() { c.beginFinish() })

	status := c.statusLocked()
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Info("export started", "mime_type", mime, "range_start", start, "range_end", end)
	}
	c.fireStatus(status)

	c.driver.Scrub(start)
	c.driver.Play()
	return nil
}

func (c *Capturer) handleTick(t float64) {
	c.mu.Lock()
	if c.state != StateExporting || c.finishing {
		c.mu.Unlock()
		return
	}

	if t-c.lastCaptured >= captureFrameInterval {
		c.lastCaptured = t
		if frame := c.frames(); frame != nil {
			if err := c.recorder.WriteFrame(frame); err != nil {
				c.mu.Unlock()
				c.fail(err)
				return
			}
		}
	}

	span := c.rangeEnd - c.rangeStart
	ratio := (t - c.rangeStart) / span
	pct := mediaProgressShare * clampRatio(ratio)
	if pct > c.percent {
		c.percent = pct
	}
	status := c.statusLocked()
	done := t >= c.rangeEnd-captureDoneEpsilon
	c.mu.Unlock()

	c.fireStatus(status)
	if done {
		c.beginFinish()
	}
}

// beginFinish hands off to a goroutine so the upload never blocks the
// transport's publish loop.
func (c *Capturer) beginFinish() {
	c.mu.Lock()
	if c.state != StateExporting || c.finishing {
		c.mu.Unlock()
		return
	}
	c.finishing = true
	c.mu.Unlock()
	go c.finish()
}

func (c *Capturer) finish() {
	c.mu.Lock()
	rec := c.recorder
	req := c.req
	mime := c.mimeType
	ctx := c.ctx
	c.detachLocked()
	c.mu.Unlock()

	c.restorePlayback()

	blob, err := rec.Stop()
	if err != nil {
		c.fail(fmt.Errorf("stop recorder: %w", err))
		return
	}
	if len(blob) == 0 {
		c.fail(fmt.Errorf("export: no frames captured"))
		return
	}

	c.mu.Lock()
	if c.percent < mediaProgressShare {
		c.percent = mediaProgressShare
	}
	c.message = "uploading"
	handoff := c.statusLocked()
	c.mu.Unlock()
	c.fireStatus(handoff)

	name := ExportName(req.Title, c.now())
	signed := c.signer.Sign(assets.SignRequest{
		Folder:   req.Folder,
		Format:   "webm",
		PublicID: name,
	})

	if ctx == nil {
		ctx = context.Background()
	}
	asset, err := c.store.UploadSigned(ctx, name+".webm", blob, signed, func(sent, total int64) {
		if total <= 0 {
			return
		}
		c.mu.Lock()
		pct := mediaProgressShare + (100-mediaProgressShare)*float64(sent)/float64(total)
		if pct > c.percent {
			c.percent = pct
		}
		status := c.statusLocked()
		c.mu.Unlock()
		c.fireStatus(status)
	})
	if err != nil {
		c.fail(fmt.Errorf("upload export: %w", err))
		return
	}

	c.mu.Lock()
	if c.aborted {
		c.mu.Unlock()
		return
	}
	c.state = StateDone
	c.percent = 100
	c.message = ""
	c.assetURL = asset.PlayableURL
	c.recorder = nil
	c.resetTimer = time.AfterFunc(c.resetDelay, c.resetToIdle)
	status := c.statusLocked()
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Info("export uploaded", "asset_id", asset.ID, "public_id", asset.PublicID, "mime_type", mime, "bytes", len(blob))
	}
	c.fireStatus(status)
}

// Abort stops an in-flight export, discarding captured frames and skipping
// the upload.
func (c *Capturer) Abort() {
	c.mu.Lock()
	if c.state != StateExporting {
		c.mu.Unlock()
		return
	}
	rec := c.recorder
	c.aborted = true
	c.detachLocked()
	c.state = StateIdle
	c.percent = 0
	c.message = ""
	c.recorder = nil
	status := c.statusLocked()
	c.mu.Unlock()

	if rec != nil {
		rec.Stop()
	}
	c.restorePlayback()
	if c.logger != nil {
		c.logger.Info("export aborted")
	}
	c.fireStatus(status)
}

func (c *Capturer) fail(err error) {
	c.mu.Lock()
	if c.aborted {
		c.mu.Unlock()
		return
	}
	rec := c.recorder
	c.detachLocked()
	wasExporting := c.state == StateExporting
	c.state = StateError
	c.message = err.Error()
	c.recorder = nil
	status := c.statusLocked()
	c.mu.Unlock()

	if rec != nil {
		rec.Stop()
	}
	if wasExporting {
		c.restorePlayback()
	}
	if c.logger != nil {
		c.logger.Error("export failed", "error", err)
	}
	c.fireStatus(status)
}

func (c *Capturer) resetToIdle() {
	c.mu.Lock()
	if c.state != StateDone {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.percent = 0
	c.assetURL = ""
	c.mimeType = ""
	status := c.statusLocked()
	c.mu.Unlock()
	c.fireStatus(status)
}

// restorePlayback puts the transport back where the export found it. At most
// once per run; later failure paths that also ask for a restore are no-ops.
func (c *Capturer) restorePlayback() {
	c.mu.Lock()
	if c.restored {
		c.mu.Unlock()
		return
	}
	c.restored = true
	at := c.resumeTime
	playing := c.resumePlaying
	c.mu.Unlock()

	if playing {
		c.driver.Scrub(at)
		c.driver.Play()
	} else {
		c.driver.PauseAt(at)
	}
}

func (c *Capturer) detachLocked() {
	if c.cancelTime != nil {
		c.cancelTime()
		c.cancelTime = nil
	}
	if c.cancelEnded != nil {
		c.cancelEnded()
		c.cancelEnded = nil
	}
}

func (c *Capturer) fireStatus(s Status) {
	c.mu.Lock()
	fn := c.onStatus
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func clampRatio(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
