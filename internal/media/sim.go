package media

import (
	"image"
	"image/color"
	"math"
	"sync"
	"time"
)

const simTick = 5 * time.Millisecond

// SimConfig configures a simulated source.
type SimConfig struct {
	AssetRef string
	Width    int
	Height   int
	Duration float64

	// Rate multiplies the wall clock; tests use large rates to play through
	// long media quickly. Defaults to 1.
	Rate float64

	// MetadataDelay is how long after construction metadata becomes
	// available. Zero means immediately.
	MetadataDelay time.Duration

	// SeekLatency simulates decoder seek time before the position converges
	// and the seeked callback fires.
	SeekLatency time.Duration

	// NoFrameCallback disables frame-accurate callbacks, forcing the
	// scheduler onto its timer fallback path.
	NoFrameCallback bool

	// FailPlay makes Play return ErrPlayRejected, simulating an autoplay
	// rejection by the host.
	FailPlay bool
}

// SimSource is a clock-driven procedural frame source. It honors the full
// Source contract including async metadata load and seek latency.
type SimSource struct {
	cfg SimConfig

	mu       sync.Mutex
	ready    bool
	playing  bool
	ended    bool
	now      float64 // current position, seconds
	pending  float64 // target of an in-flight seek
	seeking  bool
	closed   bool
	nextSub  int
	frameCbs map[int]func()
	seekCbs  map[int]func()
	endCbs   map[int]func()
	metaCbs  map[int]func()

	done chan struct{}
}

func NewSimSource(cfg SimConfig) *SimSource {
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	if cfg.Width <= 0 {
		cfg.Width = 320
	}
	if cfg.Height <= 0 {
		cfg.Height = 180
	}
	s := &SimSource{
		cfg:      cfg,
		frameCbs: make(map[int]func()),
		seekCbs:  make(map[int]func()),
		endCbs:   make(map[int]func()),
		metaCbs:  make(map[int]func()),
		done:     make(chan struct{}),
	}

	if cfg.MetadataDelay <= 0 {
		s.ready = true
	} else {
		time.AfterFunc(cfg.MetadataDelay, s.loadMetadata)
	}

	go s.clockLoop()
	return s
}

func (s *SimSource) loadMetadata() {
	s.mu.Lock()
	if s.closed || s.ready {
		s.mu.Unlock()
		return
	}
	s.ready = true
	cbs := snapshotCallbacks(s.metaCbs)
	s.mu.Unlock()
	fire(cbs)
}

func (s *SimSource) clockLoop() {
	ticker := time.NewTicker(simTick)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last).Seconds()
			last = now
			s.advance(elapsed)
		}
	}
}

func (s *SimSource) advance(elapsed float64) {
	s.mu.Lock()
	if !s.playing || !s.ready || s.seeking {
		s.mu.Unlock()
		return
	}

	s.now += elapsed * s.cfg.Rate
	var endCbs []func()
	if s.now >= s.cfg.Duration {
		s.now = s.cfg.Duration
		s.playing = false
		s.ended = true
		endCbs = snapshotCallbacks(s.endCbs)
	}
	frameCbs := snapshotCallbacks(s.frameCbs)
	s.mu.Unlock()

	if !s.cfg.NoFrameCallback {
		fire(frameCbs)
	}
	fire(endCbs)
}

func (s *SimSource) AssetRef() string { return s.cfg.AssetRef }
func (s *SimSource) Width() int       { return s.cfg.Width }
func (s *SimSource) Height() int      { return s.cfg.Height }

func (s *SimSource) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return 0
	}
	return s.cfg.Duration
}

func (s *SimSource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *SimSource) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *SimSource) Seek(t float64) error {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return ErrNotSeekable
	}
	if t < 0 {
		t = 0
	}
	if t > s.cfg.Duration {
		t = s.cfg.Duration
	}
	s.ended = false

	if s.cfg.SeekLatency <= 0 {
		s.now = t
		cbs := snapshotCallbacks(s.seekCbs)
		s.mu.Unlock()
		fire(cbs)
		return nil
	}

	s.seeking = true
	s.pending = t
	s.mu.Unlock()

	time.AfterFunc(s.cfg.SeekLatency, func() {
		s.mu.Lock()
		if s.closed || !s.seeking {
			s.mu.Unlock()
			return
		}
		s.seeking = false
		s.now = s.pending
		cbs := snapshotCallbacks(s.seekCbs)
		s.mu.Unlock()
		fire(cbs)
	})
	return nil
}

func (s *SimSource) Play() error {
	s.mu.Lock()
	if s.cfg.FailPlay {
		s.mu.Unlock()
		return ErrPlayRejected
	}
	if s.ended {
		s.now = 0
		s.ended = false
	}
	s.playing = true
	s.mu.Unlock()
	return nil
}

func (s *SimSource) Pause() {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
}

func (s *SimSource) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.playing
}

func (s *SimSource) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Frame renders a procedural test pattern that varies with the playback
// position: a two-axis gradient with a moving vertical sweep bar.
func (s *SimSource) Frame() *image.RGBA {
	s.mu.Lock()
	t := s.now
	dur := s.cfg.Duration
	s.mu.Unlock()

	w, h := s.cfg.Width, s.cfg.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	var sweep int
	if dur > 0 {
		sweep = int(math.Mod(t/dur, 1) * float64(w))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8(128 + 96*math.Sin(t)),
				A: 255,
			}
			if abs(x-sweep) < w/32+1 {
				c = color.RGBA{R: 240, G: 240, B: 240, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func (s *SimSource) SupportsFrameCallback() bool { return !s.cfg.NoFrameCallback }

func (s *SimSource) OnFrame(fn func()) CancelFunc    { return s.subscribe(s.frameCbs, fn) }
func (s *SimSource) OnSeeked(fn func()) CancelFunc   { return s.subscribe(s.seekCbs, fn) }
func (s *SimSource) OnEnded(fn func()) CancelFunc    { return s.subscribe(s.endCbs, fn) }
func (s *SimSource) OnMetadata(fn func()) CancelFunc { return s.subscribe(s.metaCbs, fn) }

func (s *SimSource) subscribe(m map[int]func(), fn func()) CancelFunc {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	m[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(m, id)
		s.mu.Unlock()
	}
}

func (s *SimSource) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.playing = false
	s.frameCbs = map[int]func(){}
	s.seekCbs = map[int]func(){}
	s.endCbs = map[int]func(){}
	s.metaCbs = map[int]func(){}
	s.mu.Unlock()
	close(s.done)
}

func snapshotCallbacks(m map[int]func()) []func() {
	out := make([]func(), 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}

func fire(cbs []func()) {
	for _, fn := range cbs {
		fn()
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
